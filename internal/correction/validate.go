// Package correction validates, reviews, applies, and auto-generates field
// corrections, including duplicate-entity merges.
package correction

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/veridata/quality-cli/internal/model"
)

// FieldType is the validation category inferred from a field name.
type FieldType string

const (
	FieldEmail          FieldType = "email"
	FieldPhone          FieldType = "phone"
	FieldURL            FieldType = "url"
	FieldRegistrationID FieldType = "registration_id"
	FieldAddress        FieldType = "address"
	FieldDate           FieldType = "date"
	FieldGeneric        FieldType = "generic"
)

// Validation is the outcome of checking a proposed correction.
type Validation struct {
	Valid      bool     `json:"valid"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
}

// InferFieldType maps a field name to its validation category.
func InferFieldType(fieldName string) FieldType {
	name := strings.ToLower(fieldName)
	switch {
	case strings.Contains(name, "email"):
		return FieldEmail
	case strings.Contains(name, "phone") || strings.Contains(name, "tel") || strings.Contains(name, "fax"):
		return FieldPhone
	case strings.Contains(name, "url") || strings.Contains(name, "website") || strings.Contains(name, "site"):
		return FieldURL
	case strings.Contains(name, "registration") || strings.Contains(name, "reg_id") || strings.Contains(name, "tax_id"):
		return FieldRegistrationID
	case strings.Contains(name, "address") || strings.Contains(name, "street") || strings.Contains(name, "city"):
		return FieldAddress
	case strings.Contains(name, "date") || strings.HasSuffix(name, "_at") || strings.Contains(name, "year"):
		return FieldDate
	default:
		return FieldGeneric
	}
}

var (
	emailRe          = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	registrationIDRe = regexp.MustCompile(`^[A-Za-z0-9\-]{5,20}$`)
	digitRe          = regexp.MustCompile(`[0-9]`)
	letterRe         = regexp.MustCompile(`[A-Za-z]`)
	nonDigitRe       = regexp.MustCompile(`[^0-9]`)
)

// commonEmailDomains is the fuzzy-match list for detecting near-miss domain
// typos like gamil.com.
var commonEmailDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "icloud.com",
	"aol.com", "protonmail.com", "live.com",
}

// legalSuffixes are tokens a registered company name usually ends with.
var legalSuffixes = []string{
	"inc", "inc.", "llc", "ltd", "ltd.", "corp", "corp.", "co", "co.",
	"company", "gmbh", "plc", "sa", "ag", "lp", "llp",
}

// dateLayouts a corrected date value may arrive in.
var dateLayouts = []string{
	"2006-01-02", time.RFC3339, "01/02/2006", "2006-01-02 15:04:05", "January 2, 2006",
}

// Validate runs type, conflict, evidence, and business checks over a proposed
// correction. Conflicts and soft format problems damp confidence via
// warnings; only hard format failures make the correction invalid.
func Validate(c *model.Correction, entity *model.Entity, provenance []model.ProvenanceRecord, conflicts []model.Correction) Validation {
	v := Validation{Valid: true, Confidence: 0.7}

	if strings.TrimSpace(c.SuggestedValue) == "" && c.Type != model.CorrectionFlagError && c.Type != model.CorrectionMergeEntities {
		return Validation{
			Valid:      false,
			Confidence: 0.0,
			Issues:     []string{"suggested value is empty"},
		}
	}

	if c.Type != model.CorrectionMergeEntities && c.Type != model.CorrectionFlagError {
		checkFormat(&v, InferFieldType(c.FieldName), c.SuggestedValue)
	}

	// Conflicting live corrections on the same field damp confidence but do
	// not reject; the reviewer decides.
	for _, other := range conflicts {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"correction %s already targets %s with value %q", other.ID, c.FieldName, other.SuggestedValue))
		v.Confidence *= 0.9
	}

	// Supporting evidence: distinct sources whose provenance already holds
	// the suggested value.
	supporting := make(map[string]bool)
	for _, rec := range provenance {
		if rec.FieldName == c.FieldName && valuesEqual(rec.FieldValue, c.SuggestedValue) && !supporting[rec.SourceID] {
			supporting[rec.SourceID] = true
			v.Evidence = append(v.Evidence, fmt.Sprintf("source %s reports %q", rec.SourceID, rec.FieldValue))
		}
	}
	v.Confidence += 0.1 * float64(len(supporting))

	checkBusinessRules(&v, c, entity)

	if v.Confidence > 1.0 {
		v.Confidence = 1.0
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	return v
}

func valuesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// checkFormat applies the type-specific format rule and sets the base
// confidence contribution.
func checkFormat(v *Validation, ft FieldType, value string) {
	value = strings.TrimSpace(value)
	switch ft {
	case FieldEmail:
		checkEmail(v, value)
	case FieldPhone:
		digits := nonDigitRe.ReplaceAllString(value, "")
		if len(digits) >= 7 && len(digits) <= 15 {
			v.Confidence = 0.9
		} else {
			v.Valid = false
			v.Confidence = 0.2
			v.Issues = append(v.Issues, fmt.Sprintf("phone number has %d digits, expected 7-15", len(digits)))
		}
	case FieldURL:
		checkURL(v, value)
	case FieldRegistrationID:
		if registrationIDRe.MatchString(value) {
			v.Confidence = 0.85
		} else {
			v.Valid = false
			v.Confidence = 0.2
			v.Issues = append(v.Issues, "registration ID must be 5-20 alphanumeric characters")
		}
	case FieldAddress:
		if len(value) >= 5 && digitRe.MatchString(value) && letterRe.MatchString(value) {
			v.Confidence = 0.8
		} else {
			v.Confidence = 0.5
			v.Warnings = append(v.Warnings, "address lacks the usual number-plus-street shape")
		}
	case FieldDate:
		if parseableDate(value) {
			v.Confidence = 0.9
		} else {
			v.Valid = false
			v.Confidence = 0.2
			v.Issues = append(v.Issues, fmt.Sprintf("unparseable date %q", value))
		}
	default:
		v.Confidence = 0.7
	}
}

func checkEmail(v *Validation, value string) {
	if !emailRe.MatchString(value) {
		v.Valid = false
		v.Confidence = 0.1
		v.Issues = append(v.Issues, fmt.Sprintf("malformed email %q", value))
		return
	}

	domain := strings.ToLower(value[strings.LastIndex(value, "@")+1:])
	for _, known := range commonEmailDomains {
		if domain == known {
			v.Confidence = 0.9
			return
		}
	}
	// Near-miss against a common domain is usually a typo: valid but at
	// reduced confidence so it lands in review.
	for _, known := range commonEmailDomains {
		if sim := levenshtein.Similarity(domain, known, nil); sim >= 0.75 && sim < 1.0 {
			v.Confidence = 0.6
			v.Warnings = append(v.Warnings, fmt.Sprintf("domain %q looks like a typo of %q", domain, known))
			return
		}
	}
	v.Confidence = 0.85
}

func checkURL(v *Validation, value string) {
	u, err := url.Parse(value)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && strings.Contains(u.Host, ".") {
		v.Confidence = 0.9
		return
	}
	// Host-only values like example.com are usable after normalization.
	if err == nil && u.Scheme == "" && strings.Contains(value, ".") && !strings.ContainsAny(value, " \t") {
		v.Confidence = 0.7
		v.Warnings = append(v.Warnings, "URL is missing a scheme")
		return
	}
	v.Valid = false
	v.Confidence = 0.2
	v.Issues = append(v.Issues, fmt.Sprintf("malformed URL %q", value))
}

func parseableDate(value string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

// checkBusinessRules applies per-entity-type plausibility penalties.
func checkBusinessRules(v *Validation, c *model.Correction, entity *model.Entity) {
	if entity == nil {
		return
	}
	if entity.Type == model.EntityTypeCompany && c.FieldName == "name" && !hasLegalSuffix(c.SuggestedValue) {
		v.Confidence *= 0.9
		v.Warnings = append(v.Warnings, "company name lacks a known legal suffix")
	}
}

func hasLegalSuffix(name string) bool {
	words := strings.Fields(strings.ToLower(name))
	if len(words) == 0 {
		return false
	}
	last := strings.Trim(words[len(words)-1], ".,")
	for _, suffix := range legalSuffixes {
		if last == strings.Trim(suffix, ".") {
			return true
		}
	}
	return false
}
