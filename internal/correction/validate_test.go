package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridata/quality-cli/internal/model"
)

func TestInferFieldType(t *testing.T) {
	cases := map[string]FieldType{
		"email":            FieldEmail,
		"contact_email":    FieldEmail,
		"phone":            FieldPhone,
		"fax_number":       FieldPhone,
		"website":          FieldURL,
		"profile_url":      FieldURL,
		"registration_id":  FieldRegistrationID,
		"tax_id":           FieldRegistrationID,
		"address":          FieldAddress,
		"street":           FieldAddress,
		"founded_date":     FieldDate,
		"incorporated_at":  FieldDate,
		"name":             FieldGeneric,
		"employee_count":   FieldGeneric,
	}
	for field, want := range cases {
		assert.Equal(t, want, InferFieldType(field), field)
	}
}

func corr(field, value string) *model.Correction {
	return &model.Correction{
		EntityID:       "ent-1",
		FieldName:      field,
		SuggestedValue: value,
		Type:           model.CorrectionFixValue,
	}
}

func personEntity() *model.Entity {
	return &model.Entity{ID: "ent-1", Type: model.EntityTypePerson, Data: map[string]string{}}
}

func TestValidate_EmptyValueRejected(t *testing.T) {
	v := Validate(corr("name", "  "), personEntity(), nil, nil)
	assert.False(t, v.Valid)
	assert.Zero(t, v.Confidence)
}

func TestValidate_EmptyValueAllowedForFlagError(t *testing.T) {
	c := corr("name", "")
	c.Type = model.CorrectionFlagError
	v := Validate(c, personEntity(), nil, nil)
	assert.True(t, v.Valid)
}

func TestValidate_Email(t *testing.T) {
	v := Validate(corr("email", "jane@gmail.com"), personEntity(), nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)

	v = Validate(corr("email", "not-an-email"), personEntity(), nil, nil)
	assert.False(t, v.Valid)
	assert.InDelta(t, 0.1, v.Confidence, 1e-9)
}

func TestValidate_EmailDomainTypoWarnsButPasses(t *testing.T) {
	v := Validate(corr("email", "jane@gamil.com"), personEntity(), nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.6, v.Confidence, 1e-9)
	assert.NotEmpty(t, v.Warnings)
}

func TestValidate_Phone(t *testing.T) {
	v := Validate(corr("phone", "+1 (555) 123-4567"), personEntity(), nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)

	v = Validate(corr("phone", "12345"), personEntity(), nil, nil)
	assert.False(t, v.Valid)
}

func TestValidate_URL(t *testing.T) {
	v := Validate(corr("website", "https://example.com/about"), personEntity(), nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)

	v = Validate(corr("website", "example.com"), personEntity(), nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.7, v.Confidence, 1e-9)
	assert.NotEmpty(t, v.Warnings)

	v = Validate(corr("website", "not a url"), personEntity(), nil, nil)
	assert.False(t, v.Valid)
}

func TestValidate_RegistrationID(t *testing.T) {
	v := Validate(corr("registration_id", "ACME-12345"), personEntity(), nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.85, v.Confidence, 1e-9)

	v = Validate(corr("registration_id", "ab"), personEntity(), nil, nil)
	assert.False(t, v.Valid)
}

func TestValidate_Date(t *testing.T) {
	v := Validate(corr("founded_date", "2019-06-01"), personEntity(), nil, nil)
	assert.True(t, v.Valid)

	v = Validate(corr("founded_date", "sometime in june"), personEntity(), nil, nil)
	assert.False(t, v.Valid)
}

func TestValidate_ConflictsDampConfidence(t *testing.T) {
	conflicts := []model.Correction{{ID: "c-old", FieldName: "phone", SuggestedValue: "+15550000000"}}
	v := Validate(corr("phone", "+15551234567"), personEntity(), nil, conflicts)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.81, v.Confidence, 1e-9)
	assert.NotEmpty(t, v.Warnings)
}

func TestValidate_SupportingSourcesRaiseConfidence(t *testing.T) {
	provenance := []model.ProvenanceRecord{
		{FieldName: "phone", FieldValue: "+15551234567", SourceID: "src-a"},
		{FieldName: "phone", FieldValue: "+15551234567", SourceID: "src-b"},
		{FieldName: "phone", FieldValue: "+15559999999", SourceID: "src-c"},
	}
	v := Validate(corr("phone", "+15551234567"), personEntity(), provenance, nil)
	assert.True(t, v.Valid)
	// Base 0.9 plus 0.1 per distinct supporting source, clamped to 1.0.
	assert.InDelta(t, 1.0, v.Confidence, 1e-9)
	assert.Len(t, v.Evidence, 2)
}

func TestValidate_CompanyNameWithoutSuffixWarns(t *testing.T) {
	company := &model.Entity{ID: "ent-1", Type: model.EntityTypeCompany, Data: map[string]string{}}

	v := Validate(corr("name", "Acme"), company, nil, nil)
	assert.True(t, v.Valid)
	assert.InDelta(t, 0.63, v.Confidence, 1e-9)

	v = Validate(corr("name", "Acme Inc"), company, nil, nil)
	assert.InDelta(t, 0.7, v.Confidence, 1e-9)
	assert.Empty(t, v.Warnings)
}
