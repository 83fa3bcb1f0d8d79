package main

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/pipeline"
)

var (
	ingestFormat     string
	ingestType       string
	ingestSource     string
	ingestMethod     string
	ingestConfidence float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest records from a JSON or CSV file",
	Long: `Ingest entity records with provenance, then score and alert on each.

JSON input is an array of records:
  [{"entity_type": "company", "source_url": "https://example.com",
    "fields": {"name": "Acme Corp", "website": "https://acme.com"}}]

CSV input uses the header row as field names. An entity_id column, when
present, targets an existing entity; --type and --source apply to every row.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := readIngestFile(args[0])
		if err != nil {
			return err
		}

		var results []pipeline.IngestResult
		failed := 0
		for i, rec := range records {
			res, err := a.pipeline.Ingest(ctx, rec)
			if err != nil {
				failed++
				zap.L().Warn("record ingest failed", zap.Int("record", i), zap.Error(err))
				continue
			}
			results = append(results, *res)
		}

		zap.L().Info("ingest complete",
			zap.Int("ingested", len(results)),
			zap.Int("failed", failed))
		return printJSON(results)
	},
}

func readIngestFile(path string) ([]pipeline.IngestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	format := ingestFormat
	if format == "" {
		switch {
		case strings.HasSuffix(path, ".csv"):
			format = "csv"
		default:
			format = "json"
		}
	}

	var records []pipeline.IngestRecord
	switch format {
	case "json":
		if err := json.NewDecoder(f).Decode(&records); err != nil {
			return nil, eris.Wrapf(err, "parse %s", path)
		}
	case "csv":
		records, err = readCSVRecords(f)
		if err != nil {
			return nil, eris.Wrapf(err, "parse %s", path)
		}
	default:
		return nil, eris.Errorf("unsupported ingest format: %s", format)
	}

	for i := range records {
		rec := &records[i]
		if rec.EntityType == "" {
			rec.EntityType = model.EntityType(ingestType)
		}
		if rec.SourceURL == "" {
			rec.SourceURL = ingestSource
		}
		if rec.ExtractionMethod == "" {
			rec.ExtractionMethod = ingestMethod
		}
		if rec.Confidence == 0 {
			rec.Confidence = ingestConfidence
		}
		if rec.SourceURL == "" {
			return nil, eris.Errorf("record %d has no source URL (set --source)", i)
		}
	}
	return records, nil
}

func readCSVRecords(r io.Reader) ([]pipeline.IngestRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	var records []pipeline.IngestRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}

		rec := pipeline.IngestRecord{Fields: make(map[string]string)}
		for i, col := range header {
			if i >= len(row) {
				break
			}
			value := strings.TrimSpace(row[i])
			switch strings.ToLower(strings.TrimSpace(col)) {
			case "entity_id":
				rec.EntityID = value
			case "entity_type":
				rec.EntityType = model.EntityType(value)
			default:
				if value != "" {
					rec.Fields[col] = value
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "input format: json or csv (default from file extension)")
	ingestCmd.Flags().StringVar(&ingestType, "type", "company", "entity type for records that do not carry one")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source URL for records that do not carry one")
	ingestCmd.Flags().StringVar(&ingestMethod, "method", "import", "extraction method recorded in provenance")
	ingestCmd.Flags().Float64Var(&ingestConfidence, "confidence", 0.8, "extraction confidence for records that do not carry one")
	rootCmd.AddCommand(ingestCmd)
}
