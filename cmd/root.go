package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/alert"
	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/config"
	"github.com/veridata/quality-cli/internal/correction"
	"github.com/veridata/quality-cli/internal/notify"
	"github.com/veridata/quality-cli/internal/pipeline"
	"github.com/veridata/quality-cli/internal/provenance"
	"github.com/veridata/quality-cli/internal/quality"
	"github.com/veridata/quality-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "quality-cli",
	Short: "Data quality, provenance, and correction engine",
	Long:  "Scores entity data quality, tracks field-level provenance with tamper evidence, reviews and applies corrections, and fires threshold alerts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "quality.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// app bundles the wired engines behind a single open/close pair.
type app struct {
	store       store.Store
	ledger      *provenance.Ledger
	quality     *quality.Engine
	corrections *correction.Engine
	alerts      *alert.Engine
	pipeline    *pipeline.Orchestrator
	qcfg        quality.Config
}

func openApp(ctx context.Context) (*app, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	clk := clock.System{}

	qcfg := quality.DefaultConfig()
	qcfg.Weights[quality.AssessorCompleteness] = cfg.Quality.CompletenessWeight
	qcfg.Weights[quality.AssessorConsistency] = cfg.Quality.ConsistencyWeight
	qcfg.Weights[quality.AssessorFreshness] = cfg.Quality.FreshnessWeight
	qcfg.Weights[quality.AssessorConfidence] = cfg.Quality.ConfidenceWeight
	if cfg.Quality.BatchConcurrency > 0 {
		qcfg.BatchConcurrency = cfg.Quality.BatchConcurrency
	}

	ccfg := correction.DefaultConfig()
	if cfg.Correction.AutoApplyConfidence > 0 {
		ccfg.AutoApplyConfidence = cfg.Correction.AutoApplyConfidence
	}
	if cfg.Correction.SimilarityThreshold > 0 {
		ccfg.SimilarityThreshold = cfg.Correction.SimilarityThreshold
	}

	rules := alert.DefaultRules()
	if cfg.Alert.RulesFile != "" {
		rules, err = alert.LoadRules(cfg.Alert.RulesFile)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	notifiers := notify.Multi{notify.Log{}}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookPerMinute))
	}

	ledger := provenance.NewLedger(st, clk)
	qe := quality.NewEngine(st, clk, qcfg)
	ce := correction.NewEngine(st, clk, ccfg)
	ae := alert.NewEngine(st, clk, rules, notifiers)

	orch := pipeline.New(st, ledger, qe, ce, ae, clk, qcfg)
	if cfg.Batch.Concurrency > 0 {
		orch.Concurrency = cfg.Batch.Concurrency
	}
	orch.AutoCorrect = cfg.Batch.AutoCorrect

	return &app{
		store:       st,
		ledger:      ledger,
		quality:     qe,
		corrections: ce,
		alerts:      ae,
		pipeline:    orch,
		qcfg:        qcfg,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// printJSON writes a value to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
