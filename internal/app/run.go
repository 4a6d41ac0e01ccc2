package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"horse.fit/whittle/internal/cli"
	"horse.fit/whittle/internal/collector"
	"horse.fit/whittle/internal/db"
	"horse.fit/whittle/internal/dedup"
	"horse.fit/whittle/internal/digest"
	"horse.fit/whittle/internal/keyword"
	"horse.fit/whittle/internal/pipeline"
	"horse.fit/whittle/internal/run"
	"horse.fit/whittle/internal/scoring"
)

// historySink adapts the run record to the persisted execution table.
type historySink struct {
	store *db.HistoryStore
}

func (h historySink) SaveExecution(ctx context.Context, record run.Record) error {
	errorsJSON, err := json.Marshal(record.Errors)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}
	_, err = h.store.SaveExecution(ctx, db.ExecutionRecord{
		StartedAt:      record.StartedAt,
		FinishedAt:     record.FinishedAt,
		PostsSeen:      record.PostsSeen,
		PostsScored:    record.PostsScored,
		PostsEmitted:   record.PostsEmitted,
		DeadlineForced: record.DeadlineForced,
		Errors:         errorsJSON,
	})
	return err
}

func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dropDir := fs.String("drop-dir", "data/incoming", "Directory holding per-source drop files (<source>.json)")
	format := fs.String("format", "digest", "Output format: digest or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run does not accept positional arguments")
		return 2
	}

	outputFormat := strings.TrimSpace(strings.ToLower(*format))
	if outputFormat != "digest" && outputFormat != outputFormatJSON {
		fmt.Fprintln(os.Stderr, "--format must be digest or json")
		return 2
	}

	// The command timeout has to outlive the execution budget so the
	// controller's own deadline handling stays in charge.
	_, cancel, cfg, pool, logger, err := bootstrap(0, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	keywords := db.NewKeywordStore(pool, logger)
	seen := db.NewSeenStore(pool, logger)
	history := db.NewHistoryStore(pool, logger)

	runCtx, runCancel := context.WithTimeout(context.Background(), cfg.ExecutionBudget+30*time.Second)
	defer runCancel()

	vocabulary, err := keywords.List(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load vocabulary")
		fmt.Fprintf(os.Stderr, "Failed to load vocabulary: %v\n", err)
		return 1
	}
	if len(vocabulary) == 0 {
		fmt.Fprintln(os.Stderr, "Vocabulary is empty; run \"whittle init\" first")
		return 1
	}

	sources := cfg.SourcePriorityList()
	collectors := make([]run.Collector, 0, len(sources))
	for _, source := range sources {
		path := filepath.Join(*dropDir, source+".json")
		collectors = append(collectors, collector.NewFileCollector(source, path, logger))
	}

	controller := run.NewController(
		collectors,
		dedup.New(seen, sources, cfg.FingerprintMinLength, cfg.FingerprintBodyChars, logger),
		scoring.NewEngine(keyword.NewMatcher(vocabulary, nil), scoring.Options{
			RecencyWindow: cfg.RecencyWindow,
			RecencyBonus:  cfg.RecencyBonus,
			LinkPenalty:   cfg.LinkPenalty,
		}),
		pipeline.NewService(pipeline.Options{
			MaxPostAge: cfg.MaxPostAge,
			MinScore:   cfg.MinScore,
			MaxPosts:   cfg.MaxPostsPerRun,
		}, logger),
		seen,
		historySink{store: history},
		run.Options{
			Budget:         cfg.ExecutionBudget,
			MarginPct:      cfg.DeadlineMarginPct,
			CollectTimeout: cfg.CollectTimeout,
			PostsPerSource: cfg.PostsPerSource,
			Retention:      time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		},
		logger,
	)

	result, err := controller.Execute(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Print(digest.Render(result, digest.Options{
		Title:         "Woodworking Community Digest",
		PreviewLength: cfg.PreviewLength,
	}))
	return 0
}
