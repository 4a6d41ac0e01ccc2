package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/whittle/internal/cli"
	"horse.fit/whittle/internal/db"
	"horse.fit/whittle/internal/keyword"
)

// runInit creates the schema (a side effect of opening the pool) and
// seeds the default vocabulary when the keywords table is empty. An
// explicit vocabulary file replaces the built-in seed.
func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	vocabularyPath := fs.String("vocabulary", "", "YAML vocabulary file to seed instead of the built-in set")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "init does not accept positional arguments")
		return 2
	}

	seed := keyword.DefaultVocabulary()
	if *vocabularyPath != "" {
		data, err := os.ReadFile(*vocabularyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read vocabulary file: %v\n", err)
			return 1
		}
		seed, err = keyword.ParseVocabularyYAML(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse vocabulary file: %v\n", err)
			return 1
		}
	}

	ctx, cancel, cfg, pool, logger, err := bootstrap(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	keywords := db.NewKeywordStore(pool, logger)
	count, err := keywords.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to inspect vocabulary: %v\n", err)
		return 1
	}
	if count > 0 && *vocabularyPath == "" {
		fmt.Printf("schema ready: %s (vocabulary already has %d keywords)\n", cfg.DatabasePath, count)
		return 0
	}

	imported, err := keywords.Import(ctx, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed vocabulary: %v\n", err)
		return 1
	}

	fmt.Printf("schema ready: %s (seeded %d keywords)\n", cfg.DatabasePath, imported)
	return 0
}
