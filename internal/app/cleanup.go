package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/whittle/internal/cli"
	"horse.fit/whittle/internal/db"
	"horse.fit/whittle/internal/globaltime"
)

func runCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	olderThan := fs.Duration("older-than", 0, "Remove rows older than this (default: configured retention)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "cleanup does not accept positional arguments")
		return 2
	}
	if *olderThan < 0 {
		fmt.Fprintln(os.Stderr, "--older-than must be positive")
		return 2
	}

	ctx, cancel, cfg, pool, logger, err := bootstrap(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	retention := *olderThan
	if retention == 0 {
		retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	}
	cutoff := globaltime.UTC().Add(-retention)

	removed, err := db.NewSeenStore(pool, logger).CleanupBefore(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		return 1
	}

	fmt.Printf("removed %d rows older than %s\n", removed, formatUTCTimestamp(cutoff))
	return 0
}
