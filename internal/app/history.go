package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/whittle/internal/cli"
	"horse.fit/whittle/internal/db"
)

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 25, "Number of records to show")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "history does not accept positional arguments")
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, logger, err := bootstrap(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	records, err := db.NewHistoryStore(pool, logger).ListExecutions(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query execution history: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(records); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		errorCount := 0
		if len(record.Errors) > 0 {
			var errs []string
			if err := json.Unmarshal(record.Errors, &errs); err == nil {
				errorCount = len(errs)
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", record.ExecutionRecordID),
			formatUTCTimestamp(record.StartedAt),
			record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond).String(),
			fmt.Sprintf("%d", record.PostsSeen),
			fmt.Sprintf("%d", record.PostsScored),
			fmt.Sprintf("%d", record.PostsEmitted),
			fmt.Sprintf("%t", record.DeadlineForced),
			fmt.Sprintf("%d", errorCount),
		})
	}
	if err := writeTable([]string{"ID", "STARTED", "DURATION", "SEEN", "SCORED", "EMITTED", "FORCED", "ERRORS"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
