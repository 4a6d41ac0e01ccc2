package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "init":
		return runInit(args[1:])
	case "run", "run-once":
		return runOnce(args[1:])
	case "keywords":
		return runKeywords(args[1:])
	case "history":
		return runHistory(args[1:])
	case "cleanup":
		return runCleanup(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "whittle CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  whittle <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  init      Create the database schema and seed the default vocabulary")
	fmt.Fprintln(os.Stderr, "  run       Execute one collect-score-filter-emit run")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for run")
	fmt.Fprintln(os.Stderr, "  keywords  List or edit the scored vocabulary")
	fmt.Fprintln(os.Stderr, "  history   Show recent execution records")
	fmt.Fprintln(os.Stderr, "  cleanup   Remove registry rows older than the retention window")
	fmt.Fprintln(os.Stderr, "  serve     Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"whittle <command> -h\" for command-specific flags.")
}
