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

func runKeywords(args []string) int {
	fs := flag.NewFlagSet("keywords", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	add := fs.String("add", "", "Keyword or phrase to add")
	category := fs.String("category", keyword.CategoryGeneral, "Category for --add")
	weight := fs.Int("weight", 0, "Weight for --add (0 uses the category default)")
	remove := fs.String("remove", "", "Keyword or phrase to remove")
	importPath := fs.String("import", "", "YAML vocabulary file to import")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "keywords does not accept positional arguments")
		return 2
	}

	actions := 0
	for _, set := range []bool{*add != "", *remove != "", *importPath != ""} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		fmt.Fprintln(os.Stderr, "--add, --remove, and --import are mutually exclusive")
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

	keywords := db.NewKeywordStore(pool, logger)

	switch {
	case *add != "":
		kw, err := keyword.New(*add, *category, *weight)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid keyword: %v\n", err)
			return 2
		}
		if err := keywords.Upsert(ctx, kw); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to add keyword: %v\n", err)
			return 1
		}
		fmt.Printf("added %q (%s, weight %d)\n", kw.Keyword, kw.Category, kw.Weight)
		return 0

	case *remove != "":
		removed, err := keywords.Remove(ctx, *remove)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove keyword: %v\n", err)
			return 1
		}
		if !removed {
			fmt.Fprintf(os.Stderr, "keyword %q not found\n", keyword.Normalize(*remove))
			return 1
		}
		fmt.Printf("removed %q\n", keyword.Normalize(*remove))
		return 0

	case *importPath != "":
		data, err := os.ReadFile(*importPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read vocabulary file: %v\n", err)
			return 1
		}
		vocabulary, err := keyword.ParseVocabularyYAML(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse vocabulary file: %v\n", err)
			return 1
		}
		imported, err := keywords.Import(ctx, vocabulary)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to import vocabulary: %v\n", err)
			return 1
		}
		fmt.Printf("imported %d keywords\n", imported)
		return 0
	}

	vocabulary, err := keywords.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list keywords: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(vocabulary); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(vocabulary))
	for _, kw := range vocabulary {
		rows = append(rows, []string{kw.Keyword, kw.Category, fmt.Sprintf("%d", kw.Weight)})
	}
	if err := writeTable([]string{"KEYWORD", "CATEGORY", "WEIGHT"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
