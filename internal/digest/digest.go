// Package digest renders the emitted posts of a run as a Markdown
// document suitable for terminal output, email bodies, or chat posts.
package digest

import (
	"fmt"
	"strings"
	"time"

	"horse.fit/whittle/internal/post"
	"horse.fit/whittle/internal/run"
)

var sourceDisplayNames = map[string]string{
	"reddit":       "Reddit",
	"lumberjocks":  "LumberJocks",
	"sawmillcreek": "SawmillCreek",
	"facebook":     "Facebook",
}

// Options control rendering. PreviewLength bounds the body excerpt
// shown under each entry.
type Options struct {
	Title         string
	PreviewLength int
}

const (
	defaultTitle         = "Community Digest"
	defaultPreviewLength = 250
)

// Render produces the Markdown digest for a finished run.
func Render(result run.Result, opts Options) string {
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}
	previewLength := opts.PreviewLength
	if previewLength <= 0 {
		previewLength = defaultPreviewLength
	}

	duration := result.Record.FinishedAt.Sub(result.Record.StartedAt)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "*Generated at %s*\n", result.Record.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "*Processed %d posts in %.1f seconds*\n", result.Record.PostsSeen, duration.Seconds())
	b.WriteString("\n## Top Opportunities\n\n")

	if len(result.Emitted) == 0 {
		b.WriteString("No relevant posts found in this run.\n")
	}
	for i, entry := range result.Emitted {
		fmt.Fprintf(&b, "### %d. %s (Score: %d)\n", i+1, displayName(entry.Post.Source), entry.FinalScore)
		fmt.Fprintf(&b, "**%s**\n", strings.TrimSpace(entry.Post.Title))
		fmt.Fprintf(&b, "*by %s%s*\n", authorOrUnknown(entry.Post.Author), ageSuffix(entry.Post, result.Record.FinishedAt))
		if entry.Post.URL != "" {
			fmt.Fprintf(&b, "[View Post](%s)\n", entry.Post.URL)
		}
		b.WriteString("\n")
		if preview := entry.Post.Preview(previewLength); preview != "" {
			b.WriteString(preview)
			b.WriteString("\n\n")
		}
	}

	if result.Record.DeadlineForced {
		b.WriteString("*Run ended early under its execution budget; results may be partial.*\n")
	}
	b.WriteString("---\n")
	fmt.Fprintf(&b, "*Execution completed in %.1f seconds*\n", duration.Seconds())
	return b.String()
}

func displayName(source string) string {
	if name, ok := sourceDisplayNames[source]; ok {
		return name
	}
	return source
}

func authorOrUnknown(author string) string {
	if strings.TrimSpace(author) == "" {
		return "unknown"
	}
	return author
}

func ageSuffix(p post.Normalized, now time.Time) string {
	age, ok := p.Age(now)
	if !ok || age < 0 {
		return ""
	}
	return fmt.Sprintf(" • %d minutes ago", int(age.Minutes()))
}
