package digest

import (
	"strings"
	"testing"
	"time"

	"horse.fit/whittle/internal/post"
	"horse.fit/whittle/internal/run"
)

func sampleResult() run.Result {
	finished := time.Date(2026, 8, 28, 12, 2, 30, 0, time.UTC)
	created := finished.Add(-45 * time.Minute)
	return run.Result{
		Emitted: []post.Scored{
			{
				Post: post.Normalized{
					Source:    "reddit",
					NativeID:  "abc",
					Title:     "Which table saw for a small shop?",
					Body:      "Looking at contractor saws around $800. Any advice?",
					Author:    "benchdog",
					URL:       "https://reddit.com/r/woodworking/abc",
					CreatedAt: &created,
				},
				FinalScore: 10,
			},
		},
		Record: run.Record{
			StartedAt:  finished.Add(-150 * time.Second),
			FinishedAt: finished,
			PostsSeen:  40,
		},
	}
}

func TestRender_Entries(t *testing.T) {
	t.Parallel()

	out := Render(sampleResult(), Options{Title: "Woodworking Digest", PreviewLength: 250})

	for _, want := range []string{
		"# Woodworking Digest",
		"*Processed 40 posts in 150.0 seconds*",
		"### 1. Reddit (Score: 10)",
		"**Which table saw for a small shop?**",
		"*by benchdog • 45 minutes ago*",
		"[View Post](https://reddit.com/r/woodworking/abc)",
		"Looking at contractor saws around $800. Any advice?",
		"*Execution completed in 150.0 seconds*",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("digest missing %q:\n%s", want, out)
		}
	}
}

func TestRender_Empty(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	result.Emitted = nil
	out := Render(result, Options{})

	if !strings.Contains(out, "No relevant posts found in this run.") {
		t.Fatalf("expected empty-run notice:\n%s", out)
	}
	if !strings.Contains(out, "# Community Digest") {
		t.Fatalf("expected default title:\n%s", out)
	}
}

func TestRender_DeadlineForcedNotice(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	result.Record.DeadlineForced = true
	out := Render(result, Options{})

	if !strings.Contains(out, "results may be partial") {
		t.Fatalf("expected deadline notice:\n%s", out)
	}
}

func TestRender_TruncatesPreviewAndHandlesMissingFields(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	result.Emitted[0].Post.Author = ""
	result.Emitted[0].Post.URL = ""
	result.Emitted[0].Post.CreatedAt = nil
	result.Emitted[0].Post.Body = strings.Repeat("sawdust ", 60)
	out := Render(result, Options{PreviewLength: 40})

	if !strings.Contains(out, "*by unknown*") {
		t.Fatalf("expected unknown author fallback:\n%s", out)
	}
	if strings.Contains(out, "[View Post]") {
		t.Fatalf("expected link line to be omitted:\n%s", out)
	}
	if !strings.Contains(out, "sawdust sawdust sawdust sawdust sawds...") {
		t.Fatalf("expected truncated preview:\n%s", out)
	}
}
