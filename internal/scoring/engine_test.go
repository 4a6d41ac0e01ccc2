package scoring

import (
	"testing"
	"time"

	"horse.fit/whittle/internal/keyword"
	"horse.fit/whittle/internal/post"
)

var testOpts = Options{
	RecencyWindow: 2 * time.Hour,
	RecencyBonus:  2,
	LinkPenalty:   1,
}

func testEngine() *Engine {
	matcher := keyword.NewMatcher([]keyword.Keyword{
		{Keyword: "table saw", Category: keyword.CategoryHighValue, Weight: 8},
		{Keyword: "saw", Category: keyword.CategoryHighValue, Weight: 5},
	}, nil)
	return NewEngine(matcher, testOpts)
}

func postAt(created time.Time, title, body string) post.Normalized {
	return post.Normalized{
		Source:    "reddit",
		NativeID:  "abc",
		Title:     title,
		Body:      body,
		CreatedAt: &created,
	}
}

func TestScore_CombinesComponents(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	p := postAt(now.Add(-30*time.Minute), "Best table saw?", "looking at options")
	p.HasExternalLink = true

	// "table saw" (8) and the contained "saw" (5) both match.
	scored := testEngine().Score(p, now)
	if scored.BaseScore != 13 {
		t.Fatalf("expected base score 13, got %d", scored.BaseScore)
	}
	if scored.RecencyBonus != 2 {
		t.Fatalf("expected recency bonus, got %d", scored.RecencyBonus)
	}
	if scored.LinkPenalty != 1 {
		t.Fatalf("expected link penalty, got %d", scored.LinkPenalty)
	}
	if scored.FinalScore != 14 {
		t.Fatalf("expected final score 13+2-1=14, got %d", scored.FinalScore)
	}
}

func TestScore_RecencyBoundaryIsStrict(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	e := testEngine()

	exactly := testEngine().Score(postAt(now.Add(-2*time.Hour), "saw", ""), now)
	if exactly.RecencyBonus != 0 {
		t.Fatalf("post exactly window old must get no bonus, got %d", exactly.RecencyBonus)
	}

	justInside := e.Score(postAt(now.Add(-2*time.Hour+time.Second), "saw", ""), now)
	if justInside.RecencyBonus != 2 {
		t.Fatalf("post one second inside the window must get the bonus, got %d", justInside.RecencyBonus)
	}
}

func TestScore_MissingFieldsDegradeGracefully(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	e := testEngine()

	noTimestamp := e.Score(post.Normalized{Source: "reddit", NativeID: "x", Title: "saw"}, now)
	if noTimestamp.RecencyBonus != 0 {
		t.Fatalf("post without timestamp must get no recency bonus, got %d", noTimestamp.RecencyBonus)
	}
	if noTimestamp.BaseScore != 5 {
		t.Fatalf("keyword score must still apply, got %d", noTimestamp.BaseScore)
	}

	noText := e.Score(postAt(now, "", ""), now)
	if noText.BaseScore != 0 || len(noText.Matches) != 0 {
		t.Fatalf("post without text must have zero matches, got %+v", noText)
	}
}

func TestScore_CanGoNegative(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	p := postAt(now.Add(-3*time.Hour), "nothing relevant here", "")
	p.HasExternalLink = true

	scored := testEngine().Score(p, now)
	if scored.FinalScore != -1 {
		t.Fatalf("expected negative score with no clamping, got %d", scored.FinalScore)
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	p := postAt(now.Add(-10*time.Minute), "table saw saw saw", "saw")
	e := testEngine()

	first := e.Score(p, now)
	for i := 0; i < 5; i++ {
		again := e.Score(p, now)
		if again.FinalScore != first.FinalScore || again.BaseScore != first.BaseScore {
			t.Fatalf("score must be identical across invocations: %+v vs %+v", first, again)
		}
	}
}
