package scoring

import (
	"time"

	"horse.fit/whittle/internal/keyword"
	"horse.fit/whittle/internal/post"
)

// Options carries the scoring adjustments. LinkPenalty is a positive
// magnitude and is subtracted from the score.
type Options struct {
	RecencyWindow time.Duration
	RecencyBonus  int
	LinkPenalty   int
}

// Engine combines keyword contributions with recency and link
// adjustments. Scoring is deterministic for a fixed (post, vocabulary,
// now) and never fails: malformed posts simply score what their
// usable fields earn.
type Engine struct {
	matcher *keyword.Matcher
	opts    Options
}

func NewEngine(matcher *keyword.Matcher, opts Options) *Engine {
	return &Engine{matcher: matcher, opts: opts}
}

// Score evaluates one post at the given instant. A post with no text
// earns zero keyword contributions; a post without a creation
// timestamp earns no recency bonus. The final score may be negative.
func (e *Engine) Score(p post.Normalized, now time.Time) post.Scored {
	scored := post.Scored{Post: p}
	if e == nil {
		return scored
	}

	scored.Matches = e.matcher.Match(p.Text())
	for _, m := range scored.Matches {
		scored.BaseScore += m.Contribution
	}

	// Boundary is strict: a post exactly RecencyWindow old gets nothing.
	if age, ok := p.Age(now); ok && age < e.opts.RecencyWindow {
		scored.RecencyBonus = e.opts.RecencyBonus
	}

	if p.HasExternalLink {
		scored.LinkPenalty = e.opts.LinkPenalty
	}

	scored.FinalScore = scored.BaseScore + scored.RecencyBonus - scored.LinkPenalty
	return scored
}

// ScoreAll evaluates a batch at a single shared instant so every post
// in a run sees the same clock.
func (e *Engine) ScoreAll(posts []post.Normalized, now time.Time) []post.Scored {
	if len(posts) == 0 {
		return nil
	}
	scored := make([]post.Scored, 0, len(posts))
	for _, p := range posts {
		scored = append(scored, e.Score(p, now))
	}
	return scored
}
