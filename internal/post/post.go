package post

import (
	"strings"
	"time"
)

// Key identifies a post by its origin. NativeID is unique only within
// a single source, so dedup always operates on the pair.
type Key struct {
	Source   string
	NativeID string
}

func (k Key) String() string {
	return k.Source + "/" + k.NativeID
}

// Normalized is the input contract from the collector layer. Instances
// are immutable once produced; the pipeline never writes back to them.
type Normalized struct {
	Source          string
	NativeID        string
	Title           string
	Body            string
	Author          string
	URL             string
	CreatedAt       *time.Time
	HasExternalLink bool
}

func (p Normalized) Key() Key {
	return Key{Source: p.Source, NativeID: p.NativeID}
}

// Text returns the combined title and body used for keyword matching.
func (p Normalized) Text() string {
	title := strings.TrimSpace(p.Title)
	body := strings.TrimSpace(p.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n" + body
	}
}

// Age reports how old the post is relative to now. A post without a
// creation timestamp reports ok=false and is treated as failing every
// age-sensitive check.
func (p Normalized) Age(now time.Time) (time.Duration, bool) {
	if p.CreatedAt == nil {
		return 0, false
	}
	return now.Sub(*p.CreatedAt), true
}

// Preview truncates the body for digest rendering.
func (p Normalized) Preview(maxChars int) string {
	body := strings.TrimSpace(p.Body)
	if maxChars <= 3 || len(body) <= maxChars {
		return body
	}
	return body[:maxChars-3] + "..."
}

// KeywordMatch records one vocabulary hit and its total contribution
// after diminishing returns.
type KeywordMatch struct {
	Keyword      string
	Category     string
	Occurrences  int
	Contribution int
}

// Scored pairs a normalized post with its score breakdown. Scores are
// plain sums and may be negative; filtering applies thresholds later.
type Scored struct {
	Post         Normalized
	Matches      []KeywordMatch
	BaseScore    int
	RecencyBonus int
	LinkPenalty  int
	FinalScore   int
}

// MatchedKeywords lists matched keyword strings in match order.
func (s Scored) MatchedKeywords() []string {
	if len(s.Matches) == 0 {
		return nil
	}
	keywords := make([]string, 0, len(s.Matches))
	for _, m := range s.Matches {
		keywords = append(keywords, m.Keyword)
	}
	return keywords
}
