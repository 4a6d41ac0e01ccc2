package keyword

import (
	"sort"
	"strings"
	"unicode"

	"horse.fit/whittle/internal/post"
)

// Normalizer is the pluggable token-normalization hook. It is applied
// identically to post text and vocabulary tokens before matching and
// must be deterministic. A nil Normalizer matches tokens as-is.
type Normalizer func(token string) string

// Matcher scans normalized post text against a fixed vocabulary
// snapshot. It is a pure function of (text, vocabulary, normalizer)
// and safe for concurrent use.
type Matcher struct {
	entries   []matchEntry
	normalize Normalizer
}

type matchEntry struct {
	keyword Keyword
	tokens  []string
}

// NewMatcher compiles a vocabulary snapshot. Entries whose phrase
// normalizes to nothing are dropped. Vocabulary order does not matter;
// matches are always reported in lexical keyword order.
func NewMatcher(vocabulary []Keyword, normalize Normalizer) *Matcher {
	m := &Matcher{normalize: normalize}

	for _, kw := range vocabulary {
		tokens := m.tokenize(kw.Keyword)
		if len(tokens) == 0 {
			continue
		}
		m.entries = append(m.entries, matchEntry{keyword: kw, tokens: tokens})
	}
	sort.Slice(m.entries, func(i, j int) bool {
		return m.entries[i].keyword.Keyword < m.entries[j].keyword.Keyword
	})
	return m
}

// Match returns every vocabulary entry found in the text, with its
// occurrence count and total contribution after diminishing returns.
// Matching is case-insensitive and respects token boundaries: "saw"
// never matches inside "sawdust".
func (m *Matcher) Match(text string) []post.KeywordMatch {
	if m == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := m.tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var matches []post.KeywordMatch
	for _, entry := range m.entries {
		occurrences := countPhrase(tokens, entry.tokens)
		if occurrences == 0 {
			continue
		}
		matches = append(matches, post.KeywordMatch{
			Keyword:      entry.keyword.Keyword,
			Category:     entry.keyword.Category,
			Occurrences:  occurrences,
			Contribution: diminishedContribution(entry.keyword.Weight, occurrences),
		})
	}
	return matches
}

// tokenize lowercases, splits on non-alphanumeric runes, and applies
// the normalization hook per token. Empty tokens are dropped so hook
// output cannot create phantom boundaries.
func (m *Matcher) tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	if m == nil || m.normalize == nil {
		return fields
	}

	tokens := fields[:0]
	for _, field := range fields {
		if normalized := m.normalize(field); normalized != "" {
			tokens = append(tokens, normalized)
		}
	}
	return tokens
}

// countPhrase counts non-overlapping occurrences of phrase inside
// tokens.
func countPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return 0
	}

	count := 0
	for i := 0; i+len(phrase) <= len(tokens); {
		if phraseAt(tokens, phrase, i) {
			count++
			i += len(phrase)
			continue
		}
		i++
	}
	return count
}

func phraseAt(tokens, phrase []string, at int) bool {
	for j, want := range phrase {
		if tokens[at+j] != want {
			return false
		}
	}
	return true
}

// diminishedContribution bounds the reward for keyword stuffing: the
// first occurrence contributes the full weight, and each repeat adds
// half of the previous contribution, rounded down, until it reaches
// zero. Weight 5 over three occurrences yields 5+2+1 = 8.
func diminishedContribution(weight, occurrences int) int {
	total := 0
	step := weight
	for i := 0; i < occurrences && step != 0; i++ {
		total += step
		step /= 2
	}
	return total
}
