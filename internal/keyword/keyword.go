package keyword

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keyword is one scored vocabulary entry. The keyword string is stored
// normalized (lowercase, trimmed) and is unique in the store.
type Keyword struct {
	Keyword  string
	Category string
	Weight   int
}

const DefaultWeight = 5

// Categories accepted at the store boundary. Arbitrary labels are
// rejected rather than silently stored.
const (
	CategoryHighValue   = "high_value"
	CategoryMediumValue = "medium_value"
	CategoryLowValue    = "low_value"
	CategoryGeneral     = "general"
)

var categoryWeights = map[string]int{
	CategoryHighValue:   8,
	CategoryMediumValue: 5,
	CategoryLowValue:    3,
	CategoryGeneral:     DefaultWeight,
}

func Categories() []string {
	return []string{CategoryHighValue, CategoryMediumValue, CategoryLowValue, CategoryGeneral}
}

func ValidateCategory(category string) error {
	if _, ok := categoryWeights[category]; !ok {
		return fmt.Errorf("unknown keyword category %q (valid: %s)", category, strings.Join(Categories(), ", "))
	}
	return nil
}

// CategoryWeight returns the default weight for a category, falling
// back to DefaultWeight for anything unrecognized.
func CategoryWeight(category string) int {
	if w, ok := categoryWeights[category]; ok {
		return w
	}
	return DefaultWeight
}

// Normalize canonicalizes a keyword string for storage and matching.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// New validates and canonicalizes a single vocabulary entry. A zero or
// negative weight falls back to the category default.
func New(raw, category string, weight int) (Keyword, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return Keyword{}, fmt.Errorf("keyword is required")
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = CategoryGeneral
	}
	if err := ValidateCategory(category); err != nil {
		return Keyword{}, err
	}
	if weight == 0 {
		weight = CategoryWeight(category)
	}
	return Keyword{Keyword: normalized, Category: category, Weight: weight}, nil
}

type vocabularyFile struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// ParseVocabularyYAML reads a category → keyword-list vocabulary file
// and returns entries weighted by category defaults, sorted by keyword
// for deterministic import order.
func ParseVocabularyYAML(data []byte) ([]Keyword, error) {
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vocabulary YAML: %w", err)
	}
	if len(file.Keywords) == 0 {
		return nil, fmt.Errorf("vocabulary file has no keywords block")
	}

	categories := make([]string, 0, len(file.Keywords))
	for category := range file.Keywords {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var keywords []Keyword
	seen := make(map[string]struct{})
	for _, category := range categories {
		for _, entry := range file.Keywords[category] {
			kw, err := New(entry, category, 0)
			if err != nil {
				return nil, fmt.Errorf("vocabulary entry %q: %w", entry, err)
			}
			if _, exists := seen[kw.Keyword]; exists {
				continue
			}
			seen[kw.Keyword] = struct{}{}
			keywords = append(keywords, kw)
		}
	}

	sort.Slice(keywords, func(i, j int) bool { return keywords[i].Keyword < keywords[j].Keyword })
	return keywords, nil
}

// DefaultVocabulary seeds a fresh deployment with the woodworking
// vocabulary the system started from.
func DefaultVocabulary() []Keyword {
	defaults := map[string][]string{
		CategoryHighValue: {
			"table saw", "router", "jointer", "planer", "bandsaw",
			"drill press", "dust collection", "workshop setup",
			"miter saw", "circular saw", "hand plane", "chisel set",
		},
		CategoryMediumValue: {
			"wood finish", "sanding", "glue up", "mortise", "tenon",
			"dovetail", "pocket hole", "wood stain", "polyurethane",
			"clamps", "measuring tools", "safety equipment",
		},
		CategoryLowValue: {
			"wood species", "lumber", "hardwood", "softwood", "plywood",
			"project ideas", "beginner tips", "wood grain", "cutting board",
		},
	}

	var keywords []Keyword
	for category, entries := range defaults {
		for _, entry := range entries {
			keywords = append(keywords, Keyword{
				Keyword:  Normalize(entry),
				Category: category,
				Weight:   CategoryWeight(category),
			})
		}
	}
	sort.Slice(keywords, func(i, j int) bool { return keywords[i].Keyword < keywords[j].Keyword })
	return keywords
}
