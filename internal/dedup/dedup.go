package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/post"
)

// Registry is the persisted record of already-processed posts. The
// store answers membership for a whole batch in one round trip.
type Registry interface {
	FilterSeen(ctx context.Context, keys []post.Key) (map[post.Key]bool, error)
}

// Deduplicator drops posts already processed in earlier runs and
// duplicates within the current batch. Calls are serialized so two
// concurrent batches can never both pass the not-seen check.
type Deduplicator struct {
	mu        sync.Mutex
	registry  Registry
	rank      map[string]int
	minLength int
	bodyChars int
	logger    zerolog.Logger
}

func New(registry Registry, sourcePriority []string, minFingerprintLength, bodyChars int, logger zerolog.Logger) *Deduplicator {
	rank := make(map[string]int, len(sourcePriority))
	for i, source := range sourcePriority {
		rank[strings.ToLower(source)] = i
	}
	return &Deduplicator{
		registry:  registry,
		rank:      rank,
		minLength: minFingerprintLength,
		bodyChars: bodyChars,
		logger:    logger,
	}
}

// Dedup filters a run's batch. Exact (source, native-id) duplicates are
// a hard exclude, both in-batch and against the registry. Cross-source
// fingerprint collisions keep the instance from the highest-priority
// source; this is best-effort, and posts with too little content for a
// trustworthy fingerprint are never dropped on fingerprint evidence.
// A registry failure is returned as-is: it is a resource error and
// fatal for the run.
func (d *Deduplicator) Dedup(ctx context.Context, posts []post.Normalized) ([]post.Normalized, error) {
	if d == nil || len(posts) == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	batch := d.dropExactDuplicates(posts)
	batch = d.dropFingerprintDuplicates(batch)

	keys := make([]post.Key, 0, len(batch))
	for _, p := range batch {
		keys = append(keys, p.Key())
	}
	seen, err := d.registry.FilterSeen(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("query seen registry: %w", err)
	}

	kept := batch[:0]
	for _, p := range batch {
		if seen[p.Key()] {
			d.logger.Debug().Str("post", p.Key().String()).Msg("dropping already processed post")
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}

func (d *Deduplicator) dropExactDuplicates(posts []post.Normalized) []post.Normalized {
	kept := make([]post.Normalized, 0, len(posts))
	seen := make(map[post.Key]struct{}, len(posts))
	for _, p := range posts {
		key := p.Key()
		if _, dup := seen[key]; dup {
			d.logger.Debug().Str("post", key.String()).Msg("dropping in-batch duplicate")
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, p)
	}
	return kept
}

func (d *Deduplicator) dropFingerprintDuplicates(posts []post.Normalized) []post.Normalized {
	byFingerprint := make(map[string]post.Normalized, len(posts))
	order := make([]string, 0, len(posts))

	for _, p := range posts {
		fp, ok := d.Fingerprint(p)
		if !ok {
			// Not enough content to trust; pass through untouched.
			fp = "raw:" + p.Key().String()
		}
		current, exists := byFingerprint[fp]
		if !exists {
			byFingerprint[fp] = p
			order = append(order, fp)
			continue
		}
		if d.preferred(p, current) {
			d.logger.Debug().
				Str("kept", p.Key().String()).
				Str("dropped", current.Key().String()).
				Msg("cross-source duplicate resolved by priority")
			byFingerprint[fp] = p
		} else {
			d.logger.Debug().
				Str("kept", current.Key().String()).
				Str("dropped", p.Key().String()).
				Msg("cross-source duplicate resolved by priority")
		}
	}

	kept := make([]post.Normalized, 0, len(order))
	for _, fp := range order {
		kept = append(kept, byFingerprint[fp])
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Source != kept[j].Source {
			return kept[i].Source < kept[j].Source
		}
		return kept[i].NativeID < kept[j].NativeID
	})
	return kept
}

// Fingerprint derives the lossy cross-source content hash: normalized
// title plus a bounded body prefix. ok is false when the material is
// shorter than the configured minimum, which guards against wrongly
// collapsing distinct short posts.
func (d *Deduplicator) Fingerprint(p post.Normalized) (string, bool) {
	material := normalizeContent(p.Title)
	body := normalizeContent(p.Body)
	if d.bodyChars > 0 && len(body) > d.bodyChars {
		body = body[:d.bodyChars]
	}
	if body != "" {
		material += "\n" + body
	}

	if len(material) < d.minLength {
		return "", false
	}

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:]), true
}

// preferred reports whether a should replace b for the same
// fingerprint. Lower priority rank wins; unknown sources rank last;
// final tie-break is lexical on (source, native-id) for determinism.
func (d *Deduplicator) preferred(a, b post.Normalized) bool {
	ra, rb := d.sourceRank(a.Source), d.sourceRank(b.Source)
	if ra != rb {
		return ra < rb
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.NativeID < b.NativeID
}

func (d *Deduplicator) sourceRank(source string) int {
	if rank, ok := d.rank[strings.ToLower(source)]; ok {
		return rank
	}
	return len(d.rank)
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
