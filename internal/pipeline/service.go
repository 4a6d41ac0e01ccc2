package pipeline

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/post"
)

// Options are the emission gates applied after scoring.
type Options struct {
	MaxPostAge time.Duration
	MinScore   int
	MaxPosts   int
}

// Service turns a scored, deduplicated batch into the final ranked
// emission list: age gate, score threshold, deterministic ranking,
// and the per-run cap.
type Service struct {
	opts   Options
	logger zerolog.Logger
}

func NewService(opts Options, logger zerolog.Logger) *Service {
	return &Service{opts: opts, logger: logger}
}

// Apply filters and ranks a batch at a single instant. The returned
// order is fully deterministic: score descending, then more recent
// creation first, then (source, native-id) lexical. Truncation keeps
// the head of that order and never reorders.
func (s *Service) Apply(scored []post.Scored, now time.Time) []post.Scored {
	if s == nil || len(scored) == 0 {
		return nil
	}

	kept := make([]post.Scored, 0, len(scored))
	for _, sp := range scored {
		age, ok := sp.Post.Age(now)
		if !ok {
			s.logger.Debug().Str("post", sp.Post.Key().String()).Msg("dropping post without creation timestamp")
			continue
		}
		if age > s.opts.MaxPostAge {
			s.logger.Debug().Str("post", sp.Post.Key().String()).Dur("age", age).Msg("dropping post past max age")
			continue
		}
		if sp.FinalScore < s.opts.MinScore {
			s.logger.Debug().Str("post", sp.Post.Key().String()).Int("score", sp.FinalScore).Msg("dropping post below threshold")
			continue
		}
		kept = append(kept, sp)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return rankLess(kept[i], kept[j])
	})

	if s.opts.MaxPosts > 0 && len(kept) > s.opts.MaxPosts {
		s.logger.Info().Int("qualified", len(kept)).Int("cap", s.opts.MaxPosts).Msg("truncating to per-run cap")
		kept = kept[:s.opts.MaxPosts]
	}
	return kept
}

func rankLess(a, b post.Scored) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	at, aok := a.Post.CreatedAt, a.Post.CreatedAt != nil
	bt, bok := b.Post.CreatedAt, b.Post.CreatedAt != nil
	if aok && bok && !at.Equal(*bt) {
		return at.After(*bt)
	}
	if a.Post.Source != b.Post.Source {
		return a.Post.Source < b.Post.Source
	}
	return a.Post.NativeID < b.Post.NativeID
}
