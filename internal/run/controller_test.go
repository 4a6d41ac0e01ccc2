package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/dedup"
	"horse.fit/whittle/internal/globaltime"
	"horse.fit/whittle/internal/keyword"
	"horse.fit/whittle/internal/pipeline"
	"horse.fit/whittle/internal/post"
	"horse.fit/whittle/internal/scoring"
)

// memoryRegistry backs both the deduplicator and the controller in
// tests: FilterSeen answers from what MarkEmitted stored.
type memoryRegistry struct {
	mu         sync.Mutex
	seen       map[post.Key]bool
	emitted    [][]post.Scored
	filterErr  error
	markErr    error
	cleanupErr error
	cleanedAt  *time.Time
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{seen: map[post.Key]bool{}}
}

func (r *memoryRegistry) FilterSeen(_ context.Context, keys []post.Key) (map[post.Key]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filterErr != nil {
		return nil, r.filterErr
	}
	result := make(map[post.Key]bool, len(keys))
	for _, key := range keys {
		if r.seen[key] {
			result[key] = true
		}
	}
	return result, nil
}

func (r *memoryRegistry) MarkEmitted(_ context.Context, emitted []post.Scored, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	for _, sp := range emitted {
		r.seen[sp.Post.Key()] = true
	}
	r.emitted = append(r.emitted, emitted)
	return nil
}

func (r *memoryRegistry) CleanupBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleanupErr != nil {
		return 0, r.cleanupErr
	}
	r.cleanedAt = &cutoff
	return 0, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []Record
	saveErr error
}

func (h *memoryHistory) SaveExecution(_ context.Context, record Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saveErr != nil {
		return h.saveErr
	}
	h.records = append(h.records, record)
	return nil
}

type stubCollector struct {
	name  string
	posts []post.Normalized
	err   error
	hook  func(ctx context.Context)
}

func (c *stubCollector) Name() string { return c.name }

func (c *stubCollector) Collect(ctx context.Context, _ int) ([]post.Normalized, error) {
	if c.hook != nil {
		c.hook(ctx)
	}
	return c.posts, c.err
}

func testOptions() Options {
	return Options{
		Budget:         120 * time.Second,
		MarginPct:      10,
		CollectTimeout: 10 * time.Second,
		PostsPerSource: 50,
		Retention:      30 * 24 * time.Hour,
	}
}

func newTestController(collectors []Collector, registry *memoryRegistry, history *memoryHistory, opts Options) *Controller {
	logger := zerolog.Nop()
	matcher := keyword.NewMatcher([]keyword.Keyword{
		{Keyword: "table saw", Category: keyword.CategoryHighValue, Weight: 8},
		{Keyword: "router", Category: keyword.CategoryMediumValue, Weight: 5},
		{Keyword: "lumber", Category: keyword.CategoryLowValue, Weight: 3},
	}, nil)
	engine := scoring.NewEngine(matcher, scoring.Options{
		RecencyWindow: 2 * time.Hour,
		RecencyBonus:  2,
		LinkPenalty:   1,
	})
	filter := pipeline.NewService(pipeline.Options{
		MaxPostAge: 24 * time.Hour,
		MinScore:   1,
		MaxPosts:   20,
	}, logger)
	deduplicator := dedup.New(registry, []string{"reddit", "lumberjocks"}, 20, 120, logger)
	return NewController(collectors, deduplicator, engine, filter, registry, history, opts, logger)
}

func freshPost(now time.Time, source, id, title string) post.Normalized {
	created := now.Add(-30 * time.Minute)
	return post.Normalized{
		Source:    source,
		NativeID:  id,
		Title:     title,
		Body:      "asking the community for advice",
		Author:    "someone",
		URL:       "https://example.com/" + id,
		CreatedAt: &created,
	}
}

func TestExecute_FullRun(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{}
	collectors := []Collector{
		&stubCollector{name: "reddit", posts: []post.Normalized{
			freshPost(now, "reddit", "1", "which table saw should I buy"),
			freshPost(now, "reddit", "2", "picked up free lumber today"),
		}},
		&stubCollector{name: "lumberjocks", posts: []post.Normalized{
			freshPost(now, "lumberjocks", "9", "router bit storage ideas"),
		}},
	}

	result, err := newTestController(collectors, registry, history, testOptions()).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Record.PostsSeen != 3 || result.Record.PostsScored != 3 {
		t.Fatalf("unexpected record counts: %+v", result.Record)
	}
	if len(result.Emitted) != 3 {
		t.Fatalf("expected 3 emissions, got %+v", result.Emitted)
	}
	if result.Record.DeadlineForced {
		t.Fatal("run must not be deadline forced")
	}
	if len(history.records) != 1 {
		t.Fatalf("expected exactly one execution record, got %d", len(history.records))
	}
	if registry.cleanedAt == nil {
		t.Fatal("expected retention cleanup to run")
	}
	// Top emission is the table saw post: 8 (phrase) + 2 (recency).
	if result.Emitted[0].Post.NativeID != "1" || result.Emitted[0].FinalScore != 10 {
		t.Fatalf("unexpected top emission: %+v", result.Emitted[0])
	}
}

func TestExecute_InsertOnEmissionMakesRerunsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{}
	collectors := []Collector{
		&stubCollector{name: "reddit", posts: []post.Normalized{
			freshPost(now, "reddit", "1", "which table saw should I buy"),
		}},
	}
	controller := newTestController(collectors, registry, history, testOptions())

	first, err := controller.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Emitted) != 1 {
		t.Fatalf("expected one emission on first run, got %+v", first.Emitted)
	}

	second, err := controller.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Emitted) != 0 {
		t.Fatalf("identical batch must not re-emit, got %+v", second.Emitted)
	}
	if second.Record.PostsSeen != 1 || second.Record.PostsScored != 0 {
		t.Fatalf("unexpected second-run record: %+v", second.Record)
	}
}

func TestExecute_BelowThresholdPostStaysEligible(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{}
	dull := freshPost(now, "reddit", "dull", "nothing relevant whatsoever")
	collectors := []Collector{&stubCollector{name: "reddit", posts: []post.Normalized{dull}}}
	controller := newTestController(collectors, registry, history, testOptions())

	// Recency bonus alone (2) clears the threshold, so age the post
	// past the window to keep it below minimum score.
	old := now.Add(-3 * time.Hour)
	dull.CreatedAt = &old
	collectors[0].(*stubCollector).posts = []post.Normalized{dull}

	result, err := controller.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Emitted) != 0 {
		t.Fatalf("expected no emissions, got %+v", result.Emitted)
	}
	if registry.seen[dull.Key()] {
		t.Fatal("posts dropped for low score must not enter the seen registry")
	}

	// The same post stays eligible on the next run.
	second, err := controller.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Record.PostsScored != 1 {
		t.Fatalf("expected post to be rescored on second run, got %+v", second.Record)
	}
}

func TestExecute_CollectorFailureIsNonFatal(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{}
	collectors := []Collector{
		&stubCollector{name: "reddit", err: errors.New("rate limited")},
		&stubCollector{name: "lumberjocks", posts: []post.Normalized{
			freshPost(now, "lumberjocks", "9", "router table build"),
		}},
	}

	result, err := newTestController(collectors, registry, history, testOptions()).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Emitted) != 1 {
		t.Fatalf("healthy source must still emit, got %+v", result.Emitted)
	}
	if len(result.Record.Errors) != 1 {
		t.Fatalf("expected one recorded source error, got %+v", result.Record.Errors)
	}
}

func TestExecute_RegistryFailureIsFatal(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	registry.filterErr = errors.New("database file is locked")
	history := &memoryHistory{}
	collectors := []Collector{
		&stubCollector{name: "reddit", posts: []post.Normalized{
			freshPost(now, "reddit", "1", "which table saw should I buy"),
		}},
	}

	result, err := newTestController(collectors, registry, history, testOptions()).Execute(context.Background())
	if err != nil {
		t.Fatalf("fatal run errors are recorded, not returned: %v", err)
	}
	if len(result.Emitted) != 0 {
		t.Fatalf("fatal resource error must emit nothing, got %+v", result.Emitted)
	}
	if len(result.Record.Errors) == 0 {
		t.Fatal("expected the resource error in the record")
	}
	if len(history.records) != 1 {
		t.Fatal("record must still be written exactly once")
	}
}

func TestExecute_MarkEmittedFailureEmitsNothing(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	registry.markErr = errors.New("disk full")
	history := &memoryHistory{}
	collectors := []Collector{
		&stubCollector{name: "reddit", posts: []post.Normalized{
			freshPost(now, "reddit", "1", "which table saw should I buy"),
		}},
	}

	result, err := newTestController(collectors, registry, history, testOptions()).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Emitted) != 0 {
		t.Fatalf("emissions must not be reported when registration failed, got %+v", result.Emitted)
	}
	if len(result.Record.Errors) == 0 {
		t.Fatal("expected registration failure in the record")
	}
}

func TestExecute_DeadlineForcedBySlowCollector(t *testing.T) {
	start := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{}
	slow := &stubCollector{
		name: "reddit",
		posts: []post.Normalized{
			freshPost(start, "reddit", "1", "which table saw should I buy"),
		},
		// Simulate a source that eats the whole budget.
		hook: func(context.Context) {
			globaltime.SetMockTime(start.Add(115 * time.Second))
		},
	}

	result, err := newTestController([]Collector{slow}, registry, history, testOptions()).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Record.DeadlineForced {
		t.Fatal("expected deadline_forced record")
	}
	if len(result.Emitted) != 0 {
		t.Fatalf("deadline-forced run emits what it finished, here nothing, got %+v", result.Emitted)
	}
	if result.Record.PostsSeen != 1 {
		t.Fatalf("collected posts must still be counted, got %+v", result.Record)
	}
	if len(history.records) != 1 {
		t.Fatal("deadline-forced run must still write its record")
	}
}

func TestExecute_RejectsOverlappingRuns(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{}

	started := make(chan struct{})
	release := make(chan struct{})
	gate := &stubCollector{
		name: "reddit",
		hook: func(context.Context) {
			close(started)
			<-release
		},
	}
	controller := newTestController([]Collector{gate}, registry, history, testOptions())

	done := make(chan error, 1)
	go func() {
		_, err := controller.Execute(context.Background())
		done <- err
	}()

	<-started
	if _, err := controller.Execute(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error from first run: %v", err)
	}
}

func TestExecute_HistoryFailureSurfaces(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	t.Cleanup(globaltime.ResetTime)

	registry := newMemoryRegistry()
	history := &memoryHistory{saveErr: fmt.Errorf("history table missing")}
	collectors := []Collector{&stubCollector{name: "reddit"}}

	if _, err := newTestController(collectors, registry, history, testOptions()).Execute(context.Background()); err == nil {
		t.Fatal("expected history sink failure to surface")
	}
}
