package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeDropFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reddit.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write drop file: %v", err)
	}
	return path
}

func TestCollect_ValidDropFile(t *testing.T) {
	t.Parallel()

	path := writeDropFile(t, `[
		{"payload_version":"v1","source":"reddit","native_id":"a","title":"Which table saw?","created_at":"2026-08-28T09:30:00Z"},
		{"payload_version":"v1","source":"reddit","native_id":"b","title":"Free lumber haul"}
	]`)

	posts, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].NativeID != "a" || posts[1].NativeID != "b" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
}

func TestCollect_MissingFileYieldsEmptyBatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "never-written.json")
	posts, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected empty batch, got %+v", posts)
	}
}

func TestCollect_SkipsInvalidPayloads(t *testing.T) {
	t.Parallel()

	path := writeDropFile(t, `[
		{"payload_version":"v1","source":"reddit","native_id":"a","title":"ok"},
		{"payload_version":"v1","source":"reddit","title":"missing id"}
	]`)

	posts, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 || posts[0].NativeID != "a" {
		t.Fatalf("expected only the valid post, got %+v", posts)
	}
}

func TestCollect_RejectsForeignSource(t *testing.T) {
	t.Parallel()

	path := writeDropFile(t, `[
		{"payload_version":"v1","source":"facebook","native_id":"a","title":"wrong file"}
	]`)

	if _, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(context.Background(), 50); err == nil {
		t.Fatal("expected error for payload from another source")
	}
}

func TestCollect_HonorsLimit(t *testing.T) {
	t.Parallel()

	path := writeDropFile(t, `[
		{"payload_version":"v1","source":"reddit","native_id":"a","title":"one"},
		{"payload_version":"v1","source":"reddit","native_id":"b","title":"two"},
		{"payload_version":"v1","source":"reddit","native_id":"c","title":"three"}
	]`)

	posts, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected the limit to cap the batch, got %d", len(posts))
	}
}

func TestCollect_CanceledContext(t *testing.T) {
	t.Parallel()

	path := writeDropFile(t, `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(ctx, 50); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestCollect_MalformedDropFile(t *testing.T) {
	t.Parallel()

	path := writeDropFile(t, `{"not":"an array"}`)
	if _, err := NewFileCollector("reddit", path, zerolog.Nop()).Collect(context.Background(), 50); err == nil {
		t.Fatal("expected error for malformed drop file")
	}
}
