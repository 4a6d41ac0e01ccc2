// Package collector provides the source adapters the run controller
// fans out over. The scraping side runs out of process and drops its
// harvest as JSON files; the file collector reads one source's drop
// file and validates every payload at the boundary.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/post"
	postschema "horse.fit/whittle/schema"
)

// FileCollector reads posts for a single source from a JSON file
// holding an array of post payloads.
type FileCollector struct {
	name   string
	path   string
	logger zerolog.Logger
}

func NewFileCollector(name, path string, logger zerolog.Logger) *FileCollector {
	return &FileCollector{name: name, path: path, logger: logger}
}

func (c *FileCollector) Name() string { return c.name }

// Collect reads and validates the drop file. A missing file means the
// scraper has not run yet and yields an empty batch. Invalid payloads
// are skipped and logged; a post claiming another source is an error
// because it signals a miswired drop file.
func (c *FileCollector) Collect(ctx context.Context, limit int) ([]post.Normalized, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug().Str("source", c.name).Str("path", c.path).Msg("drop file absent, nothing collected")
			return nil, nil
		}
		return nil, fmt.Errorf("read drop file %s: %w", c.path, err)
	}

	var payloads []json.RawMessage
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, fmt.Errorf("parse drop file %s: %w", c.path, err)
	}

	posts := make([]post.Normalized, 0, len(payloads))
	skipped := 0
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && len(posts) >= limit {
			break
		}

		p, err := postschema.ValidatePostPayload(payload)
		if err != nil {
			skipped++
			c.logger.Warn().Str("source", c.name).Int("index", i).Err(err).Msg("skipping invalid payload")
			continue
		}
		if p.Source != c.name {
			return nil, fmt.Errorf("drop file %s: payload %d claims source %q", c.path, i, p.Source)
		}
		posts = append(posts, p)
	}

	c.logger.Info().Str("source", c.name).Int("posts", len(posts)).Int("skipped", skipped).Msg("collected from drop file")
	return posts, nil
}
