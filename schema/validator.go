// Package postschema validates collected post payloads before they
// enter the pipeline. Collectors run out of process and hand posts
// over as JSON, so the boundary is checked strictly.
package postschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/whittle/internal/post"
)

//go:embed post_payload.schema.json
var postPayloadSchemaJSON string

type PostPayload struct {
	PayloadVersion  string  `json:"payload_version"`
	Source          string  `json:"source"`
	NativeID        string  `json:"native_id"`
	Title           string  `json:"title"`
	Body            *string `json:"body,omitempty"`
	Author          *string `json:"author,omitempty"`
	URL             *string `json:"url,omitempty"`
	CreatedAt       *string `json:"created_at,omitempty"`
	HasExternalLink *bool   `json:"has_external_link,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidatePostPayload checks a single JSON payload against the schema
// and its semantic rules, and converts it to the pipeline's normalized
// form.
func ValidatePostPayload(payload json.RawMessage) (post.Normalized, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return post.Normalized{}, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return post.Normalized{}, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return post.Normalized{}, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return post.Normalized{}, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var parsed PostPayload
	if err := json.Unmarshal(normalized, &parsed); err != nil {
		return post.Normalized{}, fmt.Errorf("unmarshal payload: %w", err)
	}

	return toNormalized(&parsed)
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("post_payload.schema.json", strings.NewReader(postPayloadSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("post_payload.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func toNormalized(parsed *PostPayload) (post.Normalized, error) {
	if strings.TrimSpace(parsed.Source) == "" {
		return post.Normalized{}, fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(parsed.NativeID) == "" {
		return post.Normalized{}, fmt.Errorf("native_id must not be empty")
	}

	result := post.Normalized{
		Source:   parsed.Source,
		NativeID: parsed.NativeID,
		Title:    parsed.Title,
	}
	if parsed.Body != nil {
		result.Body = *parsed.Body
	}
	if parsed.Author != nil {
		result.Author = *parsed.Author
	}
	if parsed.URL != nil {
		trimmed := strings.TrimSpace(*parsed.URL)
		if _, err := url.ParseRequestURI(trimmed); err != nil {
			return post.Normalized{}, fmt.Errorf("url is not a valid URI: %w", err)
		}
		result.URL = trimmed
	}
	if parsed.CreatedAt != nil {
		created, err := time.Parse(time.RFC3339, strings.TrimSpace(*parsed.CreatedAt))
		if err != nil {
			return post.Normalized{}, fmt.Errorf("created_at must be RFC3339: %w", err)
		}
		created = created.UTC()
		result.CreatedAt = &created
	}
	if parsed.HasExternalLink != nil {
		result.HasExternalLink = *parsed.HasExternalLink
	}
	return result, nil
}
