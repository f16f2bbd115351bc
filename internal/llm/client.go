// Package llm abstracts structured LLM generation. Every call produces a
// JSON object matching a declared schema; payloads are validated before
// they are decoded, so callers only ever see well-formed results.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no client is configured (missing API
// key). Callers fall back to rule-based behavior.
var ErrUnavailable = errors.New("llm: client unavailable")

// ErrBadPayload wraps schema-validation failures that persisted through
// all retries.
var ErrBadPayload = errors.New("llm: payload failed schema validation")

// Schema declares the expected shape of a structured response.
type Schema struct {
	Name       string
	Definition map[string]any
}

// Client generates schema-constrained JSON objects.
type Client interface {
	// GenerateObject requests a response constrained to the schema,
	// validates it, and decodes it into out.
	GenerateObject(ctx context.Context, system, prompt string, schema Schema, out any) error
	// Available reports whether real generation is possible.
	Available() bool
}

// Disabled is the client used when no API key is configured.
type Disabled struct{}

func (Disabled) GenerateObject(context.Context, string, string, Schema, any) error {
	return ErrUnavailable
}

func (Disabled) Available() bool { return false }
