package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/xeipuuv/gojsonschema"
)

// OpenAI generates structured objects through the Responses API with a
// json_schema output format. Raw payloads are checked against the schema
// with gojsonschema before decoding; validation failures retry.
type OpenAI struct {
	client openai.Client
	logger *slog.Logger

	model      string
	maxRetries int

	seq atomic.Uint64
}

// OpenAIOpt customizes an OpenAI client.
type OpenAIOpt func(*OpenAI)

// WithModel overrides the default text model.
func WithModel(model string) OpenAIOpt {
	return func(c *OpenAI) { c.model = model }
}

// WithLogger sets the trace logger.
func WithLogger(logger *slog.Logger) OpenAIOpt {
	return func(c *OpenAI) { c.logger = logger }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOpt {
	return func(c *OpenAI) {
		c.client = openai.NewClient(option.WithBaseURL(url))
	}
}

// NewOpenAI builds a client, or Disabled when apiKey is empty.
func NewOpenAI(apiKey string, opts ...OpenAIOpt) Client {
	if apiKey == "" {
		return Disabled{}
	}
	c := &OpenAI{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		logger:     slog.Default(),
		model:      "gpt-5-nano",
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available implements Client.
func (c *OpenAI) Available() bool { return true }

func (c *OpenAI) newID() string {
	return fmt.Sprintf("llm-%d", c.seq.Add(1))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// GenerateObject implements Client.
func (c *OpenAI) GenerateObject(ctx context.Context, system, prompt string, schema Schema, out any) error {
	validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema.Definition))
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", schema.Name, err)
	}

	log := c.logger.With(
		slog.String("llm_id", c.newID()),
		slog.String("schema", schema.Name),
	)
	log.Info("llm_call_start",
		slog.String("prompt_hash", hashString(prompt)),
		slog.Int("prompt_length", len(prompt)),
	)

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		raw, err := c.doRequest(ctx, system, prompt, schema)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			lastErr = err
			log.Warn("llm_retry", "attempt", attempt+1, "reason", "request", "err", err)
			continue
		}
		result, err := validator.Validate(gojsonschema.NewStringLoader(raw))
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrBadPayload, err)
			log.Warn("llm_retry", "attempt", attempt+1, "reason", "validation", "err", err)
			continue
		}
		if !result.Valid() {
			lastErr = fmt.Errorf("%w: %v", ErrBadPayload, result.Errors())
			log.Warn("llm_retry", "attempt", attempt+1, "reason", "validation",
				"response_hash", hashString(raw), "errs", fmt.Sprint(result.Errors()))
			continue
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			lastErr = fmt.Errorf("decode payload: %w", err)
			log.Warn("llm_retry", "attempt", attempt+1, "reason", "json_unmarshal", "err", err)
			continue
		}
		log.Info("llm_call_ok", "attempts", attempt+1, "latency", time.Since(start))
		return nil
	}
	log.Error("llm_call_fail", "attempts", c.maxRetries, "latency", time.Since(start), "err", lastErr)
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *OpenAI) doRequest(ctx context.Context, system, prompt string, schema Schema) (string, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema(schema.Name, schema.Definition),
		},
	}
	if system != "" {
		params.Instructions = param.NewOpt(system)
	}
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("execute prompt: %w", err)
	}
	return resp.OutputText(), nil
}
