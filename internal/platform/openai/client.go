package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
	"github.com/veridoc/veridoc-backend/internal/pkg/envutil"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

// Client is the embedding/LLM surface consumed by the query engine. Both
// call families are single-shot: no streaming, no partial results.
type Client interface {
	// Embed returns one vector per input, each of EmbedDim() length.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	// EmbedDim is the model-declared dimensionality; any index mismatch is a
	// programming error surfaced by the caller.
	EmbedDim() int

	// GenerateText is the synthesis call: long context, markdown out.
	GenerateText(ctx context.Context, system string, user string, maxOutputTokens int) (string, error)

	// GenerateJSON is the classification call: temperature 0, schema-bound.
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	embedDim   int
	httpClient *http.Client
}

const transientRetryDelay = 50 * time.Millisecond

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("openai: logger required")
	}
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	model := envutil.Str("OPENAI_MODEL", "gpt-4.1-mini")
	embedModel := envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-small")
	embedDim := envutil.Int("OPENAI_EMBED_DIM", 1536)
	timeoutSec := envutil.Int("OPENAI_TIMEOUT_SECONDS", 120)

	return &client{
		log:        log.With("client", "OpenAI"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		embedModel: embedModel,
		embedDim:   embedDim,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) EmbedDim() int { return c.embedDim }

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model": c.embedModel,
		"input": inputs,
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v1/embeddings", body, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindEmbeddingUnavailable, "openai.Embed", err)
	}
	if len(out.Data) != len(inputs) {
		return nil, apierr.New(apierr.KindEmbeddingUnavailable, "openai.Embed",
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(out.Data)))
	}
	vecs := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			continue
		}
		if len(d.Embedding) != c.embedDim {
			return nil, fmt.Errorf("openai: embedding dim %d does not match declared %d", len(d.Embedding), c.embedDim)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string, maxOutputTokens int) (string, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	if maxOutputTokens > 0 {
		body["max_completion_tokens"] = maxOutputTokens
	}
	text, err := c.chat(ctx, body)
	if err != nil {
		return "", apierr.Wrap(apierr.KindLLMUnavailable, "openai.GenerateText", err)
	}
	return text, nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	body := map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}
	text, err := c.chat(ctx, body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindLLMUnavailable, "openai.GenerateJSON", err)
	}
	obj := map[string]any{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return nil, apierr.Wrap(apierr.KindLLMUnavailable, "openai.GenerateJSON", fmt.Errorf("parse model JSON: %w", err))
	}
	return obj, nil
}

func (c *client) chat(ctx context.Context, body map[string]any) (string, error) {
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

// post issues one request and retries exactly once, after a fixed short
// delay, when the failure looks transient (5xx, 429, connection error).
func (c *client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	err = c.doOnce(ctx, path, payload, out)
	if err == nil || !isTransient(err) || ctx.Err() != nil {
		return err
	}

	c.log.Warn("transient upstream failure, retrying once", "path", path, "error", err)
	select {
	case <-time.After(transientRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.doOnce(ctx, path, payload, out)
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(e.body))
}

func (c *client) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode, body: textutil.TrimToChars(string(data), 400)}
	}
	return json.Unmarshal(data, out)
}

func isTransient(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Connection-level failures count as transient; context errors do not.
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
