// Package llm is a small client for OpenAI-compatible chat and embedding APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL               string
	APIKey                string
	ChatModel             string
	StructuredModel       string
	EmbeddingModel        string
	ChatTemperature       float64
	StructuredTemperature float64
	Timeout               time.Duration
	MaxRetries            int
}

// Client talks to /chat/completions and /embeddings.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPError is a non-2xx response from the model API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.Status, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// New creates a client. Zero-valued models and timeouts get defaults.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm: base url required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.StructuredModel == "" {
		cfg.StructuredModel = cfg.ChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "llm"),
	}, nil
}

func (c *Client) doOnce(ctx context.Context, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, &HTTPError{Status: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("llm decode error: %w", uErr)
			}
			return nil
		}

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.Retryable() || attempt >= c.cfg.MaxRetries {
			return err
		}

		c.logger.Warn("LLM request retrying", "path", path, "attempt", attempt+1, "sleep", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

func (r chatResponse) text() (string, error) {
	if len(r.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	msg := r.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", msg.Refusal)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("empty content in response")
	}
	return msg.Content, nil
}

// GenerateJSON asks the structured model for an object matching schema.
func (c *Client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	req := chatRequest{
		Model: c.cfg.StructuredModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.StructuredTemperature,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
				"strict": true,
			},
		},
	}

	var resp chatResponse
	if err := c.do(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	text, err := resp.text()
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return obj, nil
}

// GenerateText runs a chat completion over the system prompt and history.
// The last history entry is normally the user turn being answered.
func (c *Client) GenerateText(ctx context.Context, system string, history []domain.Message) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: system})
	for _, m := range history {
		role := m.Role
		if role != domain.RoleAssistant {
			role = domain.RoleUser
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}

	req := chatRequest{
		Model:       c.cfg.ChatModel,
		Messages:    msgs,
		Temperature: c.cfg.ChatTemperature,
	}

	var resp chatResponse
	if err := c.do(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	return resp.text()
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i, s := range inputs {
		s = strings.TrimSpace(s)
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embeddingsResponse
	if err := c.do(ctx, "/embeddings", embeddingsRequest{Model: c.cfg.EmbeddingModel, Input: clean}, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for pos, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		if idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[idx] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("embeddings missing index %d: requested=%d returned=%d", i, len(clean), len(resp.Data))
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
