// Package llm is the shared chat-completions client used by OCR, field
// extraction and narrative generation. It assumes no particular provider:
// callers choose the model and message payload.
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

	"github.com/google/uuid"
)

// ErrEmptyCompletion marks a well-formed response whose content was empty,
// so callers can tell "the model had nothing to say" from transport faults.
var ErrEmptyCompletion = errors.New("empty completion content")

// Message is one chat turn. Content is either a plain string or the
// structured multi-part form used for vision/file inputs.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Completer is the single collaborator interface the extractors depend on:
// complete(messages, model) -> text | error.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message, extra map[string]any) (string, error)
}

// Config for the chat client.
type Config struct {
	BaseURL     string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// Client posts chat/completions requests and returns the first choice's
// message content. Any non-2xx status, transport error, malformed body or
// empty content is an error.
type Client struct {
	httpClient *http.Client
	cfg        Config
	log        *slog.Logger
}

// NewClient builds a Client; a nil logger falls back to slog.Default().
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        logger,
	}
}

func (c *Client) Complete(ctx context.Context, model string, messages []Message, extra map[string]any) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":       model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
		"stream":      false,
	}
	for k, v := range extra {
		body[k] = v
	}

	bs, err := json.Marshal(body)
	if err != nil {
		c.log.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return "", fmt.Errorf("encode json: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		c.log.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.log.Info("llm.http.request", "req_id", reqID, "model", model, "content_length", len(bs))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	defer func(rc io.ReadCloser) {
		if err := rc.Close(); err != nil {
			c.log.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.log.Info("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("non-2xx status: %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if cc.Usage.TotalTokens > 0 {
		c.log.Info("llm.http.token_usage",
			"req_id", reqID, "model", model,
			"prompt", cc.Usage.PromptTokens,
			"completion", cc.Usage.CompletionTokens,
			"total", cc.Usage.TotalTokens,
		)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
