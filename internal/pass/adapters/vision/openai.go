// Package vision talks to an OpenAI-compatible chat completions endpoint to
// answer JSON questions about an image.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"walletpass/internal/platform/logger"
	"walletpass/pkg/platform/circuit"
	"walletpass/pkg/platform/sentinel"
)

// maxErrorBody caps how much of a non-200 body is read into the error.
const maxErrorBody = 4 << 10

// Client implements ports.Completer.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New builds a client for baseURL (e.g. https://api.openai.com). The
// /v1/chat/completions path is appended.
func New(baseURL, apiKey, model string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(baseURL, "/") + "/v1/chat/completions",
		apiKey:     apiKey,
		model:      model,
		maxTokens:  60,
		breaker:    circuit.New("vision"),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompleteJSON sends instruction plus the image as a data URL and returns the
// first choice's content, which the service was asked to format as a JSON
// object.
func (c *Client) CompleteJSON(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	if !c.breaker.Allow() {
		return "", fmt.Errorf("vision: circuit %s open: %w", c.breaker.Name(), sentinel.ErrUnavailable)
	}

	content, err := c.complete(ctx, instruction, image, mimeType)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "vision circuit opened", "error", err)
		}
		return "", err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "vision circuit closed")
	}
	return content, nil
}

func (c *Client) complete(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	wireRequest := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(wireRequest)
	if err != nil {
		return "", fmt.Errorf("vision: marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("vision: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}

	var wireResponse chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResponse); err != nil {
		return "", fmt.Errorf("vision: decoding response: %w", err)
	}
	if len(wireResponse.Choices) == 0 {
		return "", errors.New("vision: response has no choices")
	}
	return wireResponse.Choices[0].Message.Content, nil
}

func readError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var wire errorResponse
	if json.Unmarshal(raw, &wire) == nil && wire.Error.Message != "" {
		return fmt.Errorf("vision: HTTP %d: %s: %s", resp.StatusCode, wire.Error.Type, wire.Error.Message)
	}
	return fmt.Errorf("vision: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
