// Package whatsapp is a thin WhatsApp Cloud API client: media download and
// outbound text/document messages.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"walletpass/internal/platform/logger"
	"walletpass/pkg/platform/sentinel"
)

const (
	// maxMediaBytes matches the platform's image size ceiling.
	maxMediaBytes = 16 << 20
	maxErrorBody  = 4 << 10
)

type Client struct {
	httpClient    *http.Client
	baseURL       string
	version       string
	phoneNumberID string
	token         string
	logger        *slog.Logger
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

// New builds a client against baseURL (https://graph.facebook.com in
// production) and API version such as v21.0.
func New(baseURL, version, phoneNumberID, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		version:       version,
		phoneNumberID: phoneNumberID,
		token:         token,
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMedia resolves the media ID to a short-lived download URL, then
// downloads it with the same bearer token.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, error) {
	infoURL := c.baseURL + "/" + c.version + "/" + url.PathEscape(mediaID)
	var info mediaInfo
	if err := c.getJSON(ctx, infoURL, &info); err != nil {
		return nil, fmt.Errorf("media info %s: %w", mediaID, err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media info %s: no download url", mediaID)
	}

	resp, err := c.do(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("media download %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media download %s: %w", mediaID, err)
	}
	if len(body) > maxMediaBytes {
		return nil, fmt.Errorf("media download %s: exceeds %d bytes", mediaID, maxMediaBytes)
	}
	c.logger.DebugContext(ctx, "media downloaded", "image_id", mediaID, "bytes", len(body))
	return body, nil
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendDocument sends a document message that the platform fetches from link.
func (c *Client) SendDocument(ctx context.Context, to, link, filename, caption string) error {
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "document",
		Document:         &documentBody{Link: link, Filename: filename, Caption: caption},
	})
}

func (c *Client) send(ctx context.Context, msg outboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	endpoint := c.baseURL + "/" + c.version + "/" + c.phoneNumberID + "/messages"
	resp, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return fmt.Errorf("send %s message: %w", msg.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do returns the response only for 2xx; the caller closes the body.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, readError(resp)
}

func readError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var wire graphError
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &wire) == nil && wire.Error.Message != "" {
		msg = wire.Error.Message
	}
	err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Join(err, sentinel.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return errors.Join(err, sentinel.ErrUnavailable)
	}
	return err
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

type outboundMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Document         *documentBody `json:"document,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type documentBody struct {
	Link     string `json:"link"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
