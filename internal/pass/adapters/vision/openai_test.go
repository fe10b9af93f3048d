package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletpass/pkg/platform/circuit"
	"walletpass/pkg/platform/sentinel"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "sk-test", "gpt-4o", 5*time.Second, opts...)
}

func TestCompleteJSON(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"{\"fullName\":\"Ana Lopez\"}"},"finish_reason":"stop"}]}`))
	}), WithMaxTokens(40))

	answer, err := client.CompleteJSON(context.Background(), "Return the name", []byte("png-bytes"), "image/png")

	require.NoError(t, err)
	assert.JSONEq(t, `{"fullName":"Ana Lopez"}`, answer)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 40, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 1)
	parts := got.Messages[0].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "Return the name", parts[0].Text)
	require.NotNil(t, parts[1].ImageURL)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestCompleteJSONProviderError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))

	_, err := client.CompleteJSON(context.Background(), "x", []byte("img"), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestCompleteJSONNoChoices(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))

	_, err := client.CompleteJSON(context.Background(), "x", []byte("img"), "image/jpeg")
	assert.ErrorContains(t, err, "no choices")
}

func TestCompleteJSONOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	breaker := circuit.New("vision-test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), WithBreaker(breaker))

	for range 2 {
		_, err := client.CompleteJSON(context.Background(), "x", []byte("img"), "image/jpeg")
		require.Error(t, err)
	}
	_, err := client.CompleteJSON(context.Background(), "x", []byte("img"), "image/jpeg")

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, breaker.IsOpen())
}
