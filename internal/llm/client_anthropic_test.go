package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autoforge/internal/config"
)

func anthropicReply(text string) string {
	body, _ := json.Marshal(map[string]any{
		"id": "msg_test",
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"stop_reason": "end_turn",
	})
	return string(body)
}

func TestAnthropicClient_Complete(t *testing.T) {
	var gotVersion, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(anthropicReply("FILE: a.txt\nCONTENT:\nhello")))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5 * time.Second})
	out, err := c.Complete(context.Background(), "implement")
	require.NoError(t, err)
	require.Contains(t, out, "FILE: a.txt")
	require.Equal(t, "2023-06-01", gotVersion)
	require.Equal(t, "sk-test", gotKey)
}

func TestAnthropicClient_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(anthropicReply("ok")))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5 * time.Second})
	out, err := c.Complete(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, int32(2), calls.Load())
}

func TestAnthropicClient_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad prompt"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_request_error")
	require.Equal(t, int32(1), calls.Load())
}

func TestAnthropicClient_NoAPIKey(t *testing.T) {
	c := NewAnthropicClient(AnthropicConfig{})
	_, err := c.Complete(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNew_ProviderSelection(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "anthropic"})
	require.ErrorIs(t, err, ErrNoAPIKey)

	client, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "sk-test", Timeout: "1m"})
	require.NoError(t, err)
	require.IsType(t, &AnthropicClient{}, client)

	_, err = New(config.LLMConfig{Provider: "dalek", APIKey: "k"})
	require.Error(t, err)
}
