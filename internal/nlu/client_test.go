package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChatClient(ChatConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestChatClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write(completionBody(t, "  hello  "))
	})

	out, err := client.CompleteWithSystem(context.Background(), "be terse", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "Bearer test-key", gotAuth)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.InDelta(t, 0.1, gotReq.Temperature, 0.001)
}

func TestChatClientRetriesRateLimit(t *testing.T) {
	attempts := 0
	client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody(t, "ok"))
	})

	out, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}

func TestChatClientServerError(t *testing.T) {
	client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestChatClientMissingKey(t *testing.T) {
	client := NewChatClient(ChatConfig{})
	_, err := client.Complete(context.Background(), "hi")
	assert.Error(t, err)
}

func TestDefaultChatConfig(t *testing.T) {
	cfg := DefaultChatConfig("sk-test")
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.NotEmpty(t, cfg.Model)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
}
