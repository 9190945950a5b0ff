// internal/oracle/gemini_client_test.go
package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

func geminiResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + mustQuote(text) + `}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newTestClient(t *testing.T, endpoint string) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(config.OracleConfig{
		Provider:   config.ProviderGemini,
		Model:      "gemini-2.5-flash",
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestCompleteSuccess(t *testing.T) {
	var captured geminiRequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(geminiResponse(`{"action":"noop","confidence":1.0,"reason":"done"}`)))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.Complete(context.Background(), schemas.CompletionRequest{
		SystemPrompt: "you are a planner",
		UserPrompt:   "goal: test",
		ForceJSON:    true,
	})

	require.NoError(t, err)
	assert.Contains(t, out, `"action":"noop"`)
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "you are a planner", captured.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(geminiResponse("ok")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.Complete(context.Background(), schemas.CompletionRequest{UserPrompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestCompletePermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(context.Background(), schemas.CompletionRequest{UserPrompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteSafetyBlockIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(context.Background(), schemas.CompletionRequest{UserPrompt: "hi"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(ctx, schemas.CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(config.OracleConfig{Model: "gemini-2.5-flash"}, zap.NewNop())
	assert.Error(t, err)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(config.OracleConfig{Provider: "palmistry", APIKey: "k"}, zap.NewNop())
	assert.Error(t, err)
}
