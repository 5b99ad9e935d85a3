package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/storeadmin/internal/apperror"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) (*Gemini, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	g := NewGemini(Params{
		Config: config.Config{Gemini: config.GeminiConfig{APIKey: "test-key", Model: "gemini-test", BaseURL: srv.URL, Timeout: time.Second}},
		Log:    zap.NewNop(),
	})
	return g, &calls
}

func TestGenerateSendsSchemaAndParsesText(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		cfg := body["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", cfg["responseMimeType"])
		assert.NotNil(t, body["systemInstruction"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"items\":"},{"text":"[1,2]}"}]}}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4}}`))
	})

	resp, err := g.Generate(context.Background(), Request{
		Model:  "gemini-pro",
		System: "you write listings",
		Prompt: "draft",
		Schema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, resp.PromptTokens)

	var decoded struct {
		Items []int `json:"items"`
	}
	require.NoError(t, resp.JSON(&decoded))
	assert.Equal(t, []int{1, 2}, decoded.Items)
}

func TestGenerateDoesNotRetry(t *testing.T) {
	g, calls := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	})

	_, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, apperror.KindExternalService, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGenerateBlockedAndEmpty(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	})
	_, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	assert.True(t, errors.Is(err, ErrBlocked))

	g, _ = newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	_, err = g.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateDisabledWithoutKey(t *testing.T) {
	g := NewGemini(Params{Config: config.Config{}, Log: zap.NewNop()})
	_, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, apperror.KindUnavailable, apperror.KindOf(err))
}

func TestResponseJSONStripsFences(t *testing.T) {
	r := &Response{Text: "```json\n{\"a\":1}\n```"}
	var v map[string]int
	require.NoError(t, r.JSON(&v))
	assert.Equal(t, 1, v["a"])

	bad := &Response{Text: "not json"}
	assert.Equal(t, apperror.KindExternalService, apperror.KindOf(bad.JSON(&v)))
}
