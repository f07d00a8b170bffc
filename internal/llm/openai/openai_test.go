package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-council/internal/llm"
)

func TestGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"answer\":\"hi\"}"}}]}`))
	}))
	defer srv.Close()

	g := New("test-key", srv.URL, func(o *Options) { o.MaxCompletionTokens = 64 })
	out, err := g.Generate(context.Background(), llm.GenerateRequest{System: "sys", Prompt: "Task: hi", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"hi"}`, out)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 64, body["max_completion_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	_, err := New("k", srv.URL).Generate(context.Background(), llm.GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}
