package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAI(OpenAIConfig{})
	require.Error(t, err)
}

func TestAnalyzeAgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		messages := req["messages"].([]any)
		require.Len(t, messages, 1)
		content := messages[0].(map[string]any)["content"].(string)
		require.Contains(t, content, "https://example.com")
		require.Contains(t, content, "hero copy")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": "Move the CTA above the fold.",
				},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":     120,
				"completion_tokens": 30,
				"total_tokens":      150,
			},
		})
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), Input{
		URL:  "https://example.com",
		Text: "hero copy with four words here",
		HTML: "<html><body>hero copy</body></html>",
	})
	require.NoError(t, err)
	require.Equal(t, "Move the CTA above the fold.", result.Analysis)
	require.Equal(t, 150, result.TokenCount)
	require.Equal(t, 6, result.WordCount)
}

func TestAnalyzeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = o.Analyze(context.Background(), Input{URL: "https://example.com", Text: "x"})
	require.Error(t, err)
}
