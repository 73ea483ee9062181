package bio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/portfolio"
)

var sampleInput = portfolio.BioInput{
	Name:            "Octo Cat",
	Skills:          []string{"Go", "SQL"},
	ProjectCount:    3,
	ExperienceCount: 1,
	LinkedInSummary: "Backend engineer",
}

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, err := New(ctx, Config{}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, Template{}, w)

	w, err = New(ctx, Config{Provider: ProviderAnthropic, APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &Anthropic{}, w)

	_, err = New(ctx, Config{Provider: "openai"}, zap.NewNop())
	require.Error(t, err)
}

func TestTemplateWriter(t *testing.T) {
	t.Parallel()

	bio, err := Template{}.WriteBio(context.Background(), sampleInput)
	require.NoError(t, err)
	require.Equal(t, portfolio.FallbackBio(sampleInput), bio)
}

func TestPromptDefaults(t *testing.T) {
	t.Parallel()

	p := prompt(portfolio.BioInput{Name: "Ada"})
	require.Contains(t, p, "Skills: Not specified")
	require.Contains(t, p, "GitHub Bio: No bio")
	require.Contains(t, p, "LinkedIn Summary: No summary")

	p = prompt(sampleInput)
	require.Contains(t, p, "Skills: Go, SQL")
	require.Contains(t, p, "Projects: 3 projects")
}

func TestAnthropicWriteBio(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "claude-test", req["model"])
		assert.Contains(t, string(body), "Octo Cat")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "  Octo Cat builds reliable Go services.  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 8}
		}`)
	}))
	defer srv.Close()

	w := NewAnthropic(Config{
		APIKey:  "secret",
		Model:   "claude-test",
		Timeout: 5 * time.Second,
		BaseURL: srv.URL,
	}, zap.NewNop())
	bio, err := w.WriteBio(context.Background(), sampleInput)
	require.NoError(t, err)
	require.Equal(t, "Octo Cat builds reliable Go services.", bio)
}

func TestAnthropicWriteBioError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	w := NewAnthropic(Config{APIKey: "secret", BaseURL: srv.URL}, zap.NewNop())
	_, err := w.WriteBio(context.Background(), sampleInput)
	require.Error(t, err)
}

func TestGeminiWriteBio(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "Octo Cat")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [
				{"content": {"role": "model", "parts": [{"text": "Octo Cat ships "}, {"text": "thoughtful software."}]}}
			]
		}`)
	}))
	defer srv.Close()

	w, err := NewGemini(context.Background(), Config{
		APIKey:  "secret",
		Model:   "gemini-test",
		BaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)
	bio, err := w.WriteBio(context.Background(), sampleInput)
	require.NoError(t, err)
	require.Equal(t, "Octo Cat ships thoughtful software.", bio)
}

func TestGeminiEmptyResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates": []}`)
	}))
	defer srv.Close()

	w, err := NewGemini(context.Background(), Config{APIKey: "secret", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	_, err = w.WriteBio(context.Background(), sampleInput)
	require.Error(t, err)
}
