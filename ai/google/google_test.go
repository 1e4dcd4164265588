package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/keypool"
)

type fakePool struct {
	keys     []string
	next     int
	acquires int
	errors   []keypool.ErrorKind
	retry    bool
	err      error
}

func (f *fakePool) Acquire(billing bool) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.acquires++
	key := f.keys[f.next%len(f.keys)]
	f.next++
	return key, nil
}

func (f *fakePool) HandleError(key string, kind keypool.ErrorKind, billing bool) bool {
	f.errors = append(f.errors, kind)
	return f.retry
}

func mustDecode(t *testing.T, raw string) *response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return &resp
}

func TestDecodeText(t *testing.T) {
	resp := mustDecode(t, `{
		"candidates": [{"content": {"parts": [{"text": "hello"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
	}`)

	outcome := decode(resp, "gemini-2.0-flash")
	text, ok := outcome.(ai.Text)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Body)
	assert.Empty(t, text.Thought)
	assert.Equal(t, ai.Usage{Prompt: 10, Completion: 5, Total: 15}, text.Usage)
}

func TestDecodeThinkingModel(t *testing.T) {
	resp := mustDecode(t, `{
		"candidates": [{"content": {"parts": [
			{"text": "let me reason about this"},
			{"text": "the answer"}
		]}, "finishReason": "STOP"}]
	}`)

	t.Run("thinking model splits thought and body", func(t *testing.T) {
		text, ok := decode(resp, "gemini-2.5-pro").(ai.Text)
		require.True(t, ok)
		assert.Equal(t, "the answer", text.Body)
		assert.Equal(t, "let me reason about this", text.Thought)
	})

	t.Run("plain model joins all parts", func(t *testing.T) {
		text, ok := decode(resp, "gemini-1.5-pro").(ai.Text)
		require.True(t, ok)
		assert.Equal(t, "let me reason about this\nthe answer", text.Body)
		assert.Empty(t, text.Thought)
	})
}

func TestDecodeBlockedPrompt(t *testing.T) {
	resp := mustDecode(t, `{
		"promptFeedback": {
			"blockReason": "SAFETY",
			"safetyRatings": [
				{"category": "HARM_CATEGORY_HARASSMENT", "probability": "HIGH"},
				{"category": "HARM_CATEGORY_HATE_SPEECH", "probability": "NEGLIGIBLE"}
			]
		}
	}`)

	censored, ok := decode(resp, "gemini-2.0-flash").(ai.Censored)
	require.True(t, ok)
	assert.Equal(t, "SAFETY", censored.Reason)
	require.Len(t, censored.Ratings, 1)
	assert.Equal(t, "HARM_CATEGORY_HARASSMENT", censored.Ratings[0].Category)
}

func TestDecodeCensoredCandidate(t *testing.T) {
	t.Run("safety finish", func(t *testing.T) {
		resp := mustDecode(t, `{
			"candidates": [{
				"finishReason": "SAFETY",
				"safetyRatings": [{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "probability": "MEDIUM"}]
			}]
		}`)
		censored, ok := decode(resp, "m").(ai.Censored)
		require.True(t, ok)
		assert.Equal(t, "SAFETY", censored.Reason)
		require.Len(t, censored.Ratings, 1)
	})

	t.Run("recitation carries citations", func(t *testing.T) {
		resp := mustDecode(t, `{
			"candidates": [{
				"finishReason": "RECITATION",
				"citationMetadata": {"citationSources": [{"uri": "https://example.com/a"}]}
			}]
		}`)
		censored, ok := decode(resp, "m").(ai.Censored)
		require.True(t, ok)
		assert.Equal(t, []string{"https://example.com/a"}, censored.Citations)
	})
}

func TestDecodeGrounding(t *testing.T) {
	resp := mustDecode(t, `{
		"candidates": [{
			"content": {"parts": [{"text": "grounded answer"}]},
			"finishReason": "STOP",
			"groundingMetadata": {
				"webSearchQueries": ["weather in berlin"],
				"groundingChunks": [{"web": {"uri": "https://example.com", "title": "Example"}}]
			}
		}]
	}`)

	text, ok := decode(resp, "gemini-2.0-flash").(ai.Text)
	require.True(t, ok)
	require.NotNil(t, text.Grounding)
	assert.Equal(t, []string{"weather in berlin"}, text.Grounding.Queries)
	require.Len(t, text.Grounding.Sources, 1)
	assert.Equal(t, "Example", text.Grounding.Sources[0].Title)
}

func TestDecodeEmptyResponse(t *testing.T) {
	outcome := decode(mustDecode(t, `{}`), "m")
	assert.IsType(t, ai.Unknown{}, outcome)

	outcome = decode(mustDecode(t, `{"candidates": [{"content": {"parts": []}}]}`), "m")
	assert.IsType(t, ai.Unknown{}, outcome)
}

func TestErrorOutcome(t *testing.T) {
	tests := []struct {
		status string
		want   ai.Outcome
	}{
		{"RESOURCE_EXHAUSTED", ai.QuotaExhausted{}},
		{"UNAVAILABLE", ai.Unavailable{}},
		{"INTERNAL", ai.Internal{}},
		{"INVALID_ARGUMENT", ai.InvalidArgument{Message: "bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, errorOutcome(&apiError{Status: tt.status, Message: "bad"}))
		})
	}
}

func TestGenerateRotatesOnQuota(t *testing.T) {
	var seenKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKeys = append(seenKeys, r.Header.Get("x-goog-api-key"))
		if len(seenKeys) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "ok"}]}, "finishReason": "STOP"}]}`))
	}))
	defer srv.Close()

	pool := &fakePool{keys: []string{"key-a", "key-b"}, retry: true}
	d := New(pool, srv.Client(), nil)
	d.base = srv.URL

	outcome := d.Generate(context.Background(), &ai.Prompt{
		Turns: []ai.Turn{{Role: ai.RoleUser, Parts: []ai.Part{{Text: "hi"}}}},
		Knobs: ai.Knobs{Model: "gemini-2.0-flash"},
	})

	text, ok := outcome.(ai.Text)
	require.True(t, ok)
	assert.Equal(t, "ok", text.Body)
	assert.Equal(t, []string{"key-a", "key-b"}, seenKeys)
	assert.Equal(t, []keypool.ErrorKind{keypool.ErrorQuota}, pool.errors)
}

func TestGeneratePinnedKeyNeverRotates(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "pinned-key", r.Header.Get("x-goog-api-key"))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota"}}`))
	}))
	defer srv.Close()

	pool := &fakePool{keys: []string{"other"}, retry: true}
	d := New(pool, srv.Client(), nil)
	d.base = srv.URL

	outcome := d.Generate(context.Background(), &ai.Prompt{
		Turns:     []ai.Turn{{Role: ai.RoleUser, Parts: []ai.Part{{Text: "hi"}}}},
		PinnedKey: "pinned-key",
		Knobs:     ai.Knobs{Model: "gemini-2.0-flash"},
	})

	assert.IsType(t, ai.QuotaExhausted{}, outcome)
	assert.Equal(t, 1, requests)
	assert.Zero(t, pool.acquires)
}

func TestGenerateOutOfKeys(t *testing.T) {
	d := New(&fakePool{err: keypool.ErrOutOfKeys}, http.DefaultClient, nil)

	outcome := d.Generate(context.Background(), &ai.Prompt{
		Turns: []ai.Turn{{Role: ai.RoleUser, Parts: []ai.Part{{Text: "hi"}}}},
		Knobs: ai.Knobs{Model: "gemini-2.0-flash"},
	})
	assert.IsType(t, ai.QuotaExhausted{}, outcome)

	d = New(&fakePool{err: keypool.ErrOutOfBillingKeys}, http.DefaultClient, nil)
	outcome = d.Generate(context.Background(), &ai.Prompt{
		Turns: []ai.Turn{{Role: ai.RoleUser, Parts: []ai.Part{{Text: "hi"}}}},
		Knobs: ai.Knobs{Model: "gemini-2.0-flash", Grounding: true},
	})
	assert.IsType(t, ai.BillingExhausted{}, outcome)
}

func TestBuildRequestTools(t *testing.T) {
	d := New(&fakePool{keys: []string{"k"}}, http.DefaultClient, nil)

	t.Run("grounding wins over code execution", func(t *testing.T) {
		req := d.buildRequest(&ai.Prompt{Knobs: ai.Knobs{Grounding: true, CodeExecution: true, DynamicThreshold: 0.3}})
		require.Len(t, req.Tools, 1)
		require.NotNil(t, req.Tools[0].GoogleSearchRetrieval)
		assert.Equal(t, "MODE_DYNAMIC", req.Tools[0].GoogleSearchRetrieval.DynamicRetrievalConfig.Mode)
		assert.InDelta(t, 0.3, req.Tools[0].GoogleSearchRetrieval.DynamicRetrievalConfig.DynamicThreshold, 1e-9)
	})

	t.Run("code execution alone", func(t *testing.T) {
		req := d.buildRequest(&ai.Prompt{Knobs: ai.Knobs{CodeExecution: true}})
		require.Len(t, req.Tools, 1)
		assert.NotNil(t, req.Tools[0].CodeExecution)
	})

	t.Run("all safety categories disabled", func(t *testing.T) {
		req := d.buildRequest(&ai.Prompt{})
		require.Len(t, req.SafetySettings, 5)
		for _, s := range req.SafetySettings {
			assert.Equal(t, "BLOCK_NONE", s.Threshold)
		}
	})
}
