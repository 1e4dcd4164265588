package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mynah/ai"
)

func TestIsO1Family(t *testing.T) {
	assert.True(t, isO1Family("o1-preview"))
	assert.True(t, isO1Family("o3-mini"))
	assert.True(t, isO1Family("o4-mini-high"))
	assert.False(t, isO1Family("gpt-4o"))
	assert.False(t, isO1Family("deepseek-chat"))
}

func TestBuildRequestTokenField(t *testing.T) {
	d := New(Defaults{})
	prompt := &ai.Prompt{Knobs: ai.Knobs{Model: "o1-preview", MaxOutputTokens: 4096}}

	t.Run("o1 family uses max_completion_tokens", func(t *testing.T) {
		req := d.buildRequest(prompt, "https://api.openai.com")
		assert.Equal(t, 4096, req.MaxCompletionTokens)
		assert.Zero(t, req.MaxTokens)
	})

	t.Run("tunnel hosts keep max_tokens even for o1 names", func(t *testing.T) {
		req := d.buildRequest(prompt, "https://abc.trycloudflare.com")
		assert.Zero(t, req.MaxCompletionTokens)
		assert.Equal(t, 4096, req.MaxTokens)
	})

	t.Run("regular models use max_tokens", func(t *testing.T) {
		req := d.buildRequest(&ai.Prompt{Knobs: ai.Knobs{Model: "gpt-4o", MaxOutputTokens: 2048}}, "")
		assert.Equal(t, 2048, req.MaxTokens)
	})
}

func TestBuildRequestMessages(t *testing.T) {
	d := New(Defaults{})
	p := &ai.Prompt{
		System: "be helpful",
		Turns: []ai.Turn{
			{Role: ai.RoleUser, Parts: []ai.Part{{Text: "Alice: hi"}}},
			{Role: ai.RoleAssistant, Parts: []ai.Part{{Text: "hello"}}},
			{Role: ai.RoleUser, Parts: []ai.Part{
				{Text: "Alice: look at this"},
				{Inline: &ai.InlineData{MIMEType: "image/jpeg", Data: "Zm9v"}},
			}},
		},
		Knobs: ai.Knobs{Model: "gpt-4o"},
	}

	req := d.buildRequest(p, "")
	require.Len(t, req.Messages, 4)

	assert.Equal(t, goopenai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be helpful", req.Messages[0].Content)
	assert.Equal(t, goopenai.ChatMessageRoleUser, req.Messages[1].Role)
	assert.Equal(t, goopenai.ChatMessageRoleAssistant, req.Messages[2].Role)

	vision := req.Messages[3]
	require.Len(t, vision.MultiContent, 2)
	assert.Equal(t, goopenai.ChatMessagePartTypeText, vision.MultiContent[0].Type)
	assert.Equal(t, "data:image/jpeg;base64,Zm9v", vision.MultiContent[1].ImageURL.URL)
}

func TestClassifyError(t *testing.T) {
	t.Run("deadline exceeded is a timeout", func(t *testing.T) {
		outcome := classifyError(context.DeadlineExceeded, 30*time.Second)
		unknown, ok := outcome.(ai.Unknown)
		require.True(t, ok)
		assert.True(t, unknown.Timeout)
		assert.Contains(t, unknown.Message, "30s")
	})

	t.Run("api errors keep the message", func(t *testing.T) {
		outcome := classifyError(&goopenai.APIError{Message: "model not found"}, 0)
		unknown, ok := outcome.(ai.Unknown)
		require.True(t, ok)
		assert.False(t, unknown.Timeout)
		assert.Contains(t, unknown.Message, "model not found")
	})

	t.Run("anything else is unknown", func(t *testing.T) {
		outcome := classifyError(errors.New("connection reset"), 0)
		unknown, ok := outcome.(ai.Unknown)
		require.True(t, ok)
		assert.False(t, unknown.Timeout)
	})
}
