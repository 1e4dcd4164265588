package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks(t *testing.T) {
	t.Run("short text stays whole", func(t *testing.T) {
		chunks := splitChunks("hello", chunkSize)
		assert.Equal(t, []string{"hello"}, chunks)
	})

	t.Run("chunks respect the size cap and lose nothing", func(t *testing.T) {
		text := strings.Repeat("paragraph of text\n", 400)
		chunks := splitChunks(text, chunkSize)

		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), chunkSize)
		}
		assert.Equal(t, text, strings.Join(chunks, ""))
	})

	t.Run("prefers newline boundaries", func(t *testing.T) {
		text := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
		chunks := splitChunks(text, chunkSize)

		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 1500)+"\n", chunks[0])
	})

	t.Run("no newline falls back to hard cut", func(t *testing.T) {
		text := strings.Repeat("a", 4000)
		chunks := splitChunks(text, chunkSize)

		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0], chunkSize)
		assert.Equal(t, text, strings.Join(chunks, ""))
	})
}

func TestPersistable(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "plain reply unchanged",
			output: "just an answer",
			want:   "just an answer",
		},
		{
			name:   "grounding section stripped",
			output: "the answer\n\n" + groundingSeparator + "\n🔍 *Searched:* weather",
			want:   "the answer",
		},
		{
			name:   "thinking section stripped",
			output: "the answer\n\n" + groundingSeparator + "\n🧠 *Thinking:*\nreasoning here",
			want:   "the answer",
		},
		{
			name:   "error lines stripped",
			output: "⚠️ partial\n❌ The response was blocked\nreal content",
			want:   "⚠️ partial\nreal content",
		},
		{
			name:   "pure failure persists as empty",
			output: "❌ All API keys are exhausted for today. Try again after the quota resets.",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, persistable(tt.output))
		})
	}
}
