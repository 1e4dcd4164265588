package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mynah/telegram"
)

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁█", sparkline([]int{0, 100}))
	assert.Equal(t, "████", sparkline([]int{5, 5, 5, 5}))
	assert.Equal(t, "▁▁▁", sparkline([]int{0, 0, 0}))

	graph := sparkline([]int{0, 25, 50, 75, 100})
	runes := []rune(graph)
	require.Len(t, runes, 5)
	assert.Equal(t, '▁', runes[0])
	assert.Equal(t, '█', runes[4])
	for i := 1; i < len(runes); i++ {
		assert.GreaterOrEqual(t, runes[i], runes[i-1])
	}
}

func TestHideCommand(t *testing.T) {
	hide := func(replyTo *telegram.ReplyTo) (*fakeMessenger, *telegram.Message) {
		tg := &fakeMessenger{}
		m := dmMessage(10, "/hide")
		m.Command = "hide"
		m.ReplyTo = replyTo
		return tg, m
	}

	t.Run("deletes the replied-to bot message and the command", func(t *testing.T) {
		tg, m := hide(&telegram.ReplyTo{MessageID: 5, UserID: 42, Text: "my reply"})
		b := newTestBot(t, newFakeDriver(), tg, nil)

		b.cmdHide(context.Background(), m)

		assert.Equal(t, []int64{5, 10}, tg.deleted)
		assert.Empty(t, tg.sent)
	})

	t.Run("leaves other users' messages alone", func(t *testing.T) {
		tg, m := hide(&telegram.ReplyTo{MessageID: 5, UserID: 7, Text: "not mine"})
		b := newTestBot(t, newFakeDriver(), tg, nil)

		b.cmdHide(context.Background(), m)

		assert.Equal(t, []int64{10}, tg.deleted, "only the command message goes")
	})

	t.Run("requires a reply target", func(t *testing.T) {
		tg, m := hide(nil)
		b := newTestBot(t, newFakeDriver(), tg, nil)

		b.cmdHide(context.Background(), m)

		assert.Empty(t, tg.deleted)
		last := tg.lastSent()
		require.NotNil(t, last)
		assert.Contains(t, last.Text, "Reply to the bot message")
	})
}

func TestParseFeedbackMeta(t *testing.T) {
	t.Run("well formed relay", func(t *testing.T) {
		chatID, messageID, ok := parseFeedbackMeta("📬 Feedback\n-100123 | 456 | Alice | 789\n\nthe message")
		require.True(t, ok)
		assert.Equal(t, int64(-100123), chatID)
		assert.Equal(t, int64(789), messageID)
	})

	t.Run("rejects malformed text", func(t *testing.T) {
		for _, text := range []string{
			"",
			"single line",
			"header\nnot | enough | parts",
			"header\nx | 456 | Alice | 789",
			"header\n123 | 456 | Alice | y",
		} {
			_, _, ok := parseFeedbackMeta(text)
			assert.False(t, ok, "text %q", text)
		}
	})
}
