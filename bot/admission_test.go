package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mynah/ai"
)

func TestRateLimitRefusesWithoutBackend(t *testing.T) {
	drv := newFakeDriver()
	drv.config["max_requests_per_hour"] = "3"
	drv.hourlyCount = 3

	tg := &fakeMessenger{}
	google := &fakeBackend{name: "google", outcome: ai.Text{Body: "hi"}}
	b := newTestBot(t, drv, tg, map[string]ai.Backend{"google": google})

	b.handleChat(context.Background(), dmMessage(1, "hello"))

	assert.Zero(t, google.callCount(), "a rate-limited chat must never reach the backend")
	assert.Empty(t, drv.generations)

	last := tg.lastSent()
	require.NotNil(t, last)
	assert.Contains(t, last.Text, "hourly request limit")
}

func TestRateLimitUnderLimitGenerates(t *testing.T) {
	drv := newFakeDriver()
	drv.config["max_requests_per_hour"] = "3"
	drv.hourlyCount = 2

	tg := &fakeMessenger{}
	google := &fakeBackend{name: "google", outcome: ai.Text{Body: "hi", Usage: ai.Usage{Prompt: 10, Completion: 2, Total: 12}}}
	b := newTestBot(t, drv, tg, map[string]ai.Backend{"google": google})

	b.handleChat(context.Background(), dmMessage(1, "hello"))

	assert.Equal(t, 1, google.callCount())

	last := tg.lastSent()
	require.NotNil(t, last)
	assert.Equal(t, "hi", last.Text)

	require.Len(t, drv.generations, 1)
	assert.Equal(t, "google", drv.generations[0].Endpoint)
}

func TestRateLimitZeroDisablesCheck(t *testing.T) {
	drv := newFakeDriver()
	drv.hourlyCount = 5000

	tg := &fakeMessenger{}
	google := &fakeBackend{name: "google", outcome: ai.Text{Body: "hi"}}
	b := newTestBot(t, drv, tg, map[string]ai.Backend{"google": google})

	b.handleChat(context.Background(), dmMessage(1, "hello"))

	assert.Equal(t, 1, google.callCount())
}
