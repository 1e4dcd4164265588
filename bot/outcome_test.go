package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mynah/ai"
)

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		outcome ai.Outcome
		want    string
	}{
		{ai.Text{Body: "hi"}, "text"},
		{ai.Censored{Reason: "SAFETY"}, "censored"},
		{ai.QuotaExhausted{}, "quota_exhausted"},
		{ai.BillingExhausted{}, "billing_exhausted"},
		{ai.Unavailable{}, "unavailable"},
		{ai.Internal{}, "internal"},
		{ai.InvalidArgument{}, "invalid_argument"},
		{ai.UnsupportedMedia{}, "unsupported_media"},
		{ai.Unknown{}, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeLabel(tt.outcome))
	}
}

func TestFormatFailure(t *testing.T) {
	t.Run("every failure line carries the marker", func(t *testing.T) {
		outcomes := []ai.Outcome{
			ai.Censored{Reason: "SAFETY"},
			ai.QuotaExhausted{},
			ai.BillingExhausted{},
			ai.Unavailable{},
			ai.Internal{},
			ai.InvalidArgument{Message: "bad request"},
			ai.UnsupportedMedia{},
			ai.Unknown{Timeout: true},
			ai.Unknown{Message: "boom"},
		}
		for _, o := range outcomes {
			assert.Contains(t, formatFailure(o), "❌", "outcome %T", o)
		}
	})

	t.Run("censored details", func(t *testing.T) {
		msg := formatFailure(ai.Censored{
			Reason: "SAFETY",
			Ratings: []ai.SafetyRating{
				{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Probability: "HIGH"},
			},
		})
		assert.Contains(t, msg, "SAFETY")
		assert.Contains(t, msg, "dangerous content: HIGH")
	})

	t.Run("recitation citations", func(t *testing.T) {
		msg := formatFailure(ai.Censored{Reason: "RECITATION", Citations: []string{"https://example.com"}})
		assert.Contains(t, msg, "https://example.com")
	})
}

func TestPrettifyCategory(t *testing.T) {
	assert.Equal(t, "dangerous content", prettifyCategory("HARM_CATEGORY_DANGEROUS_CONTENT"))
	assert.Equal(t, "harassment", prettifyCategory("HARM_CATEGORY_HARASSMENT"))
}

func TestContainsMention(t *testing.T) {
	assert.True(t, containsMention("hey @mynah_bot what's up", "mynah_bot"))
	assert.False(t, containsMention("hey there", "mynah_bot"))
	assert.False(t, containsMention("hey @mynah_bot", ""))
}
