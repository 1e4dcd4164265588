package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/mynah/ai/prompt"
	"github.com/hrygo/mynah/store"
	"github.com/hrygo/mynah/telegram"
)

// forcedAnswerSentinel splits a message into a visible prefix and a reply
// the bot echoes verbatim without calling any backend.
const forcedAnswerSentinel = " --force-answer "

func containsMention(text, username string) bool {
	return username != "" && strings.Contains(text, "@"+username)
}

// admit runs the pre-generation checks. Refused requests never reach a
// backend; the hourly limit in particular is checked before any quota is
// spent.
func (b *Bot) admit(ctx context.Context, m *telegram.Message, endpoint string) (refused bool, err error) {
	if refused, err = b.checkTokenLimit(ctx, m, endpoint); refused || err != nil {
		return refused, err
	}
	return b.checkRateLimit(ctx, m)
}

// checkTokenLimit estimates the conversation size and warns or blocks per
// token_limit_action.
func (b *Bot) checkTokenLimit(ctx context.Context, m *telegram.Message, endpoint string) (bool, error) {
	limit, err := b.config.Int(ctx, m.ChatID, "token_limit")
	if err != nil || limit <= 0 {
		return false, err
	}

	current, err := b.countConversationTokens(ctx, m.ChatID, endpoint)
	if err != nil {
		return false, err
	}
	if current <= limit {
		return false, nil
	}

	action, err := b.config.Text(ctx, m.ChatID, "token_limit_action")
	if err != nil {
		return false, err
	}

	switch action {
	case "block":
		b.replyHTML(ctx, m, fmt.Sprintf(
			"❌ <b>Request blocked: conversation exceeds the token limit</b> <i>(%d &gt; %d)</i>\nUse /reset to start over.",
			current, limit))
		return true, nil
	default:
		b.replyHTML(ctx, m, fmt.Sprintf(
			"⚠️ <b>Conversation exceeds the token limit</b> <i>(%d &gt; %d)</i>", current, limit))
		return false, nil
	}
}

// countConversationTokens renders the visible window and counts it with the
// endpoint's local estimator.
func (b *Bot) countConversationTokens(ctx context.Context, chatID int64, endpoint string) (int, error) {
	limit, err := b.config.Int(ctx, chatID, "message_limit")
	if err != nil {
		return 0, err
	}
	history, err := b.store.ListMessages(ctx, &store.FindMessages{ChatID: chatID, Limit: limit})
	if err != nil {
		return 0, err
	}

	backend := b.backends[endpoint]
	total := 0
	for _, row := range history {
		total += backend.CountTokens(prompt.Render(row, true))
	}
	return total, nil
}

// checkRateLimit refuses the request when the chat used up its hourly
// budget.
func (b *Bot) checkRateLimit(ctx context.Context, m *telegram.Message) (bool, error) {
	limit, err := b.config.Int(ctx, m.ChatID, "max_requests_per_hour")
	if err != nil || limit <= 0 {
		return false, err
	}

	count, err := b.store.CountGenerationsSince(ctx, m.ChatID, time.Now().Add(-time.Hour))
	if err != nil {
		return false, err
	}
	if count < limit {
		return false, nil
	}

	slog.Warn("chat rate-limited", "chat_id", m.ChatID, "count", count, "limit", limit)
	b.metrics.CountMessage("rate_limited")
	b.replyHTML(ctx, m,
		"❌ <b>This chat reached its hourly request limit. Try again later.</b>\n<i>Details in /status</i>")
	return true, nil
}

// handleForcedAnswer implements the in-message sentinel that seeds the
// bot's voice: the remainder is echoed and persisted as an assistant turn
// without invoking any backend.
func (b *Bot) handleForcedAnswer(ctx context.Context, m *telegram.Message) (bool, error) {
	_, forced, found := strings.Cut(m.Text, forcedAnswerSentinel)
	if !found || strings.TrimSpace(forced) == "" {
		return false, nil
	}

	allowed, err := b.canAlterMemory(ctx, m)
	if err != nil {
		return true, err
	}
	if !allowed {
		b.replyHTML(ctx, m, "❌ <b>You are not allowed to alter the bot's memory here.</b>")
		return true, nil
	}

	forced = strings.TrimSpace(forced)
	sentID, err := b.tg.Reply(ctx, m.ChatID, m.MessageID, forced, "")
	if err != nil {
		return true, err
	}
	return true, b.persistOurReply(ctx, m, sentID, forced)
}

// canAlterMemory checks the memory_alter_permission parameter.
func (b *Bot) canAlterMemory(ctx context.Context, m *telegram.Message) (bool, error) {
	return b.checkPermission(ctx, m, "memory_alter_permission")
}

// canReset checks the reset_permission parameter.
func (b *Bot) canReset(ctx context.Context, m *telegram.Message) (bool, error) {
	return b.checkPermission(ctx, m, "reset_permission")
}

func (b *Bot) checkPermission(ctx context.Context, m *telegram.Message, param string) (bool, error) {
	if b.profile.IsAdmin(m.UserID) {
		return true, nil
	}

	mode, err := b.config.Text(ctx, m.ChatID, param)
	if err != nil {
		return false, err
	}
	if mode == "everyone" {
		return true, nil
	}

	return b.tg.IsChatAdmin(ctx, m.ChatID, m.UserID)
}

// replyHTML sends a service notice, logging instead of failing the caller.
func (b *Bot) replyHTML(ctx context.Context, m *telegram.Message, text string) {
	if _, err := b.tg.Reply(ctx, m.ChatID, m.MessageID, text, telegram.ModeHTML); err != nil {
		slog.Error("failed to send notice", "chat_id", m.ChatID, "error", err)
	}
}
