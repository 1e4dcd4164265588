package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/mynah/internal/markdown"
	"github.com/hrygo/mynah/telegram"
)

// feedbackCooldown throttles /feedback per user.
const feedbackCooldown = time.Minute

// cmdFeedback forwards user feedback into the configured operator chat. The
// relayed message carries a metadata line so operator replies can be routed
// back.
func (b *Bot) cmdFeedback(ctx context.Context, m *telegram.Message) {
	if b.profile.FeedbackTargetID == 0 {
		b.replyHTML(ctx, m, "Feedback is not set up on this instance.")
		return
	}
	if m.CommandArgs == "" {
		b.replyHTML(ctx, m, "Usage: <code>/feedback your message to the operators</code>")
		return
	}

	if last, ok := b.feedbackLast.Load(m.UserID); ok {
		if wait := feedbackCooldown - time.Since(last.(time.Time)); wait > 0 {
			b.replyHTML(ctx, m, fmt.Sprintf(
				"⌛ <i>Please wait %d seconds before sending more feedback.</i>",
				int(wait.Seconds())+1))
			return
		}
	}

	relay := strings.Join([]string{
		"📬 <b>Feedback</b>",
		fmt.Sprintf("%d | %d | %s | %d",
			m.ChatID, m.UserID, markdown.Escape(m.DisplayName), m.MessageID),
		"",
		markdown.Escape(m.CommandArgs),
	}, "\n")

	if _, err := b.tg.Send(ctx, b.profile.FeedbackTargetID, relay, telegram.ModeHTML); err != nil {
		slog.Error("failed to relay feedback", "user_id", m.UserID, "error", err)
		b.replyHTML(ctx, m, "❌ <b>Failed to deliver your feedback. Try again later.</b>")
		return
	}

	b.feedbackLast.Store(m.UserID, time.Now())
	b.replyHTML(ctx, m, "💌 <b>Thanks, your feedback was delivered.</b>")
}

// handleFeedbackReply routes an operator's reply to a relayed feedback
// message back to its author. Returns true when the update was consumed.
func (b *Bot) handleFeedbackReply(ctx context.Context, m *telegram.Message) bool {
	if b.profile.FeedbackTargetID == 0 || m.ChatID != b.profile.FeedbackTargetID {
		return false
	}
	if m.ReplyTo == nil || m.ReplyTo.UserID != b.tg.BotID() || m.Command != "" {
		return false
	}
	if !b.profile.IsAdmin(m.UserID) {
		return false
	}

	chatID, messageID, ok := parseFeedbackMeta(m.ReplyTo.Text)
	if !ok {
		return false
	}

	if _, err := b.tg.Reply(ctx, chatID, messageID,
		"📬 <b>Reply from the operators:</b>\n"+markdown.Escape(m.Text), telegram.ModeHTML); err != nil {
		slog.Error("failed to route feedback reply", "chat_id", chatID, "error", err)
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return true
	}
	b.replyHTML(ctx, m, "✅ <b>Delivered.</b>")
	return true
}

// parseFeedbackMeta extracts the origin from the relay's metadata line:
//
//	chat_id | user_id | name | message_id
func parseFeedbackMeta(text string) (chatID, messageID int64, ok bool) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return 0, 0, false
	}
	parts := strings.Split(lines[1], " | ")
	if len(parts) != 4 {
		return 0, 0, false
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return chatID, messageID, true
}
