package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/mynah/internal/markdown"
	"github.com/hrygo/mynah/internal/version"
	"github.com/hrygo/mynah/telegram"
)

// dispatchCommand routes a /command update. Unknown commands are ignored so
// the bot stays quiet about commands meant for other bots in the group.
func (b *Bot) dispatchCommand(ctx context.Context, m *telegram.Message) {
	slog.Info("command", "chat_id", m.ChatID, "user_id", m.UserID, "command", m.Command)

	switch m.Command {
	case "start":
		b.cmdStart(ctx, m)
	case "help":
		b.cmdHelp(ctx, m)
	case "status":
		b.cmdStatus(ctx, m)
	case "stats":
		b.cmdStats(ctx, m)
	case "reset", "clear":
		b.cmdReset(ctx, m)
	case "forget":
		b.cmdForget(ctx, m)
	case "replace":
		b.cmdReplace(ctx, m)
	case "system":
		b.cmdSystem(ctx, m)
	case "hide":
		b.cmdHide(ctx, m)
	case "feedback":
		b.cmdFeedback(ctx, m)
	case "settings":
		b.cmdSettings(ctx, m)
	case "set":
		b.cmdSet(ctx, m, false)
	case "fset":
		if b.requireAdmin(ctx, m) {
			b.cmdSet(ctx, m, true)
		}
	case "preset":
		b.cmdPreset(ctx, m)
	case "sql":
		if b.requireAdmin(ctx, m) {
			b.cmdSQL(ctx, m)
		}
	case "directsend":
		if b.requireAdmin(ctx, m) {
			b.cmdDirectSend(ctx, m)
		}
	case "blacklist":
		if b.requireAdmin(ctx, m) {
			b.cmdBlacklist(ctx, m, true)
		}
	case "unblacklist":
		if b.requireAdmin(ctx, m) {
			b.cmdBlacklist(ctx, m, false)
		}
	case "prune":
		if b.requireAdmin(ctx, m) {
			b.cmdPrune(ctx, m)
		}
	case "undelete":
		if b.requireAdmin(ctx, m) {
			b.cmdUndelete(ctx, m)
		}
	case "restart":
		if b.requireAdmin(ctx, m) {
			b.cmdRestart(ctx, m)
		}
	case "dropcaches":
		if b.requireAdmin(ctx, m) {
			b.cmdDropCaches(ctx, m)
		}
	}
}

// requireAdmin gates admin commands, answering non-admins with a refusal.
func (b *Bot) requireAdmin(ctx context.Context, m *telegram.Message) bool {
	if b.profile.IsAdmin(m.UserID) {
		return true
	}
	b.replyHTML(ctx, m, "❌ <b>This command is restricted to bot administrators.</b>")
	return false
}

func (b *Bot) cmdStart(ctx context.Context, m *telegram.Message) {
	b.replyHTML(ctx, m, strings.Join([]string{
		"👋 <b>Hi! I am a conversational bot.</b>",
		"",
		"Mention me or reply to one of my messages and I will answer, keeping the recent chat history in mind. In a DM I answer everything.",
		"",
		"See /help for the full command list and /settings for per-chat tuning.",
	}, "\n"))
}

func (b *Bot) cmdHelp(ctx context.Context, m *telegram.Message) {
	lines := []string{
		"<b>Commands</b>",
		"/status — bot and key pool health",
		"/stats — usage statistics",
		"/settings [param] — show parameters",
		"/set &lt;param&gt; &lt;value&gt; — change a parameter",
		"/preset [name] — apply a parameter preset",
		"/reset — wipe the conversation memory",
		"/forget — forget the replied-to message",
		"/replace &lt;text&gt; — rewrite the replied-to message",
		"/system &lt;text&gt; — inject a system note into history",
		"/hide — delete the replied-to bot message from the chat",
		"/feedback &lt;text&gt; — send feedback to the operators",
	}
	if b.profile.IsAdmin(m.UserID) {
		lines = append(lines,
			"",
			"<b>Admin</b>",
			"/fset, /sql, /directsend, /blacklist, /unblacklist, /prune, /undelete, /restart, /dropcaches")
	}
	b.replyHTML(ctx, m, strings.Join(lines, "\n"))
}

func (b *Bot) cmdStatus(ctx context.Context, m *telegram.Message) {
	endpoint, err := b.config.Endpoint(ctx, m.ChatID)
	if err != nil {
		slog.Error("failed to read endpoint", "chat_id", m.ChatID, "error", err)
		endpoint = "unknown"
	}

	hourly, err := b.store.CountGenerationsSince(ctx, m.ChatID, time.Now().Add(-time.Hour))
	if err != nil {
		slog.Error("failed to count generations", "chat_id", m.ChatID, "error", err)
	}
	limit, _ := b.config.Int(ctx, m.ChatID, "max_requests_per_hour")

	lines := []string{
		"<b>Status</b>",
		fmt.Sprintf("Version: <code>%s</code>", markdown.Escape(version.String())),
		fmt.Sprintf("Uptime: %s", time.Since(b.started).Round(time.Second)),
		fmt.Sprintf("Endpoint: <code>%s</code>", endpoint),
	}
	if limit > 0 {
		lines = append(lines, fmt.Sprintf("Requests this hour: %d / %d", hourly, limit))
	} else {
		lines = append(lines, fmt.Sprintf("Requests this hour: %d", hourly))
	}

	if b.profile.IsAdmin(m.UserID) {
		snap := b.keys.Snapshot()
		lines = append(lines,
			"",
			"<b>Key pool</b>",
			fmt.Sprintf("Active: %d / %d (billing %d / %d)",
				snap.Active, snap.Total, snap.ActiveBilling, snap.Billing),
			fmt.Sprintf("Exhausted: %d, removed: %d", snap.Exhausted, snap.Removed),
		)
	}
	b.replyHTML(ctx, m, strings.Join(lines, "\n"))
}

// sparkRunes maps normalized counts to bar heights for the daily graph.
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func sparkline(counts []int) string {
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	if max == 0 {
		max = 1
	}
	var sb strings.Builder
	for _, c := range counts {
		idx := c * (len(sparkRunes) - 1) / max
		sb.WriteRune(sparkRunes[idx])
	}
	return sb.String()
}

func (b *Bot) cmdStats(ctx context.Context, m *telegram.Message) {
	const window = 24 * time.Hour
	since := time.Now().Add(-window)

	daily, err := b.store.ListDailyGenerations(ctx, 14)
	if err != nil {
		slog.Error("failed to list daily generations", "chat_id", m.ChatID, "error", err)
		b.replyHTML(ctx, m, "❌ <b>Failed to gather statistics.</b>")
		return
	}
	counts := make([]int, 0, len(daily))
	total := 0
	for _, day := range daily {
		counts = append(counts, day.Count)
		total += day.Count
	}

	active, err := b.store.CountActiveUsers(ctx, since)
	if err != nil {
		slog.Error("failed to count active users", "error", err)
	}
	usage, err := b.store.SumTokenUsage(ctx, since)
	if err != nil {
		slog.Error("failed to sum token usage", "error", err)
	}

	lines := []string{
		"<b>Statistics</b>",
		fmt.Sprintf("Last 14 days: <code>%s</code> (%d generations)", sparkline(counts), total),
		fmt.Sprintf("Active users (24h): %d", active),
	}
	if usage != nil {
		lines = append(lines, fmt.Sprintf(
			"Tokens (24h): %d total, %d context, %d completion",
			usage.TotalTokens, usage.ContextTokens, usage.CompletionTokens))
	}

	if b.profile.IsAdmin(m.UserID) {
		if top, err := b.store.ListTopUsers(ctx, since, 5); err == nil && len(top) > 0 {
			lines = append(lines, "", "<b>Top users (24h)</b>")
			for _, u := range top {
				lines = append(lines, fmt.Sprintf("<code>%d</code> — %d", u.UserID, u.Count))
			}
		}
		if chats, err := b.store.ListTopTokenChats(ctx, since, 5); err == nil && len(chats) > 0 {
			lines = append(lines, "", "<b>Top chats by tokens (24h)</b>")
			for _, c := range chats {
				title := markdown.Escape(b.tg.EntityTitle(ctx, c.ChatID))
				lines = append(lines, fmt.Sprintf("%s — %d", title, c.Tokens))
			}
		}
	}
	b.replyHTML(ctx, m, strings.Join(lines, "\n"))
}

func (b *Bot) cmdReset(ctx context.Context, m *telegram.Message) {
	allowed, err := b.canReset(ctx, m)
	if err != nil {
		slog.Error("failed to check reset permission", "chat_id", m.ChatID, "error", err)
		return
	}
	if !allowed {
		b.replyHTML(ctx, m, "❌ <b>You are not allowed to reset this chat's memory.</b>")
		return
	}

	n, err := b.store.ResetMessages(ctx, m.ChatID)
	if err != nil {
		slog.Error("failed to reset history", "chat_id", m.ChatID, "error", err)
		b.replyHTML(ctx, m, "❌ <b>Failed to reset the conversation.</b>")
		return
	}
	b.replyHTML(ctx, m, fmt.Sprintf("🧹 <b>Memory wiped.</b> <i>%d messages forgotten.</i>", n))
}

// cmdForget soft-deletes the replied-to message. The confirmation names only
// the message id, never the forgotten content.
func (b *Bot) cmdForget(ctx context.Context, m *telegram.Message) {
	allowed, err := b.canAlterMemory(ctx, m)
	if err != nil {
		slog.Error("failed to check memory permission", "chat_id", m.ChatID, "error", err)
		return
	}
	if !allowed {
		b.replyHTML(ctx, m, "❌ <b>You are not allowed to alter the bot's memory here.</b>")
		return
	}
	if m.ReplyTo == nil {
		b.replyHTML(ctx, m, "Reply to the message you want me to forget.")
		return
	}

	ok, err := b.store.ForgetMessage(ctx, m.ChatID, m.ReplyTo.MessageID)
	if err != nil {
		slog.Error("failed to forget message", "chat_id", m.ChatID, "error", err)
		return
	}
	if !ok {
		b.replyHTML(ctx, m, "I don't remember that message in the first place.")
		return
	}
	b.replyHTML(ctx, m, fmt.Sprintf("🗑 <b>Forgot message</b> <code>%d</code>.", m.ReplyTo.MessageID))
}

func (b *Bot) cmdReplace(ctx context.Context, m *telegram.Message) {
	allowed, err := b.canAlterMemory(ctx, m)
	if err != nil {
		slog.Error("failed to check memory permission", "chat_id", m.ChatID, "error", err)
		return
	}
	if !allowed {
		b.replyHTML(ctx, m, "❌ <b>You are not allowed to alter the bot's memory here.</b>")
		return
	}
	if m.ReplyTo == nil || m.CommandArgs == "" {
		b.replyHTML(ctx, m, "Reply to the message to rewrite: <code>/replace new text</code>")
		return
	}

	if err := b.store.UpdateMessageText(ctx, m.ChatID, m.ReplyTo.MessageID, m.CommandArgs); err != nil {
		slog.Error("failed to replace message", "chat_id", m.ChatID, "error", err)
		b.replyHTML(ctx, m, "❌ <b>Failed to rewrite the message.</b>")
		return
	}
	b.replyHTML(ctx, m, fmt.Sprintf("✏️ <b>Rewrote message</b> <code>%d</code>.", m.ReplyTo.MessageID))
}

func (b *Bot) cmdSystem(ctx context.Context, m *telegram.Message) {
	allowed, err := b.canAlterMemory(ctx, m)
	if err != nil {
		slog.Error("failed to check memory permission", "chat_id", m.ChatID, "error", err)
		return
	}
	if !allowed {
		b.replyHTML(ctx, m, "❌ <b>You are not allowed to alter the bot's memory here.</b>")
		return
	}
	if m.CommandArgs == "" {
		b.replyHTML(ctx, m, "Usage: <code>/system instruction text</code>")
		return
	}

	if err := b.store.CreateSystemMessage(ctx, m.ChatID, m.CommandArgs); err != nil {
		slog.Error("failed to create system message", "chat_id", m.ChatID, "error", err)
		b.replyHTML(ctx, m, "❌ <b>Failed to store the system note.</b>")
		return
	}
	b.replyHTML(ctx, m, "📌 <b>System note stored.</b>")
}

// cmdHide removes the replied-to bot message from the chat, plus the command
// itself. Only the chat is cleaned up; history keeps both rows.
func (b *Bot) cmdHide(ctx context.Context, m *telegram.Message) {
	if m.ReplyTo == nil {
		b.replyHTML(ctx, m, "Reply to the bot message you want hidden.")
		return
	}

	if m.ReplyTo.UserID == b.tg.BotID() {
		if err := b.tg.Delete(ctx, m.ChatID, m.ReplyTo.MessageID); err != nil {
			slog.Error("failed to delete bot message", "chat_id", m.ChatID, "error", err)
		}
	}

	// Deleting the command needs delete rights in the chat; without them the
	// bot at least acknowledges.
	if err := b.tg.Delete(ctx, m.ChatID, m.MessageID); err != nil {
		b.replyHTML(ctx, m, "👌")
	}
}
