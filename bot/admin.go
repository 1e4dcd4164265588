package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hrygo/mynah/internal/markdown"
	"github.com/hrygo/mynah/telegram"
)

// cmdSQL runs a raw statement against the store. With -fetch the rows come
// back as a table; without it only the affected-row count does.
func (b *Bot) cmdSQL(ctx context.Context, m *telegram.Message) {
	args := m.CommandArgs
	fetch := false
	if rest, found := strings.CutPrefix(args, "-fetch "); found {
		fetch = true
		args = rest
	}
	args = strings.TrimSpace(args)
	if args == "" {
		b.replyHTML(ctx, m, "Usage: <code>/sql [-fetch] &lt;statement&gt;</code>")
		return
	}

	slog.Warn("running raw query", "user_id", m.UserID, "fetch", fetch)
	result, err := b.store.RunRawQuery(ctx, args, fetch)
	if err != nil {
		b.replyHTML(ctx, m, "❌ <code>"+markdown.Escape(err.Error())+"</code>")
		return
	}
	b.replyHTML(ctx, m, "<pre>"+markdown.Escape(result)+"</pre>")
}

// cmdDirectSend sends arbitrary text into another chat as the bot.
func (b *Bot) cmdDirectSend(ctx context.Context, m *telegram.Message) {
	fields := strings.SplitN(m.CommandArgs, " ", 2)
	if len(fields) < 2 {
		b.replyHTML(ctx, m, "Usage: <code>/directsend &lt;chat_id&gt; &lt;text&gt;</code>")
		return
	}
	chatID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.replyHTML(ctx, m, "❌ <b>Invalid chat id.</b>")
		return
	}

	if _, err := b.tg.Send(ctx, chatID, fields[1], ""); err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}
	b.replyHTML(ctx, m, fmt.Sprintf("📨 <b>Sent to</b> <code>%d</code>.", chatID))
}

// cmdBlacklist adds or removes a chat or user id from the blocklist.
func (b *Bot) cmdBlacklist(ctx context.Context, m *telegram.Message, add bool) {
	if m.CommandArgs == "" {
		ids, err := b.blacklist.List(ctx)
		if err != nil {
			b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
			return
		}
		if len(ids) == 0 {
			b.replyHTML(ctx, m, "The blacklist is empty.")
			return
		}
		lines := []string{"<b>Blacklist</b>"}
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("<code>%d</code>", id))
		}
		b.replyHTML(ctx, m, strings.Join(lines, "\n"))
		return
	}

	entityID, err := strconv.ParseInt(strings.Fields(m.CommandArgs)[0], 10, 64)
	if err != nil {
		b.replyHTML(ctx, m, "❌ <b>Invalid entity id.</b>")
		return
	}

	var changed bool
	if add {
		changed, err = b.blacklist.Add(ctx, entityID)
	} else {
		changed, err = b.blacklist.Remove(ctx, entityID)
	}
	if err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}
	switch {
	case add && changed:
		b.replyHTML(ctx, m, fmt.Sprintf("⛔ <b>Blacklisted</b> <code>%d</code>.", entityID))
	case add:
		b.replyHTML(ctx, m, fmt.Sprintf("<code>%d</code> is already blacklisted.", entityID))
	case changed:
		b.replyHTML(ctx, m, fmt.Sprintf("✅ <b>Unblacklisted</b> <code>%d</code>.", entityID))
	default:
		b.replyHTML(ctx, m, fmt.Sprintf("<code>%d</code> was not blacklisted.", entityID))
	}
}

// cmdPrune physically deletes history older than N days, for one chat or
// with "*" for all chats.
func (b *Bot) cmdPrune(ctx context.Context, m *telegram.Message) {
	fields := strings.Fields(m.CommandArgs)
	if len(fields) != 2 {
		b.replyHTML(ctx, m, "Usage: <code>/prune &lt;chat_id|*&gt; &lt;days&gt;</code>")
		return
	}

	var chatID *int64
	if fields[0] != "*" {
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			b.replyHTML(ctx, m, "❌ <b>Invalid chat id.</b>")
			return
		}
		chatID = &id
	}
	days, err := strconv.Atoi(fields[1])
	if err != nil || days < 1 {
		b.replyHTML(ctx, m, "❌ <b>Days must be a positive integer.</b>")
		return
	}

	result, err := b.store.PruneMessages(ctx, days, chatID)
	if err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}
	slog.Info("pruned history", "user_id", m.UserID, "rows", result.RowsDeleted, "freed", result.FreedBytes)
	b.replyHTML(ctx, m, fmt.Sprintf(
		"🧹 <b>Pruned %d rows</b> <i>(%d KiB reclaimed)</i>.",
		result.RowsDeleted, result.FreedBytes/1024))
}

// cmdUndelete reverses a soft delete, by replied-to message or explicit id.
func (b *Bot) cmdUndelete(ctx context.Context, m *telegram.Message) {
	var messageID int64
	switch {
	case m.ReplyTo != nil:
		messageID = m.ReplyTo.MessageID
	case m.CommandArgs != "":
		id, err := strconv.ParseInt(strings.Fields(m.CommandArgs)[0], 10, 64)
		if err != nil {
			b.replyHTML(ctx, m, "❌ <b>Invalid message id.</b>")
			return
		}
		messageID = id
	default:
		b.replyHTML(ctx, m, "Usage: reply to a message or <code>/undelete &lt;message_id&gt;</code>")
		return
	}

	ok, err := b.store.UndeleteMessage(ctx, m.ChatID, messageID)
	if err != nil {
		b.replyHTML(ctx, m, "❌ "+markdown.Escape(err.Error()))
		return
	}
	if !ok {
		b.replyHTML(ctx, m, fmt.Sprintf("Message <code>%d</code> is not in history.", messageID))
		return
	}
	b.replyHTML(ctx, m, fmt.Sprintf("♻️ <b>Restored message</b> <code>%d</code>.", messageID))
}

// cmdRestart asks main to exit so the supervisor brings the process back up.
func (b *Bot) cmdRestart(ctx context.Context, m *telegram.Message) {
	slog.Warn("restart requested", "user_id", m.UserID)
	b.replyHTML(ctx, m, "🔄 <b>Restarting…</b>")
	b.restart()
}

// cmdDropCaches flushes every in-process cache.
func (b *Bot) cmdDropCaches(ctx context.Context, m *telegram.Message) {
	b.config.PurgeCache()
	b.blacklist.PurgeCache()
	b.tg.PurgeTitleCache()
	slog.Info("caches dropped", "user_id", m.UserID)
	b.replyHTML(ctx, m, "🧹 <b>All caches dropped.</b>")
}
