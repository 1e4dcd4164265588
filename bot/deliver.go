package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hrygo/mynah/internal/markdown"
	"github.com/hrygo/mynah/telegram"
)

// Telegram caps messages at 4096 chars, but formatting entities count too.
// Replies longer than chunkThreshold are split into chunkSize pieces.
const (
	chunkThreshold = 2000
	chunkSize      = 1900
)

// deliver sends the formatted output and persists the reply. Markdown is the
// preferred parse mode; entity rejections fall back to sanitized HTML, then
// to chunking, then to a plain refusal notice.
func (b *Bot) deliver(ctx context.Context, m *telegram.Message, output string) {
	useMarkdown, err := b.config.Bool(ctx, m.ChatID, "process_markdown")
	if err != nil {
		slog.Error("failed to read process_markdown", "chat_id", m.ChatID, "error", err)
		useMarkdown = true
	}

	sentID, err := b.send(ctx, m.ChatID, m.MessageID, output, useMarkdown)
	if err != nil && telegram.IsRejection(err) && len(output) > chunkThreshold {
		sentID, err = b.sendChunked(ctx, m, output, useMarkdown)
	}
	if err != nil {
		slog.Error("failed to deliver reply", "chat_id", m.ChatID, "error", err)
		b.replyHTML(ctx, m,
			"❌ <b>The reply was not accepted by Telegram.</b> <i>Details are in the logs.</i>")
		return
	}

	if err := b.persistOurReply(ctx, m, sentID, persistable(output)); err != nil {
		slog.Error("failed to persist reply", "chat_id", m.ChatID, "error", err)
	}
}

// send attempts one message with the parse-mode ladder: Markdown first when
// enabled, sanitized HTML on rejection, and plain text as a last resort.
func (b *Bot) send(ctx context.Context, chatID, replyTo int64, text string, useMarkdown bool) (int64, error) {
	if useMarkdown {
		sentID, err := b.tg.Reply(ctx, chatID, replyTo, text, telegram.ModeMarkdown)
		if err == nil {
			b.metrics.CountSend("markdown", "ok")
			return sentID, nil
		}
		if !telegram.IsRejection(err) {
			b.metrics.CountSend("markdown", "error")
			return 0, err
		}
		b.metrics.CountSend("markdown", "rejected")
	}

	sentID, err := b.tg.Reply(ctx, chatID, replyTo, markdown.ToHTML(text), telegram.ModeHTML)
	if err == nil {
		b.metrics.CountSend("html", "ok")
		return sentID, nil
	}
	if !telegram.IsRejection(err) {
		b.metrics.CountSend("html", "error")
		return 0, err
	}
	b.metrics.CountSend("html", "rejected")

	sentID, err = b.tg.Reply(ctx, chatID, replyTo, text, "")
	if err == nil {
		b.metrics.CountSend("plain", "ok")
	} else {
		b.metrics.CountSend("plain", "error")
	}
	return sentID, err
}

// sendChunked splits the output into pieces, each with its own parse-mode
// ladder. Only the first chunk replies to the trigger; the returned id is
// the last chunk's so the persisted row anchors follow-up replies.
func (b *Bot) sendChunked(ctx context.Context, m *telegram.Message, output string, useMarkdown bool) (int64, error) {
	chunks := splitChunks(output, chunkSize)
	slog.Info("chunking long reply", "chat_id", m.ChatID, "chunks", len(chunks))

	var lastID int64
	for i, chunk := range chunks {
		replyTo := int64(0)
		if i == 0 {
			replyTo = m.MessageID
		}
		sentID, err := b.send(ctx, m.ChatID, replyTo, chunk, useMarkdown)
		if err != nil {
			return 0, err
		}
		lastID = sentID
	}
	return lastID, nil
}

// splitChunks cuts on the nearest newline before the limit when one exists,
// so formatting blocks are less likely to be severed mid-entity.
func splitChunks(text string, size int) []string {
	var chunks []string
	for len(text) > size {
		cut := size
		if i := strings.LastIndexByte(text[:size], '\n'); i > size/2 {
			cut = i + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// persistable strips the parts of the reply that should not enter history:
// everything after the grounding separator and any error-marker lines.
func persistable(output string) string {
	if i := strings.Index(output, groundingSeparator); i >= 0 {
		output = output[:i]
	}

	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "❌") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
