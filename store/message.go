package store

import (
	"context"
	"strings"
	"time"
)

// Reserved sender ids. Every other positive id is a platform user.
const (
	// SenderBot marks rows written by the bot itself.
	SenderBot int64 = 0
	// SenderSystem marks synthetic system rows injected into history.
	SenderSystem int64 = 727
)

// MediaType classifies an attached file for prompt purposes.
type MediaType string

const (
	MediaNone  MediaType = ""
	MediaPhoto MediaType = "photo"
	MediaOther MediaType = "other"
)

// Message is one append-only chat history row, unique per (ChatID, MessageID).
type Message struct {
	UMID             int64
	ChatID           int64
	MessageID        int64
	Timestamp        time.Time
	SenderID         int64
	SenderUsername   string
	SenderName       string
	Text             string
	ReplyToMessageID int64 // 0 when the row is not a reply
	ReplyToTrimmed   string
	MediaFileID      string
	MediaType        MediaType
	Deleted          bool
}

// IsBot reports whether the row was written by the bot.
func (m *Message) IsBot() bool { return m.SenderID == SenderBot }

// IsSystem reports whether the row is a synthetic system message.
func (m *Message) IsSystem() bool { return m.SenderID == SenderSystem }

// FindMessages describes a history window read.
type FindMessages struct {
	ChatID int64
	// Limit bounds the window to the newest N rows; rows are returned in
	// ascending timestamp order.
	Limit int
	// IncludeDeleted also returns soft-deleted rows.
	IncludeDeleted bool
}

// PruneResult reports the effect of a physical history prune.
type PruneResult struct {
	RowsDeleted int64
	FreedBytes  int64
}

// CreateMessage appends one history row. Re-delivered platform updates with
// an already-stored (chat, message) pair are ignored.
func (s *Store) CreateMessage(ctx context.Context, create *Message) error {
	return s.driver.CreateMessage(ctx, create)
}

// CreateSystemMessage appends a sender-727 row. System rows have no platform
// message id, so a negative synthetic id keeps (chat_id, message_id) unique.
func (s *Store) CreateSystemMessage(ctx context.Context, chatID int64, text string) error {
	return s.driver.CreateMessage(ctx, &Message{
		ChatID:         chatID,
		MessageID:      -time.Now().UnixNano(),
		Timestamp:      time.Now(),
		SenderID:       SenderSystem,
		SenderUsername: "SYSTEM",
		SenderName:     "SYSTEM",
		Text:           text,
	})
}

// GetMessage returns one row, or nil when it does not exist.
func (s *Store) GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	return s.driver.GetMessage(ctx, chatID, messageID)
}

// ListMessages returns the newest non-deleted rows of a chat, ascending.
func (s *Store) ListMessages(ctx context.Context, find *FindMessages) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// UpdateMessageText overwrites the text of one row. Used for platform edits
// and the /replace command.
func (s *Store) UpdateMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return s.driver.UpdateMessageText(ctx, chatID, messageID, text)
}

// ForgetMessage soft-deletes one row. Returns false when the row is unknown.
func (s *Store) ForgetMessage(ctx context.Context, chatID, messageID int64) (bool, error) {
	return s.driver.SetMessageDeleted(ctx, chatID, messageID, true)
}

// UndeleteMessage reverses a soft delete. This is the only path that flips
// deleted back to false.
func (s *Store) UndeleteMessage(ctx context.Context, chatID, messageID int64) (bool, error) {
	return s.driver.SetMessageDeleted(ctx, chatID, messageID, false)
}

// ResetMessages soft-deletes the whole visible history of a chat and returns
// the number of rows affected. Applying it twice is a no-op the second time.
func (s *Store) ResetMessages(ctx context.Context, chatID int64) (int64, error) {
	return s.driver.ResetMessages(ctx, chatID)
}

// PruneMessages physically deletes rows older than the given number of days,
// optionally restricted to one chat, then reclaims space.
func (s *Store) PruneMessages(ctx context.Context, days int, chatID *int64) (*PruneResult, error) {
	olderThan := time.Now().AddDate(0, 0, -days)
	return s.driver.PruneMessages(ctx, olderThan, chatID)
}

// FileFromChain resolves the nearest media file of the wanted type, starting
// at the trigger row and following reply_to_message_id upward. The walk
// visits at most maxDepth+1 rows (the trigger itself plus maxDepth hops).
func (s *Store) FileFromChain(ctx context.Context, chatID, triggerID int64, wanted MediaType, maxDepth int) (string, error) {
	messageID := triggerID
	for hop := 0; hop <= maxDepth; hop++ {
		msg, err := s.driver.GetMessage(ctx, chatID, messageID)
		if err != nil {
			return "", err
		}
		if msg == nil {
			return "", nil
		}
		if msg.MediaType == wanted && msg.MediaFileID != "" {
			return msg.MediaFileID, nil
		}
		if msg.ReplyToMessageID == 0 {
			return "", nil
		}
		messageID = msg.ReplyToMessageID
	}
	return "", nil
}

// TruncateReply shortens quoted reply text to at most maxLength characters,
// keeping the head and tail around an ellipsis:
//
//	("The quick brown fox jumped over the lazy dog", 30) -> "The quick ... lazy dog"
//
// Newlines are flattened to spaces first.
func TruncateReply(replyText string, maxLength int) string {
	if replyText == "" {
		return ""
	}

	replyText = strings.ReplaceAll(replyText, "\n", " ")
	runes := []rune(replyText)

	switch {
	case len(runes) > maxLength:
		partLength := maxLength/2 - len(" {...} ")/2
		start := string(runes[:partLength])
		end := string(runes[len(runes)-partLength:])
		if i := strings.LastIndex(start, " "); i >= 0 {
			start = start[:i]
		}
		if i := strings.Index(end, " "); i >= 0 {
			end = end[i+1:]
		}
		return start + " ... " + end
	case len(runes) > maxLength/2:
		truncated := string(runes[:maxLength-3])
		if i := strings.LastIndex(truncated, " "); i >= 0 {
			truncated = truncated[:i]
		}
		return truncated + "..."
	default:
		return replyText
	}
}
