package telegram

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MediaKind classifies an attachment the way the prompt pipeline cares about:
// photos are inlined, everything else goes through the file upload service.
type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaPhoto MediaKind = "photo"
	MediaOther MediaKind = "other"
)

// ReplyTo describes the message a row replies to.
type ReplyTo struct {
	MessageID int64
	UserID    int64
	Text      string
}

// Message is one parsed platform update.
type Message struct {
	ChatID    int64
	ChatType  string // private, group, supergroup, channel
	ChatTitle string
	MessageID int64
	Timestamp time.Time

	UserID      int64
	Username    string
	DisplayName string
	FirstName   string

	// Text is the message text, falling back to the media caption.
	Text string

	// Command and CommandArgs are set when the message is a /command
	// addressed to this bot (or without an explicit addressee).
	Command     string
	CommandArgs string

	ReplyTo *ReplyTo

	MediaFileID string
	MediaKind   MediaKind

	// Payload flags drive the endpoint requirement filter.
	HasText      bool
	HasPhoto     bool
	HasVideo     bool
	HasAudio     bool
	HasVoice     bool
	HasDocument  bool
	HasSticker   bool
	HasVideoNote bool

	// Edited marks an update for a previously delivered message.
	Edited bool
}

// IsDM reports whether the message arrived in a one-on-one chat.
func (m *Message) IsDM() bool {
	return m.ChatID == m.UserID
}

// parseMessage converts a tgbotapi message into our shape.
func (c *Client) parseMessage(tgMsg *tgbotapi.Message, edited bool) *Message {
	if tgMsg == nil || tgMsg.From == nil {
		return nil
	}

	m := &Message{
		ChatID:    tgMsg.Chat.ID,
		ChatType:  tgMsg.Chat.Type,
		ChatTitle: tgMsg.Chat.Title,
		MessageID: int64(tgMsg.MessageID),
		Timestamp: time.Unix(int64(tgMsg.Date), 0),

		UserID:    tgMsg.From.ID,
		Username:  tgMsg.From.UserName,
		FirstName: tgMsg.From.FirstName,

		Edited: edited,
	}

	m.DisplayName = strings.TrimSpace(tgMsg.From.FirstName + " " + tgMsg.From.LastName)
	if m.DisplayName == "" {
		m.DisplayName = m.Username
	}
	if m.Username == "" {
		m.Username = m.DisplayName
	}

	m.Text = tgMsg.Text
	if m.Text == "" {
		m.Text = tgMsg.Caption
	}
	m.HasText = m.Text != ""

	if tgMsg.IsCommand() {
		// Commands addressed to another bot in the group are not ours.
		command := tgMsg.Command()
		if at := tgMsg.CommandWithAt(); !strings.Contains(at, "@") || strings.EqualFold(at, command+"@"+c.username) {
			m.Command = strings.ToLower(command)
			m.CommandArgs = strings.TrimSpace(tgMsg.CommandArguments())
		}
	}

	if reply := tgMsg.ReplyToMessage; reply != nil && reply.From != nil {
		text := reply.Text
		if text == "" {
			text = reply.Caption
		}
		m.ReplyTo = &ReplyTo{
			MessageID: int64(reply.MessageID),
			UserID:    reply.From.ID,
			Text:      text,
		}
	}

	switch {
	case len(tgMsg.Photo) > 0:
		m.HasPhoto = true
		// Sizes are ordered smallest first; the last one is the original.
		m.MediaFileID = tgMsg.Photo[len(tgMsg.Photo)-1].FileID
		m.MediaKind = MediaPhoto
	case tgMsg.Sticker != nil:
		m.HasSticker = true
		m.MediaFileID = tgMsg.Sticker.FileID
		m.MediaKind = MediaPhoto
	case tgMsg.Video != nil:
		m.HasVideo = true
		m.MediaFileID = tgMsg.Video.FileID
		m.MediaKind = MediaOther
	case tgMsg.VideoNote != nil:
		m.HasVideoNote = true
		m.MediaFileID = tgMsg.VideoNote.FileID
		m.MediaKind = MediaOther
	case tgMsg.Voice != nil:
		m.HasVoice = true
		m.MediaFileID = tgMsg.Voice.FileID
		m.MediaKind = MediaOther
	case tgMsg.Audio != nil:
		m.HasAudio = true
		m.MediaFileID = tgMsg.Audio.FileID
		m.MediaKind = MediaOther
	case tgMsg.Document != nil:
		m.HasDocument = true
		m.MediaFileID = tgMsg.Document.FileID
		m.MediaKind = MediaOther
	}

	return m
}
