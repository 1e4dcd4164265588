package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/store"
)

func userRow(id int64, name, username, text string) *store.Message {
	return &store.Message{
		ChatID:         1,
		MessageID:      id,
		Timestamp:      time.Unix(id, 0),
		SenderID:       1000 + id,
		SenderName:     name,
		SenderUsername: username,
		Text:           text,
	}
}

func botRow(id int64, text string) *store.Message {
	return &store.Message{
		ChatID:    1,
		MessageID: id,
		Timestamp: time.Unix(id, 0),
		SenderID:  store.SenderBot,
		Text:      text,
	}
}

func systemRow(id int64, text string) *store.Message {
	return &store.Message{
		ChatID:    1,
		MessageID: -id,
		Timestamp: time.Unix(id, 0),
		SenderID:  store.SenderSystem,
		Text:      text,
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name       string
		message    *store.Message
		addReplyTo bool
		want       string
	}{
		{
			name:    "user with distinct username",
			message: userRow(1, "Alice", "alice_w", "hello"),
			want:    "Alice (alice_w): hello",
		},
		{
			name:    "user with matching username",
			message: userRow(1, "alice", "alice", "hello"),
			want:    "alice: hello",
		},
		{
			name:    "bot row",
			message: botRow(2, "hi there"),
			want:    "You: hi there",
		},
		{
			name: "reply quote included",
			message: &store.Message{
				SenderID: 5, SenderName: "Bob", SenderUsername: "Bob",
				Text: "agreed", ReplyToMessageID: 1, ReplyToTrimmed: "hello",
			},
			addReplyTo: true,
			want:       "Bob: [> hello] agreed",
		},
		{
			name: "reply quote suppressed",
			message: &store.Message{
				SenderID: 5, SenderName: "Bob", SenderUsername: "Bob",
				Text: "agreed", ReplyToMessageID: 1, ReplyToTrimmed: "hello",
			},
			want: "Bob: agreed",
		},
		{
			name: "photo placeholder",
			message: &store.Message{
				SenderID: 5, SenderName: "Bob", SenderUsername: "Bob",
				MediaType: store.MediaPhoto, MediaFileID: "f1",
			},
			want: "Bob: [photo.jpg]",
		},
		{
			name: "other media placeholder",
			message: &store.Message{
				SenderID: 5, SenderName: "Bob", SenderUsername: "Bob",
				MediaType: store.MediaOther, MediaFileID: "f2",
			},
			want: "Bob: [miscellaneous_file]",
		},
		{
			name:    "empty text fallback",
			message: &store.Message{SenderID: 5, SenderName: "Bob", SenderUsername: "Bob"},
			want:    "Bob: *No text*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.message, tt.addReplyTo))
		})
	}
}

func TestAssembleFoldsConsecutiveRows(t *testing.T) {
	a := New("prompt")
	history := []*store.Message{
		userRow(1, "Alice", "alice", "one"),
		userRow(2, "Bob", "bob", "two"),
		botRow(3, "reply"),
		userRow(4, "Alice", "alice", "three"),
	}

	p := a.Assemble(history, history[3], Settings{})

	require.Len(t, p.Turns, 3)
	assert.Equal(t, ai.RoleUser, p.Turns[0].Role)
	assert.Equal(t, "Alice: one\nBob: two", p.Turns[0].Text())
	assert.Equal(t, ai.RoleAssistant, p.Turns[1].Role)
	assert.Equal(t, "reply", p.Turns[1].Text())
	assert.Equal(t, ai.RoleUser, p.Turns[2].Role)
}

func TestAssembleTerminalTurnIsAlwaysUser(t *testing.T) {
	a := New("prompt")

	t.Run("assistant tail duplicates newest user turn", func(t *testing.T) {
		history := []*store.Message{
			userRow(1, "Alice", "alice", "question"),
			botRow(2, "answer"),
		}
		p := a.Assemble(history, history[0], Settings{})

		require.NotEmpty(t, p.Turns)
		assert.Equal(t, ai.RoleUser, p.LastRole())
		assert.Equal(t, "Alice: question", p.Turns[len(p.Turns)-1].Text())
	})

	t.Run("window with no user rows gets empty user turn", func(t *testing.T) {
		history := []*store.Message{botRow(1, "monologue")}
		p := a.Assemble(history, nil, Settings{})

		assert.Equal(t, ai.RoleUser, p.LastRole())
		assert.Equal(t, "", p.Turns[len(p.Turns)-1].Text())
	})

	t.Run("empty window", func(t *testing.T) {
		p := a.Assemble(nil, nil, Settings{})
		assert.Equal(t, ai.RoleUser, p.LastRole())
	})
}

func TestAssembleSystemRows(t *testing.T) {
	a := New("You are in a {chat_type}{chat_title}.")
	history := []*store.Message{
		userRow(1, "Alice", "alice", "hi"),
		systemRow(2, "Always answer in haiku."),
	}
	settings := Settings{
		AddSystemMessages: true,
		AddSystemPrompt:   true,
		ChatType:          "group",
		ChatTitle:         " called Poetry Club",
	}

	p := a.Assemble(history, history[0], settings)

	assert.Contains(t, p.System, "You are in a group called Poetry Club.")
	assert.Contains(t, p.System, "<behaviour_rules>\nAlways answer in haiku.\n</behaviour_rules>")
	for _, turn := range p.Turns {
		assert.NotEqual(t, ai.RoleSystem, turn.Role)
	}

	t.Run("dropped when disabled", func(t *testing.T) {
		p := a.Assemble(history, history[0], Settings{AddSystemPrompt: true})
		assert.NotContains(t, p.System, "behaviour_rules")
		require.Len(t, p.Turns, 1)
	})
}

func TestAssembleClarifyTarget(t *testing.T) {
	a := New("prompt")
	trigger := userRow(3, "Alice", "alice", "what about this?")
	history := []*store.Message{
		userRow(1, "Alice", "alice", "hi"),
		botRow(2, "hello"),
		trigger,
	}

	p := a.Assemble(history, trigger, Settings{ClarifyTarget: true})

	require.GreaterOrEqual(t, len(p.Turns), 2)
	last := p.Turns[len(p.Turns)-1]
	penultimate := p.Turns[len(p.Turns)-2]
	assert.Equal(t, ai.RoleAssistant, penultimate.Role)
	assert.Contains(t, penultimate.Text(), "provide me with the target message")
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.Equal(t, "Alice (alice): what about this?", last.Text())
}

func TestAttachMedia(t *testing.T) {
	p := &ai.Prompt{Turns: []ai.Turn{{Role: ai.RoleUser, Parts: []ai.Part{{Text: "look"}}}}}

	AttachMedia(p, &ai.InlineData{MIMEType: "image/jpeg", Data: "Zm9v"}, nil)
	require.Len(t, p.Turns[0].Parts, 2)
	assert.NotNil(t, p.Turns[0].Parts[1].Inline)

	AttachMedia(p, nil, &ai.FileData{MIMEType: "application/pdf", URI: "files/abc"})
	require.Len(t, p.Turns[0].Parts, 3)
	assert.True(t, p.HasFileData())
}

func TestChatDescriptor(t *testing.T) {
	chatType, title := ChatDescriptor(true, "", "Alice")
	assert.Equal(t, "direct message (DM)", chatType)
	assert.Equal(t, " with Alice", title)

	chatType, title = ChatDescriptor(false, "Poetry Club", "Alice")
	assert.Equal(t, "group", chatType)
	assert.Equal(t, " called Poetry Club", title)
}
