// Package prompt turns persisted chat history into the backend-neutral
// request shape: rows are rendered to attributed lines, folded into
// role-alternating turns, and topped with the templated system instruction.
package prompt

import (
	"strings"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/store"
)

// Settings is the per-chat snapshot the assembler needs. The orchestrator
// fills it from the config store so this package never touches the database.
type Settings struct {
	// AddReplyTo includes quoted reply snippets in rendered user rows.
	AddReplyTo bool

	// AddSystemMessages folds sender-727 rows into the system instruction
	// under a behaviour-rules wrapper. When off they are dropped entirely.
	AddSystemMessages bool

	// AddSystemPrompt prepends the templated system instruction.
	AddSystemPrompt bool

	// ClarifyTarget appends a synthetic assistant/user exchange restating
	// the trigger message. OpenAI-shaped chats only.
	ClarifyTarget bool

	// ChatType and ChatTitle fill the system prompt template placeholders.
	ChatType  string
	ChatTitle string
}

// clarifyAssistantTurn is the synthetic acknowledgement inserted before the
// restated trigger when target clarification is on.
const clarifyAssistantTurn = "Now please provide me with the target message that I need to respond to. " +
	"I will ensure that my reply is in the User's language, maintains proper context awareness, " +
	"and does not mix topics."

// Assembler renders history windows into prompts.
type Assembler struct {
	template string
}

// New creates an assembler around the system prompt template. The template
// carries {chat_type} and {chat_title} placeholders.
func New(template string) *Assembler {
	return &Assembler{template: template}
}

// Render produces the single prompt line for one history row.
//
// Bot rows are prefixed "You: "; user rows carry the display name, plus the
// username in parentheses when the two differ. An optional quoted-reply
// segment precedes the body. Empty text falls back to a media placeholder.
func Render(m *store.Message, addReplyTo bool) string {
	var b strings.Builder

	switch {
	case m.IsBot():
		b.WriteString("You: ")
	case m.IsSystem():
		b.WriteString("SYSTEM: ")
	case m.SenderUsername == m.SenderName:
		b.WriteString(m.SenderName + ": ")
	default:
		b.WriteString(m.SenderName + " (" + m.SenderUsername + "): ")
	}

	if m.ReplyToMessageID != 0 && addReplyTo {
		b.WriteString("[> " + m.ReplyToTrimmed + "] ")
	}

	switch {
	case m.Text != "":
		b.WriteString(m.Text)
	case m.MediaType == store.MediaPhoto:
		b.WriteString("[photo.jpg]")
	case m.MediaType == store.MediaOther:
		b.WriteString("[miscellaneous_file]")
	default:
		b.WriteString("*No text*")
	}

	return b.String()
}

// renderBare renders a row without its role prefix, for rows whose role the
// turn structure already carries.
func renderBare(m *store.Message, prefix string) string {
	return strings.Replace(Render(m, false), prefix, "", 1)
}

func roleOf(m *store.Message) ai.Role {
	switch {
	case m.IsBot():
		return ai.RoleAssistant
	case m.IsSystem():
		return ai.RoleSystem
	default:
		return ai.RoleUser
	}
}

// Assemble builds the prompt for one generation. history is the visible
// window ascending by timestamp, with the trigger row as its last element.
func (a *Assembler) Assemble(history []*store.Message, trigger *store.Message, s Settings) *ai.Prompt {
	p := &ai.Prompt{}

	var behaviourRules []string
	var buffer []string
	var currentRole ai.Role
	lastUserIdx := -1

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		p.Turns = append(p.Turns, ai.Turn{
			Role:  currentRole,
			Parts: []ai.Part{{Text: strings.Join(buffer, "\n")}},
		})
		if currentRole == ai.RoleUser {
			lastUserIdx = len(p.Turns) - 1
		}
		buffer = nil
	}

	for _, m := range history {
		role := roleOf(m)

		if role == ai.RoleSystem {
			if s.AddSystemMessages {
				behaviourRules = append(behaviourRules, renderBare(m, "SYSTEM: "))
			}
			continue
		}

		var line string
		if role == ai.RoleAssistant {
			line = renderBare(m, "You: ")
		} else {
			line = Render(m, s.AddReplyTo)
		}

		if role != currentRole {
			flush()
			currentRole = role
		}
		buffer = append(buffer, line)
	}
	flush()

	// The model always sees a user-terminated context: an assistant tail is
	// extended with a copy of the newest user turn, or an empty user turn
	// when the window holds none.
	if len(p.Turns) == 0 || p.Turns[len(p.Turns)-1].Role != ai.RoleUser {
		if lastUserIdx >= 0 {
			dup := ai.Turn{Role: ai.RoleUser, Parts: append([]ai.Part(nil), p.Turns[lastUserIdx].Parts...)}
			p.Turns = append(p.Turns, dup)
		} else {
			p.Turns = append(p.Turns, ai.Turn{Role: ai.RoleUser, Parts: []ai.Part{{Text: ""}}})
		}
	}

	if s.ClarifyTarget && trigger != nil {
		p.Turns = append(p.Turns,
			ai.Turn{Role: ai.RoleAssistant, Parts: []ai.Part{{Text: clarifyAssistantTurn}}},
			ai.Turn{Role: ai.RoleUser, Parts: []ai.Part{{Text: Render(trigger, s.AddReplyTo)}}},
		)
	}

	if s.AddSystemPrompt {
		p.System = a.systemInstruction(s, behaviourRules)
	}

	return p
}

// systemInstruction renders the template and appends in-band directives.
func (a *Assembler) systemInstruction(s Settings, behaviourRules []string) string {
	instruction := strings.NewReplacer(
		"{chat_type}", s.ChatType,
		"{chat_title}", s.ChatTitle,
	).Replace(a.template)

	if len(behaviourRules) > 0 {
		instruction += "\n\n<behaviour_rules>\n" +
			strings.Join(behaviourRules, "\n") +
			"\n</behaviour_rules>"
	}

	return strings.TrimSpace(instruction)
}

// AttachMedia appends media parts to the final turn. Exactly one of the
// arguments is non-nil per call site.
func AttachMedia(p *ai.Prompt, inline *ai.InlineData, file *ai.FileData) {
	if len(p.Turns) == 0 {
		return
	}
	last := &p.Turns[len(p.Turns)-1]
	switch {
	case inline != nil:
		last.Parts = append(last.Parts, ai.Part{Inline: inline})
	case file != nil:
		last.Parts = append(last.Parts, ai.Part{File: file})
	}
}

// ChatDescriptor derives the template placeholders from the trigger message:
// DMs read "direct message (DM) with <name>", groups "group called <title>".
func ChatDescriptor(isDM bool, chatTitle, firstName string) (chatType, title string) {
	if isDM {
		return "direct message (DM)", " with " + firstName
	}
	return "group", " called " + chatTitle
}
