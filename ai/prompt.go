// Package ai defines the backend-neutral generation contract: the assembled
// Prompt value, the Outcome sum type and the Backend capability the
// orchestrator dispatches through.
package ai

// Role of a prompt turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Part is one piece of turn content. Exactly one field is set.
type Part struct {
	Text string

	// Inline carries base64-encoded bytes, used for photos.
	Inline *InlineData

	// File references a handle on the Google file service, used for
	// non-photo media.
	File *FileData
}

// InlineData is base64-encoded media embedded directly in the request.
type InlineData struct {
	MIMEType string
	Data     string
}

// FileData is a reference to an uploaded file. The upload binds the URI to
// the API key that created it, so prompts carrying file data pin that key.
type FileData struct {
	MIMEType string
	URI      string
}

// Turn is one role-tagged group of parts.
type Turn struct {
	Role  Role
	Parts []Part
}

// Text returns the concatenated text parts of the turn.
func (t *Turn) Text() string {
	var s string
	for _, p := range t.Parts {
		s += p.Text
	}
	return s
}

// Knobs are the per-chat generation settings snapshot the assembler bakes
// into the prompt, so dispatchers never read chat configuration themselves.
type Knobs struct {
	Model           string
	Temperature     float64
	TopP            float64
	MaxOutputTokens int

	// Google settings.
	TopK             int
	ShowThinking     bool
	Grounding        bool
	DynamicThreshold float64
	CodeExecution    bool

	// OpenAI-compatible settings.
	FrequencyPenalty float64
	PresencePenalty  float64
	TimeoutSeconds   int
	BaseURL          string
	APIKey           string
	AddSystemPrompt  bool
	LogPrompt        bool
}

// Prompt is an assembled, backend-neutral request. Dispatchers convert it to
// their wire shape.
type Prompt struct {
	// Turns is the conversation, oldest first. The final turn role is
	// always user.
	Turns []Turn

	// System is the system instruction, empty for none.
	System string

	// PinnedKey is the API key that uploaded any FileData parts. When set,
	// every dispatch attempt must reuse it instead of rotating.
	PinnedKey string

	Knobs Knobs
}

// HasFileData reports whether any part references an uploaded file.
func (p *Prompt) HasFileData() bool {
	for _, turn := range p.Turns {
		for _, part := range turn.Parts {
			if part.File != nil {
				return true
			}
		}
	}
	return false
}

// LastRole returns the role of the final turn, or "" for an empty prompt.
func (p *Prompt) LastRole() Role {
	if len(p.Turns) == 0 {
		return ""
	}
	return p.Turns[len(p.Turns)-1].Role
}
