// Package openai dispatches prompts to an OpenAI-compatible chat completion
// endpoint through the go-openai client. One attempt, one key: retries and
// rotation are the Google dispatcher's business.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/tokens"
)

const proxyErrorMarker = "oai-proxy-error"

// Defaults are the process-wide endpoint settings; per-chat o_url and o_key
// take precedence when present.
type Defaults struct {
	BaseURL string
	APIKey  string
}

// Dispatcher is the OpenAI-compatible backend.
type Dispatcher struct {
	defaults Defaults
	counter  *tokens.Counter
}

// New creates the dispatcher.
func New(defaults Defaults) *Dispatcher {
	return &Dispatcher{
		defaults: defaults,
		counter:  tokens.Base(),
	}
}

// Name implements ai.Backend.
func (d *Dispatcher) Name() string { return "openai" }

// CountTokens implements ai.Backend.
func (d *Dispatcher) CountTokens(text string) int {
	return d.counter.Count(text)
}

// Generate implements ai.Backend.
func (d *Dispatcher) Generate(ctx context.Context, p *ai.Prompt) ai.Outcome {
	baseURL := p.Knobs.BaseURL
	if baseURL == "" {
		baseURL = d.defaults.BaseURL
	}
	apiKey := p.Knobs.APIKey
	if apiKey == "" {
		apiKey = d.defaults.APIKey
	}

	timeout := time.Duration(p.Knobs.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	client := goopenai.NewClientWithConfig(cfg)

	req := d.buildRequest(p, baseURL)
	if p.Knobs.LogPrompt {
		for _, m := range req.Messages {
			slog.Debug("openai prompt message", "role", m.Role, "content", m.Content)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return classifyError(err, timeout)
	}

	if len(resp.Choices) == 0 {
		return ai.Unknown{Message: "response carried no choices"}
	}
	choice := resp.Choices[0]

	if choice.FinishReason == goopenai.FinishReasonLength {
		return ai.Unknown{Message: "generation stopped at max-output-tokens, raise max_tokens or trim the conversation"}
	}

	body := choice.Message.Content
	if strings.Contains(body, proxyErrorMarker) {
		return ai.Unknown{Message: "the upstream proxy reported a failure"}
	}
	if body == "" {
		return ai.Unknown{Message: "response carried no text"}
	}

	return ai.Text{
		Body: body,
		Usage: ai.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}
}

// buildRequest converts the neutral prompt to a chat completion request.
func (d *Dispatcher) buildRequest(p *ai.Prompt, baseURL string) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:            p.Knobs.Model,
		Temperature:      float32(p.Knobs.Temperature),
		TopP:             float32(p.Knobs.TopP),
		FrequencyPenalty: float32(p.Knobs.FrequencyPenalty),
		PresencePenalty:  float32(p.Knobs.PresencePenalty),
	}

	// The o1 family rejects max_tokens, except behind local tunnels that
	// front non-OpenAI models under o1 names.
	if isO1Family(p.Knobs.Model) && !strings.Contains(baseURL, "trycloudflare") {
		req.MaxCompletionTokens = p.Knobs.MaxOutputTokens
	} else {
		req.MaxTokens = p.Knobs.MaxOutputTokens
	}

	if p.System != "" {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: p.System,
		})
	}

	for _, turn := range p.Turns {
		req.Messages = append(req.Messages, convertTurn(turn))
	}

	return req
}

func convertTurn(turn ai.Turn) goopenai.ChatCompletionMessage {
	msg := goopenai.ChatCompletionMessage{Role: wireRole(turn.Role)}

	var inline *ai.InlineData
	var text strings.Builder
	for _, part := range turn.Parts {
		switch {
		case part.Inline != nil:
			inline = part.Inline
		case part.File != nil:
			// Uploaded file handles are a Google facility; they never
			// reach this backend.
		default:
			text.WriteString(part.Text)
		}
	}

	if inline == nil {
		msg.Content = text.String()
		return msg
	}

	msg.MultiContent = []goopenai.ChatMessagePart{
		{Type: goopenai.ChatMessagePartTypeText, Text: text.String()},
		{Type: goopenai.ChatMessagePartTypeImageURL, ImageURL: &goopenai.ChatMessageImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", inline.MIMEType, inline.Data),
		}},
	}
	return msg
}

func wireRole(r ai.Role) string {
	switch r {
	case ai.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	case ai.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	default:
		return goopenai.ChatMessageRoleUser
	}
}

func isO1Family(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4")
}

// classifyError maps a transport or API failure onto an Unknown outcome.
// This backend deliberately has no finer error taxonomy: any failure either
// surfaces to the user or triggers the Google fallback wholesale.
func classifyError(err error, timeout time.Duration) ai.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.Unknown{
			Message: fmt.Sprintf("request timed out after %s", timeout),
			Timeout: true,
		}
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return ai.Unknown{Message: fmt.Sprintf("API error: %v", apiErr.Message)}
	}

	return ai.Unknown{Message: err.Error()}
}

var _ ai.Backend = (*Dispatcher)(nil)
