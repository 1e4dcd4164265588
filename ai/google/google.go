// Package google dispatches prompts to the Gemini generateContent API. It
// owns the retry loop, its interplay with the key pool, and the mapping of
// every response shape onto the Outcome sum type.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/keypool"
	"github.com/hrygo/mynah/ai/tokens"
)

const (
	// DefaultBase is the Gemini API origin.
	DefaultBase = "https://generativelanguage.googleapis.com"

	maxAttempts = 3

	safetyThreshold = "BLOCK_NONE"
)

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

// Pool is the key pool surface the dispatcher drives.
type Pool interface {
	Acquire(billing bool) (string, error)
	HandleError(key string, kind keypool.ErrorKind, billing bool) bool
}

// Dispatcher is the Gemini backend.
type Dispatcher struct {
	keys    Pool
	client  *http.Client
	base    string
	counter *tokens.Counter

	// groundingClient routes grounded generations, which may need a
	// different egress. Falls back to client when nil.
	groundingClient *http.Client
}

// New creates the dispatcher. groundingClient may be nil.
func New(keys Pool, client, groundingClient *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 300 * time.Second}
	}
	return &Dispatcher{
		keys:            keys,
		client:          client,
		groundingClient: groundingClient,
		base:            DefaultBase,
		counter:         tokens.Base(),
	}
}

// Name implements ai.Backend.
func (d *Dispatcher) Name() string { return "google" }

// CountTokens implements ai.Backend with the cl100k lower-bound estimate.
func (d *Dispatcher) CountTokens(text string) int {
	return d.counter.Count(text)
}

// Generate implements ai.Backend.
//
// Up to three attempts run. Prompts carrying uploaded file handles reuse
// their pinned key on every attempt: the file service binds handles to the
// key that created them. Everything else rotates through the pool, taking
// billing-enabled keys when grounding is on.
func (d *Dispatcher) Generate(ctx context.Context, p *ai.Prompt) ai.Outcome {
	body, err := json.Marshal(d.buildRequest(p))
	if err != nil {
		return ai.Unknown{Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	billing := p.Knobs.Grounding
	var outcome ai.Outcome = ai.Unknown{Message: "no attempt ran"}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		key := p.PinnedKey
		if key == "" {
			key, err = d.keys.Acquire(billing)
			if err != nil {
				return acquireOutcome(err)
			}
		}

		resp, herr := d.post(ctx, key, p.Knobs, body)
		if herr != nil {
			if ctx.Err() != nil {
				return ai.Unknown{Message: herr.Error(), Timeout: true}
			}
			slog.Warn("gemini request failed", "attempt", attempt, "error", herr)
			outcome = ai.Unknown{Message: herr.Error()}
			continue
		}

		if resp.Error != nil {
			outcome = errorOutcome(resp.Error)
			kind := errorKind(resp.Error.Status)
			retry := d.keys.HandleError(key, kind, billing)
			if !retry || p.PinnedKey != "" {
				return outcome
			}
			continue
		}

		return decode(resp, p.Knobs.Model)
	}

	return outcome
}

// buildRequest converts the neutral prompt into the wire shape.
func (d *Dispatcher) buildRequest(p *ai.Prompt) *request {
	req := &request{
		Contents: make([]content, 0, len(p.Turns)),
		GenerationConfig: generationConfig{
			Temperature:     p.Knobs.Temperature,
			TopP:            p.Knobs.TopP,
			TopK:            p.Knobs.TopK,
			MaxOutputTokens: p.Knobs.MaxOutputTokens,
		},
	}

	for _, cat := range safetyCategories {
		req.SafetySettings = append(req.SafetySettings, safetySetting{
			Category:  cat,
			Threshold: safetyThreshold,
		})
	}

	for _, turn := range p.Turns {
		req.Contents = append(req.Contents, content{
			Role:  wireRole(turn.Role),
			Parts: wireParts(turn.Parts),
		})
	}

	if p.System != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: p.System}}}
	}

	// The two tools are mutually exclusive; grounding wins when both are
	// misconfigured on.
	switch {
	case p.Knobs.Grounding:
		req.Tools = []tool{{GoogleSearchRetrieval: &searchRetrieval{
			DynamicRetrievalConfig: dynamicRetrievalConfig{
				Mode:             "MODE_DYNAMIC",
				DynamicThreshold: p.Knobs.DynamicThreshold,
			},
		}}}
	case p.Knobs.CodeExecution:
		req.Tools = []tool{{CodeExecution: &struct{}{}}}
	}

	return req
}

func wireRole(r ai.Role) string {
	if r == ai.RoleAssistant {
		return "model"
	}
	return "user"
}

func wireParts(parts []ai.Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Inline != nil:
			out = append(out, part{InlineData: &inlineData{
				MimeType: p.Inline.MIMEType,
				Data:     p.Inline.Data,
			}})
		case p.File != nil:
			out = append(out, part{FileData: &fileData{
				MimeType: p.File.MIMEType,
				FileURI:  p.File.URI,
			}})
		default:
			out = append(out, part{Text: p.Text})
		}
	}
	return out
}

// post runs one HTTP attempt and decodes the body regardless of status:
// error details travel in the JSON envelope.
func (d *Dispatcher) post(ctx context.Context, key string, knobs ai.Knobs, body []byte) (*response, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", d.base, knobs.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	client := d.client
	if knobs.Grounding && d.groundingClient != nil {
		client = d.groundingClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// Proxies occasionally answer with HTML error pages; treat it like
		// a transport failure.
		slog.Warn("failed to decode gemini response", "status", resp.StatusCode, "error", err)
		return nil, fmt.Errorf("unparseable response with status %d", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK && decoded.Error == nil {
		decoded.Error = &apiError{Code: resp.StatusCode, Status: "UNKNOWN"}
	}
	return &decoded, nil
}

func acquireOutcome(err error) ai.Outcome {
	switch err {
	case keypool.ErrOutOfBillingKeys:
		return ai.BillingExhausted{}
	case keypool.ErrOutOfKeys:
		return ai.QuotaExhausted{}
	default:
		return ai.Unknown{Message: err.Error()}
	}
}

// errorKind classifies an API error status for key accounting.
func errorKind(status string) keypool.ErrorKind {
	switch status {
	case "RESOURCE_EXHAUSTED":
		return keypool.ErrorQuota
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return keypool.ErrorAuth
	default:
		return keypool.ErrorTransient
	}
}

// errorOutcome maps error.status onto the Outcome variant the user sees.
func errorOutcome(e *apiError) ai.Outcome {
	switch e.Status {
	case "RESOURCE_EXHAUSTED":
		return ai.QuotaExhausted{}
	case "NO_BILLING":
		return ai.BillingExhausted{}
	case "UNAVAILABLE":
		return ai.Unavailable{}
	case "INTERNAL":
		return ai.Internal{}
	case "INVALID_ARGUMENT":
		return ai.InvalidArgument{Message: e.Message}
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return ai.Unknown{Message: e.Message}
	default:
		return ai.Unknown{Message: fmt.Sprintf("%s: %s", e.Status, e.Message)}
	}
}

// decode maps a 200 response onto an outcome, in spec precedence order:
// prompt feedback, candidate finish reason, then text extraction.
func decode(resp *response, model string) ai.Outcome {
	if fb := resp.PromptFeedback; fb != nil {
		switch fb.BlockReason {
		case "", "BLOCK_REASON_UNSPECIFIED":
		default:
			return ai.Censored{
				Reason:  fb.BlockReason,
				Ratings: notableRatings(fb.SafetyRatings),
			}
		}
	}

	if len(resp.Candidates) == 0 {
		return ai.Unknown{Message: "response carried no candidates"}
	}
	cand := resp.Candidates[0]

	switch cand.FinishReason {
	case "SAFETY", "OTHER":
		return ai.Censored{
			Reason:  cand.FinishReason,
			Ratings: notableRatings(cand.SafetyRatings),
		}
	case "PROHIBITED_CONTENT":
		return ai.Censored{Reason: cand.FinishReason}
	case "RECITATION":
		return ai.Censored{
			Reason:    cand.FinishReason,
			Citations: citationURIs(cand.CitationMetadata),
		}
	}

	body, thought := extractText(cand.Content.Parts, model)
	if body == "" {
		return ai.Unknown{Message: "response carried no text"}
	}

	out := ai.Text{Body: body, Thought: thought}
	if gm := cand.GroundingMetadata; gm != nil {
		out.Grounding = groundingInfo(gm)
	}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = ai.Usage{
			Prompt:     um.PromptTokenCount,
			Completion: um.CandidatesTokenCount,
			Total:      um.TotalTokenCount,
		}
	}
	return out
}

// extractText picks the reply text. Thinking variants return the reasoning
// as a leading part; the answer is always the last text part.
func extractText(parts []part, model string) (body, thought string) {
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	switch len(texts) {
	case 0:
		return "", ""
	case 1:
		return texts[0], ""
	default:
		if isThinkingModel(model) {
			return texts[len(texts)-1], strings.Join(texts[:len(texts)-1], "\n")
		}
		return strings.Join(texts, "\n"), ""
	}
}

// isThinkingModel reports whether a model emits reasoning parts.
func isThinkingModel(model string) bool {
	return strings.Contains(model, "thinking") ||
		strings.Contains(model, "-2.5-") ||
		strings.Contains(model, "-3-")
}

// notableRatings keeps the categories that actually fired.
func notableRatings(ratings []safetyRating) []ai.SafetyRating {
	var out []ai.SafetyRating
	for _, r := range ratings {
		if r.Probability == "NEGLIGIBLE" || r.Probability == "" {
			continue
		}
		out = append(out, ai.SafetyRating{Category: r.Category, Probability: r.Probability})
	}
	return out
}

func citationURIs(cm *citationMetadata) []string {
	if cm == nil {
		return nil
	}
	var uris []string
	for _, s := range cm.CitationSources {
		if s.URI != "" {
			uris = append(uris, s.URI)
		}
	}
	return uris
}

func groundingInfo(gm *groundingMetadata) *ai.GroundingInfo {
	info := &ai.GroundingInfo{Queries: gm.WebSearchQueries}
	for _, chunk := range gm.GroundingChunks {
		if chunk.Web.URI == "" {
			continue
		}
		info.Sources = append(info.Sources, ai.GroundingSource{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	if len(info.Queries) == 0 && len(info.Sources) == 0 {
		return nil
	}
	return info
}

var _ ai.Backend = (*Dispatcher)(nil)
