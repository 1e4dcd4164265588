package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/mynah/ai"
)

// groundingSeparator divides the answer body from search attribution. It is
// also the marker delivery strips before persisting the reply.
const groundingSeparator = "⎯⎯⎯⎯⎯"

// outcomeLabel names the variant for logs and metrics.
func outcomeLabel(o ai.Outcome) string {
	switch o.(type) {
	case ai.Text:
		return "text"
	case ai.Censored:
		return "censored"
	case ai.QuotaExhausted:
		return "quota_exhausted"
	case ai.BillingExhausted:
		return "billing_exhausted"
	case ai.Unavailable:
		return "unavailable"
	case ai.Internal:
		return "internal"
	case ai.InvalidArgument:
		return "invalid_argument"
	case ai.UnsupportedMedia:
		return "unsupported_media"
	default:
		return "unknown"
	}
}

// formatOutcome turns an outcome into the string sent to the chat. An empty
// string means nothing should be sent.
func (b *Bot) formatOutcome(ctx context.Context, chatID int64, outcome ai.Outcome) (string, error) {
	if text, ok := outcome.(ai.Text); ok {
		return b.formatText(ctx, chatID, text)
	}

	show, err := b.config.Bool(ctx, chatID, "show_error_messages")
	if err != nil {
		return "", err
	}
	if !show {
		return "", nil
	}
	return formatFailure(outcome), nil
}

// formatText renders the answer body, then the optional thinking and
// grounding sections. Both extras sit below the separator so delivery can
// keep them out of persisted history.
func (b *Bot) formatText(ctx context.Context, chatID int64, text ai.Text) (string, error) {
	var sb strings.Builder
	sb.WriteString(text.Body)

	if text.Thought != "" {
		show, err := b.config.Bool(ctx, chatID, "show_thinking")
		if err != nil {
			return "", err
		}
		if show {
			sb.WriteString("\n\n")
			sb.WriteString(groundingSeparator)
			sb.WriteString("\n🧠 *Thinking:*\n")
			sb.WriteString(text.Thought)
		}
	}

	if g := text.Grounding; g != nil && (len(g.Queries) > 0 || len(g.Sources) > 0) {
		sb.WriteString("\n\n")
		sb.WriteString(groundingSeparator)
		if len(g.Queries) > 0 {
			sb.WriteString("\n🔍 *Searched:* ")
			sb.WriteString(strings.Join(g.Queries, ", "))
		}
		for _, src := range g.Sources {
			sb.WriteString(fmt.Sprintf("\n• [%s](%s)", src.Title, src.URI))
		}
	}

	return sb.String(), nil
}

// formatFailure maps a failed outcome to its user-facing line. Every line
// starts with the cross marker so delivery can strip them before persisting.
func formatFailure(outcome ai.Outcome) string {
	switch o := outcome.(type) {
	case ai.Censored:
		msg := "❌ The response was blocked"
		if o.Reason != "" {
			msg += " (" + o.Reason + ")"
		}
		if len(o.Ratings) > 0 {
			var cats []string
			for _, r := range o.Ratings {
				cats = append(cats, fmt.Sprintf("%s: %s", prettifyCategory(r.Category), r.Probability))
			}
			msg += "\n❌ Flagged for " + strings.Join(cats, ", ")
		}
		if len(o.Citations) > 0 {
			msg += "\n❌ Recited from " + strings.Join(o.Citations, ", ")
		}
		return msg
	case ai.QuotaExhausted:
		return "❌ All API keys are exhausted for today. Try again after the quota resets."
	case ai.BillingExhausted:
		return "❌ No billing-enabled API key is available, so search grounding cannot run. Disable it with /set grounding false."
	case ai.Unavailable:
		return "❌ The model is overloaded right now. Try again in a moment."
	case ai.Internal:
		return "❌ The provider reported an internal error. Try again in a moment."
	case ai.InvalidArgument:
		msg := "❌ The request was rejected as invalid."
		if o.Message != "" {
			msg += " " + o.Message
		}
		return msg
	case ai.UnsupportedMedia:
		return "❌ The attached file type is not supported by the current model."
	case ai.Unknown:
		if o.Timeout {
			return "❌ The request timed out. Try again, or raise the timeout with /set o_timeout."
		}
		msg := "❌ Something went wrong."
		if o.Message != "" {
			msg += " " + o.Message
		}
		return msg
	default:
		return "❌ Something went wrong."
	}
}

// prettifyCategory turns HARM_CATEGORY_DANGEROUS_CONTENT into
// "dangerous content".
func prettifyCategory(category string) string {
	category = strings.TrimPrefix(category, "HARM_CATEGORY_")
	return strings.ToLower(strings.ReplaceAll(category, "_", " "))
}
