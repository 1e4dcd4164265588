package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/prompt"
	"github.com/hrygo/mynah/store"
	"github.com/hrygo/mynah/telegram"
)

// typingInterval is how often the typing chat action is refreshed; Telegram
// expires one after about five seconds.
const typingInterval = 4 * time.Second

// generateAndReply runs one generation under the chat semaphore and
// delivers the outcome.
func (b *Bot) generateAndReply(ctx context.Context, m *telegram.Message, endpoint string) {
	requestID := shortuuid.New()
	started := time.Now()
	slog.Info("generating",
		"request_id", requestID, "chat_id", m.ChatID, "user_id", m.UserID, "endpoint", endpoint)

	stopTyping := b.startTyping(ctx, m.ChatID)
	defer stopTyping()

	outcome := b.dispatch(ctx, m, endpoint)

	// Cross-backend fallback: any OpenAI failure reroutes through Google
	// once, with a transient notice so the chat knows why the reply style
	// changes.
	if endpoint == "openai" && ai.Failed(outcome) {
		fallback, err := b.config.Bool(ctx, m.ChatID, "o_auto_fallback")
		if err != nil {
			slog.Error("failed to read o_auto_fallback", "chat_id", m.ChatID, "error", err)
		}
		if fallback {
			outcome = b.fallbackToGoogle(ctx, m, outcome)
			endpoint = "google"
		}
	}

	stopTyping()

	b.metrics.ObserveGeneration(endpoint, outcomeLabel(outcome), time.Since(started))
	b.logGeneration(ctx, m, endpoint, outcome)

	if ai.Failed(outcome) {
		// The model sees its own failure next turn instead of silently
		// missing a beat.
		if err := b.store.CreateSystemMessage(ctx, m.ChatID,
			"Your response was supposed to be here, but you failed to reply for some reason. Be better next time."); err != nil {
			slog.Error("failed to persist failure marker", "chat_id", m.ChatID, "error", err)
		}
	}

	output, err := b.formatOutcome(ctx, m.ChatID, outcome)
	if err != nil {
		slog.Error("failed to format outcome", "chat_id", m.ChatID, "error", err)
		return
	}
	if output == "" {
		return
	}

	b.deliver(ctx, m, output)
	slog.Info("generation finished",
		"request_id", requestID, "chat_id", m.ChatID,
		"outcome", outcomeLabel(outcome), "elapsed", time.Since(started))
}

// dispatch assembles the endpoint-shaped prompt and runs the backend.
func (b *Bot) dispatch(ctx context.Context, m *telegram.Message, endpoint string) ai.Outcome {
	p, err := b.assemble(ctx, m, endpoint)
	if err != nil {
		slog.Error("failed to assemble prompt", "chat_id", m.ChatID, "error", err)
		return ai.Unknown{Message: "failed to assemble the conversation"}
	}
	return b.backends[endpoint].Generate(ctx, p)
}

// fallbackToGoogle re-dispatches through the Google backend, bracketed by a
// transient notice.
func (b *Bot) fallbackToGoogle(ctx context.Context, m *telegram.Message, original ai.Outcome) ai.Outcome {
	slog.Warn("falling back to google", "chat_id", m.ChatID, "original", outcomeLabel(original))

	noticeID, err := b.tg.Reply(ctx, m.ChatID, m.MessageID,
		"⚠️ <i>The configured endpoint failed, retrying with the default one…</i>", telegram.ModeHTML)
	if err != nil {
		slog.Error("failed to send fallback notice", "chat_id", m.ChatID, "error", err)
	}

	outcome := b.dispatch(ctx, m, "google")

	if noticeID != 0 {
		if err := b.tg.Delete(ctx, m.ChatID, noticeID); err != nil {
			slog.Warn("failed to delete fallback notice", "chat_id", m.ChatID, "error", err)
		}
	}
	return outcome
}

// assemble builds the full prompt for one endpoint: history window, turn
// folding, system instruction, generation knobs and media parts.
func (b *Bot) assemble(ctx context.Context, m *telegram.Message, endpoint string) (*ai.Prompt, error) {
	messageLimit, err := b.config.Int(ctx, m.ChatID, "message_limit")
	if err != nil {
		return nil, err
	}
	history, err := b.store.ListMessages(ctx, &store.FindMessages{ChatID: m.ChatID, Limit: messageLimit})
	if err != nil {
		return nil, err
	}
	trigger, err := b.store.GetMessage(ctx, m.ChatID, m.MessageID)
	if err != nil {
		return nil, err
	}

	settings, err := b.promptSettings(ctx, m, endpoint)
	if err != nil {
		return nil, err
	}

	p := b.assembler.Assemble(history, trigger, settings)

	p.Knobs, err = b.knobs(ctx, m.ChatID, endpoint)
	if err != nil {
		return nil, err
	}

	if err := b.attachMedia(ctx, m, p, endpoint); err != nil {
		// Media is best-effort: a failed download or upload degrades to a
		// text-only prompt instead of refusing the request.
		slog.Warn("failed to attach media", "chat_id", m.ChatID, "error", err)
	}

	return p, nil
}

func (b *Bot) promptSettings(ctx context.Context, m *telegram.Message, endpoint string) (prompt.Settings, error) {
	var s prompt.Settings
	var err error

	if s.AddReplyTo, err = b.config.Bool(ctx, m.ChatID, "add_reply_to"); err != nil {
		return s, err
	}
	if s.AddSystemMessages, err = b.config.Bool(ctx, m.ChatID, "add_system_messages"); err != nil {
		return s, err
	}

	if endpoint == "openai" {
		if s.AddSystemPrompt, err = b.config.Bool(ctx, m.ChatID, "o_add_system_prompt"); err != nil {
			return s, err
		}
		if s.ClarifyTarget, err = b.config.Bool(ctx, m.ChatID, "o_clarify_target_message"); err != nil {
			return s, err
		}
	} else {
		s.AddSystemPrompt = true
	}

	s.ChatType, s.ChatTitle = prompt.ChatDescriptor(m.IsDM(), m.ChatTitle, m.FirstName)
	return s, nil
}

// knobs snapshots the chat's generation parameters for one endpoint.
func (b *Bot) knobs(ctx context.Context, chatID int64, endpoint string) (ai.Knobs, error) {
	var k ai.Knobs
	var err error

	read := func(dst *float64, name string) {
		if err == nil {
			*dst, err = b.config.Float(ctx, chatID, name)
		}
	}
	readInt := func(dst *int, name string) {
		if err == nil {
			*dst, err = b.config.Int(ctx, chatID, name)
		}
	}
	readBool := func(dst *bool, name string) {
		if err == nil {
			*dst, err = b.config.Bool(ctx, chatID, name)
		}
	}
	readText := func(dst *string, name string) {
		if err == nil {
			*dst, err = b.config.Text(ctx, chatID, name)
		}
	}

	if endpoint == "openai" {
		readText(&k.Model, "o_model")
		read(&k.Temperature, "o_temperature")
		read(&k.TopP, "o_top_p")
		read(&k.FrequencyPenalty, "o_frequency_penalty")
		read(&k.PresencePenalty, "o_presence_penalty")
		readInt(&k.TimeoutSeconds, "o_timeout")
		readText(&k.BaseURL, "o_url")
		readText(&k.APIKey, "o_key")
		readBool(&k.LogPrompt, "o_log_prompt")
		readInt(&k.MaxOutputTokens, "max_output_tokens")
		return k, err
	}

	readText(&k.Model, "model")
	read(&k.Temperature, "g_temperature")
	read(&k.TopP, "g_top_p")
	readInt(&k.TopK, "g_top_k")
	readInt(&k.MaxOutputTokens, "max_output_tokens")
	readBool(&k.ShowThinking, "show_thinking")
	readBool(&k.Grounding, "grounding")
	read(&k.DynamicThreshold, "g_dynamic_threshold")
	readBool(&k.CodeExecution, "code_execution")
	return k, err
}

// attachMedia resolves the nearest photo or other media in the reply chain
// and appends it to the prompt's final turn. Uploads pin the key that
// created them.
func (b *Bot) attachMedia(ctx context.Context, m *telegram.Message, p *ai.Prompt, endpoint string) error {
	depth, err := b.config.Int(ctx, m.ChatID, "media_context_max_depth")
	if err != nil {
		return err
	}

	photoID, err := b.store.FileFromChain(ctx, m.ChatID, m.MessageID, store.MediaPhoto, depth)
	if err != nil {
		return err
	}

	if photoID != "" {
		if endpoint == "openai" {
			vision, err := b.config.Bool(ctx, m.ChatID, "o_vision")
			if err != nil || !vision {
				return err
			}
		}
		inline, err := b.media.Photo(ctx, photoID)
		if err != nil {
			return err
		}
		prompt.AttachMedia(p, inline, nil)
		return nil
	}

	// Non-photo media rides the Google file service; the OpenAI shape has
	// nowhere to put it.
	if endpoint != "google" {
		return nil
	}

	otherID, err := b.store.FileFromChain(ctx, m.ChatID, m.MessageID, store.MediaOther, depth)
	if err != nil || otherID == "" {
		return err
	}

	key, err := b.keys.Acquire(false)
	if err != nil {
		return err
	}
	file, err := b.media.Other(ctx, otherID, key)
	if err != nil {
		return err
	}
	prompt.AttachMedia(p, nil, file)
	p.PinnedKey = key
	return nil
}

// logGeneration appends the statistics row for a successful generation.
func (b *Bot) logGeneration(ctx context.Context, m *telegram.Message, endpoint string, outcome ai.Outcome) {
	text, ok := outcome.(ai.Text)
	if !ok {
		return
	}

	model := ""
	if k, err := b.knobs(ctx, m.ChatID, endpoint); err == nil {
		model = k.Model
	}

	if err := b.store.CreateGeneration(ctx, &store.Generation{
		ChatID:           m.ChatID,
		UserID:           m.UserID,
		Endpoint:         endpoint,
		Model:            model,
		ContextTokens:    text.Usage.Prompt,
		CompletionTokens: text.Usage.Completion,
		TokensConsumed:   text.Usage.Total,
	}); err != nil {
		slog.Error("failed to log generation", "chat_id", m.ChatID, "error", err)
	}
}

// startTyping keeps the typing indicator alive until the returned stop
// function runs. Stop waits for the keepalive goroutine to acknowledge so
// no indicator fires after the reply.
func (b *Bot) startTyping(ctx context.Context, chatID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		if err := b.tg.Typing(ctx, chatID); err != nil {
			slog.Debug("failed to send typing action", "chat_id", chatID, "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := b.tg.Typing(ctx, chatID); err != nil {
					slog.Debug("failed to send typing action", "chat_id", chatID, "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
