// Package bot is the orchestrator: it owns admission control, the
// generation pipeline, outcome formatting, reply delivery and the command
// surface. It is the only place outcomes become user-visible strings.
package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/keypool"
	"github.com/hrygo/mynah/ai/media"
	"github.com/hrygo/mynah/ai/prompt"
	"github.com/hrygo/mynah/blacklist"
	"github.com/hrygo/mynah/chatconfig"
	"github.com/hrygo/mynah/internal/profile"
	"github.com/hrygo/mynah/metrics"
	"github.com/hrygo/mynah/store"
	"github.com/hrygo/mynah/telegram"
)

// chatConcurrency bounds in-flight generations per chat. Two permits keep a
// follow-up question responsive while the first answer is still generating,
// without letting one chat fan out.
const chatConcurrency = 2

// messenger is the platform surface the orchestrator drives. *telegram.Client
// implements it; tests substitute a recording fake.
type messenger interface {
	BotID() int64
	Username() string
	Updates(ctx context.Context) <-chan *telegram.Message
	Reply(ctx context.Context, chatID, replyTo int64, text, parseMode string) (int64, error)
	Send(ctx context.Context, chatID int64, text, parseMode string) (int64, error)
	Delete(ctx context.Context, chatID, messageID int64) error
	Typing(ctx context.Context, chatID int64) error
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	EntityTitle(ctx context.Context, entityID int64) string
	PurgeTitleCache()
}

// Options carries the injected services.
type Options struct {
	Profile   *profile.Profile
	Store     *store.Store
	Config    *chatconfig.Store
	Blacklist *blacklist.Service
	Keys      *keypool.Pool
	Telegram  *telegram.Client
	Media     *media.Resolver
	Assembler *prompt.Assembler
	Metrics   *metrics.Metrics

	// Backends maps endpoint names to dispatchers. The openai entry is
	// absent when OAI_ENABLED is off.
	Backends map[string]ai.Backend
}

// Bot is the orchestrator.
type Bot struct {
	profile   *profile.Profile
	store     *store.Store
	config    *chatconfig.Store
	blacklist *blacklist.Service
	keys      *keypool.Pool
	tg        messenger
	media     *media.Resolver
	assembler *prompt.Assembler
	metrics   *metrics.Metrics
	backends  map[string]ai.Backend

	started time.Time

	sems sync.Map // chat id -> *semaphore.Weighted

	// pendingSets tracks users mid-way through the DM flow for private
	// parameters.
	pendingSets sync.Map // user id -> *pendingSet

	// feedbackLast throttles /feedback per user.
	feedbackLast sync.Map // user id -> time.Time

	// restart asks main to exit non-zero so the supervisor restarts us.
	restart context.CancelFunc
}

// New creates the orchestrator.
func New(opts Options, restart context.CancelFunc) *Bot {
	return &Bot{
		profile:   opts.Profile,
		store:     opts.Store,
		config:    opts.Config,
		blacklist: opts.Blacklist,
		keys:      opts.Keys,
		tg:        opts.Telegram,
		media:     opts.Media,
		assembler: opts.Assembler,
		metrics:   opts.Metrics,
		backends:  opts.Backends,
		started:   time.Now(),
		restart:   restart,
	}
}

// Run consumes platform updates until the context is cancelled. Each update
// is handled on its own goroutine; ordering within a chat is enforced by
// message persistence happening before the per-chat semaphore, not by the
// handler goroutines themselves.
func (b *Bot) Run(ctx context.Context) error {
	updates := b.tg.Updates(ctx)
	var wg sync.WaitGroup

	for msg := range updates {
		wg.Add(1)
		go func(m *telegram.Message) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic while handling update",
						"chat_id", m.ChatID, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			b.handle(ctx, m)
		}(msg)
	}

	wg.Wait()
	return ctx.Err()
}

// handle routes one update.
func (b *Bot) handle(ctx context.Context, m *telegram.Message) {
	blocked, err := b.blacklist.IsBlocked(ctx, m.ChatID, m.UserID)
	if err != nil {
		slog.Error("failed to check blacklist", "chat_id", m.ChatID, "error", err)
		return
	}
	if blocked {
		b.metrics.CountMessage("blacklisted")
		return
	}

	if m.Edited {
		b.metrics.CountMessage("edit")
		if err := b.store.UpdateMessageText(ctx, m.ChatID, m.MessageID, m.Text); err != nil {
			slog.Error("failed to apply message edit", "chat_id", m.ChatID, "error", err)
		}
		return
	}

	if m.IsDM() {
		if done := b.handlePendingSet(ctx, m); done {
			return
		}
	}

	if done := b.handleFeedbackReply(ctx, m); done {
		return
	}

	if m.Command != "" {
		b.metrics.CountMessage("command")
		b.dispatchCommand(ctx, m)
		return
	}

	b.handleChat(ctx, m)
}

// handleChat is the main message path: filter, persist, decide, generate.
func (b *Bot) handleChat(ctx context.Context, m *telegram.Message) {
	endpoint, err := b.config.Endpoint(ctx, m.ChatID)
	if err != nil {
		slog.Error("failed to read endpoint", "chat_id", m.ChatID, "error", err)
		return
	}
	if _, ok := b.backends[endpoint]; !ok {
		endpoint = "google"
	}

	if !meetsEndpointRequirements(m, endpoint) {
		b.metrics.CountMessage("unsupported")
		return
	}

	// History is the source of truth: every qualifying message lands in
	// the store before any generation decision.
	if err := b.persistIncoming(ctx, m); err != nil {
		slog.Error("failed to persist message", "chat_id", m.ChatID, "error", err)
		return
	}
	b.metrics.CountMessage("stored")

	if !b.shouldGenerate(m) {
		return
	}

	if done, err := b.handleForcedAnswer(ctx, m); done || err != nil {
		if err != nil {
			slog.Error("failed to handle forced answer", "chat_id", m.ChatID, "error", err)
		}
		return
	}

	if refused, err := b.admit(ctx, m, endpoint); refused || err != nil {
		if err != nil {
			slog.Error("admission check failed", "chat_id", m.ChatID, "error", err)
		}
		return
	}

	sem := b.semaphore(m.ChatID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer sem.Release(1)

	b.generateAndReply(ctx, m, endpoint)
}

// semaphore returns the chat's admission semaphore, creating it lazily.
func (b *Bot) semaphore(chatID int64) *semaphore.Weighted {
	if sem, ok := b.sems.Load(chatID); ok {
		return sem.(*semaphore.Weighted)
	}
	sem, _ := b.sems.LoadOrStore(chatID, semaphore.NewWeighted(chatConcurrency))
	return sem.(*semaphore.Weighted)
}

// meetsEndpointRequirements rejects payloads the endpoint cannot consume.
func meetsEndpointRequirements(m *telegram.Message, endpoint string) bool {
	switch endpoint {
	case "google":
		return m.HasText || m.HasPhoto || m.HasVideo || m.HasAudio ||
			m.HasVoice || m.HasDocument || m.HasSticker || m.HasVideoNote
	case "openai":
		return m.HasText || m.HasPhoto
	default:
		slog.Error("unknown endpoint", "endpoint", endpoint)
		return false
	}
}

// shouldGenerate is true when the message replies to the bot, mentions it,
// or arrived in a DM.
func (b *Bot) shouldGenerate(m *telegram.Message) bool {
	if m.ReplyTo != nil && m.ReplyTo.UserID == b.tg.BotID() {
		return true
	}
	if containsMention(m.Text, b.tg.Username()) {
		return true
	}
	return m.IsDM()
}

// persistIncoming appends the platform message to history.
func (b *Bot) persistIncoming(ctx context.Context, m *telegram.Message) error {
	row := &store.Message{
		ChatID:         m.ChatID,
		MessageID:      m.MessageID,
		Timestamp:      m.Timestamp,
		SenderID:       m.UserID,
		SenderUsername: m.Username,
		SenderName:     m.DisplayName,
		Text:           m.Text,
		MediaFileID:    m.MediaFileID,
		MediaType:      store.MediaType(m.MediaKind),
	}
	if m.ReplyTo != nil {
		row.ReplyToMessageID = m.ReplyTo.MessageID
		row.ReplyToTrimmed = store.TruncateReply(m.ReplyTo.Text, 50)
	}
	return b.store.CreateMessage(ctx, row)
}

// persistOurReply appends the bot's own message as an assistant row.
func (b *Bot) persistOurReply(ctx context.Context, m *telegram.Message, messageID int64, text string) error {
	return b.store.CreateMessage(ctx, &store.Message{
		ChatID:           m.ChatID,
		MessageID:        messageID,
		Timestamp:        time.Now(),
		SenderID:         store.SenderBot,
		SenderUsername:   b.tg.Username(),
		SenderName:       b.tg.Username(),
		Text:             text,
		ReplyToMessageID: m.MessageID,
		ReplyToTrimmed:   store.TruncateReply(m.Text, 50),
	})
}
