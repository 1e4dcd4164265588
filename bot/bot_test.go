package bot

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/prompt"
	"github.com/hrygo/mynah/blacklist"
	"github.com/hrygo/mynah/chatconfig"
	"github.com/hrygo/mynah/internal/profile"
	"github.com/hrygo/mynah/metrics"
	"github.com/hrygo/mynah/store"
	"github.com/hrygo/mynah/telegram"
)

// fakeDriver keeps history and configuration in memory; everything the tests
// never touch panics through the embedded nil Driver.
type fakeDriver struct {
	store.Driver

	mu          sync.Mutex
	rows        map[int64]*store.Message
	generations []*store.Generation

	// config overrides the schema default of a parameter.
	config map[string]string
	// hourlyCount is what CountGenerationsSince reports.
	hourlyCount int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		rows:   make(map[int64]*store.Message),
		config: make(map[string]string),
	}
}

func (d *fakeDriver) EnsureChatConfig(context.Context, int64) error { return nil }

func (d *fakeDriver) GetConfigValue(_ context.Context, _ int64, column string) (*string, error) {
	if v, ok := d.config[column]; ok {
		return &v, nil
	}
	return nil, nil
}

func (d *fakeDriver) CreateMessage(_ context.Context, create *store.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[create.MessageID] = create
	return nil
}

func (d *fakeDriver) GetMessage(_ context.Context, _, messageID int64) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows[messageID], nil
}

func (d *fakeDriver) ListMessages(_ context.Context, find *store.FindMessages) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.Message
	for _, row := range d.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	if find.Limit > 0 && len(out) > find.Limit {
		out = out[len(out)-find.Limit:]
	}
	return out, nil
}

func (d *fakeDriver) CreateGeneration(_ context.Context, create *store.Generation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generations = append(d.generations, create)
	return nil
}

func (d *fakeDriver) CountGenerationsSince(context.Context, int64, time.Time) (int, error) {
	return d.hourlyCount, nil
}

func (d *fakeDriver) IsBlacklistedEntity(context.Context, int64) (bool, error) {
	return false, nil
}

// sentMessage is one recorded outgoing send.
type sentMessage struct {
	ID        int64
	ChatID    int64
	ReplyTo   int64
	Text      string
	ParseMode string
}

// fakeMessenger records sends and deletes instead of talking to the platform.
type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int64
	sent    []sentMessage
	deleted []int64
}

func (f *fakeMessenger) BotID() int64     { return 42 }
func (f *fakeMessenger) Username() string { return "mynah_bot" }

func (f *fakeMessenger) Updates(context.Context) <-chan *telegram.Message {
	ch := make(chan *telegram.Message)
	close(ch)
	return ch
}

func (f *fakeMessenger) Reply(_ context.Context, chatID, replyTo int64, text, parseMode string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := 1000 + f.nextID
	f.sent = append(f.sent, sentMessage{ID: id, ChatID: chatID, ReplyTo: replyTo, Text: text, ParseMode: parseMode})
	return id, nil
}

func (f *fakeMessenger) Send(ctx context.Context, chatID int64, text, parseMode string) (int64, error) {
	return f.Reply(ctx, chatID, 0, text, parseMode)
}

func (f *fakeMessenger) Delete(_ context.Context, _, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) Typing(context.Context, int64) error { return nil }

func (f *fakeMessenger) IsChatAdmin(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func (f *fakeMessenger) EntityTitle(_ context.Context, entityID int64) string { return "" }
func (f *fakeMessenger) PurgeTitleCache()                                     {}

func (f *fakeMessenger) lastSent() *sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return &f.sent[len(f.sent)-1]
}

// fakeBackend counts invocations and replays a fixed outcome.
type fakeBackend struct {
	mu      sync.Mutex
	name    string
	outcome ai.Outcome
	calls   int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) CountTokens(text string) int { return len(text) / 4 }

func (f *fakeBackend) Generate(context.Context, *ai.Prompt) ai.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.outcome
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestBot(t *testing.T, drv *fakeDriver, tg *fakeMessenger, backends map[string]ai.Backend) *Bot {
	t.Helper()

	st := store.New(drv, &profile.Profile{})
	b := New(Options{
		Profile:   &profile.Profile{},
		Store:     st,
		Config:    chatconfig.New(st, chatconfig.NewSealer("42:test-token")),
		Blacklist: blacklist.New(st),
		Assembler: prompt.New("You are a conversational bot in {chat_type} {chat_title}."),
		Metrics:   metrics.New(),
		Backends:  backends,
	}, func() {})
	b.tg = tg
	return b
}

// dmMessage builds an incoming direct message; DMs always trigger generation.
func dmMessage(messageID int64, text string) *telegram.Message {
	return &telegram.Message{
		ChatID:      7,
		ChatType:    "private",
		MessageID:   messageID,
		UserID:      7,
		Username:    "alice_w",
		DisplayName: "Alice W",
		FirstName:   "Alice",
		Text:        text,
		HasText:     true,
	}
}
