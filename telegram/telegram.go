// Package telegram wraps the Telegram Bot API behind the narrow surface the
// orchestrator needs: a long-poll update stream, rate-limited sends with
// parse-mode control, media download, chat actions and member role lookups.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/hrygo/mynah/ai/cache"
)

// Parse modes accepted by sendMessage.
const (
	ModeMarkdown = tgbotapi.ModeMarkdown
	ModeHTML     = tgbotapi.ModeHTML
)

const (
	longPollTimeout = 60 // seconds
	titleCacheSize  = 2048
	titleCacheTTL   = 6 * time.Hour
)

// Client is the platform client.
type Client struct {
	bot      *tgbotapi.BotAPI
	client   *http.Client
	limiter  *rate.Limiter
	titles   *cache.LRU[int64, string]
	username string
	botID    int64
}

// New connects to the Bot API. proxyURL optionally routes all platform
// traffic through an HTTP or SOCKS5 proxy.
func New(token, username string, botID int64, proxyURL string) (*Client, error) {
	httpClient, err := NewHTTPClient(proxyURL, 100*time.Second)
	if err != nil {
		return nil, err
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Client{
		bot:    bot,
		client: httpClient,
		// The Bot API allows ~30 messages per second across all chats.
		limiter:  rate.NewLimiter(rate.Limit(25), 5),
		titles:   cache.New[int64, string](titleCacheSize, titleCacheTTL),
		username: strings.TrimPrefix(username, "@"),
		botID:    botID,
	}, nil
}

// NewHTTPClient builds a client honouring an optional proxy URL. SOCKS5 goes
// through x/net/proxy; anything else is treated as an HTTP proxy.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy url: %w", err)
		}
		switch u.Scheme {
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("failed to create socks dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			}
		default:
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// BotID returns the bot's own user id.
func (c *Client) BotID() int64 { return c.botID }

// Username returns the bot's username without the leading @.
func (c *Client) Username() string { return c.username }

// Updates starts the long-poll loop and emits parsed messages. The channel
// closes when the context is cancelled.
func (c *Client) Updates(ctx context.Context) <-chan *Message {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = longPollTimeout
	cfg.AllowedUpdates = []string{"message", "edited_message"}

	raw := c.bot.GetUpdatesChan(cfg)
	out := make(chan *Message)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-raw:
				if !ok {
					return
				}
				var msg *Message
				switch {
				case update.Message != nil:
					msg = c.parseMessage(update.Message, false)
				case update.EditedMessage != nil:
					msg = c.parseMessage(update.EditedMessage, true)
				}
				if msg == nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					c.bot.StopReceivingUpdates()
					return
				}
			}
		}
	}()

	return out
}

// Reply sends text as a reply to another message and returns the new message
// id. parseMode may be empty for plain text.
func (c *Client) Reply(ctx context.Context, chatID, replyTo int64, text, parseMode string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if replyTo != 0 {
		msg.ReplyToMessageID = int(replyTo)
	}

	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return int64(sent.MessageID), nil
}

// Send sends a standalone message.
func (c *Client) Send(ctx context.Context, chatID int64, text, parseMode string) (int64, error) {
	return c.Reply(ctx, chatID, 0, text, parseMode)
}

// Delete removes a message the bot is allowed to delete.
func (c *Client) Delete(ctx context.Context, chatID, messageID int64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID)))
	return err
}

// Typing fires one typing chat action. The orchestrator repeats it on a
// keepalive loop for the duration of a generation.
func (c *Client) Typing(ctx context.Context, chatID int64) error {
	_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// Download fetches a file's bytes by its platform file id.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	fileURL := file.Link(c.bot.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}

	slog.Debug("downloaded media", "file_id", fileID, "size", len(data))
	return data, nil
}

// IsChatAdmin reports whether the user is the chat's creator or an
// administrator. DMs count as admin: the user owns the chat.
func (c *Client) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if chatID == userID {
		return true, nil
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}

// EntityTitle resolves a chat's title (or a user's name for DM ids), cached.
func (c *Client) EntityTitle(ctx context.Context, entityID int64) string {
	if title, ok := c.titles.Get(entityID); ok {
		return title
	}

	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: entityID},
	})
	if err != nil {
		slog.Debug("failed to resolve entity title", "entity_id", entityID, "error", err)
		return fmt.Sprintf("#%d", entityID)
	}

	title := chat.Title
	if title == "" {
		title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	if title == "" {
		title = chat.UserName
	}

	c.titles.Set(entityID, title, 0)
	return title
}

// PurgeTitleCache drops the entity title cache.
func (c *Client) PurgeTitleCache() {
	c.titles.Purge()
}

// IsRejection reports whether an error is the Bot API refusing the request
// body (typically a parse-mode failure), as opposed to a transport error.
func IsRejection(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest
	}
	return false
}
