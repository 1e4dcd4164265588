package store

import (
	"context"
	"database/sql"
	"time"
)

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context, configColumns []ConfigColumn) error

	// Messages
	CreateMessage(ctx context.Context, create *Message) error
	GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessages) ([]*Message, error)
	UpdateMessageText(ctx context.Context, chatID, messageID int64, text string) error
	SetMessageDeleted(ctx context.Context, chatID, messageID int64, deleted bool) (bool, error)
	ResetMessages(ctx context.Context, chatID int64) (int64, error)
	PruneMessages(ctx context.Context, olderThan time.Time, chatID *int64) (*PruneResult, error)

	// Chat configuration
	EnsureChatConfig(ctx context.Context, chatID int64) error
	GetConfigValue(ctx context.Context, chatID int64, column string) (*string, error)
	SetConfigValues(ctx context.Context, chatID int64, assigns []ConfigAssignment) error

	// Blacklist
	AddBlacklistEntity(ctx context.Context, entityID int64) (bool, error)
	RemoveBlacklistEntity(ctx context.Context, entityID int64) (bool, error)
	IsBlacklistedEntity(ctx context.Context, entityID int64) (bool, error)
	ListBlacklistEntities(ctx context.Context) ([]int64, error)

	// Statistics
	CreateGeneration(ctx context.Context, create *Generation) error
	CountGenerationsSince(ctx context.Context, chatID int64, since time.Time) (int, error)
	CountActiveUsers(ctx context.Context, since time.Time) (int, error)
	ListTopUsers(ctx context.Context, since time.Time, limit int) ([]*UserGenerations, error)
	SumTokenUsage(ctx context.Context, since time.Time) (*TokenUsage, error)
	ListTopTokenChats(ctx context.Context, since time.Time, limit int) ([]*ChatTokens, error)
	ListDailyGenerations(ctx context.Context, days int) ([]*DayGenerations, error)

	// RunRawQuery executes an arbitrary statement for the admin /sql command.
	// fetch selects between row-returning and exec semantics.
	RunRawQuery(ctx context.Context, query string, fetch bool) (string, error)
}
