package store

import (
	"context"
	"time"
)

// Generation is one append-only statistics row. Rows are never updated or
// deleted.
type Generation struct {
	ID               int64
	Timestamp        time.Time
	ChatID           int64
	UserID           int64
	Endpoint         string
	Model            string
	ContextTokens    int
	CompletionTokens int
	TokensConsumed   int
}

// UserGenerations is the per-user generation count for a window.
type UserGenerations struct {
	UserID int64
	Count  int
}

// ChatTokens is the per-chat token total for a window.
type ChatTokens struct {
	ChatID int64
	Tokens int64
}

// TokenUsage aggregates the token columns over a window. Legacy rows that
// only carry tokens_consumed are attributed 95% to context and 5% to
// completion, matching the statistics migration note.
type TokenUsage struct {
	ContextTokens    int64
	CompletionTokens int64
	TotalTokens      int64
}

// DayGenerations is the generation count of one calendar day.
type DayGenerations struct {
	Day   time.Time
	Count int
}

// CreateGeneration appends a statistics row.
func (s *Store) CreateGeneration(ctx context.Context, create *Generation) error {
	if create.Timestamp.IsZero() {
		create.Timestamp = time.Now()
	}
	if create.TokensConsumed == 0 {
		create.TokensConsumed = create.ContextTokens + create.CompletionTokens
	}
	return s.driver.CreateGeneration(ctx, create)
}

// CountGenerationsSince counts a chat's generations after the given instant.
// The hourly rate limit is implemented on top of this.
func (s *Store) CountGenerationsSince(ctx context.Context, chatID int64, since time.Time) (int, error) {
	return s.driver.CountGenerationsSince(ctx, chatID, since)
}

// CountActiveUsers counts distinct users with at least one generation since
// the given instant.
func (s *Store) CountActiveUsers(ctx context.Context, since time.Time) (int, error) {
	return s.driver.CountActiveUsers(ctx, since)
}

// ListTopUsers returns the most active users of a window.
func (s *Store) ListTopUsers(ctx context.Context, since time.Time, limit int) ([]*UserGenerations, error) {
	return s.driver.ListTopUsers(ctx, since, limit)
}

// SumTokenUsage aggregates token usage over a window.
func (s *Store) SumTokenUsage(ctx context.Context, since time.Time) (*TokenUsage, error) {
	return s.driver.SumTokenUsage(ctx, since)
}

// ListTopTokenChats returns the chats consuming the most tokens in a window.
func (s *Store) ListTopTokenChats(ctx context.Context, since time.Time, limit int) ([]*ChatTokens, error) {
	return s.driver.ListTopTokenChats(ctx, since, limit)
}

// ListDailyGenerations returns per-day generation counts for the last N days,
// oldest first, including empty days.
func (s *Store) ListDailyGenerations(ctx context.Context, days int) ([]*DayGenerations, error) {
	return s.driver.ListDailyGenerations(ctx, days)
}

// RunRawQuery executes an arbitrary statement for the admin /sql command and
// returns a printable result.
func (s *Store) RunRawQuery(ctx context.Context, query string, fetch bool) (string, error) {
	return s.driver.RunRawQuery(ctx, query, fetch)
}
