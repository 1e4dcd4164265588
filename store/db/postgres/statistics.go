package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/mynah/store"
)

func (d *DB) CreateGeneration(ctx context.Context, create *store.Generation) error {
	query := `
		INSERT INTO statistics_generations (
			timestamp, chat_id, user_id, endpoint, model,
			context_tokens, completion_tokens, tokens_consumed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := d.db.ExecContext(ctx, query,
		create.Timestamp,
		create.ChatID,
		create.UserID,
		create.Endpoint,
		create.Model,
		create.ContextTokens,
		create.CompletionTokens,
		create.TokensConsumed,
	)
	if err != nil {
		return fmt.Errorf("failed to create generation record: %w", err)
	}
	return nil
}

func (d *DB) CountGenerationsSince(ctx context.Context, chatID int64, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM statistics_generations WHERE chat_id = $1 AND timestamp >= $2`
	var count int
	if err := d.db.QueryRowContext(ctx, query, chatID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count generations: %w", err)
	}
	return count, nil
}

func (d *DB) CountActiveUsers(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT user_id) FROM statistics_generations WHERE timestamp >= $1 AND user_id > 0`
	var count int
	if err := d.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

func (d *DB) ListTopUsers(ctx context.Context, since time.Time, limit int) ([]*store.UserGenerations, error) {
	query := `
		SELECT user_id, COUNT(*) AS generations
		FROM statistics_generations
		WHERE timestamp >= $1 AND user_id > 0
		GROUP BY user_id
		ORDER BY generations DESC
		LIMIT $2
	`
	rows, err := d.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top users: %w", err)
	}
	defer rows.Close()

	var list []*store.UserGenerations
	for rows.Next() {
		var u store.UserGenerations
		if err := rows.Scan(&u.UserID, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top user: %w", err)
		}
		list = append(list, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top users: %w", err)
	}
	return list, nil
}

// SumTokenUsage aggregates token columns. Rows predating the two-column form
// carry only tokens_consumed and are split 95/5 between context and
// completion.
func (d *DB) SumTokenUsage(ctx context.Context, since time.Time) (*store.TokenUsage, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN context_tokens = 0 AND completion_tokens = 0
				THEN CAST(tokens_consumed * 0.95 AS BIGINT) ELSE context_tokens END), 0),
			COALESCE(SUM(CASE WHEN context_tokens = 0 AND completion_tokens = 0
				THEN CAST(tokens_consumed * 0.05 AS BIGINT) ELSE completion_tokens END), 0),
			COALESCE(SUM(tokens_consumed), 0)
		FROM statistics_generations
		WHERE timestamp >= $1
	`
	var usage store.TokenUsage
	err := d.db.QueryRowContext(ctx, query, since).
		Scan(&usage.ContextTokens, &usage.CompletionTokens, &usage.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to sum token usage: %w", err)
	}
	return &usage, nil
}

func (d *DB) ListTopTokenChats(ctx context.Context, since time.Time, limit int) ([]*store.ChatTokens, error) {
	query := `
		SELECT chat_id, SUM(tokens_consumed) AS tokens
		FROM statistics_generations
		WHERE timestamp >= $1
		GROUP BY chat_id
		ORDER BY tokens DESC
		LIMIT $2
	`
	rows, err := d.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top token chats: %w", err)
	}
	defer rows.Close()

	var list []*store.ChatTokens
	for rows.Next() {
		var c store.ChatTokens
		if err := rows.Scan(&c.ChatID, &c.Tokens); err != nil {
			return nil, fmt.Errorf("failed to scan top token chat: %w", err)
		}
		list = append(list, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top token chats: %w", err)
	}
	return list, nil
}

func (d *DB) ListDailyGenerations(ctx context.Context, days int) ([]*store.DayGenerations, error) {
	since := time.Now().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	query := `
		SELECT date_trunc('day', timestamp) AS day, COUNT(*)
		FROM statistics_generations
		WHERE timestamp >= $1
		GROUP BY day
	`
	rows, err := d.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily generations: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var day time.Time
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily generations: %w", err)
		}
		counts[day.Format("2006-01-02")] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read daily generations: %w", err)
	}

	return fillDays(since, days, counts), nil
}

// fillDays expands the sparse day counts into a dense slice, oldest first.
func fillDays(since time.Time, days int, counts map[string]int) []*store.DayGenerations {
	list := make([]*store.DayGenerations, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i)
		list = append(list, &store.DayGenerations{
			Day:   day,
			Count: counts[day.Format("2006-01-02")],
		})
	}
	return list
}
