package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/mynah/store"
)

func (d *DB) EnsureChatConfig(ctx context.Context, chatID int64) error {
	query := `INSERT INTO chat_config (chat_id) VALUES ($1) ON CONFLICT (chat_id) DO NOTHING`
	if _, err := d.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to ensure chat config: %w", err)
	}
	return nil
}

func (d *DB) GetConfigValue(ctx context.Context, chatID int64, column string) (*string, error) {
	// Column names come from the static parameter schema, never from users.
	query := fmt.Sprintf(`SELECT %s::text FROM chat_config WHERE chat_id = $1`, quoteIdent(column))

	var value sql.NullString
	err := d.db.QueryRowContext(ctx, query, chatID).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get config value %s: %w", column, err)
	}
	if !value.Valid {
		return nil, nil
	}
	return &value.String, nil
}

func (d *DB) SetConfigValues(ctx context.Context, chatID int64, assigns []store.ConfigAssignment) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin config update: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assigns {
		query := fmt.Sprintf(`UPDATE chat_config SET %s = CAST($2 AS %s) WHERE chat_id = $1`,
			quoteIdent(a.Column), a.SQLType)
		var value any
		if a.Value != nil {
			value = *a.Value
		}
		if _, err := tx.ExecContext(ctx, query, chatID, value); err != nil {
			return fmt.Errorf("failed to set config value %s: %w", a.Column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit config update: %w", err)
	}
	return nil
}
