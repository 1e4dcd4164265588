package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/mynah/store"
)

func (d *DB) EnsureChatConfig(ctx context.Context, chatID int64) error {
	query := `INSERT INTO chat_config (chat_id) VALUES (?) ON CONFLICT (chat_id) DO NOTHING`
	if _, err := d.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to ensure chat config: %w", err)
	}
	return nil
}

// GetConfigValue returns the column as text. Booleans come back as "1"/"0"
// since SQLite stores them as integers; callers parse both spellings.
func (d *DB) GetConfigValue(ctx context.Context, chatID int64, column string) (*string, error) {
	// Column names come from the static parameter schema, never from users.
	query := fmt.Sprintf(`SELECT CAST(%s AS TEXT) FROM chat_config WHERE chat_id = ?`, quoteIdent(column))

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
		query := fmt.Sprintf(`UPDATE chat_config SET %s = CAST(? AS %s) WHERE chat_id = ?`,
			quoteIdent(a.Column), sqliteType(a.SQLType))
		var value any
		if a.Value != nil {
			// CAST('true' AS INTEGER) yields 0 in SQLite, so boolean
			// canonical text is rewritten to its numeric form first.
			value = sqliteLiteral(a.SQLType, *a.Value)
		}
		if _, err := tx.ExecContext(ctx, query, value, chatID); err != nil {
			return fmt.Errorf("failed to set config value %s: %w", a.Column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit config update: %w", err)
	}
	return nil
}
