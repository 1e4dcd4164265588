package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/mynah/store"
)

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		umid INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		sender_id INTEGER NOT NULL,
		sender_username TEXT,
		sender_name TEXT,
		text TEXT,
		reply_to_message_id INTEGER,
		reply_to_message_trimmed_text TEXT,
		media_file_id TEXT,
		media_type TEXT,
		deleted INTEGER NOT NULL DEFAULT 0,
		UNIQUE (chat_id, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages (chat_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_message ON messages (chat_id, message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_deleted ON messages (chat_id, deleted)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_sender ON messages (chat_id, sender_id)`,
	`CREATE TABLE IF NOT EXISTS chat_config (
		chat_id INTEGER PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS blacklist (
		internal_id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id INTEGER NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS statistics_generations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		endpoint TEXT NOT NULL,
		model TEXT NOT NULL,
		context_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		tokens_consumed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_statistics_generations_ts ON statistics_generations (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_statistics_generations_chat_ts ON statistics_generations (chat_id, timestamp DESC)`,
}

// Migrate creates missing tables and reconciles chat_config columns with the
// declared parameter schema. SQLite cannot retype columns in place, so type
// drift is logged and skipped; adding and dropping columns is supported.
func (d *DB) Migrate(ctx context.Context, configColumns []store.ConfigColumn) error {
	for _, stmt := range createTableStatements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run create statement: %w", err)
		}
	}

	return d.migrateConfigColumns(ctx, configColumns)
}

func (d *DB) migrateConfigColumns(ctx context.Context, configColumns []store.ConfigColumn) error {
	rows, err := d.db.QueryContext(ctx, `PRAGMA table_info(chat_config)`)
	if err != nil {
		return fmt.Errorf("failed to inspect chat_config: %w", err)
	}
	defer rows.Close()

	existing := map[string]string{}
	for rows.Next() {
		var cid int
		var name, declType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		existing[name] = strings.ToLower(declType)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read column info: %w", err)
	}

	declared := map[string]bool{"chat_id": true}
	for _, col := range configColumns {
		declared[col.Name] = true
		declType, ok := existing[col.Name]
		if !ok {
			if err := d.addConfigColumn(ctx, col); err != nil {
				return err
			}
			continue
		}
		if declType != strings.ToLower(sqliteType(col.SQLType)) {
			slog.Warn("chat_config column type drift not supported in SQLite",
				"column", col.Name, "have", declType, "want", sqliteType(col.SQLType))
		}
	}

	// Orphan sweep: columns no longer declared by the schema.
	for name := range existing {
		if declared[name] {
			continue
		}
		slog.Warn("dropping orphan chat_config column", "column", name)
		stmt := fmt.Sprintf(`ALTER TABLE chat_config DROP COLUMN %s`, quoteIdent(name))
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop orphan column %s: %w", name, err)
		}
	}

	return nil
}

func (d *DB) addConfigColumn(ctx context.Context, col store.ConfigColumn) error {
	stmt := fmt.Sprintf(`ALTER TABLE chat_config ADD COLUMN %s %s`, quoteIdent(col.Name), sqliteType(col.SQLType))
	if col.Default != "" {
		stmt += " DEFAULT " + sqliteLiteral(col.SQLType, col.Default)
	}
	slog.Info("adding chat_config column", "column", col.Name, "type", sqliteType(col.SQLType))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to add column %s: %w", col.Name, err)
	}
	return nil
}

// sqliteType maps the declared column types onto SQLite storage classes.
func sqliteType(sqlType string) string {
	switch strings.ToUpper(sqlType) {
	case "BOOLEAN", "BIGINT", "INTEGER":
		return "INTEGER"
	case "DOUBLE PRECISION":
		return "REAL"
	default:
		return "TEXT"
	}
}

// sqliteLiteral rewrites boolean default literals into the 0/1 form SQLite
// stores, keeping stored values and declared defaults comparable.
func sqliteLiteral(sqlType, literal string) string {
	if strings.ToUpper(sqlType) != "BOOLEAN" {
		return literal
	}
	switch strings.ToLower(literal) {
	case "true":
		return "1"
	case "false":
		return "0"
	}
	return literal
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
