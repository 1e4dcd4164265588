package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/mynah/store"
)

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		umid BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		sender_id BIGINT NOT NULL,
		sender_username TEXT,
		sender_name TEXT,
		text TEXT,
		reply_to_message_id BIGINT,
		reply_to_message_trimmed_text TEXT,
		media_file_id TEXT,
		media_type TEXT,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (chat_id, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages (chat_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_message ON messages (chat_id, message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_deleted ON messages (chat_id, deleted)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_sender ON messages (chat_id, sender_id)`,
	`CREATE TABLE IF NOT EXISTS chat_config (
		chat_id BIGINT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS blacklist (
		internal_id BIGSERIAL PRIMARY KEY,
		entity_id BIGINT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS statistics_generations (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		chat_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
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
// declared parameter schema: add missing columns, realign drifted types and
// defaults (rewriting rows still holding the old default), drop orphans.
func (d *DB) Migrate(ctx context.Context, configColumns []store.ConfigColumn) error {
	for _, stmt := range createTableStatements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run create statement: %w", err)
		}
	}

	return d.migrateConfigColumns(ctx, configColumns)
}

type existingColumn struct {
	dataType      string
	defaultOption string
}

func (d *DB) migrateConfigColumns(ctx context.Context, configColumns []store.ConfigColumn) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT column_name, data_type, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_name = 'chat_config'
	`)
	if err != nil {
		return fmt.Errorf("failed to inspect chat_config: %w", err)
	}
	defer rows.Close()

	existing := map[string]existingColumn{}
	for rows.Next() {
		var name string
		var col existingColumn
		if err := rows.Scan(&name, &col.dataType, &col.defaultOption); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		existing[name] = col
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read column info: %w", err)
	}

	declared := map[string]bool{"chat_id": true}
	for _, col := range configColumns {
		declared[col.Name] = true
		current, ok := existing[col.Name]
		if !ok {
			if err := d.addConfigColumn(ctx, col); err != nil {
				return err
			}
			continue
		}
		if err := d.alignConfigColumn(ctx, col, current); err != nil {
			return err
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
	stmt := fmt.Sprintf(`ALTER TABLE chat_config ADD COLUMN %s %s`, quoteIdent(col.Name), col.SQLType)
	if col.Default != "" {
		stmt += " DEFAULT " + col.Default
	}
	slog.Info("adding chat_config column", "column", col.Name, "type", col.SQLType)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to add column %s: %w", col.Name, err)
	}
	return nil
}

// alignConfigColumn brings an existing column in line with the declaration.
// Rows that still carry the old default are rewritten to the new one so a
// default change applies to chats that never touched the parameter.
func (d *DB) alignConfigColumn(ctx context.Context, col store.ConfigColumn, current existingColumn) error {
	wantType := strings.ToLower(col.SQLType)
	if current.dataType != wantType {
		slog.Info("retyping chat_config column", "column", col.Name, "from", current.dataType, "to", wantType)
		stmt := fmt.Sprintf(`ALTER TABLE chat_config ALTER COLUMN %s TYPE %s USING %s::%s`,
			quoteIdent(col.Name), col.SQLType, quoteIdent(col.Name), col.SQLType)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to retype column %s: %w", col.Name, err)
		}
	}

	oldDefault := normalizeDefault(current.defaultOption)
	newDefault := normalizeDefault(col.Default)
	if oldDefault == newDefault {
		return nil
	}

	slog.Info("updating chat_config column default", "column", col.Name, "from", oldDefault, "to", newDefault)
	var stmt string
	if col.Default == "" {
		stmt = fmt.Sprintf(`ALTER TABLE chat_config ALTER COLUMN %s DROP DEFAULT`, quoteIdent(col.Name))
	} else {
		stmt = fmt.Sprintf(`ALTER TABLE chat_config ALTER COLUMN %s SET DEFAULT %s`, quoteIdent(col.Name), col.Default)
	}
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to change default of %s: %w", col.Name, err)
	}

	if oldDefault != "" && newDefault != "" {
		// Compare in the column's own type: 1.0::text renders as "1", so a
		// text comparison would miss numeric defaults.
		stmt = fmt.Sprintf(`UPDATE chat_config SET %s = %s WHERE %s = CAST($1 AS %s)`,
			quoteIdent(col.Name), col.Default, quoteIdent(col.Name), col.SQLType)
		if _, err := d.db.ExecContext(ctx, stmt, oldDefault); err != nil {
			return fmt.Errorf("failed to rewrite old default of %s: %w", col.Name, err)
		}
	}

	return nil
}

// normalizeDefault strips the cast and quoting noise information_schema adds
// to default expressions ('google'::text -> google) so literals compare.
func normalizeDefault(def string) string {
	if def == "" {
		return ""
	}
	if i := strings.Index(def, "::"); i >= 0 {
		def = def[:i]
	}
	def = strings.Trim(def, "'")
	return strings.ToLower(def)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
