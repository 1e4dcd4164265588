package store

import "context"

// ConfigColumn declares one chat_config column for the startup migration.
// The chatconfig package derives these from its parameter schema; the store
// never interprets parameter semantics.
type ConfigColumn struct {
	// Name is the column identifier. Callers guarantee it comes from the
	// static schema, never from user input.
	Name string
	// SQLType is the declared column type (TEXT, BIGINT, DOUBLE PRECISION,
	// BOOLEAN). Drivers map it to their own type system.
	SQLType string
	// Default is the SQL literal used both as the column default and as the
	// target when rewriting rows still carrying a drifted old default.
	// Empty means NULL.
	Default string
}

// ConfigAssignment is one column write within a config update.
type ConfigAssignment struct {
	Column  string
	SQLType string
	// Value is the canonical textual form; nil writes NULL.
	Value *string
}

// EnsureChatConfig materialises the per-chat row with schema defaults.
// Safe to call on every read; existing rows are untouched.
func (s *Store) EnsureChatConfig(ctx context.Context, chatID int64) error {
	return s.driver.EnsureChatConfig(ctx, chatID)
}

// GetConfigValue reads one column as text. nil means SQL NULL.
func (s *Store) GetConfigValue(ctx context.Context, chatID int64, column string) (*string, error) {
	return s.driver.GetConfigValue(ctx, chatID, column)
}

// SetConfigValues writes one or more columns atomically.
func (s *Store) SetConfigValues(ctx context.Context, chatID int64, assigns []ConfigAssignment) error {
	return s.driver.SetConfigValues(ctx, chatID, assigns)
}
