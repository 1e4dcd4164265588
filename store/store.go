// Package store provides database access to all persisted objects.
package store

import (
	"context"

	"github.com/hrygo/mynah/internal/profile"
)

// Store provides database access to chat history, per-chat configuration,
// the blacklist, and generation statistics.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

// Migrate creates missing tables and indexes and reconciles the chat_config
// columns with the given schema. Run once at startup before accepting events.
func (s *Store) Migrate(ctx context.Context, configColumns []ConfigColumn) error {
	return s.driver.Migrate(ctx, configColumns)
}
