// Package postgres implements the store driver on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/mynah/internal/profile"
	"github.com/hrygo/mynah/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool sized from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	pgDB.SetMaxOpenConns(profile.PoolMaxConns)
	pgDB.SetMaxIdleConns(profile.PoolMinConns)
	pgDB.SetConnMaxLifetime(30 * time.Minute)

	driver := DB{db: pgDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
