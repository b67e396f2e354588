// Package sqlstore implements store.Store on top of database/sql.
//
// Two dialects are supported: SQLite through modernc.org/sqlite (pure Go, no
// CGo, the default for local runs and tests) and PostgreSQL through
// github.com/lib/pq. The dialect decides placeholders, schema and how driver
// errors are classified; statement building is shared.
//
// Each Store method issues exactly one statement. Writes use RETURNING so
// the caller learns which rows were affected without a second round trip.
//
// WHY NO TRANSACTIONS HERE?
// database/sql could open a sql.Tx, but the hosted deployment talks to
// PostgREST, which cannot hold one across requests. The services are written
// against the weaker of the two backends, so both behave the same way when a
// multi-step write fails halfway.
//
// WHY BUILD SQL BY HAND?
// Queries here are tiny: one table, equality filters, an ORDER BY and a
// LIMIT. Table names are checked against the four known tables and column
// names against store.ValidIdent; every value goes through a placeholder
// ($1 for postgres, ? for sqlite), never through string formatting.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slapit/slapit-api/internal/store"
)

// DB wraps a sql.DB connection pool and a dialect.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

var (
	_ store.Store       = (*DB)(nil)
	_ store.Incrementer = (*DB)(nil)
)

// New wraps an open pool and creates the schema if it is missing.
// The pool is owned by the returned DB and closed by Close.
func New(conn *sql.DB, dialect Dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: running migrations: %w", dialect.Name(), err)
	}
	return db, nil
}

// Dialect returns the dialect the store was opened with.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping verifies the pool can reach the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs the dialect's schema statements in order. Every statement is
// CREATE ... IF NOT EXISTS, so running it against an existing database is a
// no-op.
func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range db.dialect.Schema() {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
