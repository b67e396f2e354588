package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Importing the package also registers the "sqlite" driver with
	// database/sql; the Error type is used by Classify.
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/slapit/slapit-api/internal/store"
)

// OpenSQLite opens (or creates) a SQLite database and its schema.
//
// dbPath examples:
//   - "data/slapit.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database, used by tests
//
// An in-memory database lives inside a single connection, so the pool is
// pinned to one connection; otherwise every new connection would see an
// empty database.
func OpenSQLite(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	dsn := dbPath
	if !memory {
		// Pragmas in the DSN apply to every connection the pool opens.
		// Foreign keys are OFF by default in SQLite.
		dsn = "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if memory {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db, err := New(conn, SQLite{})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// SQLite is the dialect for modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

// Schema mirrors the remote tables. Timestamps are stored as fixed-width
// UTC text so that ORDER BY on them is chronological.
func (SQLite) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			auth_id        TEXT PRIMARY KEY,
			username       TEXT NOT NULL,
			avatar_url     TEXT,
			bio            TEXT,
			created_at     TEXT NOT NULL,
			last_login     TEXT,
			community_id   TEXT,
			is_admin       INTEGER NOT NULL DEFAULT 0,
			total_stickers INTEGER NOT NULL DEFAULT 0,
			score          INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_community_id ON profiles(community_id)`,
		`CREATE TABLE IF NOT EXISTS communities (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT,
			admin_id    TEXT NOT NULL REFERENCES profiles(auth_id),
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_communities (
			community_id TEXT NOT NULL REFERENCES communities(id),
			user_id      TEXT NOT NULL REFERENCES profiles(auth_id),
			joined_at    TEXT NOT NULL,
			PRIMARY KEY (community_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_communities_user_id ON user_communities(user_id)`,
		`CREATE TABLE IF NOT EXISTS stickers (
			id           TEXT PRIMARY KEY,
			community_id TEXT NOT NULL REFERENCES communities(id),
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			image_url    TEXT NOT NULL,
			long         REAL NOT NULL,
			lat          REAL NOT NULL,
			auth_id      TEXT NOT NULL REFERENCES profiles(auth_id),
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stickers_auth_id_created_at ON stickers(auth_id, created_at)`,
	}
}

// Classify maps SQLite constraint failures. modernc reports extended result
// codes; the low byte is the primary code, and the message names the kind of
// constraint ("UNIQUE constraint failed: ...").
func (SQLite) Classify(table store.Table, err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}

	msg := se.Error()
	kind := store.Check
	switch {
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		kind = store.Unique
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		kind = store.ForeignKey
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_NOTNULL,
		strings.Contains(msg, "NOT NULL constraint failed"):
		kind = store.NotNull
	}

	return &store.ConstraintError{
		Kind:    kind,
		Table:   table,
		Message: msg,
		Err:     err,
	}
}
