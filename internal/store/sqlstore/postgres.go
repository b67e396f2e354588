package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/slapit/slapit-api/internal/store"
)

// OpenPostgres connects to PostgreSQL (lib/pq) and creates the schema.
func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db, err := New(conn, Postgres{})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Postgres is the dialect for github.com/lib/pq. The schema matches what
// the hosted Supabase project exposes through PostgREST, so the same
// database can be reached either way.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			auth_id        UUID PRIMARY KEY,
			username       TEXT NOT NULL,
			avatar_url     TEXT,
			bio            TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_login     TIMESTAMPTZ,
			community_id   UUID,
			is_admin       BOOLEAN NOT NULL DEFAULT false,
			total_stickers BIGINT NOT NULL DEFAULT 0,
			score          BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_community_id ON profiles(community_id)`,
		`CREATE TABLE IF NOT EXISTS communities (
			id          UUID PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT,
			admin_id    UUID NOT NULL REFERENCES profiles(auth_id),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS user_communities (
			community_id UUID NOT NULL REFERENCES communities(id),
			user_id      UUID NOT NULL REFERENCES profiles(auth_id),
			joined_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (community_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_communities_user_id ON user_communities(user_id)`,
		`CREATE TABLE IF NOT EXISTS stickers (
			id           UUID PRIMARY KEY,
			community_id UUID NOT NULL REFERENCES communities(id),
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			image_url    TEXT NOT NULL,
			long         DOUBLE PRECISION NOT NULL,
			lat          DOUBLE PRECISION NOT NULL,
			auth_id      UUID NOT NULL REFERENCES profiles(auth_id),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stickers_auth_id_created_at ON stickers(auth_id, created_at DESC)`,
	}
}

func (Postgres) Classify(table store.Table, err error) error {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return err
	}
	kind, ok := store.KindForSQLState(string(pe.Code))
	if !ok {
		return err
	}

	msg := pe.Message
	if pe.Detail != "" {
		msg += ": " + pe.Detail
	}
	return &store.ConstraintError{
		Kind:    kind,
		Table:   table,
		Message: msg,
		Err:     err,
	}
}
