// Package store is the row-level contract between the application and the
// remote data store.
//
// Every call is one atomic statement on the remote side and nothing more:
// there is no transaction spanning two calls and no rollback. Services that
// need several writes to stay consistent sequence them explicitly and report
// partial failures (see internal/service).
//
// Two kinds of failure come back from a Store:
//   - *ConstraintError: the store understood the request and refused it
//     (duplicate key, broken foreign key, malformed value). It carries the
//     store's own message.
//   - anything else: transport or server failure, opaque to callers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Table names a table of the remote store.
type Table string

const (
	Communities Table = "communities"
	Memberships Table = "user_communities"
	Profiles    Table = "profiles"
	Stickers    Table = "stickers"
)

// Row is one record, keyed by column name.
type Row map[string]any

// Eq is a conjunction of column = value predicates. A nil value matches
// NULL. An empty Eq matches every row.
type Eq map[string]any

// Columns returns the predicate columns in a stable order, so generated
// statements are deterministic.
func (e Eq) Columns() []string {
	cols := make([]string, 0, len(e))
	for c := range e {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Columns returns the row's columns in a stable order.
func (r Row) Columns() []string {
	return Eq(r).Columns()
}

// Query describes a Find.
type Query struct {
	Where   Eq
	OrderBy string // column; empty means store order
	Desc    bool
	Limit   int // 0 means no limit
	Offset  int
	Single  bool // return at most one row
}

// Store is the Entity Store Adapter. Update and Delete return the rows they
// affected, so callers can tell "nothing matched" from success.
type Store interface {
	Insert(ctx context.Context, table Table, row Row) ([]Row, error)
	Update(ctx context.Context, table Table, where Eq, patch Row) ([]Row, error)
	Delete(ctx context.Context, table Table, where Eq) ([]Row, error)
	Find(ctx context.Context, table Table, q Query) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}

// Incrementer is implemented by stores that can add to integer columns in a
// single statement. Stores without it force callers into read-then-write.
type Incrementer interface {
	Increment(ctx context.Context, table Table, where Eq, deltas map[string]int64) ([]Row, error)
}

// ConstraintKind classifies a ConstraintError.
type ConstraintKind int

const (
	Unique ConstraintKind = iota + 1
	ForeignKey
	Format
	NotNull
	Check
)

func (k ConstraintKind) String() string {
	switch k {
	case Unique:
		return "unique"
	case ForeignKey:
		return "foreign_key"
	case Format:
		return "format"
	case NotNull:
		return "not_null"
	case Check:
		return "check"
	default:
		return "unknown"
	}
}

// ConstraintError is a structured refusal from the store.
type ConstraintError struct {
	Kind    ConstraintKind
	Table   Table
	Message string // the store's own wording
	Err     error  // driver error, if any
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("store: %s violation on %s: %s", e.Kind, e.Table, e.Message)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// AsConstraint extracts a ConstraintError from err's chain.
func AsConstraint(err error) (*ConstraintError, bool) {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsConstraint reports whether err is a constraint violation of the given kind.
func IsConstraint(err error, kind ConstraintKind) bool {
	ce, ok := AsConstraint(err)
	return ok && ce.Kind == kind
}

// ValidIdent reports whether s is safe to splice into a statement as a table
// or column name. Only lowercase letters, digits and underscores are allowed.
func ValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// sqlStates maps PostgreSQL SQLSTATE codes that mean "the store refused the
// row". Both the lib/pq backend and PostgREST (which forwards SQLSTATE in
// its error body) classify through it.
var sqlStates = map[string]ConstraintKind{
	"23505": Unique,     // unique_violation
	"23503": ForeignKey, // foreign_key_violation
	"23502": NotNull,    // not_null_violation
	"23514": Check,      // check_violation
	"22P02": Format,     // invalid_text_representation (bad uuid)
	"22001": Format,     // string_data_right_truncation
	"22007": Format,     // invalid_datetime_format
}

// KindForSQLState returns the constraint kind for a PostgreSQL error code.
func KindForSQLState(code string) (ConstraintKind, bool) {
	k, ok := sqlStates[code]
	return k, ok
}
