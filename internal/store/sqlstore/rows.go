package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/slapit/slapit-api/internal/store"
)

// builder accumulates bind arguments and hands out the dialect's
// placeholders in order.
type builder struct {
	dialect Dialect
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// where renders an Eq as a WHERE clause. A nil value becomes IS NULL since
// "col = NULL" never matches.
func (b *builder) where(e store.Eq) (string, error) {
	if len(e) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(e))
	for _, col := range e.Columns() {
		if !store.ValidIdent(col) {
			return "", fmt.Errorf("invalid column name %q", col)
		}
		if e[col] == nil {
			parts = append(parts, col+" IS NULL")
			continue
		}
		parts = append(parts, col+" = "+b.bind(e[col]))
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func checkTable(t store.Table) error {
	if !store.ValidIdent(string(t)) {
		return fmt.Errorf("invalid table name %q", t)
	}
	return nil
}

// Insert adds one row and returns it as stored.
func (db *DB) Insert(ctx context.Context, table store.Table, row store.Row) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("%s: inserting into %s: empty row", db.dialect.Name(), table)
	}

	b := &builder{dialect: db.dialect}
	cols := row.Columns()
	marks := make([]string, len(cols))
	for i, col := range cols {
		if !store.ValidIdent(col) {
			return nil, fmt.Errorf("%s: inserting into %s: invalid column name %q", db.dialect.Name(), table, col)
		}
		marks[i] = b.bind(row[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	rows, err := db.query(ctx, table, query, b.args)
	if err != nil {
		return nil, fmt.Errorf("%s: inserting into %s: %w", db.dialect.Name(), table, err)
	}
	return rows, nil
}

// Update sets the patch columns on every row matching where and returns the
// affected rows. Zero rows is not an error at this level.
func (db *DB) Update(ctx context.Context, table store.Table, where store.Eq, patch store.Row) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("%s: updating %s: empty patch", db.dialect.Name(), table)
	}

	b := &builder{dialect: db.dialect}
	sets := make([]string, 0, len(patch))
	for _, col := range patch.Columns() {
		if !store.ValidIdent(col) {
			return nil, fmt.Errorf("%s: updating %s: invalid column name %q", db.dialect.Name(), table, col)
		}
		sets = append(sets, col+" = "+b.bind(patch[col]))
	}
	cond, err := b.where(where)
	if err != nil {
		return nil, fmt.Errorf("%s: updating %s: %w", db.dialect.Name(), table, err)
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), cond)

	rows, err := db.query(ctx, table, query, b.args)
	if err != nil {
		return nil, fmt.Errorf("%s: updating %s: %w", db.dialect.Name(), table, err)
	}
	return rows, nil
}

// Increment adds deltas to integer columns in one statement, so concurrent
// increments never overwrite each other.
func (db *DB) Increment(ctx context.Context, table store.Table, where store.Eq, deltas map[string]int64) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(deltas) == 0 {
		return nil, fmt.Errorf("%s: incrementing %s: no columns", db.dialect.Name(), table)
	}

	b := &builder{dialect: db.dialect}
	cols := make(store.Eq, len(deltas))
	for c := range deltas {
		cols[c] = nil
	}
	sets := make([]string, 0, len(deltas))
	for _, col := range cols.Columns() {
		if !store.ValidIdent(col) {
			return nil, fmt.Errorf("%s: incrementing %s: invalid column name %q", db.dialect.Name(), table, col)
		}
		sets = append(sets, fmt.Sprintf("%s = %s + %s", col, col, b.bind(deltas[col])))
	}
	cond, err := b.where(where)
	if err != nil {
		return nil, fmt.Errorf("%s: incrementing %s: %w", db.dialect.Name(), table, err)
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), cond)

	rows, err := db.query(ctx, table, query, b.args)
	if err != nil {
		return nil, fmt.Errorf("%s: incrementing %s: %w", db.dialect.Name(), table, err)
	}
	return rows, nil
}

// Delete removes every row matching where and returns what was removed.
func (db *DB) Delete(ctx context.Context, table store.Table, where store.Eq) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(where) == 0 {
		// An unfiltered delete is never what a caller meant.
		return nil, fmt.Errorf("%s: deleting from %s: refusing delete without predicate", db.dialect.Name(), table)
	}

	b := &builder{dialect: db.dialect}
	cond, err := b.where(where)
	if err != nil {
		return nil, fmt.Errorf("%s: deleting from %s: %w", db.dialect.Name(), table, err)
	}

	query := fmt.Sprintf("DELETE FROM %s%s RETURNING *", table, cond)

	rows, err := db.query(ctx, table, query, b.args)
	if err != nil {
		return nil, fmt.Errorf("%s: deleting from %s: %w", db.dialect.Name(), table, err)
	}
	return rows, nil
}

// Find selects rows. With q.Single at most one row comes back.
func (db *DB) Find(ctx context.Context, table store.Table, q store.Query) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	b := &builder{dialect: db.dialect}
	cond, err := b.where(q.Where)
	if err != nil {
		return nil, fmt.Errorf("%s: finding in %s: %w", db.dialect.Name(), table, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s%s", table, cond)

	if q.OrderBy != "" {
		if !store.ValidIdent(q.OrderBy) {
			return nil, fmt.Errorf("%s: finding in %s: invalid order column %q", db.dialect.Name(), table, q.OrderBy)
		}
		sb.WriteString(" ORDER BY " + q.OrderBy)
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}

	limit := q.Limit
	if q.Single {
		limit = 1
	}
	if limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(limit))
		if q.Offset > 0 {
			sb.WriteString(" OFFSET " + b.bind(q.Offset))
		}
	}

	rows, err := db.query(ctx, table, sb.String(), b.args)
	if err != nil {
		return nil, fmt.Errorf("%s: finding in %s: %w", db.dialect.Name(), table, err)
	}
	return rows, nil
}

// query runs a statement that returns rows and scans every column into a
// store.Row. Driver errors go through the dialect so constraint failures
// come back as *store.ConstraintError.
func (db *DB) query(ctx context.Context, table store.Table, query string, args []any) ([]store.Row, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.dialect.Classify(table, err)
	}
	// sql.Rows holds a pooled connection until closed.
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := make([]store.Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}

	// With RETURNING, constraint failures can surface while iterating.
	if err := rows.Err(); err != nil {
		return nil, db.dialect.Classify(table, err)
	}

	return out, nil
}

// normalize copies driver-owned byte slices into strings. Drivers may reuse
// the backing array after the next Scan, and text columns (uuid in
// PostgreSQL) arrive as []byte.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if ns, ok := v.(sql.NullString); ok {
		if !ns.Valid {
			return nil
		}
		return ns.String
	}
	return v
}
