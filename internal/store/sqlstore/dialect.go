package sqlstore

import (
	"github.com/slapit/slapit-api/internal/store"
)

// Dialect captures what differs between SQL engines.
type Dialect interface {
	// Name is used in error prefixes and logs.
	Name() string
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string
	// Schema returns idempotent DDL statements, executed in order.
	Schema() []string
	// Classify turns a driver constraint error into *store.ConstraintError
	// and returns any other error unchanged.
	Classify(table store.Table, err error) error
}
