package rowstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/slapit/slapit-api/internal/store"
)

// TimeLayout is how timestamps are written to the store: fixed-width UTC
// text, so string ordering is chronological on backends without a native
// timestamp type.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Layouts accepted when reading back. PostgREST renders timestamptz with an
// offset, and sqlite's CURRENT_TIMESTAMP has neither T nor zone.
var readLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func encodeStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// encodeClearable stores an empty string as NULL.
func encodeClearable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowReader decodes columns of one row and remembers the first type error,
// so a decoder can read every field and check once at the end. Drivers
// disagree on Go types (sqlite hands back int64 for booleans, lib/pq gives
// time.Time, PostgREST gives strings), so every getter accepts the shapes
// any backend produces.
type rowReader struct {
	row store.Row
	err error
}

func (r *rowReader) fail(col string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("column %s: cannot decode %T as %s", col, v, want)
	}
}

func (r *rowReader) str(col string) string {
	switch v := r.row[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return encodeTime(v)
	case fmt.Stringer:
		return v.String()
	default:
		r.fail(col, v, "string")
		return ""
	}
}

func (r *rowReader) strPtr(col string) *string {
	if r.row[col] == nil {
		return nil
	}
	s := r.str(col)
	return &s
}

func (r *rowReader) i64(col string) int64 {
	switch v := r.row[col].(type) {
	case nil:
		return 0
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	r.fail(col, r.row[col], "integer")
	return 0
}

func (r *rowReader) f64(col string) float64 {
	switch v := r.row[col].(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	r.fail(col, r.row[col], "float")
	return 0
}

func (r *rowReader) boolean(col string) bool {
	switch v := r.row[col].(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	r.fail(col, r.row[col], "bool")
	return false
}

func (r *rowReader) timestamp(col string) time.Time {
	switch v := r.row[col].(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range readLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	r.fail(col, r.row[col], "timestamp")
	return time.Time{}
}

func (r *rowReader) timePtr(col string) *time.Time {
	if r.row[col] == nil {
		return nil
	}
	t := r.timestamp(col)
	return &t
}
