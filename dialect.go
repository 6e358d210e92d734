package relate

import (
	"fmt"
	"strings"
)

// Dialect describes how the target database renders placeholders. The
// compiler always builds statements with "?" markers and re-binds them for
// dialects that use indexed placeholders.
type Dialect struct {
	DriverName                string
	IncludeIndexInPlaceholder bool

	// InsertReturning routes inserts through a RETURNING clause to read the
	// generated primary key, for drivers whose results never carry
	// LastInsertId.
	InsertReturning bool
}

var Dialects = &struct {
	MySQL      *Dialect
	PostgreSQL *Dialect
	SQLite3    *Dialect
}{
	MySQL: &Dialect{
		DriverName: "mysql",
	},

	PostgreSQL: &Dialect{
		DriverName:                "pgx",
		IncludeIndexInPlaceholder: true,
		InsertReturning:           true,
	},

	SQLite3: &Dialect{
		DriverName: "sqlite3",
	},
}

// rebind rewrites "?" placeholders into "$1, $2, ..." form. Question marks
// inside single-quoted literals are left untouched.
func rebind(query string) string {
	if !strings.ContainsRune(query, '?') {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// finalize applies the dialect's placeholder style to a compiled statement.
func (d *Dialect) finalize(query string) string {
	if d != nil && d.IncludeIndexInPlaceholder {
		return rebind(query)
	}
	return query
}
