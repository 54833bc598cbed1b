package dbutil

import (
	"strconv"
	"strings"
)

// Dialect is the SQL flavor behind a *sql.DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind rewrites ? placeholders to $n for postgres.  Queries must not
// contain a literal question mark.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Notifies reports whether the database can push change notifications.
func (d Dialect) Notifies() bool {
	return d == Postgres
}
