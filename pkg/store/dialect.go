package store

import "strconv"

// Dialect identifies the SQL flavor of a backend. Store code writes queries
// with ? placeholders; the dialect rebinds them where needed.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

func dialectForDriver(driver string) Dialect {
	switch driver {
	case "postgres":
		return DialectPostgres
	case "mysql":
		return DialectMySQL
	default:
		return DialectSQLite
	}
}

// Rebind rewrites ? placeholders to the dialect's native form.
// Only postgres needs rewriting; sqlite and mysql take ? natively.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	buf := make([]byte, 0, len(query)+8)
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inString = !inString
		}
		if c == '?' && !inString {
			n++
			buf = append(buf, '$')
			buf = append(buf, strconv.Itoa(n)...)
			continue
		}
		buf = append(buf, c)
	}
	return string(buf)
}
