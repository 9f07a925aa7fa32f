package sql

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/relay/pkg/errors"
)

// Dialect captures the syntax differences between supported databases
type Dialect struct {
	// Name is the configuration name of the dialect
	Name string
	// Driver is the database/sql driver name
	Driver string

	quoteOpen, quoteClose string
	placeholder           func(n int) string
	fetchClause           bool
}

var dialects = map[string]Dialect{
	"postgres": {
		Name: "postgres", Driver: "pgx",
		quoteOpen: `"`, quoteClose: `"`,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	},
	"mysql": {
		Name: "mysql", Driver: "mysql",
		quoteOpen: "`", quoteClose: "`",
		placeholder: func(int) string { return "?" },
	},
	"sqlserver": {
		Name: "sqlserver", Driver: "sqlserver",
		quoteOpen: "[", quoteClose: "]",
		placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		fetchClause: true,
	},
	"snowflake": {
		Name: "snowflake", Driver: "snowflake",
		quoteOpen: `"`, quoteClose: `"`,
		placeholder: func(int) string { return "?" },
	},
}

// LookupDialect resolves a dialect by name. "postgresql" and "mssql" are
// accepted aliases.
func LookupDialect(name string) (Dialect, error) {
	switch n := strings.ToLower(name); n {
	case "postgresql", "pgx":
		name = "postgres"
	case "mssql":
		name = "sqlserver"
	default:
		name = n
	}
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, errors.Newf(errors.ErrorTypeConfig, "sql adapter: unsupported dialect %q", name)
	}
	return d, nil
}

// Quote quotes a possibly schema-qualified identifier
func (d Dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, d.quoteClose, d.quoteClose+d.quoteClose)
		parts[i] = d.quoteOpen + p + d.quoteClose
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the bind marker for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

// Paginate appends the row window to a query
func (d Dialect) Paginate(query string, hasOrder bool, limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return query
	}
	if d.fetchClause {
		if !hasOrder {
			query += " ORDER BY (SELECT NULL)"
		}
		query += fmt.Sprintf(" OFFSET %d ROWS", offset)
		if limit > 0 {
			query += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
		}
		return query
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	} else if d.Name == "mysql" {
		// MySQL has no OFFSET without LIMIT
		query += " LIMIT 18446744073709551615"
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}
	return query
}
