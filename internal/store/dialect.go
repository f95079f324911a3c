package store

import "fmt"

// Dialect abstracts the handful of places SQLite and PostgreSQL syntax
// diverge, so the rest of this package can share one SQL implementation
// across both backends.
type Dialect interface {
	// Name identifies the dialect for logging and driver selection.
	Name() string

	// Placeholder returns the positional bind-parameter syntax for the
	// n-th (1-indexed) argument: "?" for SQLite, "$n" for PostgreSQL.
	Placeholder(n int) string

	// UpsertSuffix returns the dialect's "insert or update" clause given
	// the conflict target columns and the columns to overwrite.
	UpsertSuffix(conflictCols, updateCols []string) string

	// CastNumeric wraps a text column expression so range comparisons sort
	// numerically instead of lexicographically ("U64 in
	// SQLite... do not store as INTEGER; CAST(col AS NUMERIC)").
	CastNumeric(expr string) string
}

// sqliteDialect and postgresDialect are the two dialects this node ships.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) UpsertSuffix(conflictCols, updateCols []string) string {
	set := ""
	for i, c := range updateCols {
		if i > 0 {
			set += ", "
		}
		set += fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", join(conflictCols), set)
}

func (sqliteDialect) CastNumeric(expr string) string {
	return fmt.Sprintf("CAST(%s AS NUMERIC)", expr)
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) UpsertSuffix(conflictCols, updateCols []string) string {
	set := ""
	for i, c := range updateCols {
		if i > 0 {
			set += ", "
		}
		set += fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", join(conflictCols), set)
}

func (postgresDialect) CastNumeric(expr string) string {
	return fmt.Sprintf("CAST(%s AS NUMERIC)", expr)
}

// SQLite and Postgres are the package-level singletons the backend
// sub-packages hand to New.
var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
)

func join(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
