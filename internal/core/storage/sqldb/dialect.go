// Package sqldb implements row sources and sinks over database/sql. The
// postgres, sqlite and mysql backends supply a Dialect and register the
// resulting factories with the storage package.
package sqldb

import (
	"strconv"
	"strings"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name        string             // backend kind, used in errors and logs
	Driver      string             // database/sql driver name
	Placeholder func(n int) string // n is 1-based
	QuoteIdent  func(name string) string
	ColumnType  func(k row.Kind) string
}

// Quote quotes a possibly schema-qualified identifier part by part.
func (d Dialect) Quote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// Dollar renders postgres-style placeholders: $1, $2, ...
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders ? placeholders.
func Question(int) string { return "?" }

// QuoteDouble quotes an identifier with ANSI double quotes.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteBacktick quotes an identifier with MySQL backticks.
func QuoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
