package warehouse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"apodpipe/internal/config"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type dialect struct {
	name        string
	driver      string
	quote       func(string) string
	placeholder func(int) string
	createTable string
}

var sqliteDialect = dialect{
	name:   config.DriverSQLite,
	driver: "sqlite",
	quote: func(ident string) string {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	},
	placeholder: func(int) string { return "?" },
	createTable: `CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    title TEXT,
    url TEXT,
    explanation TEXT,
    media_type TEXT,
    copyright TEXT,
    ingestion_timestamp TEXT,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

var postgresDialect = dialect{
	name:        config.DriverPostgres,
	driver:      "postgres",
	quote:       pq.QuoteIdentifier,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	createTable: `CREATE TABLE IF NOT EXISTS %s (
    id SERIAL PRIMARY KEY,
    date VARCHAR(50) NOT NULL,
    title TEXT,
    url TEXT,
    explanation TEXT,
    media_type VARCHAR(50),
    copyright VARCHAR(255),
    ingestion_timestamp TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case config.DriverSQLite:
		return sqliteDialect, nil
	case config.DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// ValidIdentifier reports whether name is safe to use as a table name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func (d dialect) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}
