package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect names match the database/sql driver names registered by the
// imported drivers.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
}

// upsertSQL builds an insert that overwrites updateCols when the id already exists.
// MySQL uses ON DUPLICATE KEY UPDATE, the others ON CONFLICT(id) DO UPDATE.
func upsertSQL(d Dialect, table string, cols, updateCols []string) string {
	var b strings.Builder
	writeInsert(&b, table, cols)
	sets := make([]string, 0, len(updateCols))
	if d == MySQL {
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s=VALUES(%s)", c, c))
		}
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
	} else {
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s=excluded.%s", c, c))
		}
		b.WriteString(" ON CONFLICT(id) DO UPDATE SET ")
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// insertIgnoreSQL builds an insert that leaves an existing row untouched.
func insertIgnoreSQL(d Dialect, table string, cols []string) string {
	var b strings.Builder
	writeInsert(&b, table, cols)
	if d == MySQL {
		b.WriteString(" ON DUPLICATE KEY UPDATE id=id")
	} else {
		b.WriteString(" ON CONFLICT(id) DO NOTHING")
	}
	return b.String()
}

func writeInsert(b *strings.Builder, table string, cols []string) {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	fmt.Fprintf(b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), ph)
}
