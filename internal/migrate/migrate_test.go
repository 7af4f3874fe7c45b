package migrate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun_CreatesTablesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Run(ctx, db, log))
	require.NoError(t, Run(ctx, db, log))

	for _, table := range []string{"clockify_workspaces", "clockify_users", "clockify_projects", "clockify_time_entries"} {
		var n int
		require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table))
		assert.Equal(t, 1, n, table)
	}

	var applied int
	require.NoError(t, db.GetContext(ctx, &applied, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, 1, applied)
}

func TestEveryDriverHasMigrations(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite3"} {
		files, err := filepath.Glob(filepath.Join("sql", driver, "*.sql"))
		require.NoError(t, err)
		assert.NotEmpty(t, files, driver)
	}
}

func TestSplitStatements(t *testing.T) {
	src := `-- comment
CREATE TABLE a (id INT);

CREATE TABLE b (
    id INT
);
CREATE INDEX i ON b (id)`
	got := splitStatements(src)
	require.Len(t, got, 3)
	assert.Equal(t, "CREATE TABLE a (id INT)", got[0])
	assert.Contains(t, got[1], "CREATE TABLE b")
	assert.Equal(t, "CREATE INDEX i ON b (id)", got[2])
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0007_add_index.sql")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = parseVersion("add_index.sql")
	assert.Error(t, err)
}
