package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tokenstore/adapters/store/migrations"
	"github.com/layer-3/tokenstore/core"
)

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite(context.Background(), "  ")
	require.Error(t, err)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenPostgres(context.Background(), "")
	require.Error(t, err)
}

func TestSQLiteReopenKeepsTokensAndSkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	token := core.NewToken("persisted", "alice")
	require.NoError(t, first.Insert(ctx, token))
	require.NoError(t, first.AppendReference(ctx, "alice", token.ID))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, found, err := second.FindReference(ctx, "alice", "persisted")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, token, got)

	var applied int
	require.NoError(t, second.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestRebind(t *testing.T) {
	t.Parallel()

	query := "SELECT id FROM tokens WHERE owner_id = ? AND value = ? LIMIT ?"
	assert.Equal(t, query, DialectSQLite.Rebind(query))
	assert.Equal(t,
		"SELECT id FROM tokens WHERE owner_id = $1 AND value = $2 LIMIT $3",
		DialectPostgres.Rebind(query),
	)
}

func TestDialectDriverNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sqlite", DialectSQLite.DriverName())
	assert.Equal(t, "postgres", DialectPostgres.DriverName())
	assert.Equal(t, "LIMIT -1", DialectSQLite.unbounded())
	assert.Equal(t, "LIMIT ALL", DialectPostgres.unbounded())
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(errors.New("disk I/O error")))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: tokens.value (2067)")))
}

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id TEXT);\n", ExtractUpMigration(content))
	assert.Equal(t, "SELECT 1;", ExtractUpMigration("SELECT 1;"))
}

func TestEmbeddedMigrationsCoverBothDialects(t *testing.T) {
	t.Parallel()

	for _, dialect := range []Dialect{DialectSQLite, DialectPostgres} {
		content, err := migrations.FS.ReadFile(string(dialect) + "/0001_tokens.sql")
		require.NoError(t, err, dialect)
		assert.Contains(t, string(content), "tokens_value_key", dialect)
	}
}
