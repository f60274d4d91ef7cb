package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())

	require.NoError(t, ApplyMigrations(ctx, db))
	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Idempotent
	require.NoError(t, ApplyMigrations(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, len(AllMigrations), n)
}

func hasColumn(t *testing.T, db *sql.DB, table, column string) bool {
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n))
	return n > 0
}

func TestRollbackMigration(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))
	assert.True(t, hasColumn(t, db, "files", "tokenizer"))

	require.NoError(t, RollbackMigration(ctx, db))
	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v.String())
	assert.False(t, hasColumn(t, db, "files", "tokenizer"))

	require.NoError(t, RollbackMigration(ctx, db))
	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Re-applying restores the dropped tables and columns
	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&name))
	assert.True(t, hasColumn(t, db, "files", "tokenizer"))
}

// A 1.1.0 database gains the tokenizer column with an empty default, so
// existing records compare unequal to any configured tokenizer.
func TestApplyMigrations_TokenizerColumnDefaultsEmpty(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, RollbackMigration(ctx, db))

	_, err := db.ExecContext(ctx, `INSERT INTO files (file_path, relative_path, mod_time, size_bytes, file_hash, max_tokens, indexed_at)
		VALUES ('a.go', 'a.go', 1, 1, zeroblob(32), 250, 1)`)
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db))
	var tok string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT tokenizer FROM files WHERE file_path = 'a.go'").Scan(&tok))
	assert.Equal(t, "", tok)
}

func TestRollbackMigration_Empty(t *testing.T) {
	db := openRawDB(t)
	assert.Error(t, RollbackMigration(context.Background(), db))
}
