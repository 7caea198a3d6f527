package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
)

// seedLegacyDatabase writes a database as it looked before the column
// migrations: no transactions.attachment_path, no kilometers, no
// payments.applied_invoice.
func seedLegacyDatabase(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(baseSchema)
	require.NoError(t, err)

	stmts := []string{
		`INSERT INTO projects (id, name, main_account_name) VALUES (8, 'Obra', 'Caja')`,
		`INSERT INTO accounts (id, name) VALUES (1, 'Caja')`,
		`INSERT INTO categories (id, name) VALUES (10, 'ALQUILERES')`,
		`INSERT INTO transactions (id, project_id, account_id, category_id, kind, amount, date)
		 VALUES ('t1', 8, 1, 10, 'Income', 100, '2024-03-01'),
		        ('t2', 8, 1, 10, 'Income', 200, '2024-03-02')`,
		`INSERT INTO rental_meta (transaction_id, project_id, attachment_path)
		 VALUES ('t1', 8, 'conduces/t1.pdf'), ('t2', 8, NULL)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestMigrate_AddsColumnsAndBackfillsAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDatabase(t, path)

	store, err := New(path)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	for _, m := range migrations {
		ok, err := store.HasColumn(ctx, m.Table, m.Column)
		require.NoError(t, err)
		assert.True(t, ok, "%s.%s should exist", m.Table, m.Column)
	}

	t1, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, t1.AttachmentPath)
	assert.Equal(t, "conduces/t1.pdf", *t1.AttachmentPath)
	assert.True(t, t1.Kilometers.IsZero())

	t2, err := store.GetTransaction(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, t2.AttachmentPath, "no meta path, nothing to copy")
}

func TestMigrate_ReopenIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDatabase(t, path)

	store, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()
	before, err := store.FetchAll(ctx, "SELECT id, attachment_path, kilometers FROM transactions ORDER BY id")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = New(path)
	require.NoError(t, err)
	defer store.Close()
	after, err := store.FetchAll(ctx, "SELECT id, attachment_path, kilometers FROM transactions ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestMigrate_UnrelatedFailureIsMigrationError(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.applyColumnMigration(context.Background(), columnMigration{
		Table:      "no_such_table",
		Column:     "x",
		Definition: "TEXT",
	})
	require.Error(t, err)

	var migErr *ledger.MigrationError
	require.ErrorAs(t, err, &migErr)
	assert.Equal(t, "no_such_table", migErr.Table)
	assert.True(t, errors.Is(err, ledger.ErrMigration))
}
