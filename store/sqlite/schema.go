package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/rental-ledger/ledger"
)

// Column names below are part of the on-disk contract. Other tools read
// the database file directly.
const baseSchema = `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		main_account_name TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'RD$',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	-- Rental subcategory names mirror equipment names (no foreign key).
	CREATE TABLE IF NOT EXISTS subcategories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subcategories_name
		ON subcategories(name);

	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('Client', 'Operator'))
	);

	CREATE TABLE IF NOT EXISTS equipment (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		maintenance_trigger_kind TEXT NOT NULL DEFAULT 'NONE',
		maintenance_trigger_value REAL NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		project_id INTEGER REFERENCES projects(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		category_id INTEGER NOT NULL REFERENCES categories(id),
		subcategory_id INTEGER REFERENCES subcategories(id),
		kind TEXT NOT NULL CHECK (kind IN ('Income', 'Expense')),
		description TEXT NOT NULL DEFAULT '',
		comment TEXT,
		amount REAL NOT NULL,
		date TEXT NOT NULL,
		client_id INTEGER REFERENCES entities(id),
		operator_id INTEGER REFERENCES entities(id),
		equipment_id INTEGER REFERENCES equipment(id),
		conduce TEXT,
		location TEXT,
		hours REAL,
		price_per_hour REAL,
		paid INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_project_date
		ON transactions(project_id, date);
	CREATE INDEX IF NOT EXISTS idx_transactions_category
		ON transactions(category_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_operator
		ON transactions(operator_id) WHERE operator_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_equipment
		ON transactions(equipment_id) WHERE equipment_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS rental_meta (
		transaction_id TEXT PRIMARY KEY REFERENCES transactions(id),
		project_id INTEGER NOT NULL REFERENCES projects(id),
		client_id INTEGER REFERENCES entities(id),
		operator_id INTEGER REFERENCES entities(id),
		hours REAL,
		price_per_hour REAL,
		conduce TEXT,
		location TEXT,
		attachment_path TEXT,
		equipment_id INTEGER REFERENCES equipment(id)
	);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY,
		client_id INTEGER NOT NULL REFERENCES entities(id),
		date TEXT NOT NULL,
		amount REAL NOT NULL,
		comment TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_client
		ON payments(client_id);

	-- created_at comes from the database clock, local time.
	CREATE TABLE IF NOT EXISTS maintenance (
		id INTEGER PRIMARY KEY,
		equipment_id INTEGER NOT NULL REFERENCES equipment(id),
		date TEXT NOT NULL,
		description TEXT,
		kind TEXT,
		value REAL,
		odometer_hours REAL,
		odometer_km REAL,
		notes TEXT,
		next_kind TEXT,
		next_value REAL,
		next_date TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now', 'localtime'))
	);

	CREATE INDEX IF NOT EXISTS idx_maintenance_equipment_date
		ON maintenance(equipment_id, date);

	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		params_json TEXT,
		status TEXT NOT NULL,
		applied INTEGER NOT NULL DEFAULT 0,
		unresolved_json TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_pass
		ON reconciliation_runs(pass, started_at);
`

// backfillAttachmentSQL copies the meta attachment into transactions that lack one.
const backfillAttachmentSQL = `
	UPDATE transactions
	SET attachment_path = (
		SELECT m.attachment_path FROM rental_meta m
		WHERE m.transaction_id = transactions.id
	)
	WHERE attachment_path IS NULL
	  AND EXISTS (
		SELECT 1 FROM rental_meta m
		WHERE m.transaction_id = transactions.id AND m.attachment_path IS NOT NULL
	  )
`

// columnMigration adds one column when absent, then optionally backfills it.
type columnMigration struct {
	Table      string
	Column     string
	Definition string
	Backfill   string
}

// migrations are forward-only and additive. Append, never reorder.
var migrations = []columnMigration{
	{Table: "transactions", Column: "attachment_path", Definition: "TEXT", Backfill: backfillAttachmentSQL},
	{Table: "transactions", Column: "kilometers", Definition: "REAL NOT NULL DEFAULT 0"},
	{Table: "payments", Column: "applied_invoice", Definition: "TEXT"},
}

// migrate creates the base schema and applies column migrations.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return &ledger.MigrationError{Table: "*", Column: "*", Err: err}
	}

	for _, m := range migrations {
		applied, err := s.applyColumnMigration(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			s.log.Info().Str("table", m.Table).Str("column", m.Column).Msg("column migration applied")
		}
	}
	return nil
}

func (s *Store) applyColumnMigration(ctx context.Context, m columnMigration) (bool, error) {
	fail := func(err error) (bool, error) {
		return false, &ledger.MigrationError{Table: m.Table, Column: m.Column, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback()

	exists, err := columnExists(ctx, tx, m.Table, m.Column)
	if err != nil {
		return fail(err)
	}
	if exists {
		return false, nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Definition)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fail(err)
	}
	if m.Backfill != "" {
		if _, err := tx.ExecContext(ctx, m.Backfill); err != nil {
			return fail(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return true, nil
}

// columnExists probes the catalog for table.column.
func columnExists(ctx context.Context, q queryer, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?",
		table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasColumn reports whether table has column.
func (s *Store) HasColumn(ctx context.Context, table, column string) (bool, error) {
	ok, err := columnExists(ctx, s.db, table, column)
	if err != nil {
		return false, storeErr("probe column", err)
	}
	return ok, nil
}
