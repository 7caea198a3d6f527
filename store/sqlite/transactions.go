package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `
	t.id, t.project_id, t.account_id, t.category_id, t.subcategory_id, t.kind,
	t.description, t.comment, t.amount, t.date, t.client_id, t.operator_id,
	t.equipment_id, t.conduce, t.location, t.hours, t.price_per_hour, t.paid,
	t.kilometers, t.attachment_path`

// InsertTransaction writes one transaction row.
func (c *conn) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, project_id, account_id, category_id, subcategory_id, kind, description, comment,
		 amount, date, client_id, operator_id, equipment_id, conduce, location, hours,
		 price_per_hour, paid, kilometers, attachment_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.q.ExecContext(ctx, query,
		tx.ID, tx.ProjectID, tx.AccountID, tx.CategoryID, tx.SubcategoryID, tx.Kind,
		tx.Description, nullString(tx.Comment), tx.Amount, tx.Date,
		tx.ClientID, tx.OperatorID, tx.EquipmentID,
		nullString(tx.Conduce), nullString(tx.Location), tx.Hours, tx.PricePerHour,
		tx.Paid, tx.Kilometers, tx.AttachmentPath,
	)
	return storeErr("insert transaction", err)
}

func (c *conn) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	txs, err := c.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions t WHERE t.id = ?", id)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

// ListRentalTransactions returns transactions under the rental category.
func (c *conn) ListRentalTransactions(ctx context.Context, filter ledger.ViewFilter) ([]ledger.Transaction, error) {
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		JOIN categories cat ON cat.id = t.category_id
		WHERE cat.name = ? AND (? = 0 OR t.project_id = ?)
		ORDER BY t.date, t.rowid
	`, ledger.CategoryRentals, filter.ProjectID, filter.ProjectID)
}

// ListUnattributedTransactions returns transactions with no equipment_id.
// A zero projectID lists every project.
func (c *conn) ListUnattributedTransactions(ctx context.Context, projectID ledger.ProjectID) ([]ledger.Transaction, error) {
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.equipment_id IS NULL AND (? = 0 OR t.project_id = ?)
		ORDER BY t.rowid
	`, projectID, projectID)
}

func (c *conn) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query transactions", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                                     ledger.Transaction
		subcategoryID, clientID, operatorID    sql.NullInt64
		equipmentID                            sql.NullInt64
		comment, conduce, location, attachment sql.NullString
		amount, hours, price, km               decimal.NullDecimal
	)

	err := rows.Scan(
		&tx.ID, &tx.ProjectID, &tx.AccountID, &tx.CategoryID, &subcategoryID, &tx.Kind,
		&tx.Description, &comment, &amount, &tx.Date, &clientID, &operatorID,
		&equipmentID, &conduce, &location, &hours, &price, &tx.Paid,
		&km, &attachment,
	)
	if err != nil {
		return tx, storeErr("scan transaction", err)
	}

	tx.SubcategoryID = ptrID[ledger.SubcategoryID](subcategoryID)
	tx.ClientID = ptrID[ledger.EntityID](clientID)
	tx.OperatorID = ptrID[ledger.EntityID](operatorID)
	tx.EquipmentID = ptrID[ledger.EquipmentID](equipmentID)
	tx.Comment = comment.String
	tx.Conduce = conduce.String
	tx.Location = location.String
	tx.AttachmentPath = ptrString(attachment)
	tx.Amount = amount.Decimal
	tx.Hours = hours.Decimal
	tx.PricePerHour = price.Decimal
	tx.Kilometers = km.Decimal
	return tx, nil
}

// UpdateTransactionParties rewrites kind, client_id and operator_id.
func (c *conn) UpdateTransactionParties(ctx context.Context, id ledger.TransactionID, kind ledger.TransactionKind, clientID, operatorID *ledger.EntityID) (int64, error) {
	return c.Exec(ctx,
		"UPDATE transactions SET kind = ?, client_id = ?, operator_id = ? WHERE id = ?",
		kind, clientID, operatorID, id,
	)
}

func (c *conn) RemapOperatorID(ctx context.Context, wrong, correct ledger.EntityID) (int64, error) {
	return c.Exec(ctx, "UPDATE transactions SET operator_id = ? WHERE operator_id = ?", correct, wrong)
}

// SetTransactionEquipment assigns equipment to a transaction that has none.
func (c *conn) SetTransactionEquipment(ctx context.Context, id ledger.TransactionID, equipmentID ledger.EquipmentID) (int64, error) {
	return c.Exec(ctx,
		"UPDATE transactions SET equipment_id = ? WHERE id = ? AND equipment_id IS NULL",
		equipmentID, id,
	)
}

func (c *conn) BackfillAttachmentPaths(ctx context.Context) ([]ledger.TransactionID, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT t.id
		FROM transactions t
		JOIN rental_meta m ON m.transaction_id = t.id
		WHERE t.attachment_path IS NULL AND m.attachment_path IS NOT NULL
		ORDER BY t.rowid
	`)
	if err != nil {
		return nil, storeErr("select attachment backfill", err)
	}
	ids, err := scanIDs(rows)
	if err != nil || len(ids) == 0 {
		return ids, err
	}

	if _, err := c.Exec(ctx, backfillAttachmentSQL); err != nil {
		return nil, err
	}
	return ids, nil
}

// =============================================================================
// RENTAL META
// =============================================================================

func (c *conn) InsertRentalMeta(ctx context.Context, m ledger.RentalMeta) error {
	query := `
		INSERT INTO rental_meta
		(transaction_id, project_id, client_id, operator_id, hours, price_per_hour,
		 conduce, location, attachment_path, equipment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.q.ExecContext(ctx, query,
		m.TransactionID, m.ProjectID, m.ClientID, m.OperatorID, m.Hours, m.PricePerHour,
		nullString(m.Conduce), nullString(m.Location), m.AttachmentPath, m.EquipmentID,
	)
	return storeErr("insert rental meta", err)
}

func (c *conn) GetRentalMeta(ctx context.Context, id ledger.TransactionID) (*ledger.RentalMeta, error) {
	var (
		m                                 ledger.RentalMeta
		clientID, operatorID, equipmentID sql.NullInt64
		hours, price                      decimal.NullDecimal
		conduce, location, attachment     sql.NullString
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT transaction_id, project_id, client_id, operator_id, hours, price_per_hour,
		       conduce, location, attachment_path, equipment_id
		FROM rental_meta WHERE transaction_id = ?
	`, id).Scan(
		&m.TransactionID, &m.ProjectID, &clientID, &operatorID, &hours, &price,
		&conduce, &location, &attachment, &equipmentID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get rental meta", err)
	}

	m.ClientID = ptrID[ledger.EntityID](clientID)
	m.OperatorID = ptrID[ledger.EntityID](operatorID)
	m.EquipmentID = ptrID[ledger.EquipmentID](equipmentID)
	m.Hours = hours.Decimal
	m.PricePerHour = price.Decimal
	m.Conduce = conduce.String
	m.Location = location.String
	m.AttachmentPath = ptrString(attachment)
	return &m, nil
}

func scanIDs(rows *sql.Rows) ([]ledger.TransactionID, error) {
	defer rows.Close()

	var ids []ledger.TransactionID
	for rows.Next() {
		var id ledger.TransactionID
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
