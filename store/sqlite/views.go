package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// =============================================================================
// RENTAL VIEWS
// =============================================================================
// The two views overlap on purpose. View-A trusts rental_meta, View-B trusts
// the transaction columns. Reconciliation compares them row by row.

// viewA: category-driven, meta first, no equipment name.
const viewA = `
	SELECT t.id, t.project_id, t.date, t.kind, t.description, t.amount, t.paid,
	       COALESCE(m.conduce, t.conduce),
	       COALESCE(m.location, t.location),
	       COALESCE(m.hours, t.hours),
	       COALESCE(m.price_per_hour, t.price_per_hour),
	       cl.name, op.name, NULL,
	       COALESCE(m.attachment_path, t.attachment_path)
	FROM transactions t
	LEFT JOIN rental_meta m ON m.transaction_id = t.id
	LEFT JOIN categories cat ON cat.id = t.category_id
	LEFT JOIN entities cl ON cl.id = m.client_id
	LEFT JOIN entities op ON op.id = m.operator_id
	WHERE cat.name = ? AND (? = 0 OR t.project_id = ?)
	ORDER BY t.date, t.rowid
`

// viewB: type-driven, transaction first, equipment name resolved.
const viewB = `
	SELECT t.id, t.project_id, t.date, t.kind, t.description, t.amount, t.paid,
	       COALESCE(t.conduce, m.conduce),
	       COALESCE(t.location, m.location),
	       COALESCE(t.hours, m.hours),
	       COALESCE(t.price_per_hour, m.price_per_hour),
	       cl.name, op.name, eq.name,
	       COALESCE(t.attachment_path, m.attachment_path)
	FROM transactions t
	LEFT JOIN equipment eq ON eq.id = t.equipment_id
	LEFT JOIN entities cl ON cl.id = t.client_id
	LEFT JOIN entities op ON op.id = t.operator_id
	LEFT JOIN rental_meta m ON m.transaction_id = t.id
	WHERE t.kind = ? AND (? = 0 OR t.project_id = ?)
	ORDER BY t.date, t.rowid
`

func (c *conn) RentalViewA(ctx context.Context, filter ledger.ViewFilter) ([]ledger.RentalRow, error) {
	return c.queryRentalRows(ctx, viewA, ledger.CategoryRentals, filter.ProjectID, filter.ProjectID)
}

func (c *conn) RentalViewB(ctx context.Context, filter ledger.ViewFilter) ([]ledger.RentalRow, error) {
	return c.queryRentalRows(ctx, viewB, ledger.KindIncome, filter.ProjectID, filter.ProjectID)
}

func (c *conn) queryRentalRows(ctx context.Context, query string, args ...any) ([]ledger.RentalRow, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query rental view", err)
	}
	defer rows.Close()

	var out []ledger.RentalRow
	for rows.Next() {
		var (
			r                              ledger.RentalRow
			amount, hours, price           decimal.NullDecimal
			paid                           sql.NullBool
			conduce, location, attachment  sql.NullString
			client, operator, equipmentNom sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.ProjectID, &r.Date, &r.Kind, &r.Description, &amount, &paid,
			&conduce, &location, &hours, &price,
			&client, &operator, &equipmentNom, &attachment,
		); err != nil {
			return nil, storeErr("scan rental row", err)
		}

		r.Amount = ptrDecimal(amount)
		r.Hours = ptrDecimal(hours)
		r.PricePerHour = ptrDecimal(price)
		if paid.Valid {
			p := paid.Bool
			r.Paid = &p
		}
		r.Conduce = ptrString(conduce)
		r.Location = ptrString(location)
		r.ClientName = ptrString(client)
		r.OperatorName = ptrString(operator)
		r.EquipmentName = ptrString(equipmentNom)
		r.AttachmentPath = ptrString(attachment)
		out = append(out, r)
	}
	return out, rows.Err()
}

func ptrDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// =============================================================================
// AUDIT QUERIES
// =============================================================================

// RentalsWithoutMeta lists rental transactions that have no rental_meta row.
func (c *conn) RentalsWithoutMeta(ctx context.Context) ([]ledger.TransactionID, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT t.id
		FROM transactions t
		JOIN categories cat ON cat.id = t.category_id
		LEFT JOIN rental_meta m ON m.transaction_id = t.id
		WHERE cat.name = ? AND m.transaction_id IS NULL
		ORDER BY t.rowid
	`, ledger.CategoryRentals)
	if err != nil {
		return nil, storeErr("rentals without meta", err)
	}
	return scanIDs(rows)
}

// MetaWithoutRental lists rental_meta rows whose transaction is missing or
// is not under the rental category.
func (c *conn) MetaWithoutRental(ctx context.Context) ([]ledger.TransactionID, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT m.transaction_id
		FROM rental_meta m
		LEFT JOIN transactions t ON t.id = m.transaction_id
		LEFT JOIN categories cat ON cat.id = t.category_id
		WHERE t.id IS NULL OR cat.name IS NULL OR cat.name <> ?
		ORDER BY m.rowid
	`, ledger.CategoryRentals)
	if err != nil {
		return nil, storeErr("meta without rental", err)
	}
	return scanIDs(rows)
}

// danglingChecks maps a transactions column to the table its ids live in.
var danglingChecks = []struct {
	Column string
	Table  string
}{
	{"project_id", "projects"},
	{"account_id", "accounts"},
	{"category_id", "categories"},
	{"subcategory_id", "subcategories"},
	{"client_id", "entities"},
	{"operator_id", "entities"},
	{"equipment_id", "equipment"},
}

// DanglingReferences lists transaction foreign ids that resolve to no row.
func (c *conn) DanglingReferences(ctx context.Context) ([]ledger.DanglingRef, error) {
	var out []ledger.DanglingRef
	for _, check := range danglingChecks {
		query := fmt.Sprintf(`
			SELECT t.id, t.%[1]s
			FROM transactions t
			LEFT JOIN %[2]s x ON x.id = t.%[1]s
			WHERE t.%[1]s IS NOT NULL AND x.id IS NULL
			ORDER BY t.rowid
		`, check.Column, check.Table)

		rows, err := c.q.QueryContext(ctx, query)
		if err != nil {
			return nil, storeErr("dangling "+check.Column, err)
		}
		for rows.Next() {
			ref := ledger.DanglingRef{Column: check.Column}
			if err := rows.Scan(&ref.TransactionID, &ref.Value); err != nil {
				rows.Close()
				return nil, storeErr("scan dangling", err)
			}
			out = append(out, ref)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, storeErr("dangling "+check.Column, err)
		}
	}
	return out, nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

// RentalHoursSince sums rental hours logged for equipment after the given date.
func (c *conn) RentalHoursSince(ctx context.Context, equipmentID ledger.EquipmentID, since string) (decimal.Decimal, error) {
	return c.sum(ctx, `
		SELECT SUM(COALESCE(m.hours, t.hours))
		FROM transactions t
		JOIN categories cat ON cat.id = t.category_id
		LEFT JOIN rental_meta m ON m.transaction_id = t.id
		WHERE cat.name = ?
		  AND COALESCE(m.equipment_id, t.equipment_id) = ?
		  AND t.date > ?
	`, ledger.CategoryRentals, equipmentID, since)
}

// ClientBilled sums income billed to a client.
func (c *conn) ClientBilled(ctx context.Context, clientID ledger.EntityID) (decimal.Decimal, error) {
	return c.sum(ctx,
		"SELECT SUM(amount) FROM transactions WHERE kind = ? AND client_id = ?",
		ledger.KindIncome, clientID)
}

// ClientPaid sums payments (abonos) received from a client.
func (c *conn) ClientPaid(ctx context.Context, clientID ledger.EntityID) (decimal.Decimal, error) {
	return c.sum(ctx, "SELECT SUM(amount) FROM payments WHERE client_id = ?", clientID)
}

func (c *conn) sum(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, storeErr("sum", err)
	}
	return total.Decimal, nil
}
