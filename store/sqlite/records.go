package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// =============================================================================
// PAYMENTS (abonos)
// =============================================================================

func (c *conn) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	id, err := c.insert(ctx, `
		INSERT INTO payments (id, client_id, date, amount, comment, applied_invoice)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ledger.IDPtr(p.ID), p.ClientID, p.Date, p.Amount, nullString(p.Comment), p.AppliedInvoice)
	return ledger.PaymentID(id), err
}

// ListPayments returns a client's payments, oldest first.
func (c *conn) ListPayments(ctx context.Context, clientID ledger.EntityID) ([]ledger.Payment, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, client_id, date, amount, comment, applied_invoice
		FROM payments WHERE client_id = ?
		ORDER BY date, id
	`, clientID)
	if err != nil {
		return nil, storeErr("list payments", err)
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		var (
			p                ledger.Payment
			comment, invoice sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Date, &p.Amount, &comment, &invoice); err != nil {
			return nil, storeErr("scan payment", err)
		}
		p.Comment = comment.String
		p.AppliedInvoice = ptrString(invoice)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

const maintenanceInsert = `
	INSERT INTO maintenance
	(id, equipment_id, date, description, kind, value, odometer_hours, odometer_km,
	 notes, next_kind, next_value, next_date)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (c *conn) InsertMaintenance(ctx context.Context, m ledger.Maintenance) (ledger.MaintenanceID, error) {
	id, err := c.insert(ctx, maintenanceInsert,
		ledger.IDPtr(m.ID), m.EquipmentID, m.Date, nullString(m.Description), nullString(m.Kind),
		m.Value, m.OdometerHours, m.OdometerKM, nullString(m.Notes),
		nullString(string(m.NextKind)), m.NextValue, m.NextDate,
	)
	return ledger.MaintenanceID(id), err
}

func (c *conn) ReplaceMaintenance(ctx context.Context, records []ledger.Maintenance) error {
	if _, err := c.Exec(ctx, "DELETE FROM maintenance"); err != nil {
		return err
	}
	for _, m := range records {
		if _, err := c.InsertMaintenance(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// ListMaintenance returns the maintenance history of one equipment, newest first.
func (c *conn) ListMaintenance(ctx context.Context, equipmentID ledger.EquipmentID) ([]ledger.Maintenance, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, equipment_id, date, description, kind, value, odometer_hours, odometer_km,
		       notes, next_kind, next_value, next_date, created_at
		FROM maintenance WHERE equipment_id = ?
		ORDER BY date DESC, id DESC
	`, equipmentID)
	if err != nil {
		return nil, storeErr("list maintenance", err)
	}
	defer rows.Close()

	var out []ledger.Maintenance
	for rows.Next() {
		var (
			m                                 ledger.Maintenance
			description, kind, notes          sql.NullString
			nextKind, nextDate                sql.NullString
			value, odoHours, odoKM, nextValue decimal.NullDecimal
		)
		if err := rows.Scan(
			&m.ID, &m.EquipmentID, &m.Date, &description, &kind, &value, &odoHours, &odoKM,
			&notes, &nextKind, &nextValue, &nextDate, &m.CreatedAt,
		); err != nil {
			return nil, storeErr("scan maintenance", err)
		}
		m.Description = description.String
		m.Kind = kind.String
		m.Notes = notes.String
		m.NextKind = ledger.TriggerKind(nextKind.String)
		m.NextDate = ptrString(nextDate)
		m.Value = value.Decimal
		m.OdometerHours = odoHours.Decimal
		m.OdometerKM = odoKM.Decimal
		m.NextValue = nextValue.Decimal
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (c *conn) SaveReconciliationRun(ctx context.Context, r ledger.ReconciliationRun) error {
	unresolved, err := json.Marshal(r.Unresolved)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reconciliation_runs
		(id, pass, params_json, status, applied, unresolved_json, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			applied = excluded.applied,
			unresolved_json = excluded.unresolved_json,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	var completedAt *string
	if !r.CompletedAt.IsZero() {
		s := r.CompletedAt.Format(time.RFC3339)
		completedAt = &s
	}

	_, err = c.q.ExecContext(ctx, query,
		r.ID, r.Pass, nullString(r.Params), r.Status, r.Applied, string(unresolved),
		nullString(r.Error), r.StartedAt.Format(time.RFC3339), completedAt,
	)
	return storeErr("save reconciliation run", err)
}

// ListReconciliationRuns returns the most recent runs, optionally for one pass.
func (c *conn) ListReconciliationRuns(ctx context.Context, pass string, limit int) ([]ledger.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, pass, params_json, status, applied, unresolved_json, error, started_at, completed_at
		FROM reconciliation_runs
		WHERE (? = '' OR pass = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`, pass, pass, limit)
	if err != nil {
		return nil, storeErr("list reconciliation runs", err)
	}
	defer rows.Close()

	var runs []ledger.ReconciliationRun
	for rows.Next() {
		var (
			r                           ledger.ReconciliationRun
			params, unresolved, errText sql.NullString
			startedAt                   string
			completedAt                 sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Pass, &params, &r.Status, &r.Applied, &unresolved,
			&errText, &startedAt, &completedAt); err != nil {
			return nil, storeErr("scan reconciliation run", err)
		}
		r.Params = params.String
		r.Error = errText.String
		if unresolved.Valid {
			if err := json.Unmarshal([]byte(unresolved.String), &r.Unresolved); err != nil {
				return nil, storeErr("decode reconciliation run", err)
			}
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, storeErr("decode reconciliation run", err)
		}
		if completedAt.Valid {
			if r.CompletedAt, err = time.Parse(time.RFC3339, completedAt.String); err != nil {
				return nil, storeErr("decode reconciliation run", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
