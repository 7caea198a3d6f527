/*
Package reconcile detects and repairs drift between the two sources of truth
of a rental: the Transaction columns and the RentalMeta row.

PURPOSE:
  Composable passes over the store. Each pass reads a snapshot, applies its
  writes inside one store transaction, and returns a Report. A pass that
  cannot resolve some rows lists them in Report.Unresolved; it never guesses
  a missing value.

PASSES:
  compare                    View-A vs View-B, read only
  repair_from_meta           Transaction kind/client/operator <- RentalMeta
  backfill_attachment_paths  Transaction.attachment_path <- RentalMeta (idempotent)
  remap_operator_id          operator_id wrong -> correct, one statement
  rename_subcategory         global rename of one subcategory
  seed_initial_maintenance   replaces the maintenance table
  audit_duality              rentals without meta, meta without rental
  audit_amounts              amount != round(hours × rate, 2) without override
  find_dangling_references   foreign ids that resolve to nothing

AUDIT TRAIL:
  Every pass, successful or not, is recorded in reconciliation_runs after
  its own transaction finishes. A failure to record is logged and does not
  undo the pass.

CANCELLATION:
  A cancelled context stops a pass before its transaction starts; a pass
  cancelled mid-transaction rolls back.

SEE ALSO:
  - report.go: Report type and Compare
  - attribution/attribution.go: Equipment attribution passes
*/
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// Pass names, as recorded in reconciliation_runs.
const (
	PassCompare             = "compare"
	PassRepairFromMeta      = "repair_from_meta"
	PassBackfillAttachments = "backfill_attachment_paths"
	PassRemapOperator       = "remap_operator_id"
	PassRenameSubcategory   = "rename_subcategory"
	PassSeedMaintenance     = "seed_initial_maintenance"
	PassAuditDuality        = "audit_duality"
	PassAuditAmounts        = "audit_amounts"
	PassDanglingReferences  = "find_dangling_references"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store ledger.Store
	log   zerolog.Logger
	now   func() time.Time
}

type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store ledger.Store, opts ...Option) *Engine {
	e := &Engine{store: store, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Track runs one pass and records it in reconciliation_runs.
func (e *Engine) Track(ctx context.Context, pass string, params any, fn func() (*Report, error)) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := ledger.ReconciliationRun{
		ID:        uuid.NewString(),
		Pass:      pass,
		Status:    ledger.RunCompleted,
		StartedAt: e.now(),
	}
	if params != nil {
		if raw, err := json.Marshal(params); err == nil {
			run.Params = string(raw)
		}
	}

	rep, err := fn()
	run.CompletedAt = e.now()

	switch {
	case err != nil:
		run.Status = ledger.RunFailed
		run.Error = err.Error()
	case len(rep.Unresolved) > 0:
		run.Status = ledger.RunIncomplete
	}
	if rep != nil {
		run.Applied = rep.appliedCount()
		run.Unresolved = rep.Unresolved
	}

	saveCtx := context.WithoutCancel(ctx)
	if saveErr := e.store.WithTx(saveCtx, func(tx ledger.Tx) error {
		return tx.SaveReconciliationRun(saveCtx, run)
	}); saveErr != nil {
		e.log.Error().Err(saveErr).Str("pass", pass).Msg("failed to record reconciliation run")
	}

	if err != nil {
		e.log.Error().Err(err).Str("pass", pass).Msg("reconciliation pass failed")
		return nil, err
	}
	e.log.Info().
		Str("pass", pass).
		Int("applied", run.Applied).
		Int("unresolved", len(rep.Unresolved)).
		Int("diffs", len(rep.Diffs)).
		Int("findings", len(rep.Findings)).
		Msg("reconciliation pass completed")
	return rep, nil
}

func (r *Report) appliedCount() int {
	if r.Affected > 0 {
		return int(r.Affected)
	}
	return len(r.Applied)
}

// =============================================================================
// COMPARE + REPAIR
// =============================================================================

// Compare reads both rental views from one snapshot and compares them.
func (e *Engine) Compare(ctx context.Context, filter ledger.ViewFilter) (*Report, error) {
	return e.Track(ctx, PassCompare, filter, func() (*Report, error) {
		var a, b []ledger.RentalRow
		err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
			var err error
			if a, err = tx.RentalViewA(ctx, filter); err != nil {
				return err
			}
			b, err = tx.RentalViewB(ctx, filter)
			return err
		})
		if err != nil {
			return nil, err
		}
		return Compare(a, b), nil
	})
}

// RepairFromMeta rewrites kind, client_id and operator_id of every id that
// is only in View-A or has a diff, taking the values from RentalMeta. Ids
// without a meta row are left untouched and reported as unresolved.
func (e *Engine) RepairFromMeta(ctx context.Context, from *Report) (*Report, error) {
	if from == nil {
		return nil, &ledger.ValidationError{Field: "report", Reason: "a comparison report is required"}
	}
	targets := from.RepairTargets()

	return e.Track(ctx, PassRepairFromMeta, map[string]int{"targets": len(targets)}, func() (*Report, error) {
		rep := from.derive(PassRepairFromMeta)
		err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
			for _, id := range targets {
				meta, err := tx.GetRentalMeta(ctx, id)
				if err != nil {
					return err
				}
				if meta == nil {
					rep.Unresolved = append(rep.Unresolved, id)
					rep.ProposedFixes = append(rep.ProposedFixes, Fix{
						ID:     id,
						Action: ActionNeedsRentalMeta,
						Detail: "no rental_meta row; client and operator unknown",
					})
					continue
				}
				n, err := tx.UpdateTransactionParties(ctx, id, ledger.KindIncome, meta.ClientID, meta.OperatorID)
				if err != nil {
					return err
				}
				if n == 0 {
					rep.Unresolved = append(rep.Unresolved, id)
					continue
				}
				rep.Applied = append(rep.Applied, Fix{
					ID:     id,
					Action: ActionPartiesFromMeta,
					Detail: fmt.Sprintf("client_id=%s operator_id=%s", idText(meta.ClientID), idText(meta.OperatorID)),
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return rep, nil
	})
}

func idText[T ~int64](id *T) string {
	if id == nil {
		return "NULL"
	}
	return fmt.Sprint(int64(*id))
}

// =============================================================================
// BULK REPAIRS
// =============================================================================

// BackfillAttachmentPaths copies RentalMeta.attachment_path into every
// transaction whose attachment_path is null. Running it twice is a no-op.
func (e *Engine) BackfillAttachmentPaths(ctx context.Context) (*Report, error) {
	return e.Track(ctx, PassBackfillAttachments, nil, func() (*Report, error) {
		rep := &Report{Pass: PassBackfillAttachments}
		err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
			ids, err := tx.BackfillAttachmentPaths(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				rep.Applied = append(rep.Applied, Fix{ID: id, Action: ActionBackfillAttach})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return rep, nil
	})
}

// RemapOperatorID moves every transaction from operator wrong to operator
// correct in one statement and returns the number of rows changed.
func (e *Engine) RemapOperatorID(ctx context.Context, wrong, correct ledger.EntityID) (int64, error) {
	if wrong <= 0 || correct <= 0 {
		return 0, &ledger.ValidationError{Field: "operator_id", Reason: "ids must be positive"}
	}
	if wrong == correct {
		return 0, &ledger.ValidationError{Field: "operator_id", Reason: "wrong and correct ids are equal"}
	}

	params := map[string]int64{"wrong_id": int64(wrong), "correct_id": int64(correct)}
	rep, err := e.Track(ctx, PassRemapOperator, params, func() (*Report, error) {
		rep := &Report{Pass: PassRemapOperator}
		err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
			target, err := tx.GetEntity(ctx, correct)
			if err != nil {
				return err
			}
			if target == nil || target.Kind != ledger.EntityOperator {
				return &ledger.MissingReferenceError{Kind: "operator", Key: fmt.Sprint(correct)}
			}
			rep.Affected, err = tx.RemapOperatorID(ctx, wrong, correct)
			return err
		})
		if err != nil {
			return nil, err
		}
		rep.Applied = append(rep.Applied, Fix{
			Action: ActionRemapOperator,
			Detail: fmt.Sprintf("operator_id %d -> %d on %d rows", wrong, correct, rep.Affected),
		})
		return rep, nil
	})
	if err != nil {
		return 0, err
	}
	return rep.Affected, nil
}

// RenameSubcategory renames one subcategory. Every transaction referencing
// it follows. The new name should match an equipment name; a mismatch is
// reported as a proposed fix, not refused.
func (e *Engine) RenameSubcategory(ctx context.Context, id ledger.SubcategoryID, newName string) (*Report, error) {
	if newName == "" {
		return nil, &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	params := map[string]any{"subcategory_id": id, "name": newName}
	return e.Track(ctx, PassRenameSubcategory, params, func() (*Report, error) {
		rep := &Report{Pass: PassRenameSubcategory}
		err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
			sub, err := tx.GetSubcategory(ctx, id)
			if err != nil {
				return err
			}
			if sub == nil {
				return &ledger.MissingReferenceError{Kind: "subcategory", Key: fmt.Sprint(id)}
			}

			equipment, err := tx.ListEquipment(ctx, false)
			if err != nil {
				return err
			}
			if !hasEquipmentNamed(equipment, newName) {
				rep.ProposedFixes = append(rep.ProposedFixes, Fix{
					Action: ActionRenameSubcat,
					Detail: fmt.Sprintf("no equipment named %q", newName),
				})
			}

			if _, err := tx.RenameSubcategory(ctx, id, newName); err != nil {
				return err
			}
			rep.Applied = append(rep.Applied, Fix{
				Action: ActionRenameSubcat,
				Detail: fmt.Sprintf("%d: %q -> %q", id, sub.Name, newName),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
		return rep, nil
	})
}

func hasEquipmentNamed(list []ledger.Equipment, name string) bool {
	for _, eq := range list {
		if eq.Name == name {
			return true
		}
	}
	return false
}

// SeedInitialMaintenance replaces the maintenance table with one initial
// record per equipment carrying its odometer hours and the default next
// trigger. Unknown equipment ids abort the whole pass.
func (e *Engine) SeedInitialMaintenance(ctx context.Context, hours map[ledger.EquipmentID]decimal.Decimal, date string) (*Report, error) {
	if date == "" {
		date = e.now().Format("2006-01-02")
	}
	ids := make([]ledger.EquipmentID, 0, len(hours))
	for id := range hours {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	params := map[string]any{"equipment": len(ids), "date": date}
	return e.Track(ctx, PassSeedMaintenance, params, func() (*Report, error) {
		rep := &Report{Pass: PassSeedMaintenance}
		err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
			records := make([]ledger.Maintenance, 0, len(ids))
			for _, id := range ids {
				eq, err := tx.GetEquipment(ctx, id)
				if err != nil {
					return err
				}
				if eq == nil {
					return &ledger.MissingReferenceError{Kind: "equipment", Key: fmt.Sprint(id)}
				}
				if hours[id].IsNegative() {
					return &ledger.ValidationError{Field: "hours", Reason: fmt.Sprintf("negative for equipment %d", id)}
				}
				records = append(records, ledger.Maintenance{
					EquipmentID:   id,
					Date:          date,
					Description:   "Mantenimiento inicial",
					Kind:          "INICIAL",
					OdometerHours: hours[id],
					NextKind:      ledger.DefaultNextTriggerKind,
					NextValue:     ledger.DefaultNextTriggerValue,
				})
				rep.Applied = append(rep.Applied, Fix{
					Action: ActionSeedMaintenance,
					Detail: fmt.Sprintf("%s: %s h", eq.Name, hours[id].String()),
				})
			}
			return tx.ReplaceMaintenance(ctx, records)
		})
		if err != nil {
			return nil, err
		}
		return rep, nil
	})
}

// =============================================================================
// AUDITS (report only)
// =============================================================================

// AuditDuality lists rentals without a meta row and meta rows without a rental.
func (e *Engine) AuditDuality(ctx context.Context) (*Report, error) {
	return e.Track(ctx, PassAuditDuality, nil, func() (*Report, error) {
		missing, err := e.store.RentalsWithoutMeta(ctx)
		if err != nil {
			return nil, err
		}
		orphans, err := e.store.MetaWithoutRental(ctx)
		if err != nil {
			return nil, err
		}

		rep := &Report{Pass: PassAuditDuality}
		for _, id := range missing {
			rep.Findings = append(rep.Findings, Finding{ID: id, Kind: FindingMissingMeta})
		}
		for _, id := range orphans {
			rep.Findings = append(rep.Findings, Finding{ID: id, Kind: FindingOrphanMeta})
		}
		return rep, nil
	})
}

// AuditAmounts lists rentals whose amount is not round(hours × rate, 2) and
// whose comment does not record a manual amount.
func (e *Engine) AuditAmounts(ctx context.Context, filter ledger.ViewFilter) (*Report, error) {
	return e.Track(ctx, PassAuditAmounts, filter, func() (*Report, error) {
		txs, err := e.store.ListRentalTransactions(ctx, filter)
		if err != nil {
			return nil, err
		}

		rep := &Report{Pass: PassAuditAmounts}
		for _, tx := range txs {
			if ledger.HasManualAmount(tx.Comment) {
				continue
			}
			if tx.Hours.IsZero() && tx.PricePerHour.IsZero() {
				continue
			}
			expected := ledger.RentalAmount(tx.Hours, tx.PricePerHour)
			if !tx.Amount.Equal(expected) {
				rep.Findings = append(rep.Findings, Finding{
					ID:     tx.ID,
					Kind:   FindingAmountMismatch,
					Detail: fmt.Sprintf("amount %s, expected %s", tx.Amount.StringFixed(2), expected.StringFixed(2)),
				})
			}
		}
		return rep, nil
	})
}

// FindDanglingReferences lists transaction foreign ids with no target row.
func (e *Engine) FindDanglingReferences(ctx context.Context) (*Report, error) {
	return e.Track(ctx, PassDanglingReferences, nil, func() (*Report, error) {
		refs, err := e.store.DanglingReferences(ctx)
		if err != nil {
			return nil, err
		}
		rep := &Report{Pass: PassDanglingReferences}
		for _, ref := range refs {
			rep.Findings = append(rep.Findings, Finding{
				ID:     ref.TransactionID,
				Kind:   FindingDangling,
				Detail: fmt.Sprintf("%s=%d", ref.Column, ref.Value),
			})
		}
		return rep, nil
	})
}
