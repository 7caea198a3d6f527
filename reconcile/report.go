/*
report.go - Reconciliation reports and the view comparison

PURPOSE:
  A Report is what every reconciliation pass returns. The comparison fields
  (RowsA, RowsB, CommonIDs, OnlyA, OnlyB, Diffs) come from Compare; repair
  passes carry them forward and add Applied and Unresolved.

COMPARISON:
  Two rental views are matched by transaction id. For ids present in both,
  each column of ledger.ComparedColumns is compared on its normalized text
  (null -> "", otherwise trimmed). A differing cell yields one Diff.

ORDERING:
  CommonIDs, OnlyA and Diffs follow View-A's row order; OnlyB follows
  View-B's. Diffs within one id follow ComparedColumns.

SEE ALSO:
  - engine.go: Passes that produce reports
  - report/workbook.go: Renders a report as a workbook
*/
package reconcile

import (
	"github.com/warp/rental-ledger/ledger"
)

// Diff is one cell where the two views disagree.
type Diff struct {
	ID     ledger.TransactionID
	Column string
	ValueA string
	ValueB string
}

// Fix is a change a pass applied or proposes.
type Fix struct {
	ID     ledger.TransactionID
	Action string
	Detail string
}

// Finding is an audit observation. Findings are never repaired automatically.
type Finding struct {
	ID     ledger.TransactionID
	Kind   string
	Detail string
}

// Fix actions.
const (
	ActionPartiesFromMeta   = "parties_from_meta"
	ActionBackfillAttach    = "backfill_attachment_path"
	ActionRemapOperator     = "remap_operator"
	ActionRenameSubcat      = "rename_subcategory"
	ActionSeedMaintenance   = "seed_maintenance"
	ActionAssignEquipment   = "assign_equipment"
	ActionNeedsRentalMeta   = "needs_rental_meta"
	ActionReviewAttribution = "review_attribution"
)

// Finding kinds.
const (
	FindingMissingMeta    = "rental_without_meta"
	FindingOrphanMeta     = "meta_without_rental"
	FindingAmountMismatch = "amount_mismatch"
	FindingDangling       = "dangling_reference"
)

type Report struct {
	Pass string

	RowsA     int
	RowsB     int
	CommonIDs []ledger.TransactionID
	OnlyA     []ledger.TransactionID
	OnlyB     []ledger.TransactionID
	Diffs     []Diff

	ProposedFixes []Fix
	Applied       []Fix
	Unresolved    []ledger.TransactionID
	Findings      []Finding

	// Affected counts rows changed by a single bulk statement.
	Affected int64
}

// Err returns an *ledger.IncompleteError when the pass left ids unresolved.
func (r *Report) Err() error {
	if r == nil || len(r.Unresolved) == 0 {
		return nil
	}
	return &ledger.IncompleteError{Pass: r.Pass, Unresolved: r.Unresolved}
}

// DiffIDs returns the distinct ids with at least one diff, in diff order.
func (r *Report) DiffIDs() []ledger.TransactionID {
	seen := make(map[ledger.TransactionID]bool)
	var ids []ledger.TransactionID
	for _, d := range r.Diffs {
		if !seen[d.ID] {
			seen[d.ID] = true
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// RepairTargets are the ids repair_from_meta acts on: only in View-A, or
// with a diff.
func (r *Report) RepairTargets() []ledger.TransactionID {
	seen := make(map[ledger.TransactionID]bool)
	var ids []ledger.TransactionID
	for _, group := range [][]ledger.TransactionID{r.OnlyA, r.DiffIDs()} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// derive starts a report for a follow-up pass, keeping the comparison.
func (r *Report) derive(pass string) *Report {
	return &Report{
		Pass:      pass,
		RowsA:     r.RowsA,
		RowsB:     r.RowsB,
		CommonIDs: r.CommonIDs,
		OnlyA:     r.OnlyA,
		OnlyB:     r.OnlyB,
		Diffs:     r.Diffs,
	}
}

// Compare matches View-A rows against View-B rows. It does not touch the store.
func Compare(a, b []ledger.RentalRow) *Report {
	rep := &Report{Pass: PassCompare, RowsA: len(a), RowsB: len(b)}

	byB := make(map[ledger.TransactionID]ledger.RentalRow, len(b))
	for _, row := range b {
		byB[row.ID] = row
	}
	inA := make(map[ledger.TransactionID]bool, len(a))

	for _, rowA := range a {
		inA[rowA.ID] = true
		rowB, ok := byB[rowA.ID]
		if !ok {
			rep.OnlyA = append(rep.OnlyA, rowA.ID)
			continue
		}
		rep.CommonIDs = append(rep.CommonIDs, rowA.ID)
		for _, col := range ledger.ComparedColumns {
			va, vb := rowA.Cell(col), rowB.Cell(col)
			if va != vb {
				rep.Diffs = append(rep.Diffs, Diff{ID: rowA.ID, Column: col, ValueA: va, ValueB: vb})
			}
		}
	}

	for _, rowB := range b {
		if !inA[rowB.ID] {
			rep.OnlyB = append(rep.OnlyB, rowB.ID)
		}
	}
	return rep
}
