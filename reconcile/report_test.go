package reconcile_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
)

func row(id string, client string, amount int64) ledger.RentalRow {
	a := decimal.NewFromInt(amount)
	return ledger.RentalRow{
		ID:         ledger.TransactionID(id),
		Date:       "2025-01-15",
		Amount:     &a,
		ClientName: ledger.StrPtr(client),
	}
}

func TestCompare_SetsAndDiffs(t *testing.T) {
	a := []ledger.RentalRow{row("t1", "ACME", 100), row("t2", "ACME", 200), row("t3", "BETA", 300)}
	b := []ledger.RentalRow{row("t4", "ACME", 400), row("t2", " ACME ", 250), row("t1", "ACME", 100)}

	rep := reconcile.Compare(a, b)

	assert.Equal(t, reconcile.PassCompare, rep.Pass)
	assert.Equal(t, 3, rep.RowsA)
	assert.Equal(t, 3, rep.RowsB)
	assert.Equal(t, []ledger.TransactionID{"t1", "t2"}, rep.CommonIDs)
	assert.Equal(t, []ledger.TransactionID{"t3"}, rep.OnlyA)
	assert.Equal(t, []ledger.TransactionID{"t4"}, rep.OnlyB)

	// whitespace is normalized away, the amount is not
	require.Len(t, rep.Diffs, 1)
	assert.Equal(t, reconcile.Diff{ID: "t2", Column: ledger.ColAmount, ValueA: "200", ValueB: "250"}, rep.Diffs[0])

	assert.Equal(t, []ledger.TransactionID{"t2"}, rep.DiffIDs())
	assert.Equal(t, []ledger.TransactionID{"t3", "t2"}, rep.RepairTargets())
}

func TestCompare_NullEqualsEmpty(t *testing.T) {
	a := row("t1", "", 100)
	b := row("t1", "", 100)
	b.ClientName = nil
	b.Conduce = ledger.StrPtr("   ")

	rep := reconcile.Compare([]ledger.RentalRow{a}, []ledger.RentalRow{b})
	assert.Empty(t, rep.Diffs)
}

func TestCompare_Empty(t *testing.T) {
	rep := reconcile.Compare(nil, nil)
	assert.Zero(t, rep.RowsA)
	assert.Empty(t, rep.CommonIDs)
	assert.NoError(t, rep.Err())
}

func TestReport_Err(t *testing.T) {
	rep := &reconcile.Report{Pass: reconcile.PassRepairFromMeta, Unresolved: []ledger.TransactionID{"x"}}

	err := rep.Err()

	require.ErrorIs(t, err, ledger.ErrReconciliationIncomplete)
	var inc *ledger.IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []ledger.TransactionID{"x"}, inc.Unresolved)
}
