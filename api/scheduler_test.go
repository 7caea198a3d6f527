package api

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/ledgertest"
	"github.com/warp/rental-ledger/reconcile"
)

func TestDriftMonitor_Check(t *testing.T) {
	f := ledgertest.New(t)
	f.InsertRentals(t, "t", 2, nil)
	_, err := f.Store.Exec(context.Background(), "UPDATE transactions SET kind = 'Expense' WHERE id = 't-2'")
	require.NoError(t, err)

	m := NewDriftMonitor(reconcile.NewEngine(f.Store), ledger.ViewFilter{}, zerolog.Nop())
	rep := m.Check(context.Background())

	require.NotNil(t, rep)
	assert.Equal(t, []ledger.TransactionID{"t-2"}, rep.OnlyA)

	runs, err := f.Store.ListReconciliationRuns(context.Background(), reconcile.PassCompare, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDriftMonitor_Start(t *testing.T) {
	f := ledgertest.New(t)
	m := NewDriftMonitor(reconcile.NewEngine(f.Store), ledger.ViewFilter{}, zerolog.Nop())

	assert.NoError(t, m.Start(""))
	assert.Error(t, m.Start("not a schedule"))

	require.NoError(t, m.Start("0 0 6 * * *"))
	m.Stop()
}
