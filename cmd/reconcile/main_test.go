package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/ledgertest"
	"github.com/warp/rental-ledger/store/sqlite"
)

func TestParseHours(t *testing.T) {
	hours, err := parseHours("1=1250, 4=800.5")
	require.NoError(t, err)
	assert.Len(t, hours, 2)
	assert.True(t, hours[1].Equal(decimal.NewFromInt(1250)))
	assert.True(t, hours[4].Equal(decimal.RequireFromString("800.5")))

	for _, bad := range []string{"", "1", "x=3", "1=abc"} {
		_, err := parseHours(bad)
		assert.Error(t, err, bad)
	}
}

// seededDB writes the canonical fixture plus one drifted rental to a file.
func seededDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	f := ledgertest.Seed(t, store)
	f.InsertRentals(t, "t", 2, nil)
	tx := f.Transaction("bare")
	tx.Kind = ledger.KindExpense
	f.Insert(t, tx, nil)
	require.NoError(t, store.Close())
	return path
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	t.Setenv("APP_ENV", "production")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String()
}

func TestRun_Compare(t *testing.T) {
	db := seededDB(t)

	code, out := runCLI(t, "-db", db, "compare")

	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "pass: compare")
	assert.Contains(t, out, "rows_a=3 rows_b=2 common=2 only_a=1 only_b=0")
	assert.Contains(t, out, "diff equipment_name")
}

func TestRun_RepairIncomplete(t *testing.T) {
	db := seededDB(t)

	code, out := runCLI(t, "-db", db, "repair")

	assert.Equal(t, exitIncomplete, code)
	assert.Contains(t, out, "unresolved=1")
}

func TestRun_RemapAndRuns(t *testing.T) {
	db := seededDB(t)

	code, _ := runCLI(t, "-db", db, "remap-operator", "-wrong", "3", "-correct", "3")
	assert.Equal(t, exitFailure, code)

	code, out := runCLI(t, "-db", db, "runs")
	assert.Equal(t, exitOK, code)
	assert.Empty(t, out)

	code, _ = runCLI(t, "-db", db, "audit")
	assert.Equal(t, exitOK, code)

	code, out = runCLI(t, "-db", db, "runs", "-limit", "5")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "audit_duality")
}

func TestRun_WritesReport(t *testing.T) {
	db := seededDB(t)
	dir := t.TempDir()
	t.Setenv("REPORT_DIR", dir)

	code, out := runCLI(t, "-db", db, "-report", "compare")

	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "report: "+filepath.Join(dir, "reconciliacion_compare_"))
}

func TestRun_Usage(t *testing.T) {
	code, _ := runCLI(t)
	assert.Equal(t, exitFailure, code)

	code, _ = runCLI(t, "-db", seededDB(t), "nope")
	assert.Equal(t, exitFailure, code)
}
