package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
)

var generatedAt = time.Date(2025, 1, 15, 14, 30, 5, 0, time.Local)

func sampleReport() *reconcile.Report {
	return &reconcile.Report{
		Pass:      reconcile.PassCompare,
		RowsA:     3,
		RowsB:     2,
		CommonIDs: []ledger.TransactionID{"t1", "t2"},
		OnlyA:     []ledger.TransactionID{"t3"},
		Diffs: []reconcile.Diff{
			{ID: "t1", Column: ledger.ColClientName, ValueA: "ACME", ValueB: ""},
		},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "reconciliacion_compare_20250115_143005.xlsx", FileName("compare", generatedAt))
	assert.Equal(t, "reconciliacion_report_20250115_143005.xlsx", FileName("", generatedAt))
}

func TestRender_OneSheetPerNonEmptySection(t *testing.T) {
	file, err := Render(sampleReport(), generatedAt)
	require.NoError(t, err)
	defer file.Close()

	// Only_in_B is empty and therefore absent
	assert.Equal(t, []string{SheetSummary, SheetDiffs, SheetOnlyA}, file.GetSheetList())

	rows, err := file.GetRows(SheetDiffs)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "column", "value_a", "value_b"}, rows[0])
	require.GreaterOrEqual(t, len(rows[1]), 3)
	assert.Equal(t, []string{"t1", "client_name", "ACME"}, rows[1][:3])

	rows, err = file.GetRows(SheetOnlyA)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id"}, {"t3"}}, rows)
}

func TestRender_SummaryCounts(t *testing.T) {
	rep := sampleReport()
	rep.Affected = 12

	file, err := Render(rep, generatedAt)
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows(SheetSummary)
	require.NoError(t, err)

	summary := make(map[string]string, len(rows))
	for _, r := range rows {
		require.Len(t, r, 2)
		summary[r[0]] = r[1]
	}
	assert.Equal(t, "compare", summary["pass"])
	assert.Equal(t, "2025-01-15 14:30:05", summary["generated_at"])
	assert.Equal(t, "3", summary["rows_a"])
	assert.Equal(t, "2", summary["rows_b"])
	assert.Equal(t, "2", summary["common_ids"])
	assert.Equal(t, "1", summary["only_a"])
	assert.Equal(t, "0", summary["only_b"])
	assert.Equal(t, "1", summary["diffs"])
	assert.Equal(t, "12", summary["rows_affected"])
}

func TestRender_RepairSections(t *testing.T) {
	rep := &reconcile.Report{
		Pass:          reconcile.PassRepairFromMeta,
		ProposedFixes: []reconcile.Fix{{ID: "x", Action: reconcile.ActionNeedsRentalMeta, Detail: "no meta"}},
		Applied:       []reconcile.Fix{{ID: "y", Action: reconcile.ActionPartiesFromMeta}},
		Unresolved:    []ledger.TransactionID{"x"},
		Findings:      []reconcile.Finding{{ID: "z", Kind: reconcile.FindingMissingMeta}},
	}

	file, err := Render(rep, generatedAt)
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, []string{SheetSummary, SheetProposed, SheetApplied, SheetUnresolved, SheetFindings}, file.GetSheetList())
}

func TestRender_NilReport(t *testing.T) {
	_, err := Render(nil, generatedAt)
	assert.Error(t, err)
}

func TestBytesAndWriteFile(t *testing.T) {
	data, err := Bytes(sampleReport(), generatedAt)
	require.NoError(t, err)

	file, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Contains(t, file.GetSheetList(), SheetDiffs)
	require.NoError(t, file.Close())

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := WriteFile(dir, sampleReport(), generatedAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reconciliacion_compare_20250115_143005.xlsx"), path)

	saved, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer saved.Close()
	assert.Equal(t, SheetSummary, saved.GetSheetName(saved.GetActiveSheetIndex()))
}
