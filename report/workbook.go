// Package report renders reconciliation reports as xlsx workbooks.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
)

// Sheet names.
const (
	SheetSummary    = "Summary"
	SheetDiffs      = "Diffs"
	SheetOnlyA      = "Only_in_A"
	SheetOnlyB      = "Only_in_B"
	SheetProposed   = "Proposed_fixes"
	SheetApplied    = "Applied"
	SheetUnresolved = "Unresolved"
	SheetFindings   = "Findings"
)

// Render builds the workbook: Summary always, one more sheet per non-empty
// section. It never touches the store.
func Render(rep *reconcile.Report, generatedAt time.Time) (*excelize.File, error) {
	if rep == nil {
		return nil, fmt.Errorf("render report: nil report")
	}

	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	writeSummary(file, rep, generatedAt)

	if len(rep.Diffs) > 0 {
		rows := make([][]any, 0, len(rep.Diffs))
		for _, d := range rep.Diffs {
			rows = append(rows, []any{string(d.ID), d.Column, d.ValueA, d.ValueB})
		}
		if err := writeTable(file, SheetDiffs, []string{"id", "column", "value_a", "value_b"}, rows); err != nil {
			return nil, err
		}
	}
	if err := writeIDs(file, SheetOnlyA, rep.OnlyA); err != nil {
		return nil, err
	}
	if err := writeIDs(file, SheetOnlyB, rep.OnlyB); err != nil {
		return nil, err
	}
	if err := writeFixes(file, SheetProposed, rep.ProposedFixes); err != nil {
		return nil, err
	}
	if err := writeFixes(file, SheetApplied, rep.Applied); err != nil {
		return nil, err
	}
	if err := writeIDs(file, SheetUnresolved, rep.Unresolved); err != nil {
		return nil, err
	}
	if len(rep.Findings) > 0 {
		rows := make([][]any, 0, len(rep.Findings))
		for _, f := range rep.Findings {
			rows = append(rows, []any{string(f.ID), f.Kind, f.Detail})
		}
		if err := writeTable(file, SheetFindings, []string{"id", "kind", "detail"}, rows); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	return file, nil
}

// Bytes renders the workbook into memory.
func Bytes(rep *reconcile.Report, generatedAt time.Time) ([]byte, error) {
	file, err := Render(rep, generatedAt)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the timestamped workbook name of a report.
func FileName(pass string, at time.Time) string {
	if pass == "" {
		pass = "report"
	}
	return fmt.Sprintf("reconciliacion_%s_%s.xlsx", pass, at.Format("20060102_150405"))
}

// WriteFile saves the workbook under dir and returns its path.
func WriteFile(dir string, rep *reconcile.Report, at time.Time) (string, error) {
	file, err := Render(rep, at)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(rep.Pass, at))
	if err := file.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

// =============================================================================
// SHEETS
// =============================================================================

func writeSummary(file *excelize.File, rep *reconcile.Report, at time.Time) {
	set := func(cell string, value any) {
		_ = file.SetCellValue(SheetSummary, cell, value)
	}

	summary := []struct {
		label string
		value any
	}{
		{"pass", rep.Pass},
		{"generated_at", at.Format("2006-01-02 15:04:05")},
		{"rows_a", rep.RowsA},
		{"rows_b", rep.RowsB},
		{"common_ids", len(rep.CommonIDs)},
		{"only_a", len(rep.OnlyA)},
		{"only_b", len(rep.OnlyB)},
		{"diffs", len(rep.Diffs)},
		{"proposed_fixes", len(rep.ProposedFixes)},
		{"applied", len(rep.Applied)},
		{"unresolved", len(rep.Unresolved)},
		{"findings", len(rep.Findings)},
	}
	if rep.Affected > 0 {
		summary = append(summary, struct {
			label string
			value any
		}{"rows_affected", rep.Affected})
	}

	for i, row := range summary {
		set(fmt.Sprintf("A%d", i+1), row.label)
		set(fmt.Sprintf("B%d", i+1), row.value)
	}
	_ = file.SetColWidth(SheetSummary, "A", "A", 20)
	_ = file.SetColWidth(SheetSummary, "B", "B", 24)
}

func writeIDs(file *excelize.File, sheet string, ids []ledger.TransactionID) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []any{string(id)})
	}
	return writeTable(file, sheet, []string{"id"}, rows)
}

func writeFixes(file *excelize.File, sheet string, fixes []reconcile.Fix) error {
	if len(fixes) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(fixes))
	for _, f := range fixes {
		rows = append(rows, []any{string(f.ID), f.Action, f.Detail})
	}
	return writeTable(file, sheet, []string{"id", "action", "detail"}, rows)
}

func writeTable(file *excelize.File, sheet string, headers []string, rows [][]any) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	_ = file.SetColWidth(sheet, "A", "A", 38)
	if len(headers) > 1 {
		_ = file.SetColWidth(sheet, "B", last, 24)
	}
	return nil
}
