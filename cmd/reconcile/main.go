/*
main.go - Batch reconciliation command

PURPOSE:
  Runs one reconciliation or attribution pass against the ledger database
  and prints its summary. Optionally writes the report workbook.

USAGE:
  reconcile [flags] <pass> [pass flags]

PASSES:
  compare              View-A vs View-B
  repair               compare, then repair_from_meta
  backfill             backfill_attachment_paths
  remap-operator       -wrong N -correct M
  rename-subcategory   -id N -name "NEW NAME"
  attribute            fuzzy attribution (-dry-run, -threshold)
  assign-pattern       -pattern TEXT -equipment N
  seed-maintenance     -hours 1=1250,4=800 [-date YYYY-MM-DD]
  audit                duality, amounts, dangling references
  runs                 recent reconciliation runs

GLOBAL FLAGS:
  -config   Config file; environment overrides it
  -db       Database path (overrides DATABASE_PATH)
  -project  Project id (overrides DEFAULT_PROJECT_ID; 0 = all)
  -report   Write the workbook to REPORT_DIR

EXIT CODES:
  0 success, 1 failure, 2 pass finished with unresolved rows
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/attribution"
	"github.com/warp/rental-ledger/config"
	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/logging"
	"github.com/warp/rental-ledger/reconcile"
	"github.com/warp/rental-ledger/report"
	"github.com/warp/rental-ledger/store/sqlite"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitIncomplete = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// app carries what every pass needs.
type app struct {
	store     *sqlite.Store
	engine    *reconcile.Engine
	cfg       *config.Config
	projectID ledger.ProjectID
	log       zerolog.Logger
	out       io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "config file path")
	dbPath := global.String("db", "", "SQLite database path (overrides DATABASE_PATH)")
	project := global.Int64("project", -1, "project id (overrides DEFAULT_PROJECT_ID; 0 = all)")
	writeReport := global.Bool("report", false, "write the report workbook to REPORT_DIR")
	if err := global.Parse(args); err != nil {
		return exitFailure
	}
	if global.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: reconcile [flags] <compare|repair|backfill|remap-operator|rename-subcategory|attribute|assign-pattern|seed-maintenance|audit|runs> [pass flags]")
		return exitFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailure
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	log := logging.NewWithWriter(stderr, cfg.Environment, cfg.LogLevel)

	store, err := sqlite.New(cfg.DatabasePath, sqlite.WithBusyTimeout(cfg.BusyTimeoutMS), sqlite.WithLogger(log))
	if err != nil {
		log.Error().Err(err).Str("db", cfg.DatabasePath).Msg("failed to open database")
		return exitFailure
	}
	defer store.Close()

	a := &app{
		store:     store,
		engine:    reconcile.NewEngine(store, reconcile.WithLogger(log)),
		cfg:       cfg,
		projectID: ledger.ProjectID(cfg.DefaultProjectID),
		log:       log,
		out:       stdout,
	}
	if *project >= 0 {
		a.projectID = ledger.ProjectID(*project)
	}

	pass, passArgs := global.Arg(0), global.Args()[1:]
	rep, err := a.dispatch(ctx, pass, passArgs)
	if err != nil {
		log.Error().Err(err).Str("pass", pass).Msg("pass failed")
		return exitFailure
	}
	if rep == nil {
		return exitOK
	}

	printReport(stdout, rep)
	if *writeReport {
		path, err := report.WriteFile(cfg.ReportDir, rep, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("failed to write report")
			return exitFailure
		}
		fmt.Fprintf(stdout, "report: %s\n", path)
	}
	if err := rep.Err(); err != nil {
		fmt.Fprintln(stdout, err)
		return exitIncomplete
	}
	return exitOK
}

func (a *app) dispatch(ctx context.Context, pass string, args []string) (*reconcile.Report, error) {
	fs := flag.NewFlagSet(pass, flag.ContinueOnError)
	filter := ledger.ViewFilter{ProjectID: a.projectID}

	switch pass {
	case "compare":
		return a.engine.Compare(ctx, filter)

	case "repair":
		cmp, err := a.engine.Compare(ctx, filter)
		if err != nil {
			return nil, err
		}
		return a.engine.RepairFromMeta(ctx, cmp)

	case "backfill":
		return a.engine.BackfillAttachmentPaths(ctx)

	case "remap-operator":
		wrong := fs.Int64("wrong", 0, "operator id to replace")
		correct := fs.Int64("correct", 0, "operator id to keep")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		n, err := a.engine.RemapOperatorID(ctx, ledger.EntityID(*wrong), ledger.EntityID(*correct))
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(a.out, "rows updated: %d\n", n)
		return nil, nil

	case "rename-subcategory":
		id := fs.Int64("id", 0, "subcategory id")
		name := fs.String("name", "", "new name (should match an equipment name)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return a.engine.RenameSubcategory(ctx, ledger.SubcategoryID(*id), *name)

	case "attribute":
		threshold := fs.Int("threshold", a.cfg.FuzzyThreshold, "fuzzy threshold [0,100]")
		dryRun := fs.Bool("dry-run", false, "propose without writing")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		attr := attribution.New(a.store, a.engine, attribution.WithThreshold(*threshold), attribution.WithLogger(a.log))
		return attr.Run(ctx, a.projectID, *dryRun)

	case "assign-pattern":
		pattern := fs.String("pattern", "", "case-insensitive text to look for")
		equipment := fs.Int64("equipment", 0, "equipment id to assign")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		attr := attribution.New(a.store, a.engine, attribution.WithLogger(a.log))
		return attr.AssignIfPattern(ctx, *pattern, ledger.EquipmentID(*equipment), a.projectID)

	case "seed-maintenance":
		rawHours := fs.String("hours", "", "equipment_id=hours pairs, comma separated")
		date := fs.String("date", "", "record date (default today)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		hours, err := parseHours(*rawHours)
		if err != nil {
			return nil, err
		}
		return a.engine.SeedInitialMaintenance(ctx, hours, *date)

	case "audit":
		merged := &reconcile.Report{Pass: "audit"}
		for _, audit := range []func() (*reconcile.Report, error){
			func() (*reconcile.Report, error) { return a.engine.AuditDuality(ctx) },
			func() (*reconcile.Report, error) { return a.engine.AuditAmounts(ctx, filter) },
			func() (*reconcile.Report, error) { return a.engine.FindDanglingReferences(ctx) },
		} {
			rep, err := audit()
			if err != nil {
				return nil, err
			}
			merged.Findings = append(merged.Findings, rep.Findings...)
		}
		return merged, nil

	case "runs":
		limit := fs.Int("limit", 20, "number of runs")
		only := fs.String("pass", "", "only this pass")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		runs, err := a.store.ListReconciliationRuns(ctx, *only, *limit)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			fmt.Fprintf(a.out, "%s  %-26s %-10s applied=%d unresolved=%d %s\n",
				r.StartedAt.Format(time.RFC3339), r.Pass, r.Status, r.Applied, len(r.Unresolved), r.Error)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown pass %q", pass)
}

// parseHours reads "1=1250,4=800.5".
func parseHours(raw string) (map[ledger.EquipmentID]decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("-hours is required")
	}
	out := make(map[ledger.EquipmentID]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("bad pair %q, want id=hours", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad equipment id %q: %w", key, err)
		}
		hours, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("bad hours %q: %w", value, err)
		}
		out[ledger.EquipmentID(id)] = hours
	}
	return out, nil
}

func printReport(w io.Writer, rep *reconcile.Report) {
	fmt.Fprintf(w, "pass: %s\n", rep.Pass)
	if rep.RowsA > 0 || rep.RowsB > 0 {
		fmt.Fprintf(w, "rows_a=%d rows_b=%d common=%d only_a=%d only_b=%d diffs=%d\n",
			rep.RowsA, rep.RowsB, len(rep.CommonIDs), len(rep.OnlyA), len(rep.OnlyB), len(rep.Diffs))
	}
	fmt.Fprintf(w, "applied=%d proposed=%d unresolved=%d findings=%d\n",
		len(rep.Applied), len(rep.ProposedFixes), len(rep.Unresolved), len(rep.Findings))

	byColumn := make(map[string]int)
	for _, d := range rep.Diffs {
		byColumn[d.Column]++
	}
	columns := make([]string, 0, len(byColumn))
	for c := range byColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, c := range columns {
		fmt.Fprintf(w, "  diff %-16s %d\n", c, byColumn[c])
	}
	for _, f := range rep.Findings {
		fmt.Fprintf(w, "  %s %s %s\n", f.Kind, f.ID, f.Detail)
	}
}
