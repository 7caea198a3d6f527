/*
scheduler.go - Scheduled drift check

PURPOSE:
  Periodically compares View-A against View-B and logs how far the two
  sources of truth have drifted. It never repairs; repairs are an explicit
  admin action.

DESIGN:
  - Runs on a cron schedule (robfig/cron, seconds field enabled)
  - Each check is a regular compare pass, so it is recorded in
    reconciliation_runs and visible in GET /api/reconciliation/runs
  - Overlapping checks are skipped

USAGE:
  monitor := NewDriftMonitor(engine, filter, log)
  if err := monitor.Start("0 0 6 * * *"); err != nil { ... }
  // ... later
  monitor.Stop()

SEE ALSO:
  - reconcile/engine.go: Compare pass
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
)

// DriftMonitor runs the compare pass on a schedule.
type DriftMonitor struct {
	Engine  *reconcile.Engine
	Filter  ledger.ViewFilter
	Timeout time.Duration

	log     zerolog.Logger
	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
	running bool
}

func NewDriftMonitor(engine *reconcile.Engine, filter ledger.ViewFilter, log zerolog.Logger) *DriftMonitor {
	return &DriftMonitor{
		Engine:  engine,
		Filter:  filter,
		Timeout: 5 * time.Minute,
		log:     log.With().Str("component", "drift_monitor").Logger(),
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start schedules the check. An empty spec leaves the monitor disabled.
func (m *DriftMonitor) Start(spec string) error {
	if spec == "" {
		m.log.Info().Msg("disabled, not starting")
		return nil
	}

	var err error
	m.entryID, err = m.cron.AddFunc(spec, func() { m.Check(context.Background()) })
	if err != nil {
		return fmt.Errorf("error scheduling drift check: %w", err)
	}
	m.cron.Start()
	m.log.Info().Str("schedule", spec).Msg("started")
	return nil
}

// Stop stops the scheduler and waits for a running check.
func (m *DriftMonitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
		m.log.Info().Msg("stopped")
	}
}

// Check runs one comparison and logs its counts. It returns nil when a
// previous check is still running.
func (m *DriftMonitor) Check(ctx context.Context) *reconcile.Report {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Warn().Msg("previous check still running, skipping")
		return nil
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	rep, err := m.Engine.Compare(ctx, m.Filter)
	if err != nil {
		m.log.Error().Err(err).Msg("drift check failed")
		return nil
	}

	event := m.log.Info()
	if len(rep.OnlyA) > 0 || len(rep.OnlyB) > 0 {
		event = m.log.Warn()
	}
	event.
		Int("rows_a", rep.RowsA).
		Int("rows_b", rep.RowsB).
		Int("only_a", len(rep.OnlyA)).
		Int("only_b", len(rep.OnlyB)).
		Int("diffs", len(rep.Diffs)).
		Msg("drift check completed")
	return rep
}
