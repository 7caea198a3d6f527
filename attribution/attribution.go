/*
Package attribution assigns equipment to transactions that have none, using
the transaction's free-text description.

PURPOSE:
  Offline one-shot passes over legacy rows. Only transactions with a null
  equipment_id are considered; an assigned equipment is never overwritten.

MATCHING (per transaction, equipment in id order):
  1. Exact tokens: every token of the equipment name (letter runs and digit
     runs) appears in the uppercased description. Score 100, first wins.
  2. Exact model words: when no equipment matches in (1), every model
     designation of the name ("420D" of "RETROPALA 420D") appears in the
     description as a whole word. Names without one never match here.
     Score 100, first wins.
  3. Fuzzy: PartialRatio of the uppercased name against the uppercased
     description. The best score is assigned when it reaches the threshold.
     Earlier id wins ties. A threshold of 100 disables this step.

  Exact matches always beat fuzzy ones.

SEE ALSO:
  - tokens.go: Tokenization
  - similarity.go: PartialRatio
  - reconcile/engine.go: Run recording
*/
package attribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
)

const (
	DefaultThreshold = 85

	PassFuzzy   = "fuzzy_attribution"
	PassPattern = "assign_if_pattern"
)

// Match is the outcome of matching one description against the fleet.
type Match struct {
	EquipmentID ledger.EquipmentID
	Name        string
	Score       float64
	Exact       bool
}

// Best returns the equipment a description should be attributed to. The
// second result is false when nothing reaches the threshold; the returned
// Match then carries the best fuzzy candidate for review.
func Best(fleet []ledger.Equipment, description string, threshold int) (Match, bool) {
	text := strings.ToUpper(description)

	for _, eq := range fleet {
		if containsAll(text, Tokens(eq.Name)) {
			return Match{EquipmentID: eq.ID, Name: eq.Name, Score: 100, Exact: true}, true
		}
	}
	for _, eq := range fleet {
		if containsWords(text, ModelTokens(eq.Name)) {
			return Match{EquipmentID: eq.ID, Name: eq.Name, Score: 100, Exact: true}, true
		}
	}

	var best Match
	for _, eq := range fleet {
		score := PartialRatio(strings.ToUpper(eq.Name), text)
		if score > best.Score {
			best = Match{EquipmentID: eq.ID, Name: eq.Name, Score: score}
		}
	}
	if threshold >= 100 || best.EquipmentID == 0 {
		return best, false
	}
	return best, best.Score >= float64(threshold)
}

// =============================================================================
// ATTRIBUTOR
// =============================================================================

type Attributor struct {
	store     ledger.Store
	engine    *reconcile.Engine
	threshold int
	log       zerolog.Logger
}

type Option func(*Attributor)

func WithThreshold(threshold int) Option {
	return func(a *Attributor) { a.threshold = threshold }
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *Attributor) { a.log = log }
}

// New builds an Attributor. Runs are recorded through engine.
func New(store ledger.Store, engine *reconcile.Engine, opts ...Option) *Attributor {
	a := &Attributor{store: store, engine: engine, threshold: DefaultThreshold, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type runParams struct {
	ProjectID ledger.ProjectID `json:"project_id"`
	Threshold int              `json:"threshold"`
	DryRun    bool             `json:"dry_run"`
}

// Run attributes every unattributed transaction of the project (all
// projects for zero). Candidates are active equipment of that project or
// of no project. With dryRun the matches are only proposed.
// Transactions that match nothing are reported as unresolved.
func (a *Attributor) Run(ctx context.Context, projectID ledger.ProjectID, dryRun bool) (*reconcile.Report, error) {
	if a.threshold < 0 || a.threshold > 100 {
		return nil, &ledger.ValidationError{Field: "threshold", Reason: fmt.Sprintf("%d not in [0,100]", a.threshold)}
	}

	params := runParams{ProjectID: projectID, Threshold: a.threshold, DryRun: dryRun}
	return a.engine.Track(ctx, PassFuzzy, params, func() (*reconcile.Report, error) {
		rep := &reconcile.Report{Pass: PassFuzzy}
		err := a.store.WithTx(ctx, func(tx ledger.Tx) error {
			active, err := tx.ListEquipment(ctx, true)
			if err != nil {
				return err
			}
			fleet := projectFleet(active, projectID)
			pending, err := tx.ListUnattributedTransactions(ctx, projectID)
			if err != nil {
				return err
			}

			for _, t := range pending {
				m, ok := Best(fleet, t.Description, a.threshold)
				if !ok {
					rep.Unresolved = append(rep.Unresolved, t.ID)
					if m.EquipmentID != 0 {
						rep.ProposedFixes = append(rep.ProposedFixes, reconcile.Fix{
							ID:     t.ID,
							Action: reconcile.ActionReviewAttribution,
							Detail: fmt.Sprintf("best %q score %.1f below %d", m.Name, m.Score, a.threshold),
						})
					}
					continue
				}

				fix := reconcile.Fix{
					ID:     t.ID,
					Action: reconcile.ActionAssignEquipment,
					Detail: matchDetail(m),
				}
				if dryRun {
					rep.ProposedFixes = append(rep.ProposedFixes, fix)
					continue
				}
				n, err := tx.SetTransactionEquipment(ctx, t.ID, m.EquipmentID)
				if err != nil {
					return err
				}
				if n > 0 {
					rep.Applied = append(rep.Applied, fix)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return rep, nil
	})
}

// projectFleet keeps equipment assigned to the project or to no project.
// A zero projectID keeps everything.
func projectFleet(list []ledger.Equipment, projectID ledger.ProjectID) []ledger.Equipment {
	if projectID == 0 {
		return list
	}
	out := make([]ledger.Equipment, 0, len(list))
	for _, eq := range list {
		if eq.ProjectID == nil || *eq.ProjectID == projectID {
			out = append(out, eq)
		}
	}
	return out
}

func matchDetail(m Match) string {
	if m.Exact {
		return fmt.Sprintf("%d %s (exact)", m.EquipmentID, m.Name)
	}
	return fmt.Sprintf("%d %s (score %.1f)", m.EquipmentID, m.Name, m.Score)
}

// AssignIfPattern assigns equipmentID to every unattributed transaction of
// the project whose description contains pattern, case-insensitively.
func (a *Attributor) AssignIfPattern(ctx context.Context, pattern string, equipmentID ledger.EquipmentID, projectID ledger.ProjectID) (*reconcile.Report, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, &ledger.ValidationError{Field: "pattern", Reason: "must not be empty"}
	}

	params := map[string]any{"pattern": pattern, "equipment_id": equipmentID, "project_id": projectID}
	return a.engine.Track(ctx, PassPattern, params, func() (*reconcile.Report, error) {
		rep := &reconcile.Report{Pass: PassPattern}
		needle := strings.ToUpper(pattern)
		err := a.store.WithTx(ctx, func(tx ledger.Tx) error {
			eq, err := tx.GetEquipment(ctx, equipmentID)
			if err != nil {
				return err
			}
			if eq == nil {
				return &ledger.MissingReferenceError{Kind: "equipment", Key: fmt.Sprint(equipmentID)}
			}

			pending, err := tx.ListUnattributedTransactions(ctx, projectID)
			if err != nil {
				return err
			}
			for _, t := range pending {
				if !strings.Contains(strings.ToUpper(t.Description), needle) {
					continue
				}
				n, err := tx.SetTransactionEquipment(ctx, t.ID, equipmentID)
				if err != nil {
					return err
				}
				if n > 0 {
					rep.Applied = append(rep.Applied, reconcile.Fix{
						ID:     t.ID,
						Action: reconcile.ActionAssignEquipment,
						Detail: fmt.Sprintf("%d %s (pattern %q)", eq.ID, eq.Name, pattern),
					})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return rep, nil
	})
}
