/*
errors.go - Error taxonomy of the rental ledger

PURPOSE:
  All error kinds in one place. Services return these (possibly wrapped);
  callers classify them with errors.Is / errors.As.

ERROR KINDS:
  ErrValidation           inputs fail a local predicate
  ErrMissingReference     a required project/account/category/entity is absent
  ErrMissingSubcategory   no subcategory named after the rental's equipment
  ErrMigration            an additive migration failed
  ErrStore                underlying store I/O failed
  ErrContention           another writer holds the database
  ErrReconciliationIncomplete  a pass finished with unresolved rows

PROPAGATION:
  Service operations surface typed errors. Reconciliation passes collect
  per-row outcomes in their report and only use IncompleteError to tell the
  caller that some ids could not be resolved.

SEE ALSO:
  - store/sqlite/sqlite.go: maps driver errors to ErrStore / ErrContention
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation               = errors.New("validation failed")
	ErrMissingReference         = errors.New("missing reference")
	ErrMissingSubcategory       = errors.New("missing subcategory")
	ErrMigration                = errors.New("migration failed")
	ErrStore                    = errors.New("store error")
	ErrContention               = errors.New("database is held by another writer")
	ErrReconciliationIncomplete = errors.New("reconciliation incomplete")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MissingReferenceError says which foreign row could not be resolved.
type MissingReferenceError struct {
	Kind string // "project", "account", "category", "equipment", "client", "operator"
	Key  string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("missing %s %q", e.Kind, e.Key)
}

func (e *MissingReferenceError) Unwrap() error { return ErrMissingReference }

// MissingSubcategoryError is returned when no subcategory carries the
// equipment's name. Subcategories are never created implicitly.
type MissingSubcategoryError struct {
	EquipmentID   EquipmentID
	EquipmentName string
}

func (e *MissingSubcategoryError) Error() string {
	return fmt.Sprintf("no subcategory named %q for equipment %d", e.EquipmentName, e.EquipmentID)
}

func (e *MissingSubcategoryError) Unwrap() error { return ErrMissingSubcategory }

// MigrationError wraps a failure while adding or backfilling a column.
type MigrationError struct {
	Table  string
	Column string
	Err    error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *MigrationError) Unwrap() []error { return []error{ErrMigration, e.Err} }

// IncompleteError lists the ids a reconciliation pass could not resolve.
type IncompleteError struct {
	Pass       string
	Unresolved []TransactionID
}

func (e *IncompleteError) Error() string {
	ids := make([]string, len(e.Unresolved))
	for i, id := range e.Unresolved {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%s left %d unresolved: %s", e.Pass, len(ids), strings.Join(ids, ", "))
}

func (e *IncompleteError) Unwrap() error { return ErrReconciliationIncomplete }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingSubcategory)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMissingReference)
}

// IsRetryable returns true if the error might succeed once the other writer is gone.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}
