/*
store.go - Persistence interfaces for the rental ledger

PURPOSE:
  Defines the boundary between domain logic (rental service, reconciliation,
  attribution) and the embedded database. The only implementation is
  store/sqlite; the interfaces keep the services free of SQL.

KEY INTERFACES:
  Reader: lookups, the two rental views, audit queries
  Writer: the named mutations (no ad-hoc column writes)
  Tx:     Reader + Writer bound to one database transaction
  Store:  Reader + WithTx scope

TRANSACTION SCOPE:
  WithTx commits when fn returns nil and rolls back otherwise. Every write of
  a service operation or reconciliation pass goes through one scope, so a
  pass is never half-applied.

NOT FOUND:
  Get* lookups return (nil, nil) when the row does not exist. Callers turn
  that into MissingReferenceError with the context they have.

SEE ALSO:
  - store/sqlite/sqlite.go: Implementation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ViewFilter scopes the rental views. Zero values mean "all".
type ViewFilter struct {
	ProjectID ProjectID
}

// DanglingRef is a transaction column holding an id with no matching row.
type DanglingRef struct {
	TransactionID TransactionID
	Column        string
	Value         int64
}

// =============================================================================
// READER
// =============================================================================

type Reader interface {
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	GetAccountByName(ctx context.Context, name string) (*Account, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	GetSubcategory(ctx context.Context, id SubcategoryID) (*Subcategory, error)
	GetSubcategoryByName(ctx context.Context, name string) (*Subcategory, error)
	GetEntity(ctx context.Context, id EntityID) (*Entity, error)
	GetEquipment(ctx context.Context, id EquipmentID) (*Equipment, error)
	ListEquipment(ctx context.Context, activeOnly bool) ([]Equipment, error)

	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	GetRentalMeta(ctx context.Context, id TransactionID) (*RentalMeta, error)
	ListRentalTransactions(ctx context.Context, filter ViewFilter) ([]Transaction, error)
	ListUnattributedTransactions(ctx context.Context, projectID ProjectID) ([]Transaction, error)

	// RentalViewA is the category-driven projection: rentals under the
	// ALQUILERES category, meta columns preferred, equipment name not resolved.
	RentalViewA(ctx context.Context, filter ViewFilter) ([]RentalRow, error)

	// RentalViewB is the type-driven projection: Income transactions,
	// transaction columns preferred, equipment name resolved.
	RentalViewB(ctx context.Context, filter ViewFilter) ([]RentalRow, error)

	RentalsWithoutMeta(ctx context.Context) ([]TransactionID, error)
	MetaWithoutRental(ctx context.Context) ([]TransactionID, error)
	DanglingReferences(ctx context.Context) ([]DanglingRef, error)

	ListPayments(ctx context.Context, clientID EntityID) ([]Payment, error)
	ListMaintenance(ctx context.Context, equipmentID EquipmentID) ([]Maintenance, error)
	RentalHoursSince(ctx context.Context, equipmentID EquipmentID, since string) (decimal.Decimal, error)
	ClientBilled(ctx context.Context, clientID EntityID) (decimal.Decimal, error)
	ClientPaid(ctx context.Context, clientID EntityID) (decimal.Decimal, error)
}

// =============================================================================
// WRITER
// =============================================================================

type Writer interface {
	InsertTransaction(ctx context.Context, tx Transaction) error
	InsertRentalMeta(ctx context.Context, meta RentalMeta) error
	InsertPayment(ctx context.Context, p Payment) (PaymentID, error)
	InsertMaintenance(ctx context.Context, m Maintenance) (MaintenanceID, error)

	// UpdateTransactionParties rewrites kind, client and operator of one transaction.
	UpdateTransactionParties(ctx context.Context, id TransactionID, kind TransactionKind, clientID, operatorID *EntityID) (int64, error)

	// BackfillAttachmentPaths copies rental_meta.attachment_path into every
	// transaction whose attachment_path is null and returns the ids touched.
	BackfillAttachmentPaths(ctx context.Context) ([]TransactionID, error)

	RemapOperatorID(ctx context.Context, wrong, correct EntityID) (int64, error)
	RenameSubcategory(ctx context.Context, id SubcategoryID, name string) (int64, error)
	SetTransactionEquipment(ctx context.Context, id TransactionID, equipmentID EquipmentID) (int64, error)

	// ReplaceMaintenance deletes every maintenance row and inserts records.
	ReplaceMaintenance(ctx context.Context, records []Maintenance) error

	SaveReconciliationRun(ctx context.Context, run ReconciliationRun) error
}

// Tx is a Reader and Writer bound to one database transaction.
type Tx interface {
	Reader
	Writer
}

// Store is the entry point: reads run directly, writes run inside WithTx.
type Store interface {
	Reader

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// =============================================================================
// RECONCILIATION RUNS - Audit trail of repair intent
// =============================================================================

type RunStatus string

const (
	RunCompleted  RunStatus = "completed"
	RunIncomplete RunStatus = "incomplete"
	RunFailed     RunStatus = "failed"
)

// ReconciliationRun records one execution of a reconciliation pass.
type ReconciliationRun struct {
	ID          string
	Pass        string
	Params      string // JSON
	Status      RunStatus
	Applied     int
	Unresolved  []TransactionID
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}
