/*
Package ledger provides the domain model of the equipment rental ledger.

PURPOSE:
  Plain records for everything the rental business tracks: projects,
  accounts, categories, subcategories, clients/operators, equipment,
  accounting transactions, rental metadata, payments (abonos) and
  maintenance events. The store persists them; services and the
  reconciliation engine operate on them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: integer ids for catalog rows, UUID text for transactions
  - Transaction: the accounting row (the denormalized read model)
  - RentalMeta: the sidecar row carrying the original rental facts
  - RentalRow: one row of the rental views (View-A / View-B)
  - Money helpers: amounts are decimals rounded to 2 places

TWO SOURCES OF TRUTH:
  A rental is written as one Transaction plus one RentalMeta row. Both carry
  client, operator, equipment, hours, rate, conduce, location and attachment.
  The meta row is the historical ground truth; the Transaction columns are
  what most screens read. Drift between them is detected and repaired by the
  reconcile package, never silently.

SUBCATEGORY BY NAME:
  A rental's subcategory is the Subcategory whose name equals the
  equipment's name. There is no foreign key between them.

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence interfaces
  - rental/service.go: Write path for rentals
*/
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WELL-KNOWN NAMES
// =============================================================================

const (
	// CategoryRentals is the category every rental transaction belongs to.
	CategoryRentals = "ALQUILERES"

	// CategoryOperatorHours is the expense category for paying operator hours.
	CategoryOperatorHours = "PAGO HRS OPERADOR"

	// ManualAmountMarker prefixes the comment of a transaction whose amount
	// was set by hand instead of hours × price_per_hour.
	ManualAmountMarker = "MONTO MANUAL:"
)

// HasManualAmount reports whether comment records an explicit amount override.
func HasManualAmount(comment string) bool {
	return strings.Contains(strings.ToUpper(comment), ManualAmountMarker)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID int64
type AccountID int64
type CategoryID int64
type SubcategoryID int64
type EntityID int64
type EquipmentID int64
type PaymentID int64
type MaintenanceID int64

// TransactionID is a UUID rendered as text.
type TransactionID string

// =============================================================================
// ENUMS
// =============================================================================

type EntityKind string

const (
	EntityClient   EntityKind = "Client"
	EntityOperator EntityKind = "Operator"
)

type TransactionKind string

const (
	KindIncome  TransactionKind = "Income"
	KindExpense TransactionKind = "Expense"
)

// TriggerKind says what drives the next maintenance of a piece of equipment.
type TriggerKind string

const (
	TriggerHours TriggerKind = "HOURS"
	TriggerKM    TriggerKind = "KM"
	TriggerDate  TriggerKind = "DATE"
	TriggerNone  TriggerKind = "NONE"
)

// Default next-maintenance policy used when seeding and recording maintenance.
var (
	DefaultNextTriggerKind  = TriggerHours
	DefaultNextTriggerValue = decimal.NewFromInt(300)
)

// =============================================================================
// CATALOG
// =============================================================================

type Project struct {
	ID              ProjectID
	Name            string
	MainAccountName string
	Currency        string
	Active          bool
}

type Account struct {
	ID   AccountID
	Name string
}

type Category struct {
	ID   CategoryID
	Name string
}

// Subcategory names under the rental category mirror Equipment names.
type Subcategory struct {
	ID   SubcategoryID
	Name string
}

// Entity is a client or an operator.
type Entity struct {
	ID   EntityID
	Name string
	Kind EntityKind
}

type Equipment struct {
	ID                      EquipmentID
	Name                    string
	MaintenanceTriggerKind  TriggerKind
	MaintenanceTriggerValue decimal.Decimal
	Active                  bool
	ProjectID               *ProjectID
}

// =============================================================================
// TRANSACTION + RENTAL META
// =============================================================================

// Transaction is one accounting row. Dates are ISO YYYY-MM-DD local strings.
type Transaction struct {
	ID             TransactionID
	ProjectID      ProjectID
	AccountID      AccountID
	CategoryID     CategoryID
	SubcategoryID  *SubcategoryID
	Kind           TransactionKind
	Description    string
	Comment        string
	Amount         decimal.Decimal
	Date           string
	ClientID       *EntityID
	OperatorID     *EntityID
	EquipmentID    *EquipmentID
	Conduce        string
	Location       string
	Hours          decimal.Decimal
	PricePerHour   decimal.Decimal
	Paid           bool
	Kilometers     decimal.Decimal
	AttachmentPath *string
}

// RentalMeta is the sidecar row of a rental transaction.
type RentalMeta struct {
	TransactionID  TransactionID
	ProjectID      ProjectID
	ClientID       *EntityID
	OperatorID     *EntityID
	Hours          decimal.Decimal
	PricePerHour   decimal.Decimal
	Conduce        string
	Location       string
	AttachmentPath *string
	EquipmentID    *EquipmentID
}

// =============================================================================
// PAYMENTS + MAINTENANCE
// =============================================================================

// Payment is an abono: money received from a client.
type Payment struct {
	ID             PaymentID
	ClientID       EntityID
	Date           string
	Amount         decimal.Decimal
	Comment        string
	AppliedInvoice *string
}

type Maintenance struct {
	ID            MaintenanceID
	EquipmentID   EquipmentID
	Date          string
	Description   string
	Kind          string
	Value         decimal.Decimal
	OdometerHours decimal.Decimal
	OdometerKM    decimal.Decimal
	Notes         string
	NextKind      TriggerKind
	NextValue     decimal.Decimal
	NextDate      *string
	CreatedAt     string
}

// =============================================================================
// RENTAL VIEWS
// =============================================================================

// RentalRow is one row of a rental view. Nullable columns are pointers;
// a nil EquipmentName in View-A is expected.
type RentalRow struct {
	ID             TransactionID
	ProjectID      ProjectID
	Date           string
	Kind           TransactionKind
	Description    string
	Amount         *decimal.Decimal
	Paid           *bool
	Conduce        *string
	Location       *string
	Hours          *decimal.Decimal
	PricePerHour   *decimal.Decimal
	ClientName     *string
	OperatorName   *string
	EquipmentName  *string
	AttachmentPath *string
}

// Column names compared between the two rental views.
const (
	ColDate          = "date"
	ColAmount        = "amount"
	ColPaid          = "paid"
	ColConduce       = "conduce"
	ColLocation      = "location"
	ColHours         = "hours"
	ColPricePerHour  = "price_per_hour"
	ColClientName    = "client_name"
	ColOperatorName  = "operator_name"
	ColEquipmentName = "equipment_name"
)

// ComparedColumns is the column set of a view comparison, in report order.
var ComparedColumns = []string{
	ColDate, ColAmount, ColPaid, ColConduce, ColLocation,
	ColHours, ColPricePerHour, ColClientName, ColOperatorName, ColEquipmentName,
}

// Cell returns the normalized text of a column: "" for null, otherwise the
// trimmed string form.
func (r RentalRow) Cell(column string) string {
	switch column {
	case ColDate:
		return strings.TrimSpace(r.Date)
	case ColAmount:
		return decimalCell(r.Amount)
	case ColPaid:
		if r.Paid == nil {
			return ""
		}
		if *r.Paid {
			return "1"
		}
		return "0"
	case ColConduce:
		return stringCell(r.Conduce)
	case ColLocation:
		return stringCell(r.Location)
	case ColHours:
		return decimalCell(r.Hours)
	case ColPricePerHour:
		return decimalCell(r.PricePerHour)
	case ColClientName:
		return stringCell(r.ClientName)
	case ColOperatorName:
		return stringCell(r.OperatorName)
	case ColEquipmentName:
		return stringCell(r.EquipmentName)
	}
	return ""
}

func stringCell(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// =============================================================================
// MONEY
// =============================================================================

// RentalAmount returns round(hours × pricePerHour, 2).
func RentalAmount(hours, pricePerHour decimal.Decimal) decimal.Decimal {
	return hours.Mul(pricePerHour).Round(2)
}

// IDPtr returns a pointer to id, or nil for the zero id.
func IDPtr[T ~int64](id T) *T {
	if id == 0 {
		return nil
	}
	return &id
}

// StrPtr returns a pointer to s, or nil for the empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
