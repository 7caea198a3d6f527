/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP adapter. Money and hours travel as decimal
  strings ("10000.00"); requests accept numbers or strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
	"github.com/warp/rental-ledger/rental"
)

// =============================================================================
// REQUESTS
// =============================================================================

type RegisterRentalRequest struct {
	ProjectID      int64            `json:"project_id"`
	EquipmentID    int64            `json:"equipment_id"`
	ClientID       int64            `json:"client_id"`
	OperatorID     int64            `json:"operator_id"`
	Date           string           `json:"date"`
	Hours          decimal.Decimal  `json:"hours"`
	PricePerHour   decimal.Decimal  `json:"price_per_hour"`
	Conduce        string           `json:"conduce"`
	Location       string           `json:"location"`
	AttachmentPath string           `json:"attachment_path,omitempty"`
	Comment        string           `json:"comment,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
}

func (r RegisterRentalRequest) input() rental.Input {
	return rental.Input{
		ProjectID:      ledger.ProjectID(r.ProjectID),
		EquipmentID:    ledger.EquipmentID(r.EquipmentID),
		ClientID:       ledger.EntityID(r.ClientID),
		OperatorID:     ledger.EntityID(r.OperatorID),
		Date:           r.Date,
		Hours:          r.Hours,
		PricePerHour:   r.PricePerHour,
		Conduce:        r.Conduce,
		Location:       r.Location,
		AttachmentPath: r.AttachmentPath,
		Comment:        r.Comment,
		AmountOverride: r.Amount,
	}
}

type OperatorPaymentRequest struct {
	ProjectID    int64           `json:"project_id"`
	OperatorID   int64           `json:"operator_id"`
	EquipmentID  int64           `json:"equipment_id,omitempty"`
	Date         string          `json:"date"`
	Hours        decimal.Decimal `json:"hours"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	Comment      string          `json:"comment,omitempty"`
}

type PaymentRequest struct {
	ClientID       int64           `json:"client_id"`
	Date           string          `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Comment        string          `json:"comment,omitempty"`
	AppliedInvoice string          `json:"applied_invoice,omitempty"`
}

type MaintenanceRequest struct {
	EquipmentID   int64           `json:"equipment_id"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Kind          string          `json:"kind,omitempty"`
	Value         decimal.Decimal `json:"value"`
	OdometerHours decimal.Decimal `json:"odometer_hours"`
	OdometerKM    decimal.Decimal `json:"odometer_km"`
	Notes         string          `json:"notes,omitempty"`
	NextKind      string          `json:"next_kind,omitempty"`
	NextValue     decimal.Decimal `json:"next_value"`
	NextDate      string          `json:"next_date,omitempty"`
}

type RemapOperatorRequest struct {
	WrongID   int64 `json:"wrong_id"`
	CorrectID int64 `json:"correct_id"`
}

type RenameSubcategoryRequest struct {
	SubcategoryID int64  `json:"subcategory_id"`
	Name          string `json:"name"`
}

type SeedMaintenanceRequest struct {
	Date  string                    `json:"date,omitempty"`
	Hours map[int64]decimal.Decimal `json:"hours"`
}

type AttributeRequest struct {
	ProjectID int64 `json:"project_id"`
	DryRun    bool  `json:"dry_run"`
}

type AssignPatternRequest struct {
	Pattern     string `json:"pattern"`
	EquipmentID int64  `json:"equipment_id"`
	ProjectID   int64  `json:"project_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type TransactionDTO struct {
	ID             string          `json:"id"`
	ProjectID      int64           `json:"project_id"`
	SubcategoryID  *int64          `json:"subcategory_id,omitempty"`
	Kind           string          `json:"kind"`
	Description    string          `json:"description"`
	Comment        string          `json:"comment,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date"`
	ClientID       *int64          `json:"client_id,omitempty"`
	OperatorID     *int64          `json:"operator_id,omitempty"`
	EquipmentID    *int64          `json:"equipment_id,omitempty"`
	Hours          decimal.Decimal `json:"hours"`
	PricePerHour   decimal.Decimal `json:"price_per_hour"`
	AttachmentPath *string         `json:"attachment_path,omitempty"`
}

func toTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		ProjectID:      int64(tx.ProjectID),
		SubcategoryID:  int64Ptr(tx.SubcategoryID),
		Kind:           string(tx.Kind),
		Description:    tx.Description,
		Comment:        tx.Comment,
		Amount:         tx.Amount,
		Date:           tx.Date,
		ClientID:       int64Ptr(tx.ClientID),
		OperatorID:     int64Ptr(tx.OperatorID),
		EquipmentID:    int64Ptr(tx.EquipmentID),
		Hours:          tx.Hours,
		PricePerHour:   tx.PricePerHour,
		AttachmentPath: tx.AttachmentPath,
	}
}

func int64Ptr[T ~int64](id *T) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

// RentalRowDTO is one row of a rental view.
type RentalRowDTO struct {
	ID             string           `json:"id"`
	ProjectID      int64            `json:"project_id"`
	Date           string           `json:"date"`
	Kind           string           `json:"kind"`
	Description    string           `json:"description"`
	Amount         *decimal.Decimal `json:"amount"`
	Paid           *bool            `json:"paid"`
	Conduce        *string          `json:"conduce"`
	Location       *string          `json:"location"`
	Hours          *decimal.Decimal `json:"hours"`
	PricePerHour   *decimal.Decimal `json:"price_per_hour"`
	ClientName     *string          `json:"client_name"`
	OperatorName   *string          `json:"operator_name"`
	EquipmentName  *string          `json:"equipment_name"`
	AttachmentPath *string          `json:"attachment_path"`
}

func toRentalRowDTOs(rows []ledger.RentalRow) []RentalRowDTO {
	out := make([]RentalRowDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, RentalRowDTO{
			ID:             string(r.ID),
			ProjectID:      int64(r.ProjectID),
			Date:           r.Date,
			Kind:           string(r.Kind),
			Description:    r.Description,
			Amount:         r.Amount,
			Paid:           r.Paid,
			Conduce:        r.Conduce,
			Location:       r.Location,
			Hours:          r.Hours,
			PricePerHour:   r.PricePerHour,
			ClientName:     r.ClientName,
			OperatorName:   r.OperatorName,
			EquipmentName:  r.EquipmentName,
			AttachmentPath: r.AttachmentPath,
		})
	}
	return out
}

type DiffDTO struct {
	ID     string `json:"id"`
	Column string `json:"column"`
	ValueA string `json:"value_a"`
	ValueB string `json:"value_b"`
}

type FixDTO struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

type FindingDTO struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// ReportDTO is a reconciliation report.
type ReportDTO struct {
	Pass          string       `json:"pass"`
	RowsA         int          `json:"rows_a"`
	RowsB         int          `json:"rows_b"`
	CommonIDs     []string     `json:"common_ids"`
	OnlyA         []string     `json:"only_a"`
	OnlyB         []string     `json:"only_b"`
	Diffs         []DiffDTO    `json:"diffs"`
	ProposedFixes []FixDTO     `json:"proposed_fixes"`
	Applied       []FixDTO     `json:"applied"`
	Unresolved    []string     `json:"unresolved"`
	Findings      []FindingDTO `json:"findings,omitempty"`
	Affected      int64        `json:"rows_affected,omitempty"`
}

func toReportDTO(rep *reconcile.Report) ReportDTO {
	dto := ReportDTO{
		Pass:          rep.Pass,
		RowsA:         rep.RowsA,
		RowsB:         rep.RowsB,
		CommonIDs:     idStrings(rep.CommonIDs),
		OnlyA:         idStrings(rep.OnlyA),
		OnlyB:         idStrings(rep.OnlyB),
		Diffs:         make([]DiffDTO, 0, len(rep.Diffs)),
		ProposedFixes: toFixDTOs(rep.ProposedFixes),
		Applied:       toFixDTOs(rep.Applied),
		Unresolved:    idStrings(rep.Unresolved),
		Affected:      rep.Affected,
	}
	for _, d := range rep.Diffs {
		dto.Diffs = append(dto.Diffs, DiffDTO{ID: string(d.ID), Column: d.Column, ValueA: d.ValueA, ValueB: d.ValueB})
	}
	for _, f := range rep.Findings {
		dto.Findings = append(dto.Findings, FindingDTO{ID: string(f.ID), Kind: f.Kind, Detail: f.Detail})
	}
	return dto
}

func idStrings(ids []ledger.TransactionID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func toFixDTOs(fixes []reconcile.Fix) []FixDTO {
	out := make([]FixDTO, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, FixDTO{ID: string(f.ID), Action: f.Action, Detail: f.Detail})
	}
	return out
}

type RunDTO struct {
	ID          string   `json:"id"`
	Pass        string   `json:"pass"`
	Params      string   `json:"params,omitempty"`
	Status      string   `json:"status"`
	Applied     int      `json:"applied"`
	Unresolved  []string `json:"unresolved"`
	Error       string   `json:"error,omitempty"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

func toRunDTO(run ledger.ReconciliationRun) RunDTO {
	dto := RunDTO{
		ID:         run.ID,
		Pass:       run.Pass,
		Params:     run.Params,
		Status:     string(run.Status),
		Applied:    run.Applied,
		Unresolved: idStrings(run.Unresolved),
		Error:      run.Error,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
	}
	if !run.CompletedAt.IsZero() {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
