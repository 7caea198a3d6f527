/*
handlers.go - HTTP API handlers for the rental ledger

PURPOSE:
  Exposes rental registration, the two rental views, payments, maintenance
  and the reconciliation passes over REST. Handlers parse and validate the
  request, call the service, and map errors to status codes.

ENDPOINTS:
  Catalog (consulta):
    GET    /api/projects                       List projects
    GET    /api/equipment                      List equipment (?active=1)
    GET    /api/entities                       List clients/operators (?kind=)

  Rentals:
    POST   /api/rentals                        Register a rental (editor)
    GET    /api/rentals/view-a                 Category-driven view (?project_id=)
    GET    /api/rentals/view-b                 Type-driven view (?project_id=)
    POST   /api/operator-payments              Pay operator hours (editor)

  Clients:
    POST   /api/payments                       Record an abono (editor)
    GET    /api/clients/{id}/payments          Payment history
    GET    /api/clients/{id}/balance           Billed, paid, outstanding

  Maintenance:
    POST   /api/maintenance                    Record maintenance (editor)
    GET    /api/equipment/{id}/maintenance     History and due status

  Reconciliation (admin):
    POST   /api/reconciliation/compare
    POST   /api/reconciliation/repair          compare + repair_from_meta
    POST   /api/reconciliation/backfill-attachments
    POST   /api/reconciliation/remap-operator
    POST   /api/reconciliation/rename-subcategory
    POST   /api/reconciliation/seed-maintenance
    POST   /api/reconciliation/attribute
    POST   /api/reconciliation/assign-pattern
    GET    /api/reconciliation/audit
    GET    /api/reconciliation/runs
    GET    /api/reconciliation/report.xlsx     compare, rendered as workbook

ERROR HANDLING:
  - 400: Validation errors, missing subcategory
  - 401/403: Authentication / role
  - 404: Missing project, account, category, entity, equipment
  - 503: Database held by another writer
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/attribution"
	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/reconcile"
	"github.com/warp/rental-ledger/rental"
	"github.com/warp/rental-ledger/report"
	"github.com/warp/rental-ledger/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Rentals    *rental.Service
	Engine     *reconcile.Engine
	Attributor *attribution.Attributor

	// DefaultProjectID scopes views and passes when no project_id is given.
	DefaultProjectID ledger.ProjectID

	now func() time.Time
}

// NewHandler wires the services on top of store.
func NewHandler(store *sqlite.Store, log zerolog.Logger, opts HandlerOptions) *Handler {
	engine := reconcile.NewEngine(store, reconcile.WithLogger(log))
	return &Handler{
		Store: store,
		Rentals: rental.NewService(store,
			rental.WithLogger(log),
			rental.WithAttachmentBaseDir(opts.AttachmentBaseDir),
		),
		Engine: engine,
		Attributor: attribution.New(store, engine,
			attribution.WithThreshold(opts.FuzzyThreshold),
			attribution.WithLogger(log),
		),
		DefaultProjectID: opts.DefaultProjectID,
		now:              time.Now,
	}
}

// HandlerOptions carries the configuration the handlers need.
type HandlerOptions struct {
	AttachmentBaseDir string
	FuzzyThreshold    int
	DefaultProjectID  ledger.ProjectID
}

// =============================================================================
// CATALOG
// =============================================================================

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (h *Handler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "1"
	equipment, err := h.Store.ListEquipment(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, r, "Failed to list equipment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipment": equipment})
}

func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	kind := ledger.EntityKind(r.URL.Query().Get("kind"))
	entities, err := h.Store.ListEntities(r.Context(), kind)
	if err != nil {
		writeDomainError(w, r, "Failed to list entities", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

// =============================================================================
// RENTALS
// =============================================================================

// RegisterRental creates one rental transaction with its meta row.
// POST /api/rentals
func (h *Handler) RegisterRental(w http.ResponseWriter, r *http.Request) {
	var req RegisterRentalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == 0 {
		req.ProjectID = int64(h.DefaultProjectID)
	}

	tx, err := h.Rentals.RegisterRental(r.Context(), req.input())
	if err != nil {
		writeDomainError(w, r, "Failed to register rental", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ViewA returns the category-driven rental view.
// GET /api/rentals/view-a
func (h *Handler) ViewA(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.viewFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.Store.RentalViewA(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to read view A", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": toRentalRowDTOs(rows)})
}

// ViewB returns the type-driven rental view.
// GET /api/rentals/view-b
func (h *Handler) ViewB(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.viewFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.Store.RentalViewB(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to read view B", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": toRentalRowDTOs(rows)})
}

// RegisterOperatorPayment books operator hours as an expense.
// POST /api/operator-payments
func (h *Handler) RegisterOperatorPayment(w http.ResponseWriter, r *http.Request) {
	var req OperatorPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == 0 {
		req.ProjectID = int64(h.DefaultProjectID)
	}

	tx, err := h.Rentals.RegisterOperatorPayment(r.Context(), rental.OperatorPaymentInput{
		ProjectID:    ledger.ProjectID(req.ProjectID),
		OperatorID:   ledger.EntityID(req.OperatorID),
		EquipmentID:  ledger.EquipmentID(req.EquipmentID),
		Date:         req.Date,
		Hours:        req.Hours,
		PricePerHour: req.PricePerHour,
		Comment:      req.Comment,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to register operator payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// CLIENTS
// =============================================================================

// RecordPayment stores an abono.
// POST /api/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.Rentals.RecordPayment(r.Context(), rental.PaymentInput{
		ClientID:       ledger.EntityID(req.ClientID),
		Date:           req.Date,
		Amount:         req.Amount,
		Comment:        req.Comment,
		AppliedInvoice: req.AppliedInvoice,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPayments returns a client's payments.
// GET /api/clients/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payments, err := h.Store.ListPayments(r.Context(), ledger.EntityID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to list payments", err)
		return
	}
	if payments == nil {
		payments = []ledger.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// ClientBalance returns billed, paid and outstanding amounts.
// GET /api/clients/{id}/balance
func (h *Handler) ClientBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bal, err := h.Rentals.ClientBalance(r.Context(), ledger.EntityID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id":   bal.ClientID,
		"client_name": bal.ClientName,
		"billed":      bal.Billed,
		"paid":        bal.Paid,
		"outstanding": bal.Outstanding,
	})
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// RecordMaintenance stores one maintenance event.
// POST /api/maintenance
func (h *Handler) RecordMaintenance(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.Rentals.RecordMaintenance(r.Context(), rental.MaintenanceInput{
		EquipmentID:   ledger.EquipmentID(req.EquipmentID),
		Date:          req.Date,
		Description:   req.Description,
		Kind:          req.Kind,
		Value:         req.Value,
		OdometerHours: req.OdometerHours,
		OdometerKM:    req.OdometerKM,
		Notes:         req.Notes,
		NextKind:      ledger.TriggerKind(req.NextKind),
		NextValue:     req.NextValue,
		NextDate:      req.NextDate,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to record maintenance", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// MaintenanceStatus returns the history and due status of one equipment.
// GET /api/equipment/{id}/maintenance
func (h *Handler) MaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	st, err := h.Rentals.MaintenanceStatus(ctx, ledger.EquipmentID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to compute maintenance status", err)
		return
	}
	history, err := h.Store.ListMaintenance(ctx, ledger.EquipmentID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to list maintenance", err)
		return
	}
	if history == nil {
		history = []ledger.Maintenance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": st.EquipmentID,
		"next_kind":    st.NextKind,
		"next_value":   st.NextValue,
		"next_date":    st.NextDate,
		"hours_since":  st.HoursSince,
		"due":          st.Due,
		"history":      history,
	})
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Compare runs the view comparison.
// POST /api/reconciliation/compare
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.viewFilter(w, r)
	if !ok {
		return
	}
	rep, err := h.Engine.Compare(r.Context(), filter)
	writeReport(w, r, rep, err)
}

// Repair compares the views and repairs parties from rental_meta.
// POST /api/reconciliation/repair
func (h *Handler) Repair(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.viewFilter(w, r)
	if !ok {
		return
	}
	cmp, err := h.Engine.Compare(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to compare views", err)
		return
	}
	rep, err := h.Engine.RepairFromMeta(r.Context(), cmp)
	writeReport(w, r, rep, err)
}

// BackfillAttachments copies attachment paths from rental_meta.
// POST /api/reconciliation/backfill-attachments
func (h *Handler) BackfillAttachments(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Engine.BackfillAttachmentPaths(r.Context())
	writeReport(w, r, rep, err)
}

// RemapOperator moves transactions from one operator id to another.
// POST /api/reconciliation/remap-operator
func (h *Handler) RemapOperator(w http.ResponseWriter, r *http.Request) {
	var req RemapOperatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.Engine.RemapOperatorID(r.Context(), ledger.EntityID(req.WrongID), ledger.EntityID(req.CorrectID))
	if err != nil {
		writeDomainError(w, r, "Failed to remap operator", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows_affected": n})
}

// RenameSubcategory renames one subcategory globally.
// POST /api/reconciliation/rename-subcategory
func (h *Handler) RenameSubcategory(w http.ResponseWriter, r *http.Request) {
	var req RenameSubcategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.Engine.RenameSubcategory(r.Context(), ledger.SubcategoryID(req.SubcategoryID), req.Name)
	writeReport(w, r, rep, err)
}

// SeedMaintenance replaces the maintenance table with initial records.
// POST /api/reconciliation/seed-maintenance
func (h *Handler) SeedMaintenance(w http.ResponseWriter, r *http.Request) {
	var req SeedMaintenanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hours := make(map[ledger.EquipmentID]decimal.Decimal, len(req.Hours))
	for id, v := range req.Hours {
		hours[ledger.EquipmentID(id)] = v
	}
	rep, err := h.Engine.SeedInitialMaintenance(r.Context(), hours, req.Date)
	writeReport(w, r, rep, err)
}

// Attribute runs fuzzy equipment attribution.
// POST /api/reconciliation/attribute
func (h *Handler) Attribute(w http.ResponseWriter, r *http.Request) {
	var req AttributeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	projectID := ledger.ProjectID(req.ProjectID)
	if projectID == 0 {
		projectID = h.DefaultProjectID
	}
	rep, err := h.Attributor.Run(r.Context(), projectID, req.DryRun)
	writeReport(w, r, rep, err)
}

// AssignPattern assigns one equipment to every description matching a pattern.
// POST /api/reconciliation/assign-pattern
func (h *Handler) AssignPattern(w http.ResponseWriter, r *http.Request) {
	var req AssignPatternRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	projectID := ledger.ProjectID(req.ProjectID)
	if projectID == 0 {
		projectID = h.DefaultProjectID
	}
	rep, err := h.Attributor.AssignIfPattern(r.Context(), req.Pattern, ledger.EquipmentID(req.EquipmentID), projectID)
	writeReport(w, r, rep, err)
}

// Audit runs the report-only audits and merges their findings.
// GET /api/reconciliation/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.viewFilter(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	merged := &reconcile.Report{Pass: "audit"}

	for _, run := range []func() (*reconcile.Report, error){
		func() (*reconcile.Report, error) { return h.Engine.AuditDuality(ctx) },
		func() (*reconcile.Report, error) { return h.Engine.AuditAmounts(ctx, filter) },
		func() (*reconcile.Report, error) { return h.Engine.FindDanglingReferences(ctx) },
	} {
		rep, err := run()
		if err != nil {
			writeDomainError(w, r, "Audit failed", err)
			return
		}
		merged.Findings = append(merged.Findings, rep.Findings...)
	}
	writeJSON(w, http.StatusOK, toReportDTO(merged))
}

// ListReconciliationRuns returns reconciliation run history.
// GET /api/reconciliation/runs
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.Store.ListReconciliationRuns(r.Context(), r.URL.Query().Get("pass"), limit)
	if err != nil {
		writeDomainError(w, r, "Failed to get reconciliation runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// ReportWorkbook compares the views and returns the workbook.
// GET /api/reconciliation/report.xlsx
func (h *Handler) ReportWorkbook(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.viewFilter(w, r)
	if !ok {
		return
	}
	rep, err := h.Engine.Compare(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to compare views", err)
		return
	}

	now := h.now()
	data, err := report.Bytes(rep, now)
	if err != nil {
		writeDomainError(w, r, "Failed to render report", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(rep.Pass, now)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to write report")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) viewFilter(w http.ResponseWriter, r *http.Request) (ledger.ViewFilter, bool) {
	filter := ledger.ViewFilter{ProjectID: h.DefaultProjectID}
	raw := r.URL.Query().Get("project_id")
	if raw == "" {
		return filter, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "Invalid project_id", err)
		return filter, false
	}
	filter.ProjectID = ledger.ProjectID(id)
	return filter, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeReport(w http.ResponseWriter, r *http.Request, rep *reconcile.Report, err error) {
	if err != nil {
		writeDomainError(w, r, "Reconciliation pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep))
}

// writeDomainError maps the ledger error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsRetryable(err):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrReconciliationIncomplete):
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}
