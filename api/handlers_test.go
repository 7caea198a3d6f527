package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/auth"
	"github.com/warp/rental-ledger/config"
	"github.com/warp/rental-ledger/ledgertest"
)

type testServer struct {
	f      ledgertest.Fixture
	router http.Handler
}

func newTestServer(t *testing.T, users *auth.Directory) testServer {
	t.Helper()
	f := ledgertest.New(t)
	h := NewHandler(f.Store, zerolog.Nop(), HandlerOptions{FuzzyThreshold: 85})
	h.now = func() time.Time { return time.Date(2025, 1, 15, 14, 30, 5, 0, time.Local) }
	return testServer{f: f, router: NewRouter(h, zerolog.Nop(), users)}
}

func (s testServer) do(t *testing.T, method, path string, body any, basicAuth ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if len(basicAuth) == 2 {
		req.SetBasicAuth(basicAuth[0], basicAuth[1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func rentalBody() map[string]any {
	return map[string]any{
		"project_id":     8,
		"equipment_id":   1,
		"client_id":      7,
		"operator_id":    3,
		"date":           "2025-01-15",
		"hours":          4,
		"price_per_hour": "2500",
		"conduce":        "A100",
		"location":       "Site-1",
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterRental_HTTP(t *testing.T) {
	s := newTestServer(t, nil)

	// WHEN: a rental is posted
	rec := s.do(t, http.MethodPost, "/api/rentals", rentalBody())

	// THEN: it is created with the computed amount
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[TransactionDTO](t, rec)
	assert.Equal(t, "10000", tx.Amount.String())
	assert.Equal(t, "4 horas de equipo RETROPALA 420D, Cliente ACME", tx.Description)
	require.NotNil(t, tx.SubcategoryID)
	assert.EqualValues(t, 55, *tx.SubcategoryID)

	// AND: both views list it
	for _, path := range []string{"/api/rentals/view-a", "/api/rentals/view-b?project_id=8"} {
		rec = s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[struct {
			Rows []RentalRowDTO `json:"rows"`
		}](t, rec)
		require.Len(t, body.Rows, 1, path)
		assert.Equal(t, tx.ID, body.Rows[0].ID)
	}
}

func TestRegisterRental_ErrorStatus(t *testing.T) {
	s := newTestServer(t, nil)

	body := rentalBody()
	body["equipment_id"] = 99
	rec := s.do(t, http.MethodPost, "/api/rentals", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body = rentalBody()
	body["date"] = "mañana"
	rec = s.do(t, http.MethodPost, "/api/rentals", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed to register rental", decode[ErrorResponse](t, rec).Error)

	require.NoError(t, s.f.Store.DeleteSubcategory(context.Background(), s.f.SubcategoryID))
	rec = s.do(t, http.MethodPost, "/api/rentals", rentalBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "RETROPALA 420D")

	req := httptest.NewRequest(http.MethodPost, "/api/rentals", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = s.do(t, http.MethodGet, "/api/rentals/view-a?project_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentsAndBalance_HTTP(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/rentals", rentalBody()).Code)

	rec := s.do(t, http.MethodPost, "/api/payments", map[string]any{
		"client_id": 7, "date": "2025-01-20", "amount": "2500.50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/clients/7/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decode[map[string]any](t, rec)
	assert.Equal(t, "7499.5", bal["outstanding"])

	rec = s.do(t, http.MethodGet, "/api/clients/x/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconciliation_HTTP(t *testing.T) {
	s := newTestServer(t, nil)
	s.f.InsertRentals(t, "t", 1, nil)
	_, err := s.f.Store.Exec(context.Background(), "UPDATE transactions SET client_id = NULL WHERE id = 't-1'")
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/reconciliation/compare", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cmp := decode[ReportDTO](t, rec)
	assert.Equal(t, []string{"t-1"}, cmp.CommonIDs)
	assert.NotEmpty(t, cmp.Diffs)

	rec = s.do(t, http.MethodPost, "/api/reconciliation/repair", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[ReportDTO](t, rec)
	require.Len(t, rep.Applied, 1)
	assert.Equal(t, "t-1", rep.Applied[0].ID)

	s.f.AddOperator(t, 26, "JUAN DUPLICADO")
	rec = s.do(t, http.MethodPost, "/api/reconciliation/remap-operator", RemapOperatorRequest{WrongID: 3, CorrectID: 26})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows_affected": 1}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/reconciliation/remap-operator", RemapOperatorRequest{WrongID: 3, CorrectID: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reconciliation/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ReportDTO](t, rec).Findings)

	rec = s.do(t, http.MethodGet, "/api/reconciliation/runs?pass=compare", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[struct {
		Runs []RunDTO `json:"runs"`
	}](t, rec)
	// one explicit compare plus the one behind repair
	assert.Len(t, runs.Runs, 2)
}

func TestReportWorkbook_HTTP(t *testing.T) {
	s := newTestServer(t, nil)
	s.f.InsertRentals(t, "t", 2, nil)

	rec := s.do(t, http.MethodGet, "/api/reconciliation/report.xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "reconciliacion_compare_20250115_143005.xlsx")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestReportWorkbook_LogsWriteFailure(t *testing.T) {
	f := ledgertest.New(t)
	f.InsertRentals(t, "t", 1, nil)
	h := NewHandler(f.Store, zerolog.Nop(), HandlerOptions{FuzzyThreshold: 85})

	var logs bytes.Buffer
	log := zerolog.New(&logs)
	req := httptest.NewRequest(http.MethodGet, "/api/reconciliation/report.xlsx", nil)
	req = req.WithContext(log.WithContext(req.Context()))
	w := brokenWriter{httptest.NewRecorder()}

	h.ReportWorkbook(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logs.String(), "Failed to write report")
	assert.Contains(t, logs.String(), "connection reset")
}

func TestRoles_HTTP(t *testing.T) {
	users := auth.NewDirectory(map[string]config.User{
		"admin":  {PasswordHash: auth.HashPassword("a"), Role: "admin"},
		"editor": {PasswordHash: auth.HashPassword("e"), Role: "editor"},
		"visor":  {PasswordHash: auth.HashPassword("v"), Role: "consulta"},
	})
	s := newTestServer(t, users)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		auth       []string
		wantStatus int
	}{
		{"no credentials", http.MethodGet, "/api/projects", nil, nil, http.StatusUnauthorized},
		{"wrong password", http.MethodGet, "/api/projects", nil, []string{"visor", "x"}, http.StatusUnauthorized},
		{"consulta reads", http.MethodGet, "/api/projects", nil, []string{"visor", "v"}, http.StatusOK},
		{"consulta cannot write", http.MethodPost, "/api/rentals", rentalBody(), []string{"visor", "v"}, http.StatusForbidden},
		{"editor writes", http.MethodPost, "/api/rentals", rentalBody(), []string{"editor", "e"}, http.StatusCreated},
		{"editor cannot reconcile", http.MethodPost, "/api/reconciliation/compare", nil, []string{"editor", "e"}, http.StatusForbidden},
		{"admin reconciles", http.MethodPost, "/api/reconciliation/compare", nil, []string{"admin", "a"}, http.StatusOK},
		{"health needs no auth", http.MethodGet, "/healthz", nil, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body, tt.auth...)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}
