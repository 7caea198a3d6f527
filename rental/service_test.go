package rental_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/ledgertest"
	"github.com/warp/rental-ledger/rental"
)

func rentalInput(f ledgertest.Fixture) rental.Input {
	return rental.Input{
		ProjectID:    f.ProjectID,
		EquipmentID:  f.EquipmentID,
		ClientID:     f.ClientID,
		OperatorID:   f.OperatorID,
		Date:         "2025-01-15",
		Hours:        decimal.NewFromInt(4),
		PricePerHour: decimal.NewFromInt(2500),
		Conduce:      "A100",
		Location:     "Site-1",
	}
}

func countRows(t *testing.T, f ledgertest.Fixture, table string) int64 {
	t.Helper()
	row, err := f.Store.FetchOne(context.Background(), "SELECT COUNT(*) AS n FROM "+table)
	require.NoError(t, err)
	return row["n"].(int64)
}

func TestRegisterRental_WritesBothRows(t *testing.T) {
	// GIVEN: the canonical fixture
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)
	ctx := context.Background()

	// WHEN: a 4h rental at 2500/h is registered
	tx, err := svc.RegisterRental(ctx, rentalInput(f))
	require.NoError(t, err)

	// THEN: amount, description, subcategory and kind follow the rental rules
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(10000)), "amount %s", tx.Amount)
	assert.Equal(t, "4 horas de equipo RETROPALA 420D, Cliente ACME", tx.Description)
	require.NotNil(t, tx.SubcategoryID)
	assert.Equal(t, f.SubcategoryID, *tx.SubcategoryID)
	assert.Equal(t, ledger.KindIncome, tx.Kind)
	assert.Equal(t, f.CategoryID, tx.CategoryID)
	assert.Equal(t, f.AccountID, tx.AccountID)

	// AND: the meta row mirrors the transaction
	meta, err := f.Store.GetRentalMeta(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, f.ClientID, *meta.ClientID)
	assert.Equal(t, f.OperatorID, *meta.OperatorID)
	assert.Equal(t, f.EquipmentID, *meta.EquipmentID)
	assert.Equal(t, "A100", meta.Conduce)
	assert.True(t, meta.Hours.Equal(decimal.NewFromInt(4)))

	// AND: both views see exactly one row
	a, err := f.Store.RentalViewA(ctx, ledger.ViewFilter{ProjectID: f.ProjectID})
	require.NoError(t, err)
	b, err := f.Store.RentalViewB(ctx, ledger.ViewFilter{ProjectID: f.ProjectID})
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, tx.ID, a[0].ID)
	assert.Equal(t, tx.ID, b[0].ID)
}

func TestRegisterRental_MissingSubcategoryWritesNothing(t *testing.T) {
	// GIVEN: the equipment's subcategory was removed
	f := ledgertest.New(t)
	ctx := context.Background()
	require.NoError(t, f.Store.DeleteSubcategory(ctx, f.SubcategoryID))
	svc := rental.NewService(f.Store)

	// WHEN: a rental is registered
	_, err := svc.RegisterRental(ctx, rentalInput(f))

	// THEN: it is refused and neither row exists
	require.ErrorIs(t, err, ledger.ErrMissingSubcategory)
	var missing *ledger.MissingSubcategoryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "RETROPALA 420D", missing.EquipmentName)
	assert.EqualValues(t, 0, countRows(t, f, "transactions"))
	assert.EqualValues(t, 0, countRows(t, f, "rental_meta"))
}

func TestRegisterRental_Validation(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)
	ctx := context.Background()

	tests := []struct {
		name  string
		edit  func(*rental.Input)
		field string
	}{
		{"missing client", func(in *rental.Input) { in.ClientID = 0 }, "ClientID"},
		{"bad date", func(in *rental.Input) { in.Date = "15/01/2025" }, "Date"},
		{"zero hours", func(in *rental.Input) { in.Hours = decimal.Zero }, "hours"},
		{"negative price", func(in *rental.Input) { in.PricePerHour = decimal.NewFromInt(-1) }, "price_per_hour"},
		{"negative override", func(in *rental.Input) {
			v := decimal.NewFromInt(-5)
			in.AmountOverride = &v
		}, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := rentalInput(f)
			tt.edit(&in)

			_, err := svc.RegisterRental(ctx, in)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.EqualValues(t, 0, countRows(t, f, "transactions"))
}

func TestRegisterRental_UnknownReferences(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)
	ctx := context.Background()

	in := rentalInput(f)
	in.ClientID = f.OperatorID // an operator is not a client
	_, err := svc.RegisterRental(ctx, in)
	var missing *ledger.MissingReferenceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "client", missing.Kind)

	in = rentalInput(f)
	in.EquipmentID = 99
	_, err = svc.RegisterRental(ctx, in)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "equipment", missing.Kind)

	in = rentalInput(f)
	in.ProjectID = 404
	_, err = svc.RegisterRental(ctx, in)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "project", missing.Kind)
}

func TestRegisterRental_AmountOverride(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)

	in := rentalInput(f)
	override := decimal.RequireFromString("9500.456")
	in.AmountOverride = &override
	in.Comment = "descuento"

	tx, err := svc.RegisterRental(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "9500.46", tx.Amount.StringFixed(2))
	assert.Equal(t, "MONTO MANUAL: 9500.46 | descuento", tx.Comment)
	assert.True(t, ledger.HasManualAmount(tx.Comment))
}

func TestRegisterRental_OptionalOperator(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)

	in := rentalInput(f)
	in.OperatorID = 0
	tx, err := svc.RegisterRental(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, tx.OperatorID)

	meta, err := f.Store.GetRentalMeta(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Nil(t, meta.OperatorID)
}

func TestRegisterRental_AttachmentRelativeToBaseDir(t *testing.T) {
	f := ledgertest.New(t)
	base := t.TempDir()
	svc := rental.NewService(f.Store, rental.WithAttachmentBaseDir(base))

	in := rentalInput(f)
	in.AttachmentPath = filepath.Join(base, "conduces", "A100.pdf")
	tx, err := svc.RegisterRental(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, tx.AttachmentPath)
	assert.Equal(t, "conduces/A100.pdf", *tx.AttachmentPath)
	assert.Equal(t, in.AttachmentPath, svc.ResolveAttachment(*tx.AttachmentPath))
}

func TestRegisterOperatorPayment(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)

	tx, err := svc.RegisterOperatorPayment(context.Background(), rental.OperatorPaymentInput{
		ProjectID:    f.ProjectID,
		OperatorID:   f.OperatorID,
		EquipmentID:  f.EquipmentID,
		Date:         "2025-01-16",
		Hours:        decimal.NewFromInt(4),
		PricePerHour: decimal.NewFromInt(300),
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.KindExpense, tx.Kind)
	assert.Equal(t, f.OperatorHoursID, tx.CategoryID)
	assert.Equal(t, "Pago 4 horas operador JUAN", tx.Description)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(1200)))

	// operator payments are not rentals
	meta, err := f.Store.GetRentalMeta(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Nil(t, meta)
	a, err := f.Store.RentalViewA(context.Background(), ledger.ViewFilter{})
	require.NoError(t, err)
	assert.Empty(t, a)
}

func TestPaymentsAndBalance(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)
	ctx := context.Background()

	_, err := svc.RegisterRental(ctx, rentalInput(f))
	require.NoError(t, err)

	p, err := svc.RecordPayment(ctx, rental.PaymentInput{
		ClientID: f.ClientID,
		Date:     "2025-01-20",
		Amount:   decimal.RequireFromString("4000.004"),
	})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "4000.00", p.Amount.StringFixed(2))

	bal, err := svc.ClientBalance(ctx, f.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "ACME", bal.ClientName)
	assert.Equal(t, "10000.00", bal.Billed.StringFixed(2))
	assert.Equal(t, "4000.00", bal.Paid.StringFixed(2))
	assert.Equal(t, "6000.00", bal.Outstanding.StringFixed(2))

	_, err = svc.RecordPayment(ctx, rental.PaymentInput{ClientID: 404, Date: "2025-01-20", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ledger.ErrMissingReference)

	_, err = svc.ClientBalance(ctx, f.OperatorID)
	assert.ErrorIs(t, err, ledger.ErrMissingReference)
}

func TestMaintenanceStatus(t *testing.T) {
	f := ledgertest.New(t)
	today := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	svc := rental.NewService(f.Store, rental.WithClock(func() time.Time { return today }))
	ctx := context.Background()

	t.Run("falls back to equipment trigger", func(t *testing.T) {
		st, err := svc.MaintenanceStatus(ctx, f.EquipmentID)
		require.NoError(t, err)
		assert.Nil(t, st.Last)
		assert.Equal(t, ledger.TriggerHours, st.NextKind)
		assert.True(t, st.NextValue.Equal(decimal.NewFromInt(300)))
		assert.False(t, st.Due)
	})

	t.Run("hours trigger becomes due", func(t *testing.T) {
		_, err := svc.RecordMaintenance(ctx, rental.MaintenanceInput{
			EquipmentID: f.EquipmentID,
			Date:        "2025-01-10",
			Description: "cambio de aceite",
			NextKind:    ledger.TriggerHours,
			NextValue:   decimal.NewFromInt(8),
		})
		require.NoError(t, err)
		f.InsertRentals(t, "m", 2, nil)

		st, err := svc.MaintenanceStatus(ctx, f.EquipmentID)
		require.NoError(t, err)
		require.NotNil(t, st.Last)
		assert.True(t, st.HoursSince.Equal(decimal.NewFromInt(8)), "hours since %s", st.HoursSince)
		assert.True(t, st.Due)
	})

	t.Run("date trigger uses the clock", func(t *testing.T) {
		_, err := svc.RecordMaintenance(ctx, rental.MaintenanceInput{
			EquipmentID: f.EquipmentID,
			Date:        "2025-02-01",
			NextKind:    ledger.TriggerDate,
			NextDate:    "2025-03-01",
		})
		require.NoError(t, err)

		st, err := svc.MaintenanceStatus(ctx, f.EquipmentID)
		require.NoError(t, err)
		assert.Equal(t, ledger.TriggerDate, st.NextKind)
		assert.True(t, st.Due)
	})
}

func TestRecordMaintenance_Validation(t *testing.T) {
	f := ledgertest.New(t)
	svc := rental.NewService(f.Store)
	ctx := context.Background()

	m, err := svc.RecordMaintenance(ctx, rental.MaintenanceInput{EquipmentID: f.EquipmentID, Date: "2025-01-10"})
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultNextTriggerKind, m.NextKind)
	assert.True(t, m.NextValue.Equal(ledger.DefaultNextTriggerValue))

	_, err = svc.RecordMaintenance(ctx, rental.MaintenanceInput{EquipmentID: f.EquipmentID, Date: "2025-01-10", NextKind: "WEEKS"})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.RecordMaintenance(ctx, rental.MaintenanceInput{EquipmentID: f.EquipmentID, Date: "2025-01-10", NextKind: ledger.TriggerDate})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.RecordMaintenance(ctx, rental.MaintenanceInput{EquipmentID: 99, Date: "2025-01-10"})
	assert.ErrorIs(t, err, ledger.ErrMissingReference)
}
