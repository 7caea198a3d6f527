// Package ledgertest seeds SQLite stores for tests.
package ledgertest

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/store/sqlite"
)

// Fixture is the canonical rental setup: project 8 booking to account
// "Caja", the ALQUILERES category, equipment RETROPALA 420D with its
// subcategory, client ACME and operator JUAN.
type Fixture struct {
	Store *sqlite.Store

	ProjectID       ledger.ProjectID
	AccountID       ledger.AccountID
	CategoryID      ledger.CategoryID
	OperatorHoursID ledger.CategoryID
	EquipmentID     ledger.EquipmentID
	SubcategoryID   ledger.SubcategoryID
	ClientID        ledger.EntityID
	OperatorID      ledger.EntityID
}

// NewStore opens an in-memory store closed at test cleanup.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// New opens an in-memory store and seeds the fixture.
func New(t testing.TB) Fixture {
	t.Helper()
	return Seed(t, NewStore(t))
}

func Seed(t testing.TB, store *sqlite.Store) Fixture {
	t.Helper()
	ctx := context.Background()

	f := Fixture{
		Store:           store,
		ProjectID:       8,
		AccountID:       1,
		CategoryID:      10,
		OperatorHoursID: 11,
		EquipmentID:     1,
		SubcategoryID:   55,
		ClientID:        7,
		OperatorID:      3,
	}

	_, err := store.CreateAccount(ctx, ledger.Account{ID: f.AccountID, Name: "Caja"})
	require.NoError(t, err)
	_, err = store.CreateProject(ctx, ledger.Project{ID: f.ProjectID, Name: "Obra Norte", MainAccountName: "Caja", Active: true})
	require.NoError(t, err)
	_, err = store.CreateCategory(ctx, ledger.Category{ID: f.CategoryID, Name: ledger.CategoryRentals})
	require.NoError(t, err)
	_, err = store.CreateCategory(ctx, ledger.Category{ID: f.OperatorHoursID, Name: ledger.CategoryOperatorHours})
	require.NoError(t, err)
	_, err = store.CreateEquipment(ctx, ledger.Equipment{
		ID:                      f.EquipmentID,
		Name:                    "RETROPALA 420D",
		MaintenanceTriggerKind:  ledger.TriggerHours,
		MaintenanceTriggerValue: decimal.NewFromInt(300),
		Active:                  true,
	})
	require.NoError(t, err)
	_, err = store.CreateSubcategory(ctx, ledger.Subcategory{ID: f.SubcategoryID, Name: "RETROPALA 420D"})
	require.NoError(t, err)
	_, err = store.CreateEntity(ctx, ledger.Entity{ID: f.ClientID, Name: "ACME", Kind: ledger.EntityClient})
	require.NoError(t, err)
	_, err = store.CreateEntity(ctx, ledger.Entity{ID: f.OperatorID, Name: "JUAN", Kind: ledger.EntityOperator})
	require.NoError(t, err)

	return f
}

// Transaction returns a consistent rental transaction: 4 hours at 2500
// for ACME with JUAN on RETROPALA 420D.
func (f Fixture) Transaction(id ledger.TransactionID) ledger.Transaction {
	hours := decimal.NewFromInt(4)
	price := decimal.NewFromInt(2500)
	subcategoryID := f.SubcategoryID
	clientID := f.ClientID
	operatorID := f.OperatorID
	equipmentID := f.EquipmentID
	return ledger.Transaction{
		ID:            id,
		ProjectID:     f.ProjectID,
		AccountID:     f.AccountID,
		CategoryID:    f.CategoryID,
		SubcategoryID: &subcategoryID,
		Kind:          ledger.KindIncome,
		Description:   "4 horas de equipo RETROPALA 420D, Cliente ACME",
		Amount:        ledger.RentalAmount(hours, price),
		Date:          "2025-01-15",
		ClientID:      &clientID,
		OperatorID:    &operatorID,
		EquipmentID:   &equipmentID,
		Conduce:       "A100",
		Location:      "Site-1",
		Hours:         hours,
		PricePerHour:  price,
	}
}

// Meta mirrors tx into a RentalMeta row.
func Meta(tx ledger.Transaction) ledger.RentalMeta {
	return ledger.RentalMeta{
		TransactionID:  tx.ID,
		ProjectID:      tx.ProjectID,
		ClientID:       tx.ClientID,
		OperatorID:     tx.OperatorID,
		Hours:          tx.Hours,
		PricePerHour:   tx.PricePerHour,
		Conduce:        tx.Conduce,
		Location:       tx.Location,
		AttachmentPath: tx.AttachmentPath,
		EquipmentID:    tx.EquipmentID,
	}
}

// Insert writes tx and, when meta is non-nil, its meta row.
func (f Fixture) Insert(t testing.TB, tx ledger.Transaction, meta *ledger.RentalMeta) {
	t.Helper()
	err := f.Store.WithTx(context.Background(), func(w ledger.Tx) error {
		if err := w.InsertTransaction(context.Background(), tx); err != nil {
			return err
		}
		if meta == nil {
			return nil
		}
		return w.InsertRentalMeta(context.Background(), *meta)
	})
	require.NoError(t, err)
}

// InsertRentals stages n consistent rentals with ids "<prefix>-1".."<prefix>-n".
func (f Fixture) InsertRentals(t testing.TB, prefix string, n int, edit func(i int, tx *ledger.Transaction, meta *ledger.RentalMeta)) []ledger.TransactionID {
	t.Helper()
	ids := make([]ledger.TransactionID, 0, n)
	for i := 1; i <= n; i++ {
		tx := f.Transaction(ledger.TransactionID(fmt.Sprintf("%s-%d", prefix, i)))
		meta := Meta(tx)
		if edit != nil {
			edit(i, &tx, &meta)
		}
		f.Insert(t, tx, &meta)
		ids = append(ids, tx.ID)
	}
	return ids
}

// AddOperator creates an extra operator entity.
func (f Fixture) AddOperator(t testing.TB, id ledger.EntityID, name string) {
	t.Helper()
	_, err := f.Store.CreateEntity(context.Background(), ledger.Entity{ID: id, Name: name, Kind: ledger.EntityOperator})
	require.NoError(t, err)
}

// AddEquipment creates an extra active equipment.
func (f Fixture) AddEquipment(t testing.TB, id ledger.EquipmentID, name string) {
	t.Helper()
	_, err := f.Store.CreateEquipment(context.Background(), ledger.Equipment{ID: id, Name: name, Active: true})
	require.NoError(t, err)
}
