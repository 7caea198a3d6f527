package rental

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// OperatorPaymentInput describes a payment of worked hours to an operator.
type OperatorPaymentInput struct {
	ProjectID    ledger.ProjectID `validate:"required"`
	OperatorID   ledger.EntityID  `validate:"required"`
	EquipmentID  ledger.EquipmentID
	Date         string `validate:"required,datetime=2006-01-02"`
	Hours        decimal.Decimal
	PricePerHour decimal.Decimal
	Comment      string
}

// RegisterOperatorPayment books operator hours as an Expense under
// PAGO HRS OPERADOR. No rental_meta row is written for expenses.
func (s *Service) RegisterOperatorPayment(ctx context.Context, in OperatorPaymentInput) (*ledger.Transaction, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if err := positive("hours", in.Hours); err != nil {
		return nil, err
	}
	if err := positive("price_per_hour", in.PricePerHour); err != nil {
		return nil, err
	}

	var created ledger.Transaction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		refs, err := resolveBooking(ctx, tx, in.ProjectID, ledger.CategoryOperatorHours)
		if err != nil {
			return err
		}
		operator, err := requireEntity(ctx, tx, in.OperatorID, ledger.EntityOperator)
		if err != nil {
			return err
		}

		var (
			equipmentID   *ledger.EquipmentID
			subcategoryID *ledger.SubcategoryID
		)
		if in.EquipmentID != 0 {
			equipment, err := tx.GetEquipment(ctx, in.EquipmentID)
			if err != nil {
				return err
			}
			if equipment == nil {
				return &ledger.MissingReferenceError{Kind: "equipment", Key: fmt.Sprint(in.EquipmentID)}
			}
			equipmentID = &equipment.ID
			sub, err := tx.GetSubcategoryByName(ctx, equipment.Name)
			if err != nil {
				return err
			}
			if sub != nil {
				subcategoryID = &sub.ID
			}
		}

		operatorID := operator.ID
		created = ledger.Transaction{
			ID:            s.newID(),
			ProjectID:     in.ProjectID,
			AccountID:     refs.account.ID,
			CategoryID:    refs.category.ID,
			SubcategoryID: subcategoryID,
			Kind:          ledger.KindExpense,
			Description:   fmt.Sprintf("Pago %s horas operador %s", in.Hours.String(), operator.Name),
			Comment:       in.Comment,
			Amount:        ledger.RentalAmount(in.Hours, in.PricePerHour),
			Date:          in.Date,
			OperatorID:    &operatorID,
			EquipmentID:   equipmentID,
			Hours:         in.Hours,
			PricePerHour:  in.PricePerHour,
		}
		return tx.InsertTransaction(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", string(created.ID)).
		Int64("operator_id", int64(in.OperatorID)).
		Str("amount", created.Amount.StringFixed(2)).
		Msg("operator payment registered")
	return &created, nil
}
