package rental

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// MaintenanceInput records one maintenance event. When NextKind is empty the
// default policy (every 300 hours) applies.
type MaintenanceInput struct {
	EquipmentID   ledger.EquipmentID `validate:"required"`
	Date          string             `validate:"required,datetime=2006-01-02"`
	Description   string             `validate:"max=500"`
	Kind          string
	Value         decimal.Decimal
	OdometerHours decimal.Decimal
	OdometerKM    decimal.Decimal
	Notes         string
	NextKind      ledger.TriggerKind `validate:"omitempty,oneof=HOURS KM DATE NONE"`
	NextValue     decimal.Decimal
	NextDate      string `validate:"omitempty,datetime=2006-01-02"`
}

func (s *Service) RecordMaintenance(ctx context.Context, in MaintenanceInput) (*ledger.Maintenance, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if in.Value.IsNegative() {
		return nil, &ledger.ValidationError{Field: "value", Reason: "must not be negative"}
	}

	m := ledger.Maintenance{
		EquipmentID:   in.EquipmentID,
		Date:          in.Date,
		Description:   in.Description,
		Kind:          in.Kind,
		Value:         in.Value.Round(2),
		OdometerHours: in.OdometerHours,
		OdometerKM:    in.OdometerKM,
		Notes:         in.Notes,
		NextKind:      in.NextKind,
		NextValue:     in.NextValue,
		NextDate:      ledger.StrPtr(in.NextDate),
	}
	if m.NextKind == "" {
		m.NextKind = ledger.DefaultNextTriggerKind
		m.NextValue = ledger.DefaultNextTriggerValue
	}
	if m.NextKind == ledger.TriggerDate && m.NextDate == nil {
		return nil, &ledger.ValidationError{Field: "NextDate", Reason: "required for DATE trigger"}
	}

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		eq, err := tx.GetEquipment(ctx, in.EquipmentID)
		if err != nil {
			return err
		}
		if eq == nil {
			return &ledger.MissingReferenceError{Kind: "equipment", Key: fmt.Sprint(in.EquipmentID)}
		}
		m.ID, err = tx.InsertMaintenance(ctx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("equipment_id", int64(in.EquipmentID)).
		Str("date", in.Date).
		Msg("maintenance recorded")
	return &m, nil
}

// MaintenanceStatus says whether a piece of equipment is due for maintenance.
type MaintenanceStatus struct {
	EquipmentID ledger.EquipmentID
	Last        *ledger.Maintenance
	NextKind    ledger.TriggerKind
	NextValue   decimal.Decimal
	NextDate    *string

	// HoursSince is the rental hours logged after the last maintenance
	// (after the beginning of time when there is none).
	HoursSince decimal.Decimal
	Due        bool
}

// MaintenanceStatus evaluates the trigger of the latest maintenance record,
// falling back to the equipment's own trigger when none exists. KM triggers
// are never reported due: rentals do not carry odometer readings.
func (s *Service) MaintenanceStatus(ctx context.Context, equipmentID ledger.EquipmentID) (*MaintenanceStatus, error) {
	eq, err := s.store.GetEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	if eq == nil {
		return nil, &ledger.MissingReferenceError{Kind: "equipment", Key: fmt.Sprint(equipmentID)}
	}

	history, err := s.store.ListMaintenance(ctx, equipmentID)
	if err != nil {
		return nil, err
	}

	st := &MaintenanceStatus{
		EquipmentID: equipmentID,
		NextKind:    eq.MaintenanceTriggerKind,
		NextValue:   eq.MaintenanceTriggerValue,
	}
	since := ""
	if len(history) > 0 {
		last := history[0]
		st.Last = &last
		st.NextKind = last.NextKind
		st.NextValue = last.NextValue
		st.NextDate = last.NextDate
		since = last.Date
	}

	st.HoursSince, err = s.store.RentalHoursSince(ctx, equipmentID, since)
	if err != nil {
		return nil, err
	}

	switch st.NextKind {
	case ledger.TriggerHours:
		st.Due = st.NextValue.IsPositive() && st.HoursSince.GreaterThanOrEqual(st.NextValue)
	case ledger.TriggerDate:
		today := s.now().Format("2006-01-02")
		st.Due = st.NextDate != nil && *st.NextDate <= today
	}
	return st, nil
}
