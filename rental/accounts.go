package rental

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// PaymentInput is an abono received from a client.
type PaymentInput struct {
	ClientID       ledger.EntityID `validate:"required"`
	Date           string          `validate:"required,datetime=2006-01-02"`
	Amount         decimal.Decimal
	Comment        string
	AppliedInvoice string
}

func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*ledger.Payment, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if err := positive("amount", in.Amount); err != nil {
		return nil, err
	}

	p := ledger.Payment{
		ClientID:       in.ClientID,
		Date:           in.Date,
		Amount:         in.Amount.Round(2),
		Comment:        in.Comment,
		AppliedInvoice: ledger.StrPtr(in.AppliedInvoice),
	}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := requireEntity(ctx, tx, in.ClientID, ledger.EntityClient); err != nil {
			return err
		}
		id, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("client_id", int64(in.ClientID)).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("payment recorded")
	return &p, nil
}

// Balance is what a client has been billed, what they paid, and the rest.
type Balance struct {
	ClientID    ledger.EntityID
	ClientName  string
	Billed      decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
}

// ClientBalance sums Income billed to the client minus abonos received.
func (s *Service) ClientBalance(ctx context.Context, clientID ledger.EntityID) (*Balance, error) {
	client, err := s.store.GetEntity(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil || client.Kind != ledger.EntityClient {
		return nil, &ledger.MissingReferenceError{Kind: "client", Key: fmt.Sprint(clientID)}
	}

	billed, err := s.store.ClientBilled(ctx, clientID)
	if err != nil {
		return nil, err
	}
	paid, err := s.store.ClientPaid(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		ClientID:    clientID,
		ClientName:  client.Name,
		Billed:      billed.Round(2),
		Paid:        paid.Round(2),
		Outstanding: billed.Sub(paid).Round(2),
	}, nil
}
