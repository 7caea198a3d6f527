/*
Package rental implements the write path of the rental ledger.

PURPOSE:
  Registers rentals (alquileres) as one Transaction plus one RentalMeta row,
  registers operator-hour payments, records payments (abonos) and
  maintenance, and answers the small derived questions the screens ask
  (client balance, maintenance due).

RENTAL INVARIANTS ENFORCED HERE:
  - Rental duality: the Transaction and its RentalMeta are written in one
    store transaction. Both exist or neither does.
  - Subcategory by name: the rental's subcategory is the one named exactly
    like the equipment. If none exists the rental is refused with
    MissingSubcategoryError; subcategories are created by a person, never
    here.
  - Metadata mirroring: client, operator, equipment, hours, rate, conduce,
    location and attachment are written identically to both rows.
  - Amount: round(hours × price_per_hour, 2) unless an explicit override is
    given, in which case the comment records it.
  - Kind: rentals are Income, operator-hour payments are Expense.

DESCRIPTION FORMAT:
  "{hours} horas de equipo {equipment}, Cliente {client}"

SEE ALSO:
  - ledger/store.go: Store and Tx interfaces
  - reconcile/engine.go: Detects and repairs drift between the two rows
*/
package rental

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store             ledger.Store
	validate          *validator.Validate
	log               zerolog.Logger
	attachmentBaseDir string
	now               func() time.Time
	newID             func() ledger.TransactionID
}

type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithAttachmentBaseDir makes attachment paths under dir stored relative to it.
func WithAttachmentBaseDir(dir string) Option {
	return func(s *Service) { s.attachmentBaseDir = dir }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store ledger.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      zerolog.Nop(),
		now:      time.Now,
		newID:    func() ledger.TransactionID { return ledger.TransactionID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// REGISTER RENTAL
// =============================================================================

// Input describes one rental to register.
type Input struct {
	ProjectID      ledger.ProjectID   `validate:"required"`
	EquipmentID    ledger.EquipmentID `validate:"required"`
	ClientID       ledger.EntityID    `validate:"required"`
	OperatorID     ledger.EntityID    // optional
	Date           string             `validate:"required,datetime=2006-01-02"`
	Hours          decimal.Decimal
	PricePerHour   decimal.Decimal
	Conduce        string `validate:"max=64"`
	Location       string `validate:"max=200"`
	AttachmentPath string
	Comment        string

	// AmountOverride replaces hours × price_per_hour. The override is
	// recorded in the comment.
	AmountOverride *decimal.Decimal
}

// RegisterRental writes one rental transaction and its meta row atomically.
func (s *Service) RegisterRental(ctx context.Context, in Input) (*ledger.Transaction, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if err := positive("hours", in.Hours); err != nil {
		return nil, err
	}
	if err := positive("price_per_hour", in.PricePerHour); err != nil {
		return nil, err
	}
	if in.AmountOverride != nil && in.AmountOverride.IsNegative() {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must not be negative"}
	}

	var created ledger.Transaction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		refs, err := resolveBooking(ctx, tx, in.ProjectID, ledger.CategoryRentals)
		if err != nil {
			return err
		}

		equipment, err := tx.GetEquipment(ctx, in.EquipmentID)
		if err != nil {
			return err
		}
		if equipment == nil {
			return &ledger.MissingReferenceError{Kind: "equipment", Key: fmt.Sprint(in.EquipmentID)}
		}
		sub, err := tx.GetSubcategoryByName(ctx, equipment.Name)
		if err != nil {
			return err
		}
		if sub == nil {
			return &ledger.MissingSubcategoryError{EquipmentID: equipment.ID, EquipmentName: equipment.Name}
		}

		client, err := requireEntity(ctx, tx, in.ClientID, ledger.EntityClient)
		if err != nil {
			return err
		}
		var operatorID *ledger.EntityID
		if in.OperatorID != 0 {
			if _, err := requireEntity(ctx, tx, in.OperatorID, ledger.EntityOperator); err != nil {
				return err
			}
			operatorID = &in.OperatorID
		}

		amount := ledger.RentalAmount(in.Hours, in.PricePerHour)
		comment := in.Comment
		if in.AmountOverride != nil {
			amount = in.AmountOverride.Round(2)
			comment = overrideComment(amount, in.Comment)
		}

		attachment := ledger.StrPtr(s.relativeAttachment(in.AttachmentPath))
		clientID := client.ID
		equipmentID := equipment.ID

		created = ledger.Transaction{
			ID:             s.newID(),
			ProjectID:      in.ProjectID,
			AccountID:      refs.account.ID,
			CategoryID:     refs.category.ID,
			SubcategoryID:  &sub.ID,
			Kind:           ledger.KindIncome,
			Description:    fmt.Sprintf("%s horas de equipo %s, Cliente %s", in.Hours.String(), equipment.Name, client.Name),
			Comment:        comment,
			Amount:         amount,
			Date:           in.Date,
			ClientID:       &clientID,
			OperatorID:     operatorID,
			EquipmentID:    &equipmentID,
			Conduce:        strings.TrimSpace(in.Conduce),
			Location:       strings.TrimSpace(in.Location),
			Hours:          in.Hours,
			PricePerHour:   in.PricePerHour,
			AttachmentPath: attachment,
		}
		if err := tx.InsertTransaction(ctx, created); err != nil {
			return err
		}

		return tx.InsertRentalMeta(ctx, ledger.RentalMeta{
			TransactionID:  created.ID,
			ProjectID:      created.ProjectID,
			ClientID:       created.ClientID,
			OperatorID:     created.OperatorID,
			Hours:          created.Hours,
			PricePerHour:   created.PricePerHour,
			Conduce:        created.Conduce,
			Location:       created.Location,
			AttachmentPath: created.AttachmentPath,
			EquipmentID:    created.EquipmentID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", string(created.ID)).
		Int64("equipment_id", int64(in.EquipmentID)).
		Str("amount", created.Amount.StringFixed(2)).
		Msg("rental registered")
	return &created, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type bookingRefs struct {
	project  *ledger.Project
	account  *ledger.Account
	category *ledger.Category
}

// resolveBooking finds the project, its main account and the named category.
func resolveBooking(ctx context.Context, tx ledger.Reader, projectID ledger.ProjectID, categoryName string) (bookingRefs, error) {
	var refs bookingRefs
	var err error

	refs.project, err = tx.GetProject(ctx, projectID)
	if err != nil {
		return refs, err
	}
	if refs.project == nil {
		return refs, &ledger.MissingReferenceError{Kind: "project", Key: fmt.Sprint(projectID)}
	}

	refs.account, err = tx.GetAccountByName(ctx, refs.project.MainAccountName)
	if err != nil {
		return refs, err
	}
	if refs.account == nil {
		return refs, &ledger.MissingReferenceError{Kind: "account", Key: refs.project.MainAccountName}
	}

	refs.category, err = tx.GetCategoryByName(ctx, categoryName)
	if err != nil {
		return refs, err
	}
	if refs.category == nil {
		return refs, &ledger.MissingReferenceError{Kind: "category", Key: categoryName}
	}
	return refs, nil
}

func requireEntity(ctx context.Context, r ledger.Reader, id ledger.EntityID, kind ledger.EntityKind) (*ledger.Entity, error) {
	e, err := r.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.Kind != kind {
		return nil, &ledger.MissingReferenceError{Kind: strings.ToLower(string(kind)), Key: fmt.Sprint(id)}
	}
	return e, nil
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ledger.ValidationError{Field: verrs[0].Field(), Reason: "failed " + verrs[0].Tag()}
	}
	return &ledger.ValidationError{Field: "input", Reason: err.Error()}
}

func positive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ledger.ValidationError{Field: field, Reason: "must be positive"}
	}
	return nil
}

func overrideComment(amount decimal.Decimal, comment string) string {
	marker := fmt.Sprintf("%s %s", ledger.ManualAmountMarker, amount.StringFixed(2))
	if strings.TrimSpace(comment) == "" {
		return marker
	}
	return marker + " | " + comment
}

// relativeAttachment stores paths under the attachment base dir relative to it.
func (s *Service) relativeAttachment(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || s.attachmentBaseDir == "" || !filepath.IsAbs(path) {
		return path
	}
	base, err := filepath.Abs(s.attachmentBaseDir)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// ResolveAttachment returns the filesystem path of a stored attachment.
func (s *Service) ResolveAttachment(stored string) string {
	if stored == "" || filepath.IsAbs(stored) || s.attachmentBaseDir == "" {
		return stored
	}
	return filepath.Join(s.attachmentBaseDir, filepath.FromSlash(stored))
}
