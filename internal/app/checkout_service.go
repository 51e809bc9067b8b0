package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tiendafix/stockhold/internal/domain"
)

// ReservationEngine is the slice of the engine the orchestrator needs.
type ReservationEngine interface {
	Reserve(ctx context.Context, in ReserveInput) (domain.Reservation, error)
	Release(ctx context.Context, reservationID, reason string) (bool, error)
	AttachPaymentIntent(ctx context.Context, sessionID, paymentIntentID string) (bool, error)
	Confirm(ctx context.Context, paymentIntentID string) (bool, error)
	ReleaseByPaymentIntent(ctx context.Context, paymentIntentID, reason string) (bool, error)
}

// PaymentGateway creates a payable intent with the external provider. The
// provider's client lives outside this package; only the port is defined
// here.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (string, error)
}

type CreateIntentInput struct {
	SessionID   string
	AmountCents int
}

type PaymentOutcome string

const (
	PaymentOutcomeApproved  PaymentOutcome = "approved"
	PaymentOutcomeRejected  PaymentOutcome = "rejected"
	PaymentOutcomeCancelled PaymentOutcome = "cancelled"
	PaymentOutcomePending   PaymentOutcome = "pending"
)

// CheckoutService drives the reservation engine around the external payment
// flow: reserve line items, create the intent, stamp it, and map the
// gateway's final outcome back to Confirm or Release.
type CheckoutService struct {
	engine  ReservationEngine
	gateway PaymentGateway
	logger  zerolog.Logger
}

func NewCheckoutService(engine ReservationEngine, gateway PaymentGateway, logger zerolog.Logger) *CheckoutService {
	return &CheckoutService{
		engine:  engine,
		gateway: gateway,
		logger:  logger,
	}
}

type CheckoutItem struct {
	VariantID string
	Quantity  int
}

type CheckoutInput struct {
	SessionID   string
	AmountCents int
	Items       []CheckoutItem
}

type CheckoutResult struct {
	PaymentIntentID string
	Reservations    []domain.Reservation
}

// Checkout reserves each line item in its own transaction, then creates the
// payment intent and stamps it onto the reservations. A multi-item checkout
// is not atomic across items: any failure rolls back the already-created
// reservations with compensating Release calls before the error surfaces.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if in.SessionID == "" {
		return CheckoutResult{}, domain.ErrSessionRequired
	}
	if len(in.Items) == 0 {
		return CheckoutResult{}, domain.ErrCheckoutEmpty
	}

	created := make([]domain.Reservation, 0, len(in.Items))
	for _, item := range in.Items {
		res, err := s.engine.Reserve(ctx, ReserveInput{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			SessionID: in.SessionID,
		})
		if err != nil {
			s.compensate(ctx, created)
			return CheckoutResult{}, err
		}
		created = append(created, res)
	}

	intentID, err := s.gateway.CreateIntent(ctx, CreateIntentInput{
		SessionID:   in.SessionID,
		AmountCents: in.AmountCents,
	})
	if err != nil {
		s.compensate(ctx, created)
		return CheckoutResult{}, fmt.Errorf("create payment intent: %w", err)
	}

	if _, err := s.engine.AttachPaymentIntent(ctx, in.SessionID, intentID); err != nil {
		s.compensate(ctx, created)
		return CheckoutResult{}, err
	}

	for i := range created {
		created[i].PaymentIntentID = intentID
	}
	return CheckoutResult{PaymentIntentID: intentID, Reservations: created}, nil
}

// HandleOutcome applies the gateway's verdict for an intent. A pending
// outcome changes nothing; the reservations stay held until a later outcome
// or the expiry sweep.
func (s *CheckoutService) HandleOutcome(ctx context.Context, paymentIntentID string, outcome PaymentOutcome) (bool, error) {
	switch outcome {
	case PaymentOutcomeApproved:
		return s.engine.Confirm(ctx, paymentIntentID)
	case PaymentOutcomeRejected, PaymentOutcomeCancelled:
		return s.engine.ReleaseByPaymentIntent(ctx, paymentIntentID, "payment "+string(outcome))
	case PaymentOutcomePending:
		return true, nil
	default:
		return false, fmt.Errorf("unknown payment outcome %q", outcome)
	}
}

func (s *CheckoutService) compensate(ctx context.Context, created []domain.Reservation) {
	for _, res := range created {
		if _, err := s.engine.Release(ctx, res.ID, "checkout aborted"); err != nil {
			// The sweep reclaims the hold at TTL if this release fails.
			s.logger.Error().Err(err).Str("reservation_id", res.ID).Msg("compensating release failed")
		}
	}
}
