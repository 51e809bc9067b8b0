package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tiendafix/stockhold/internal/clock"
	"github.com/tiendafix/stockhold/internal/domain"
)

// ReservationRepository is the store contract the engine drives. Ledger
// deltas and reservation rows are mutated only through it, under the
// transaction opened by WithTx.
type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetVariant(ctx context.Context, variantID string) (domain.Variant, error)
	IncreaseReserved(ctx context.Context, variantID string, qty int) error
	DecreaseReserved(ctx context.Context, variantID string, qty int) error
	ConfirmSale(ctx context.Context, variantID string, qty int) error
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	FindPendingByPaymentIntent(ctx context.Context, paymentIntentID string) ([]domain.Reservation, error)
	FindPendingBySession(ctx context.Context, sessionID string) ([]domain.Reservation, error)
	FindExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	MarkConfirmed(ctx context.Context, id, note string) error
	MarkReleased(ctx context.Context, id, note string, expiresAt time.Time) error
	MarkExpired(ctx context.Context, id, note string) error
	SetPaymentIntentBySession(ctx context.Context, sessionID, paymentIntentID string) (int, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error)
}

// ReservationService is the only component that moves reservations through
// their lifecycle and adjusts the stock ledger. Every operation owns exactly
// one transaction, opened and closed within the call.
type ReservationService struct {
	repo  ReservationRepository
	clock clock.Clock
	ttl   time.Duration
}

const defaultReservationTTL = 10 * time.Minute

func NewReservationService(repo ReservationRepository, clk clock.Clock, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:  repo,
		clock: clk,
		ttl:   defaultReservationTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithReservationTTL overrides the default hold window for new reservations.
func WithReservationTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

type ReserveInput struct {
	VariantID string
	Quantity  int
	SessionID string
}

// Reserve claims stock for a checkout session. The availability check and
// the reserved-counter increment happen inside one transaction, so two
// concurrent reservations cannot both pass the check against a stale value.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (domain.Reservation, error) {
	if in.Quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	if in.SessionID == "" {
		return domain.Reservation{}, domain.ErrSessionRequired
	}

	now := s.clock.Now()
	res := domain.Reservation{
		ID:        uuid.NewString(),
		VariantID: in.VariantID,
		Quantity:  in.Quantity,
		SessionID: in.SessionID,
		State:     domain.ReservationStatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.IncreaseReserved(txCtx, in.VariantID, in.Quantity); err != nil {
			return err
		}
		return s.repo.CreateReservation(txCtx, res)
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// VerifyAvailable reports whether qty units could be reserved right now.
// Advisory only: a Reserve issued afterwards can still race and fail.
func (s *ReservationService) VerifyAvailable(ctx context.Context, variantID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrInvalidQuantity
	}
	v, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		return false, err
	}
	return v.Available() >= qty, nil
}

// Confirm settles every pending reservation stamped with the payment intent:
// physical stock leaves and the reserved counter drops by the same quantity
// in one transaction across all rows. Returns false when nothing matched,
// which makes speculative webhook retries harmless.
func (s *ReservationService) Confirm(ctx context.Context, paymentIntentID string) (bool, error) {
	if paymentIntentID == "" {
		return false, nil
	}

	var confirmed bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		pending, err := s.repo.FindPendingByPaymentIntent(txCtx, paymentIntentID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		for _, res := range pending {
			if err := s.repo.ConfirmSale(txCtx, res.VariantID, res.Quantity); err != nil {
				return err
			}
			if err := s.repo.MarkConfirmed(txCtx, res.ID, "payment "+paymentIntentID+" approved"); err != nil {
				return err
			}
		}
		confirmed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

// Release returns a single pending reservation's stock. A reservation that
// is missing or already terminal is reported as false, not an error; the
// counter is never decremented twice.
func (s *ReservationService) Release(ctx context.Context, reservationID, reason string) (bool, error) {
	now := s.clock.Now()
	if reason == "" {
		reason = "released"
	}

	var released bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			if err == domain.ErrReservationNotFound {
				return nil
			}
			return err
		}
		if res.State != domain.ReservationStatePending {
			return nil
		}
		if err := s.repo.DecreaseReserved(txCtx, res.VariantID, res.Quantity); err != nil {
			return err
		}
		if err := s.repo.MarkReleased(txCtx, res.ID, reason, now); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// ReleaseBySession releases every pending reservation of a checkout session,
// used when a session ends without completing payment.
func (s *ReservationService) ReleaseBySession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, domain.ErrSessionRequired
	}
	return s.releaseBatch(ctx, "session released", func(txCtx context.Context) ([]domain.Reservation, error) {
		return s.repo.FindPendingBySession(txCtx, sessionID)
	})
}

// ReleaseByPaymentIntent releases every pending reservation stamped with the
// intent, used when the gateway reports a rejected or cancelled outcome.
func (s *ReservationService) ReleaseByPaymentIntent(ctx context.Context, paymentIntentID, reason string) (bool, error) {
	if paymentIntentID == "" {
		return false, nil
	}
	if reason == "" {
		reason = "payment not completed"
	}
	return s.releaseBatch(ctx, reason, func(txCtx context.Context) ([]domain.Reservation, error) {
		return s.repo.FindPendingByPaymentIntent(txCtx, paymentIntentID)
	})
}

func (s *ReservationService) releaseBatch(ctx context.Context, reason string, find func(ctx context.Context) ([]domain.Reservation, error)) (bool, error) {
	now := s.clock.Now()

	var released bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		pending, err := find(txCtx)
		if err != nil {
			return err
		}
		for _, res := range pending {
			if err := s.repo.DecreaseReserved(txCtx, res.VariantID, res.Quantity); err != nil {
				return err
			}
			if err := s.repo.MarkReleased(txCtx, res.ID, reason, now); err != nil {
				return err
			}
		}
		released = len(pending) > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// ReleaseExpired transitions every pending reservation past its deadline to
// expired and reclaims its stock, all in one transaction. Returns the count
// released. This is the only transition not triggered by an external actor.
func (s *ReservationService) ReleaseExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()

	var count int
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		expired, err := s.repo.FindExpired(txCtx, now)
		if err != nil {
			return err
		}
		for _, res := range expired {
			if err := s.repo.DecreaseReserved(txCtx, res.VariantID, res.Quantity); err != nil {
				return err
			}
			if err := s.repo.MarkExpired(txCtx, res.ID, "expired automatically"); err != nil {
				return err
			}
		}
		count = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListActive returns pending reservations whose deadline has not passed.
func (s *ReservationService) ListActive(ctx context.Context) ([]domain.Reservation, error) {
	return s.repo.ListActive(ctx, s.clock.Now())
}

// AttachPaymentIntent stamps every pending reservation of a session with the
// intent id created for it. Returns false when the session holds nothing.
func (s *ReservationService) AttachPaymentIntent(ctx context.Context, sessionID, paymentIntentID string) (bool, error) {
	if sessionID == "" {
		return false, domain.ErrSessionRequired
	}
	if paymentIntentID == "" {
		return false, domain.ErrInvalidID
	}
	n, err := s.repo.SetPaymentIntentBySession(ctx, sessionID, paymentIntentID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
