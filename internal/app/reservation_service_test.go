package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tiendafix/stockhold/internal/clock"
	"github.com/tiendafix/stockhold/internal/domain"
)

func TestReservationService_Reserve(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute

	makeSvc := func(variants ...domain.Variant) (*ReservationService, *fakeReservationRepo) {
		repo := newFakeReservationRepo(variants...)
		svc := NewReservationService(repo, clock.NewFixed(now), WithReservationTTL(ttl))
		return svc, repo
	}

	t.Run("creates pending reservation and increments reserved", func(t *testing.T) {
		svc, repo := makeSvc(domain.Variant{ID: "var-1", StockTotal: 5})

		res, err := svc.Reserve(context.Background(), ReserveInput{
			VariantID: "var-1",
			Quantity:  3,
			SessionID: "sess-a",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.ID == "" {
			t.Fatalf("expected reservation ID to be set")
		}
		if res.State != domain.ReservationStatePending {
			t.Fatalf("expected state pending, got %s", res.State)
		}
		if res.ExpiresAt != now.Add(ttl) {
			t.Fatalf("expected expires_at %v, got %v", now.Add(ttl), res.ExpiresAt)
		}
		if got := repo.variants["var-1"].StockReserved; got != 3 {
			t.Fatalf("expected stock_reserved 3, got %d", got)
		}
	})

	t.Run("insufficient stock carries amounts and leaves no state", func(t *testing.T) {
		svc, repo := makeSvc(domain.Variant{ID: "var-1", StockTotal: 5, StockReserved: 3})

		_, err := svc.Reserve(context.Background(), ReserveInput{
			VariantID: "var-1",
			Quantity:  3,
			SessionID: "sess-b",
		})
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %T", err)
		}
		if insufficient.Requested != 3 || insufficient.Available != 2 {
			t.Fatalf("unexpected amounts: %+v", insufficient)
		}
		if got := repo.variants["var-1"].StockReserved; got != 3 {
			t.Fatalf("expected stock_reserved unchanged at 3, got %d", got)
		}
		if len(repo.reservations) != 0 {
			t.Fatalf("expected no reservation rows, got %d", len(repo.reservations))
		}
	})

	t.Run("unknown variant", func(t *testing.T) {
		svc, _ := makeSvc()

		_, err := svc.Reserve(context.Background(), ReserveInput{
			VariantID: "missing",
			Quantity:  1,
			SessionID: "sess-a",
		})
		if err != domain.ErrVariantNotFound {
			t.Fatalf("expected ErrVariantNotFound, got %v", err)
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		svc, _ := makeSvc(domain.Variant{ID: "var-1", StockTotal: 5})

		_, err := svc.Reserve(context.Background(), ReserveInput{
			VariantID: "var-1",
			Quantity:  0,
			SessionID: "sess-a",
		})
		if err != domain.ErrInvalidQuantity {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("rejects missing session", func(t *testing.T) {
		svc, _ := makeSvc(domain.Variant{ID: "var-1", StockTotal: 5})

		_, err := svc.Reserve(context.Background(), ReserveInput{
			VariantID: "var-1",
			Quantity:  1,
		})
		if err != domain.ErrSessionRequired {
			t.Fatalf("expected ErrSessionRequired, got %v", err)
		}
	})

	t.Run("released stock can be reserved again", func(t *testing.T) {
		// Total 5: reserve 3, a second reserve of 3 fails,
		// release frees the stock, second reserve then succeeds.
		svc, repo := makeSvc(domain.Variant{ID: "var-1", StockTotal: 5})
		ctx := context.Background()

		first, err := svc.Reserve(ctx, ReserveInput{VariantID: "var-1", Quantity: 3, SessionID: "sess-a"})
		if err != nil {
			t.Fatalf("first reserve: %v", err)
		}
		if _, err := svc.Reserve(ctx, ReserveInput{VariantID: "var-1", Quantity: 3, SessionID: "sess-b"}); !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}

		released, err := svc.Release(ctx, first.ID, "customer abandoned")
		if err != nil || !released {
			t.Fatalf("expected release true, got %v %v", released, err)
		}
		if got := repo.variants["var-1"].StockReserved; got != 0 {
			t.Fatalf("expected stock_reserved 0 after release, got %d", got)
		}

		if _, err := svc.Reserve(ctx, ReserveInput{VariantID: "var-1", Quantity: 3, SessionID: "sess-b"}); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
	})
}

func TestReservationService_VerifyAvailable(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10, StockReserved: 4})
	svc := NewReservationService(repo, clock.NewFixed(now))
	ctx := context.Background()

	ok, err := svc.VerifyAvailable(ctx, "var-1", 6)
	if err != nil || !ok {
		t.Fatalf("expected available for 6, got %v %v", ok, err)
	}
	ok, err = svc.VerifyAvailable(ctx, "var-1", 7)
	if err != nil || ok {
		t.Fatalf("expected unavailable for 7, got %v %v", ok, err)
	}
	if _, err := svc.VerifyAvailable(ctx, "var-1", 0); err != domain.ErrInvalidQuantity {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.VerifyAvailable(ctx, "missing", 1); err != domain.ErrVariantNotFound {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestReservationService_Confirm(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("confirms all reservations of an intent", func(t *testing.T) {
		// Total 10 with 4 reserved by one pending reservation
		// stamped pi_1; Confirm leaves total 6, reserved 0.
		repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10, StockReserved: 4})
		repo.addReservation(domain.Reservation{
			ID: "res-1", VariantID: "var-1", Quantity: 4, SessionID: "sess-a",
			PaymentIntentID: "pi_1", State: domain.ReservationStatePending,
			ExpiresAt: now.Add(5 * time.Minute),
		})
		svc := NewReservationService(repo, clock.NewFixed(now))

		confirmed, err := svc.Confirm(context.Background(), "pi_1")
		if err != nil || !confirmed {
			t.Fatalf("expected confirm true, got %v %v", confirmed, err)
		}
		v := repo.variants["var-1"]
		if v.StockTotal != 6 || v.StockReserved != 0 {
			t.Fatalf("expected total 6 reserved 0, got %d %d", v.StockTotal, v.StockReserved)
		}
		if repo.reservations[0].State != domain.ReservationStateConfirmed {
			t.Fatalf("expected state confirmed, got %s", repo.reservations[0].State)
		}
	})

	t.Run("unknown intent is a no-op false", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10})
		svc := NewReservationService(repo, clock.NewFixed(now))

		confirmed, err := svc.Confirm(context.Background(), "pi_missing")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if confirmed {
			t.Fatalf("expected false for unknown intent")
		}
	})

	t.Run("repeated confirm is a no-op false", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10, StockReserved: 4})
		repo.addReservation(domain.Reservation{
			ID: "res-1", VariantID: "var-1", Quantity: 4, SessionID: "sess-a",
			PaymentIntentID: "pi_1", State: domain.ReservationStatePending,
			ExpiresAt: now.Add(5 * time.Minute),
		})
		svc := NewReservationService(repo, clock.NewFixed(now))
		ctx := context.Background()

		if confirmed, err := svc.Confirm(ctx, "pi_1"); err != nil || !confirmed {
			t.Fatalf("first confirm: %v %v", confirmed, err)
		}
		confirmed, err := svc.Confirm(ctx, "pi_1")
		if err != nil {
			t.Fatalf("second confirm: %v", err)
		}
		if confirmed {
			t.Fatalf("expected second confirm to report false")
		}
		v := repo.variants["var-1"]
		if v.StockTotal != 6 || v.StockReserved != 0 {
			t.Fatalf("expected counters untouched by replay, got %d %d", v.StockTotal, v.StockReserved)
		}
	})

	t.Run("empty intent id never matches", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 5, StockReserved: 2})
		repo.addReservation(domain.Reservation{
			ID: "res-1", VariantID: "var-1", Quantity: 2, SessionID: "sess-a",
			State:     domain.ReservationStatePending,
			ExpiresAt: now.Add(5 * time.Minute),
		})
		svc := NewReservationService(repo, clock.NewFixed(now))

		confirmed, err := svc.Confirm(context.Background(), "")
		if err != nil || confirmed {
			t.Fatalf("expected false for empty intent, got %v %v", confirmed, err)
		}
	})
}

func TestReservationService_Release(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("release is idempotent on the counter", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 5, StockReserved: 2})
		repo.addReservation(domain.Reservation{
			ID: "res-1", VariantID: "var-1", Quantity: 2, SessionID: "sess-a",
			State:     domain.ReservationStatePending,
			ExpiresAt: now.Add(5 * time.Minute),
		})
		svc := NewReservationService(repo, clock.NewFixed(now))
		ctx := context.Background()

		released, err := svc.Release(ctx, "res-1", "order cancelled")
		if err != nil || !released {
			t.Fatalf("expected release true, got %v %v", released, err)
		}
		v := repo.variants["var-1"]
		if v.StockTotal != 5 || v.StockReserved != 0 {
			t.Fatalf("expected total 5 reserved 0, got %d %d", v.StockTotal, v.StockReserved)
		}
		got := repo.reservations[0]
		if got.State != domain.ReservationStateReleased {
			t.Fatalf("expected state released, got %s", got.State)
		}
		if got.Note != "order cancelled" {
			t.Fatalf("expected reason in note, got %q", got.Note)
		}
		if !got.ExpiresAt.Equal(now) {
			t.Fatalf("expected expires_at stamped to now, got %v", got.ExpiresAt)
		}

		released, err = svc.Release(ctx, "res-1", "again")
		if err != nil {
			t.Fatalf("second release: %v", err)
		}
		if released {
			t.Fatalf("expected second release to report false")
		}
		if repo.variants["var-1"].StockReserved != 0 {
			t.Fatalf("expected no further decrement")
		}
	})

	t.Run("missing reservation is false not error", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 5})
		svc := NewReservationService(repo, clock.NewFixed(now))

		released, err := svc.Release(context.Background(), "missing", "")
		if err != nil || released {
			t.Fatalf("expected false nil, got %v %v", released, err)
		}
	})
}

func TestReservationService_ReleaseBySession(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(
		domain.Variant{ID: "var-1", StockTotal: 5, StockReserved: 2},
		domain.Variant{ID: "var-2", StockTotal: 3, StockReserved: 1},
	)
	repo.addReservation(domain.Reservation{
		ID: "res-1", VariantID: "var-1", Quantity: 2, SessionID: "sess-a",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(5 * time.Minute),
	})
	repo.addReservation(domain.Reservation{
		ID: "res-2", VariantID: "var-2", Quantity: 1, SessionID: "sess-a",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(5 * time.Minute),
	})
	svc := NewReservationService(repo, clock.NewFixed(now))
	ctx := context.Background()

	released, err := svc.ReleaseBySession(ctx, "sess-a")
	if err != nil || !released {
		t.Fatalf("expected release true, got %v %v", released, err)
	}
	if repo.variants["var-1"].StockReserved != 0 || repo.variants["var-2"].StockReserved != 0 {
		t.Fatalf("expected both counters at 0")
	}

	released, err = svc.ReleaseBySession(ctx, "sess-a")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if released {
		t.Fatalf("expected false when nothing pending")
	}

	if _, err := svc.ReleaseBySession(ctx, ""); err != domain.ErrSessionRequired {
		t.Fatalf("expected ErrSessionRequired, got %v", err)
	}
}

func TestReservationService_ReleaseExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10, StockReserved: 5})
	repo.addReservation(domain.Reservation{
		ID: "res-old", VariantID: "var-1", Quantity: 3, SessionID: "sess-a",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(-1 * time.Minute),
	})
	repo.addReservation(domain.Reservation{
		ID: "res-fresh", VariantID: "var-1", Quantity: 2, SessionID: "sess-b",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(5 * time.Minute),
	})
	svc := NewReservationService(repo, clock.NewFixed(now))
	ctx := context.Background()

	count, err := svc.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("release expired: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 released, got %d", count)
	}
	if repo.variants["var-1"].StockReserved != 2 {
		t.Fatalf("expected reserved 2 after sweep, got %d", repo.variants["var-1"].StockReserved)
	}
	if repo.byID("res-old").State != domain.ReservationStateExpired {
		t.Fatalf("expected res-old expired, got %s", repo.byID("res-old").State)
	}
	if repo.byID("res-old").Note != "expired automatically" {
		t.Fatalf("unexpected note %q", repo.byID("res-old").Note)
	}
	if repo.byID("res-fresh").State != domain.ReservationStatePending {
		t.Fatalf("expected res-fresh untouched, got %s", repo.byID("res-fresh").State)
	}

	count, err = svc.ReleaseExpired(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected second sweep to release 0, got %d %v", count, err)
	}
}

func TestReservationService_ListActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10, StockReserved: 5})
	repo.addReservation(domain.Reservation{
		ID: "res-active", VariantID: "var-1", Quantity: 3, SessionID: "sess-a",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(5 * time.Minute),
	})
	repo.addReservation(domain.Reservation{
		ID: "res-stale", VariantID: "var-1", Quantity: 2, SessionID: "sess-b",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(-1 * time.Minute),
	})
	svc := NewReservationService(repo, clock.NewFixed(now))

	active, err := svc.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "res-active" {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestReservationService_AttachPaymentIntent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(domain.Variant{ID: "var-1", StockTotal: 10, StockReserved: 5})
	repo.addReservation(domain.Reservation{
		ID: "res-1", VariantID: "var-1", Quantity: 3, SessionID: "sess-a",
		State: domain.ReservationStatePending, ExpiresAt: now.Add(5 * time.Minute),
	})
	repo.addReservation(domain.Reservation{
		ID: "res-2", VariantID: "var-1", Quantity: 2, SessionID: "sess-a",
		State: domain.ReservationStateReleased, ExpiresAt: now,
	})
	svc := NewReservationService(repo, clock.NewFixed(now))
	ctx := context.Background()

	stamped, err := svc.AttachPaymentIntent(ctx, "sess-a", "pi_9")
	if err != nil || !stamped {
		t.Fatalf("expected stamp true, got %v %v", stamped, err)
	}
	if repo.byID("res-1").PaymentIntentID != "pi_9" {
		t.Fatalf("expected pending reservation stamped")
	}
	if repo.byID("res-2").PaymentIntentID != "" {
		t.Fatalf("expected terminal reservation untouched")
	}

	stamped, err = svc.AttachPaymentIntent(ctx, "sess-empty", "pi_9")
	if err != nil || stamped {
		t.Fatalf("expected false for empty session, got %v %v", stamped, err)
	}
}

// fakeReservationRepo implements ReservationRepository in memory with the
// same ledger semantics as the Postgres implementation.
type fakeReservationRepo struct {
	variants     map[string]*domain.Variant
	reservations []*domain.Reservation
}

func newFakeReservationRepo(variants ...domain.Variant) *fakeReservationRepo {
	m := make(map[string]*domain.Variant, len(variants))
	for i := range variants {
		v := variants[i]
		m[v.ID] = &v
	}
	return &fakeReservationRepo{variants: m}
}

func (f *fakeReservationRepo) addReservation(res domain.Reservation) {
	f.reservations = append(f.reservations, &res)
}

func (f *fakeReservationRepo) byID(id string) *domain.Reservation {
	for _, res := range f.reservations {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func (f *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeReservationRepo) GetVariant(_ context.Context, variantID string) (domain.Variant, error) {
	v, ok := f.variants[variantID]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return *v, nil
}

func (f *fakeReservationRepo) IncreaseReserved(_ context.Context, variantID string, qty int) error {
	v, ok := f.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	if v.Available() < qty {
		return &domain.InsufficientStockError{VariantID: variantID, Requested: qty, Available: v.Available()}
	}
	v.StockReserved += qty
	return nil
}

func (f *fakeReservationRepo) DecreaseReserved(_ context.Context, variantID string, qty int) error {
	v, ok := f.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	v.StockReserved -= qty
	if v.StockReserved < 0 {
		v.StockReserved = 0
	}
	return nil
}

func (f *fakeReservationRepo) ConfirmSale(_ context.Context, variantID string, qty int) error {
	v, ok := f.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	v.StockTotal -= qty
	v.StockReserved -= qty
	if v.StockReserved < 0 {
		v.StockReserved = 0
	}
	return nil
}

func (f *fakeReservationRepo) CreateReservation(_ context.Context, res domain.Reservation) error {
	if _, ok := f.variants[res.VariantID]; !ok {
		return domain.ErrVariantNotFound
	}
	f.addReservation(res)
	return nil
}

func (f *fakeReservationRepo) GetReservationForUpdate(_ context.Context, id string) (domain.Reservation, error) {
	if res := f.byID(id); res != nil {
		return *res, nil
	}
	return domain.Reservation{}, domain.ErrReservationNotFound
}

func (f *fakeReservationRepo) FindPendingByPaymentIntent(_ context.Context, paymentIntentID string) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, res := range f.reservations {
		if res.State == domain.ReservationStatePending && res.PaymentIntentID == paymentIntentID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeReservationRepo) FindPendingBySession(_ context.Context, sessionID string) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, res := range f.reservations {
		if res.State == domain.ReservationStatePending && res.SessionID == sessionID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeReservationRepo) FindExpired(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, res := range f.reservations {
		if res.State == domain.ReservationStatePending && res.ExpiresAt.Before(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeReservationRepo) MarkConfirmed(_ context.Context, id, note string) error {
	return f.mark(id, domain.ReservationStateConfirmed, note, nil)
}

func (f *fakeReservationRepo) MarkReleased(_ context.Context, id, note string, expiresAt time.Time) error {
	return f.mark(id, domain.ReservationStateReleased, note, &expiresAt)
}

func (f *fakeReservationRepo) MarkExpired(_ context.Context, id, note string) error {
	return f.mark(id, domain.ReservationStateExpired, note, nil)
}

func (f *fakeReservationRepo) mark(id string, state domain.ReservationState, note string, expiresAt *time.Time) error {
	res := f.byID(id)
	if res == nil || res.State != domain.ReservationStatePending {
		return domain.ErrReservationNotFound
	}
	res.State = state
	res.Note = note
	if expiresAt != nil {
		res.ExpiresAt = *expiresAt
	}
	return nil
}

func (f *fakeReservationRepo) SetPaymentIntentBySession(_ context.Context, sessionID, paymentIntentID string) (int, error) {
	n := 0
	for _, res := range f.reservations {
		if res.State == domain.ReservationStatePending && res.SessionID == sessionID {
			res.PaymentIntentID = paymentIntentID
			n++
		}
	}
	return n, nil
}

func (f *fakeReservationRepo) ListActive(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, res := range f.reservations {
		if res.State == domain.ReservationStatePending && res.ExpiresAt.After(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}
