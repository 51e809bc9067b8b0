package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tiendafix/stockhold/internal/domain"
)

// ReservationRepository persists reservations and applies the ledger deltas
// on the owning variant row. Every mutation is a delta, never an overwrite,
// and the guarded UPDATE takes the row lock itself, so a check and its
// increment cannot interleave with another writer.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	const query = `
SELECT id, sku, name, stock_total, stock_reserved, created_at
FROM variants
WHERE id = $1`

	var v domain.Variant
	err := r.queryRow(ctx, query, variantID).
		Scan(&v.ID, &v.SKU, &v.Name, &v.StockTotal, &v.StockReserved, &v.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Variant{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, fmt.Errorf("get variant: %w", err)
	}
	return v, nil
}

// IncreaseReserved claims qty units of available stock. The availability
// check and the increment are one statement: the WHERE clause re-evaluates
// against the latest committed row once the row lock is granted.
func (r *ReservationRepository) IncreaseReserved(ctx context.Context, variantID string, qty int) error {
	const stmt = `
UPDATE variants
SET stock_reserved = stock_reserved + $2
WHERE id = $1 AND stock_total - stock_reserved >= $2`

	tag, err := r.exec(ctx, stmt, variantID, qty)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("increase reserved: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means either the variant is missing or the guard failed;
	// re-read under the same transaction to report which.
	v, err := r.GetVariant(ctx, variantID)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		VariantID: variantID,
		Requested: qty,
		Available: v.Available(),
	}
}

// DecreaseReserved returns qty units to available stock, flooring the
// counter at zero. The reservation state guard is the real idempotency
// control; the clamp is a last-resort safety net.
func (r *ReservationRepository) DecreaseReserved(ctx context.Context, variantID string, qty int) error {
	const stmt = `
UPDATE variants
SET stock_reserved = GREATEST(stock_reserved - $2, 0)
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, variantID, qty)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("decrease reserved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

// ConfirmSale moves qty units out of physical stock and out of the reserved
// counter in one atomic step.
func (r *ReservationRepository) ConfirmSale(ctx context.Context, variantID string, qty int) error {
	const stmt = `
UPDATE variants
SET stock_total = stock_total - $2,
    stock_reserved = GREATEST(stock_reserved - $2, 0)
WHERE id = $1 AND stock_total >= $2`

	tag, err := r.exec(ctx, stmt, variantID, qty)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("confirm sale: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetVariant(ctx, variantID); err != nil {
		return err
	}
	return fmt.Errorf("confirm sale: variant %s has fewer than %d units", variantID, qty)
}

func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, variant_id, quantity, session_id, payment_intent_id, state, note, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.VariantID,
		res.Quantity,
		res.SessionID,
		res.PaymentIntentID,
		res.State,
		res.Note,
		res.CreatedAt,
		res.ExpiresAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrVariantNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

const reservationColumns = `id, variant_id, quantity, session_id, payment_intent_id, state, note, created_at, expires_at`

func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// FindPendingByPaymentIntent locks the pending reservations stamped with the
// intent. Ordering by variant id keeps the cross-variant lock order
// deterministic when one intent spans several variants.
func (r *ReservationRepository) FindPendingByPaymentIntent(ctx context.Context, paymentIntentID string) ([]domain.Reservation, error) {
	query := `
SELECT ` + reservationColumns + `
FROM reservations
WHERE payment_intent_id = $1 AND state = 'pending'
ORDER BY variant_id
FOR UPDATE`

	return r.queryReservations(ctx, query, paymentIntentID)
}

func (r *ReservationRepository) FindPendingBySession(ctx context.Context, sessionID string) ([]domain.Reservation, error) {
	query := `
SELECT ` + reservationColumns + `
FROM reservations
WHERE session_id = $1 AND state = 'pending'
ORDER BY variant_id
FOR UPDATE`

	return r.queryReservations(ctx, query, sessionID)
}

func (r *ReservationRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	query := `
SELECT ` + reservationColumns + `
FROM reservations
WHERE state = 'pending' AND expires_at < $1
ORDER BY variant_id
FOR UPDATE`

	return r.queryReservations(ctx, query, now)
}

func (r *ReservationRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	query := `
SELECT ` + reservationColumns + `
FROM reservations
WHERE state = 'pending' AND expires_at > $1
ORDER BY created_at`

	return r.queryReservations(ctx, query, now)
}

// MarkConfirmed transitions a pending reservation to confirmed. The state
// guard in the WHERE clause makes a repeated transition a no-op at the row
// level; callers see ErrReservationNotFound when nothing matched.
func (r *ReservationRepository) MarkConfirmed(ctx context.Context, id, note string) error {
	const stmt = `
UPDATE reservations
SET state = 'confirmed', note = $2
WHERE id = $1 AND state = 'pending'`

	return r.markReservation(ctx, "mark confirmed", stmt, id, note)
}

func (r *ReservationRepository) MarkReleased(ctx context.Context, id, note string, expiresAt time.Time) error {
	const stmt = `
UPDATE reservations
SET state = 'released', note = $2, expires_at = $3
WHERE id = $1 AND state = 'pending'`

	return r.markReservation(ctx, "mark released", stmt, id, note, expiresAt)
}

func (r *ReservationRepository) MarkExpired(ctx context.Context, id, note string) error {
	const stmt = `
UPDATE reservations
SET state = 'expired', note = $2
WHERE id = $1 AND state = 'pending'`

	return r.markReservation(ctx, "mark expired", stmt, id, note)
}

// SetPaymentIntentBySession stamps every pending reservation of a checkout
// session with the intent id and returns how many rows were stamped.
func (r *ReservationRepository) SetPaymentIntentBySession(ctx context.Context, sessionID, paymentIntentID string) (int, error) {
	const stmt = `
UPDATE reservations
SET payment_intent_id = $2
WHERE session_id = $1 AND state = 'pending'`

	tag, err := r.exec(ctx, stmt, sessionID, paymentIntentID)
	if err != nil {
		return 0, fmt.Errorf("set payment intent: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ReservationRepository) markReservation(ctx context.Context, op, stmt string, args ...any) error {
	tag, err := r.exec(ctx, stmt, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) queryReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reservations: %w", rows.Err())
	}
	return out, nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	var state string
	err := row.Scan(
		&res.ID,
		&res.VariantID,
		&res.Quantity,
		&res.SessionID,
		&res.PaymentIntentID,
		&state,
		&res.Note,
		&res.CreatedAt,
		&res.ExpiresAt,
	)
	if err != nil {
		return domain.Reservation{}, err
	}
	res.State = domain.ReservationState(state)
	return res, nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
