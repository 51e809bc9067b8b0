package domain

import "time"

type ReservationState string

const (
	ReservationStatePending   ReservationState = "pending"
	ReservationStateConfirmed ReservationState = "confirmed"
	ReservationStateReleased  ReservationState = "released"
	ReservationStateExpired   ReservationState = "expired"
)

// Terminal reports whether no further transition may leave this state.
func (s ReservationState) Terminal() bool {
	return s == ReservationStateConfirmed || s == ReservationStateReleased || s == ReservationStateExpired
}

// Reservation is a time-boxed claim against a Variant's stock, held while an
// external payment is pending. Rows are kept after reaching a terminal state
// as an audit trail; Note records why the last transition happened.
type Reservation struct {
	ID              string
	VariantID       string
	Quantity        int
	SessionID       string
	PaymentIntentID string
	State           ReservationState
	Note            string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}
