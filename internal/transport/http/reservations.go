package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tiendafix/stockhold/internal/app"
	"github.com/tiendafix/stockhold/internal/domain"
)

// Reserver is the minimal interface needed to create a reservation.
type Reserver interface {
	Reserve(ctx context.Context, in app.ReserveInput) (domain.Reservation, error)
}

// HandleCreateReservation returns an HTTP handler for reserving stock.
func HandleCreateReservation(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createReservationRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.Reserve(r.Context(), app.ReserveInput{
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
			SessionID: req.SessionID,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, reservationResponse{
			ID:        res.ID,
			VariantID: res.VariantID,
			Quantity:  res.Quantity,
			SessionID: res.SessionID,
			State:     string(res.State),
			ExpiresAt: res.ExpiresAt,
		})
	}
}

// Releaser is the minimal interface needed to release a reservation.
type Releaser interface {
	Release(ctx context.Context, reservationID, reason string) (bool, error)
}

// HandleReleaseReservation handles POST /reservations/{id}/release.
func HandleReleaseReservation(svc Releaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseActionPath(r.URL.Path, "reservations", "release")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req releaseRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
		}

		released, err := svc.Release(r.Context(), id, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, releaseResponse{Released: released})
	}
}

// ActiveLister is the minimal interface needed to list active reservations.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]domain.Reservation, error)
}

// HandleListActive handles GET /reservations/active, the operational view of
// currently held stock.
func HandleListActive(svc ActiveLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		active, err := svc.ListActive(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]reservationResponse, 0, len(active))
		for _, res := range active {
			out = append(out, reservationResponse{
				ID:              res.ID,
				VariantID:       res.VariantID,
				Quantity:        res.Quantity,
				SessionID:       res.SessionID,
				PaymentIntentID: res.PaymentIntentID,
				State:           string(res.State),
				ExpiresAt:       res.ExpiresAt,
			})
		}
		writeJSON(w, http.StatusOK, activeReservationsResponse{Reservations: out})
	}
}

// SessionReleaser is the minimal interface needed to release a session's holds.
type SessionReleaser interface {
	ReleaseBySession(ctx context.Context, sessionID string) (bool, error)
}

// HandleReleaseSession handles POST /sessions/{id}/release, ending a
// checkout session without payment.
func HandleReleaseSession(svc SessionReleaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		sessionID, ok := parseActionPath(r.URL.Path, "sessions", "release")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		released, err := svc.ReleaseBySession(r.Context(), sessionID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, releaseResponse{Released: released})
	}
}

// parseActionPath matches /<resource>/{id}/<action> paths.
func parseActionPath(path, resource, action string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != resource || parts[2] != action {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type createReservationRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	SessionID string `json:"session_id"`
}

type reservationResponse struct {
	ID              string    `json:"id"`
	VariantID       string    `json:"variant_id"`
	Quantity        int       `json:"quantity"`
	SessionID       string    `json:"session_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	State           string    `json:"state"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

type releaseResponse struct {
	Released bool `json:"released"`
}

type activeReservationsResponse struct {
	Reservations []reservationResponse `json:"reservations"`
}
