package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tiendafix/stockhold/internal/app"
)

// Checkouter is the minimal interface needed to run a checkout.
type Checkouter interface {
	Checkout(ctx context.Context, in app.CheckoutInput) (app.CheckoutResult, error)
}

// HandleCheckout reserves every line item and creates a payment intent.
func HandleCheckout(svc Checkouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req checkoutRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		items := make([]app.CheckoutItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, app.CheckoutItem{VariantID: item.VariantID, Quantity: item.Quantity})
		}

		result, err := svc.Checkout(r.Context(), app.CheckoutInput{
			SessionID:   req.SessionID,
			AmountCents: req.AmountCents,
			Items:       items,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		reservations := make([]reservationResponse, 0, len(result.Reservations))
		for _, res := range result.Reservations {
			reservations = append(reservations, reservationResponse{
				ID:              res.ID,
				VariantID:       res.VariantID,
				Quantity:        res.Quantity,
				SessionID:       res.SessionID,
				PaymentIntentID: res.PaymentIntentID,
				State:           string(res.State),
				ExpiresAt:       res.ExpiresAt,
			})
		}
		writeJSON(w, http.StatusCreated, checkoutResponse{
			PaymentIntentID: result.PaymentIntentID,
			Reservations:    reservations,
		})
	}
}

// OutcomeHandler is the minimal interface needed to settle a payment outcome.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, paymentIntentID string, outcome app.PaymentOutcome) (bool, error)
}

// HandlePaymentWebhook receives the gateway's verdict for an intent. The
// endpoint is idempotent: replaying a settled intent reports handled=false
// without touching stock.
func HandlePaymentWebhook(svc OutcomeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req webhookRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.PaymentIntentID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "payment_intent_id is required")
			return
		}

		switch app.PaymentOutcome(req.Outcome) {
		case app.PaymentOutcomeApproved, app.PaymentOutcomeRejected, app.PaymentOutcomeCancelled, app.PaymentOutcomePending:
		default:
			writeError(w, http.StatusBadRequest, codeUnknownOutcome, "unknown payment outcome")
			return
		}

		handled, err := svc.HandleOutcome(r.Context(), req.PaymentIntentID, app.PaymentOutcome(req.Outcome))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, webhookResponse{Handled: handled, ReceivedAt: time.Now().UTC()})
	}
}

type checkoutRequest struct {
	SessionID   string             `json:"session_id"`
	AmountCents int                `json:"amount_cents"`
	Items       []checkoutItemBody `json:"items"`
}

type checkoutItemBody struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutResponse struct {
	PaymentIntentID string                `json:"payment_intent_id"`
	Reservations    []reservationResponse `json:"reservations"`
}

type webhookRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Outcome         string `json:"outcome"`
}

type webhookResponse struct {
	Handled    bool      `json:"handled"`
	ReceivedAt time.Time `json:"received_at"`
}
