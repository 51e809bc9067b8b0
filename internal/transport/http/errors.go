package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tiendafix/stockhold/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeInvalidQuantity     = "invalid_quantity"
	codeSessionRequired     = "session_required"
	codeCheckoutEmpty       = "checkout_empty"
	codeVariantNotFound     = "variant_not_found"
	codeInsufficientStock   = "insufficient_stock"
	codeSKURequired         = "sku_required"
	codeSKUAlreadyExists    = "sku_already_exists"
	codeVariantNameRequired = "variant_name_required"
	codeInvalidStock        = "invalid_stock"
	codeUnknownOutcome      = "unknown_outcome"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps the shared domain sentinels onto HTTP statuses.
// Handlers call it after dealing with any handler-specific errors.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrSessionRequired):
		writeError(w, http.StatusBadRequest, codeSessionRequired, err.Error())
	case errors.Is(err, domain.ErrCheckoutEmpty):
		writeError(w, http.StatusBadRequest, codeCheckoutEmpty, err.Error())
	case errors.Is(err, domain.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, codeVariantNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case errors.Is(err, domain.ErrSKURequired):
		writeError(w, http.StatusBadRequest, codeSKURequired, err.Error())
	case errors.Is(err, domain.ErrSKUAlreadyExists):
		writeError(w, http.StatusConflict, codeSKUAlreadyExists, err.Error())
	case errors.Is(err, domain.ErrVariantNameRequired):
		writeError(w, http.StatusBadRequest, codeVariantNameRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidStock):
		writeError(w, http.StatusBadRequest, codeInvalidStock, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
