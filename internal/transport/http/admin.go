package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tiendafix/stockhold/internal/app"
	"github.com/tiendafix/stockhold/internal/domain"
)

// VariantAdmin is the minimal interface for catalog administration.
type VariantAdmin interface {
	CreateVariant(ctx context.Context, in app.CreateVariantInput) (domain.Variant, error)
	ListVariants(ctx context.Context) ([]domain.Variant, error)
	AddStock(ctx context.Context, in app.AddStockInput) (domain.Variant, error)
}

// HandleAdminVariants serves GET (list) and POST (create) on /admin/variants.
func HandleAdminVariants(svc VariantAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			variants, err := svc.ListVariants(r.Context())
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out := make([]variantResponse, 0, len(variants))
			for _, v := range variants {
				out = append(out, toVariantResponse(v))
			}
			writeJSON(w, http.StatusOK, variantsResponse{Variants: out})

		case http.MethodPost:
			var req createVariantRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			v, err := svc.CreateVariant(r.Context(), app.CreateVariantInput{
				SKU:        req.SKU,
				Name:       req.Name,
				StockTotal: req.StockTotal,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, toVariantResponse(v))

		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminVariantStock handles POST /admin/variants/{id}/stock.
func HandleAdminVariantStock(svc VariantAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseAdminVariantPath(r.URL.Path, "stock")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req addStockRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		v, err := svc.AddStock(r.Context(), app.AddStockInput{VariantID: id, Delta: req.Delta})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVariantResponse(v))
	}
}

// AvailabilityChecker is the advisory availability read from the engine.
type AvailabilityChecker interface {
	VerifyAvailable(ctx context.Context, variantID string, qty int) (bool, error)
}

// HandleAvailability handles GET /variants/{id}/availability?quantity=N.
// The answer is a hint: a reservation attempt can still race and fail.
func HandleAvailability(svc AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseActionPath(r.URL.Path, "variants", "availability")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		qty := 1
		if raw := r.URL.Query().Get("quantity"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidQuantity, "invalid quantity")
				return
			}
			qty = n
		}

		available, err := svc.VerifyAvailable(r.Context(), id, qty)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, availabilityResponse{Available: available, Quantity: qty})
	}
}

func parseAdminVariantPath(path, action string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "admin" || parts[1] != "variants" || parts[3] != action {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func toVariantResponse(v domain.Variant) variantResponse {
	return variantResponse{
		ID:             v.ID,
		SKU:            v.SKU,
		Name:           v.Name,
		StockTotal:     v.StockTotal,
		StockReserved:  v.StockReserved,
		StockAvailable: v.Available(),
		CreatedAt:      v.CreatedAt,
	}
}

type createVariantRequest struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	StockTotal int    `json:"stock_total"`
}

type addStockRequest struct {
	Delta int `json:"delta"`
}

type variantResponse struct {
	ID             string    `json:"id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	StockTotal     int       `json:"stock_total"`
	StockReserved  int       `json:"stock_reserved"`
	StockAvailable int       `json:"stock_available"`
	CreatedAt      time.Time `json:"created_at"`
}

type variantsResponse struct {
	Variants []variantResponse `json:"variants"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
	Quantity  int  `json:"quantity"`
}
