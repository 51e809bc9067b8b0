// Package gateway holds payment-gateway adapters satisfying app.PaymentGateway.
package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/tiendafix/stockhold/internal/app"
)

// Local issues synthetic payment-intent ids without calling any provider.
// It stands in for the hosted gateway client in local and test wiring; the
// webhook endpoint still drives the full outcome flow against it.
type Local struct{}

func NewLocal() Local {
	return Local{}
}

func (Local) CreateIntent(_ context.Context, _ app.CreateIntentInput) (string, error) {
	return "pi_" + uuid.NewString(), nil
}
