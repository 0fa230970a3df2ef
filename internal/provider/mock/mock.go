package mock

import (
	"context"
	"time"

	"github.com/utafrali/adexify/internal/provider"
)

// Gateway is a mock payment provider that always succeeds.
// It is intended for development and testing purposes.
type Gateway struct {
	// CheckoutURL is the base of the fake authorization URL.
	CheckoutURL string
	now         func() time.Time
}

var _ provider.Gateway = (*Gateway)(nil)

func NewGateway(checkoutURL string) *Gateway {
	if checkoutURL == "" {
		checkoutURL = "http://localhost:3000/mock-checkout"
	}
	return &Gateway{CheckoutURL: checkoutURL, now: time.Now}
}

func (g *Gateway) Name() string {
	return "mock"
}

func (g *Gateway) Initialize(_ context.Context, in provider.InitializeInput) (*provider.InitializeResult, error) {
	return &provider.InitializeResult{
		AuthorizationURL: g.CheckoutURL + "?reference=" + in.Reference,
		AccessCode:       "mock_" + in.Reference,
		Reference:        in.Reference,
	}, nil
}

// Verify reports every reference as paid. The amount is unknown to the mock
// and reported as zero.
func (g *Gateway) Verify(_ context.Context, reference string) (*provider.VerifyResult, error) {
	return &provider.VerifyResult{
		Reference: reference,
		Status:    provider.VerifyStatusSuccess,
		PaidAt:    g.now().UTC(),
	}, nil
}

// VerifyWebhookSignature accepts any non-empty signature.
func (g *Gateway) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature != ""
}
