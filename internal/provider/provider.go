package provider

import (
	"context"
	"time"
)

// VerifyStatusSuccess is the only verification status that settles an order.
const VerifyStatusSuccess = "success"

// InitializeInput holds the parameters for opening a hosted checkout.
type InitializeInput struct {
	Email       string
	AmountMinor int64
	Reference   string
	CallbackURL string
}

// InitializeResult is what the customer needs to complete the payment.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the provider's view of a transaction.
type VerifyResult struct {
	Reference   string
	Status      string // "success", "failed", "abandoned", ...
	AmountMinor int64
	PaidAt      time.Time
}

func (r *VerifyResult) Succeeded() bool {
	return r.Status == VerifyStatusSuccess
}

// Gateway defines the interface for payment provider integrations.
type Gateway interface {
	// Name returns the provider name (e.g., "mock", "paystack").
	Name() string

	// Initialize opens a transaction and returns the checkout URL.
	Initialize(ctx context.Context, in InitializeInput) (*InitializeResult, error)

	// Verify asks the provider for the current state of a transaction. An
	// unsuccessful transaction is a result, not an error.
	Verify(ctx context.Context, reference string) (*VerifyResult, error)

	// VerifyWebhookSignature reports whether signature authenticates body.
	VerifyWebhookSignature(body []byte, signature string) bool
}
