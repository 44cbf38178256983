// Package payment holds outbound payment-provider clients. Inbound webhook
// parsing lives in internal/payment/adapters; this package is for calls we
// originate, such as cancelling a subscription at the provider during dunning.
package payment

import (
	"context"
	"errors"
)

var ErrUnsupportedProvider = errors.New("unsupported_provider")

// Client cancels a subscription at the billing provider. Cancelling an
// already-cancelled subscription must not return an error.
type Client interface {
	CancelSubscription(ctx context.Context, provider string, providerSubscriptionID string) error
}

// NoOpClient is used when no provider API key is configured, typically in
// tests and local development. The local state machine still runs; the
// provider-side subscription is left untouched.
type NoOpClient struct{}

func (NoOpClient) CancelSubscription(ctx context.Context, provider string, providerSubscriptionID string) error {
	return nil
}
