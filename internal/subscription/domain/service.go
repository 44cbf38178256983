package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// PaymentSucceededEvent is the decoded payload of a provider "payment
// succeeded" webhook. Amounts are provider minor units; timestamps are unix
// seconds as delivered.
type PaymentSucceededEvent struct {
	ProviderSubscriptionID string
	ProviderInvoiceID      string
	AmountMinor            int64
	Currency               string
	PeriodStart            int64
	PeriodEnd              int64
	HostedURL              string
}

// PaymentFailedEvent is the decoded payload of a provider "payment failed"
// webhook.
type PaymentFailedEvent struct {
	ProviderSubscriptionID string
	ProviderInvoiceID      string
	AmountMinor            int64
	Currency               string
	FailureReason          string
}

// SubscriptionEvent is the decoded payload of a provider subscription
// created/updated/deleted webhook.
type SubscriptionEvent struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	Status                 string
	PeriodStart            int64
	PeriodEnd              int64
}

// Service applies provider webhook payloads to stored subscriptions. Lookup
// misses are deliberate no-ops (foreign/stale events must not fail webhook
// delivery) but are counted so operators can alert on misconfiguration.
type Service interface {
	ApplyPaymentSucceeded(ctx context.Context, event PaymentSucceededEvent) error
	ApplyPaymentFailed(ctx context.Context, event PaymentFailedEvent) error
	ApplySubscriptionCreated(ctx context.Context, event SubscriptionEvent) error
	ApplySubscriptionUpdated(ctx context.Context, event SubscriptionEvent) error
	ApplySubscriptionDeleted(ctx context.Context, event SubscriptionEvent) error

	// Reactivate restores a paid-up subscription to ACTIVE, mirrors the
	// client account, and sends a confirmation notification.
	Reactivate(ctx context.Context, subscriptionID snowflake.ID) error

	GetByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
)

// DefaultFailureReason is stored when the provider reports a failed payment
// without a reason.
const DefaultFailureReason = "Your payment could not be processed."
