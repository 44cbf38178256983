package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
)

type StripeClient struct {
	client *stripe.Client
	log    *zap.Logger
}

func NewStripeClient(apiKey string, log *zap.Logger) (*StripeClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe_api_key_missing")
	}
	return &StripeClient{
		client: stripe.NewClient(apiKey),
		log:    log.Named("providers.stripe"),
	}, nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, provider string, providerSubscriptionID string) error {
	if strings.ToLower(strings.TrimSpace(provider)) != "stripe" {
		return ErrUnsupportedProvider
	}
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return errors.New("missing_provider_subscription_id")
	}

	_, err := c.client.V1Subscriptions.Cancel(ctx, providerSubscriptionID, &stripe.SubscriptionCancelParams{})
	if err == nil {
		return nil
	}

	// A subscription Stripe no longer knows, or already cancelled, is the
	// state we wanted.
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) && apiErr.Code == stripe.ErrorCodeResourceMissing {
		c.log.Info("stripe subscription already gone",
			zap.String("provider_subscription_id", providerSubscriptionID),
		)
		return nil
	}
	return err
}
