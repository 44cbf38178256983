package payment

import (
	"github.com/adpilot-io/adpilot/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.payment",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Client {
	if cfg.Stripe.APIKey == "" {
		log.Warn("no stripe api key configured, provider-side cancellation disabled")
		return NoOpClient{}
	}
	client, err := NewStripeClient(cfg.Stripe.APIKey, log)
	if err != nil {
		log.Warn("stripe client init failed, provider-side cancellation disabled", zap.Error(err))
		return NoOpClient{}
	}
	return client
}
