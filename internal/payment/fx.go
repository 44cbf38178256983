package payment

import (
	"github.com/adpilot-io/adpilot/internal/config"
	"github.com/adpilot-io/adpilot/internal/payment/adapters"
	"github.com/adpilot-io/adpilot/internal/payment/adapters/stripe"
	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
	"github.com/adpilot-io/adpilot/internal/payment/repository"
	paymentservice "github.com/adpilot-io/adpilot/internal/payment/service"
	"github.com/adpilot-io/adpilot/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) *adapters.Registry {
		var registered []paymentdomain.Adapter
		if adapter, err := stripe.New(cfg.Stripe.WebhookSecret); err != nil {
			log.Warn("stripe webhook adapter disabled", zap.Error(err))
		} else {
			registered = append(registered, adapter)
		}
		return adapters.NewRegistry(registered...)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
