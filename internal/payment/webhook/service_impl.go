package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/adpilot-io/adpilot/internal/payment/adapters"
	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
	paymentservice "github.com/adpilot-io/adpilot/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
	}
}

// IngestWebhook verifies and parses one provider delivery. Signature and
// payload failures surface to the caller for a 4xx; unrecognized event types
// are acknowledged without processing so the provider does not retry them.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		obsmetrics.Default().RecordWebhookRejected(provider, "unknown_provider")
		return paymentdomain.ErrProviderNotFound
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		obsmetrics.Default().RecordWebhookRejected(provider, "invalid_payload")
		return paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature verification failed", zap.String("provider", provider))
		obsmetrics.Default().RecordWebhookRejected(provider, "invalid_signature")
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Info("webhook event type ignored", zap.String("provider", provider))
			return nil
		}
		obsmetrics.Default().RecordWebhookRejected(provider, "invalid_payload")
		return err
	}

	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	return s.paymentSvc.ProcessEvent(ctx, event)
}
