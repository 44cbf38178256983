package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/adpilot-io/adpilot/internal/clock"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
	subscriptiondomain "github.com/adpilot-io/adpilot/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            paymentdomain.Repository
	SubscriptionSvc subscriptiondomain.Service
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            paymentdomain.Repository
	subscriptionSvc subscriptiondomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		subscriptionSvc: p.SubscriptionSvc,
	}
}

// ProcessEvent records the event and applies it exactly once. Redelivered
// events that were already applied return ErrEventAlreadyProcessed, which the
// HTTP layer acknowledges with 200 so the provider stops retrying; events
// recorded but not yet applied (a crash between insert and mark) are applied
// again, which is safe because every apply path is a state overwrite.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if !json.Valid(event.RawPayload) {
		return paymentdomain.ErrInvalidPayload
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Info("duplicate webhook event ignored",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.applyEvent(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	obsmetrics.Default().RecordWebhookEvent(event.Provider, event.Type)
	return nil
}

func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.Event) error {
	switch event.Type {
	case paymentdomain.EventTypeInvoicePaid:
		return s.subscriptionSvc.ApplyPaymentSucceeded(ctx, subscriptiondomain.PaymentSucceededEvent{
			ProviderSubscriptionID: event.ProviderSubscriptionID,
			ProviderInvoiceID:      event.ProviderInvoiceID,
			AmountMinor:            event.AmountMinor,
			Currency:               event.Currency,
			PeriodStart:            event.PeriodStart,
			PeriodEnd:              event.PeriodEnd,
			HostedURL:              event.HostedURL,
		})
	case paymentdomain.EventTypeInvoiceFailed:
		return s.subscriptionSvc.ApplyPaymentFailed(ctx, subscriptiondomain.PaymentFailedEvent{
			ProviderSubscriptionID: event.ProviderSubscriptionID,
			ProviderInvoiceID:      event.ProviderInvoiceID,
			AmountMinor:            event.AmountMinor,
			Currency:               event.Currency,
			FailureReason:          event.FailureReason,
		})
	case paymentdomain.EventTypeSubscriptionCreated:
		return s.subscriptionSvc.ApplySubscriptionCreated(ctx, subscriptionEvent(event))
	case paymentdomain.EventTypeSubscriptionUpdated:
		return s.subscriptionSvc.ApplySubscriptionUpdated(ctx, subscriptionEvent(event))
	case paymentdomain.EventTypeSubscriptionDeleted:
		return s.subscriptionSvc.ApplySubscriptionDeleted(ctx, subscriptionEvent(event))
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func subscriptionEvent(event *paymentdomain.Event) subscriptiondomain.SubscriptionEvent {
	return subscriptiondomain.SubscriptionEvent{
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderCustomerID:     event.ProviderCustomerID,
		Status:                 event.Status,
		PeriodStart:            event.PeriodStart,
		PeriodEnd:              event.PeriodEnd,
	}
}

func validateEvent(event *paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	switch event.Type {
	case paymentdomain.EventTypeInvoicePaid,
		paymentdomain.EventTypeInvoiceFailed,
		paymentdomain.EventTypeSubscriptionCreated,
		paymentdomain.EventTypeSubscriptionUpdated,
		paymentdomain.EventTypeSubscriptionDeleted:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
