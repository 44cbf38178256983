package service

import (
	"context"
	"fmt"
	"strings"

	accountdomain "github.com/adpilot-io/adpilot/internal/account/domain"
	"github.com/adpilot-io/adpilot/internal/clock"
	invoicedomain "github.com/adpilot-io/adpilot/internal/invoice/domain"
	notificationdomain "github.com/adpilot-io/adpilot/internal/notification/domain"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/adpilot-io/adpilot/internal/providers/email"
	"github.com/adpilot-io/adpilot/internal/subscription/domain"
	pkgdb "github.com/adpilot-io/adpilot/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            domain.Repository
	InvoiceRepo     invoicedomain.Repository
	AccountRepo     accountdomain.Repository
	NotificationSvc notificationdomain.Service
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	invoiceRepo     invoicedomain.Repository
	accountRepo     accountdomain.Repository
	notificationSvc notificationdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("subscription.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		invoiceRepo:     p.InvoiceRepo,
		accountRepo:     p.AccountRepo,
		notificationSvc: p.NotificationSvc,
	}
}

// ApplyPaymentSucceeded marks the subscription ACTIVE, refreshes its period
// from the invoice, and records a PAID invoice. The database writes are
// authoritative; the confirmation notification is advisory and never aborts
// the committed mutation.
func (s *Service) ApplyPaymentSucceeded(ctx context.Context, event domain.PaymentSucceededEvent) error {
	subscription, err := s.lookup(ctx, "payment_succeeded", event.ProviderSubscriptionID, "")
	if err != nil || subscription == nil {
		return err
	}

	now := s.clock.Now()
	wasDelinquent := subscription.Status == domain.SubscriptionStatusPastDue ||
		subscription.Status == domain.SubscriptionStatusSuspended ||
		subscription.Status == domain.SubscriptionStatusCancelled

	var created *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription.Status = domain.SubscriptionStatusActive
		subscription.CurrentPeriodStart = domain.UnixToTime(event.PeriodStart)
		subscription.CurrentPeriodEnd = domain.UnixToTime(event.PeriodEnd)
		subscription.EndDate = nil
		if currency := strings.ToUpper(strings.TrimSpace(event.Currency)); currency != "" {
			subscription.Currency = currency
		}
		if event.AmountMinor > 0 {
			subscription.Amount = float64(event.AmountMinor) / 100
		}
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}

		if wasDelinquent {
			if err := s.accountRepo.UpdateStatus(ctx, tx, subscription.AccountID, accountdomain.AccountStatusActive); err != nil {
				return err
			}
		}

		// A replayed event (crash between claim and mark) must not record
		// the same provider invoice twice.
		providerInvoiceID := strings.TrimSpace(event.ProviderInvoiceID)
		if providerInvoiceID != "" {
			existing, err := s.invoiceRepo.FindByProviderInvoiceID(ctx, tx, providerInvoiceID, invoicedomain.InvoiceStatusPaid)
			if err != nil {
				return err
			}
			if existing != nil {
				// Redeliveries sometimes carry the hosted URL the first
				// delivery lacked.
				if url := strings.TrimSpace(event.HostedURL); url != "" && existing.HostedURL == nil {
					return s.invoiceRepo.UpdateHostedURL(ctx, tx, existing.ID, url)
				}
				return nil
			}
		}

		id := s.genID.Generate()
		inv := &invoicedomain.Invoice{
			ID:                id,
			AccountID:         subscription.AccountID,
			SubscriptionID:    subscription.ID,
			ProviderInvoiceID: providerInvoiceID,
			Number:            invoicedomain.Number(id, now),
			Amount:            float64(event.AmountMinor) / 100,
			Currency:          strings.ToUpper(strings.TrimSpace(event.Currency)),
			Status:            invoicedomain.InvoiceStatusPaid,
			PaidAt:            &now,
			CreatedAt:         now,
		}
		if url := strings.TrimSpace(event.HostedURL); url != "" {
			inv.HostedURL = &url
		}
		if err := s.invoiceRepo.Insert(ctx, tx, inv); err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyPaymentConfirmation(ctx, subscription, created)
	return nil
}

// ApplyPaymentFailed moves the subscription to PAST_DUE and records a FAILED
// invoice with the provider's failure reason.
func (s *Service) ApplyPaymentFailed(ctx context.Context, event domain.PaymentFailedEvent) error {
	subscription, err := s.lookup(ctx, "payment_failed", event.ProviderSubscriptionID, "")
	if err != nil || subscription == nil {
		return err
	}

	now := s.clock.Now()
	reason := strings.TrimSpace(event.FailureReason)
	if reason == "" {
		reason = domain.DefaultFailureReason
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if subscription.Status != domain.SubscriptionStatusSuspended &&
			subscription.Status != domain.SubscriptionStatusCancelled {
			subscription.Status = domain.SubscriptionStatusPastDue
			if err := s.repo.Update(ctx, tx, subscription); err != nil {
				return err
			}
		}

		providerInvoiceID := strings.TrimSpace(event.ProviderInvoiceID)
		if providerInvoiceID != "" {
			existing, err := s.invoiceRepo.FindByProviderInvoiceID(ctx, tx, providerInvoiceID, invoicedomain.InvoiceStatusFailed)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
		}

		id := s.genID.Generate()
		inv := &invoicedomain.Invoice{
			ID:                id,
			AccountID:         subscription.AccountID,
			SubscriptionID:    subscription.ID,
			ProviderInvoiceID: providerInvoiceID,
			Number:            invoicedomain.Number(id, now),
			Amount:            float64(event.AmountMinor) / 100,
			Currency:          strings.ToUpper(strings.TrimSpace(event.Currency)),
			Status:            invoicedomain.InvoiceStatusFailed,
			FailedAt:          &now,
			FailureReason:     &reason,
			CreatedAt:         now,
		}
		return s.invoiceRepo.Insert(ctx, tx, inv)
	})
	if err != nil {
		return err
	}

	s.notifyBillingReminder(ctx, subscription, reason)
	return nil
}

// ApplySubscriptionCreated matches on the provider customer id and overwrites
// status and period fields from the provider payload.
func (s *Service) ApplySubscriptionCreated(ctx context.Context, event domain.SubscriptionEvent) error {
	subscription, err := s.lookup(ctx, "subscription_created", "", event.ProviderCustomerID)
	if err != nil || subscription == nil {
		return err
	}
	if id := strings.TrimSpace(event.ProviderSubscriptionID); id != "" {
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE subscriptions SET provider_subscription_id = ? WHERE id = ?`,
			id, subscription.ID,
		).Error; err != nil {
			// Another local subscription already carries this provider id.
			// Keep the pending marker and let the conflicting row own it.
			if !pkgdb.IsDuplicateKeyErr(err) {
				return err
			}
			s.log.Warn("provider subscription id already claimed",
				zap.String("provider_subscription_id", id),
				zap.String("subscription_id", subscription.ID.String()),
			)
		} else {
			subscription.ProviderSubscriptionID = id
		}
	}
	return s.overwriteFromProvider(ctx, subscription, event)
}

// ApplySubscriptionUpdated matches on the provider subscription id.
func (s *Service) ApplySubscriptionUpdated(ctx context.Context, event domain.SubscriptionEvent) error {
	subscription, err := s.lookup(ctx, "subscription_updated", event.ProviderSubscriptionID, "")
	if err != nil || subscription == nil {
		return err
	}
	return s.overwriteFromProvider(ctx, subscription, event)
}

// ApplySubscriptionDeleted cancels the local record effective immediately.
// end_date is the cancellation time, not the provider's period end.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, event domain.SubscriptionEvent) error {
	subscription, err := s.lookup(ctx, "subscription_deleted", event.ProviderSubscriptionID, "")
	if err != nil || subscription == nil {
		return err
	}
	if subscription.Status == domain.SubscriptionStatusCancelled {
		return nil
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription.Status = domain.SubscriptionStatusCancelled
		subscription.EndDate = &now
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		return s.accountRepo.UpdateStatus(ctx, tx, subscription.AccountID, accountdomain.AccountStatusCancelled)
	})
}

// Reactivate restores an escalated subscription to ACTIVE after payment has
// been demonstrated (payment-success path or operator action).
func (s *Service) Reactivate(ctx context.Context, subscriptionID snowflake.ID) error {
	subscription, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return err
	}
	if subscription == nil {
		return domain.ErrSubscriptionNotFound
	}
	if subscription.Status == domain.SubscriptionStatusActive {
		return nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription.Status = domain.SubscriptionStatusActive
		subscription.EndDate = nil
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		return s.accountRepo.UpdateStatus(ctx, tx, subscription.AccountID, accountdomain.AccountStatusActive)
	})
	if err != nil {
		return err
	}

	s.notifyPaymentConfirmation(ctx, subscription, nil)
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

// lookup resolves the stored subscription for a webhook event. A miss is not
// an error (foreign or stale events must not fail delivery) but is logged and
// counted so stray events surface in monitoring.
func (s *Service) lookup(ctx context.Context, eventType, providerSubscriptionID, providerCustomerID string) (*domain.Subscription, error) {
	var (
		subscription *domain.Subscription
		err          error
	)
	if providerSubscriptionID != "" {
		subscription, err = s.repo.FindByProviderSubscriptionID(ctx, s.db, providerSubscriptionID)
	} else {
		subscription, err = s.repo.FindByProviderCustomerID(ctx, s.db, providerCustomerID)
	}
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		s.log.Warn("webhook event matched no local subscription",
			zap.String("event_type", eventType),
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.String("provider_customer_id", providerCustomerID),
		)
		obsmetrics.Default().RecordLookupMiss(eventType)
		return nil, nil
	}
	return subscription, nil
}

func (s *Service) overwriteFromProvider(ctx context.Context, subscription *domain.Subscription, event domain.SubscriptionEvent) error {
	if status := domain.MapProviderStatus(event.Status); status != "" {
		subscription.Status = status
	} else if event.Status != "" {
		s.log.Warn("unknown provider subscription status",
			zap.String("status", event.Status),
			zap.String("subscription_id", subscription.ID.String()),
		)
	}
	subscription.CurrentPeriodStart = domain.UnixToTime(event.PeriodStart)
	subscription.CurrentPeriodEnd = domain.UnixToTime(event.PeriodEnd)
	return s.repo.Update(ctx, s.db, subscription)
}

func (s *Service) notifyPaymentConfirmation(ctx context.Context, subscription *domain.Subscription, inv *invoicedomain.Invoice) {
	data := map[string]any{
		"AccountName": s.accountName(ctx, subscription.AccountID),
		"Amount":      fmt.Sprintf("%.2f", subscription.Amount),
		"Currency":    subscription.Currency,
	}
	message := "Your payment was received and your subscription is active."
	if inv != nil {
		data["InvoiceNumber"] = inv.Number
		message = fmt.Sprintf("Payment of %.2f %s received (invoice %s).", inv.Amount, inv.Currency, inv.Number)
	}

	body, err := email.Render("payment_confirmation", data)
	if err != nil {
		s.log.Warn("payment confirmation template render failed", zap.Error(err))
		body = message
	}

	accountID := subscription.AccountID
	if _, err := s.notificationSvc.Dispatch(ctx, notificationdomain.DispatchRequest{
		Type:      notificationdomain.NotificationTypeSuccess,
		Title:     "Payment received",
		Message:   message,
		AccountID: &accountID,
		Priority:  notificationdomain.NotificationPriorityMedium,
		Email: &notificationdomain.EmailRequest{
			Subject:  "Payment received - AdPilot",
			HTMLBody: body,
		},
	}); err != nil {
		s.log.Warn("payment confirmation notification failed",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyBillingReminder(ctx context.Context, subscription *domain.Subscription, reason string) {
	body, err := email.Render("billing_reminder", map[string]any{
		"AccountName": s.accountName(ctx, subscription.AccountID),
		"Reason":      reason,
	})
	if err != nil {
		s.log.Warn("billing reminder template render failed", zap.Error(err))
		body = reason
	}

	accountID := subscription.AccountID
	if _, err := s.notificationSvc.Dispatch(ctx, notificationdomain.DispatchRequest{
		Type:      notificationdomain.NotificationTypeWarning,
		Title:     "Payment failed",
		Message:   reason,
		AccountID: &accountID,
		Priority:  notificationdomain.NotificationPriorityHigh,
		Email: &notificationdomain.EmailRequest{
			Subject:  "Action needed: payment failed - AdPilot",
			HTMLBody: body,
		},
	}); err != nil {
		s.log.Warn("billing reminder notification failed",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) accountName(ctx context.Context, accountID snowflake.ID) string {
	acct, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil || acct == nil {
		return "there"
	}
	return acct.Name
}
