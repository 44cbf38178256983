package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	accountdomain "github.com/adpilot-io/adpilot/internal/account/domain"
	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/config"
	dunningdomain "github.com/adpilot-io/adpilot/internal/dunning/domain"
	"github.com/adpilot-io/adpilot/internal/lock"
	notificationdomain "github.com/adpilot-io/adpilot/internal/notification/domain"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/adpilot-io/adpilot/internal/providers/email"
	providerpayment "github.com/adpilot-io/adpilot/internal/providers/payment"
	subscriptiondomain "github.com/adpilot-io/adpilot/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// listBatchSize bounds one sweep's working set. Anything beyond it is picked
// up by the next run.
const listBatchSize = 1000

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Cfg              config.Config
	Clock            clock.Clock
	SubscriptionRepo subscriptiondomain.Repository
	AccountRepo      accountdomain.Repository
	NotificationSvc  notificationdomain.Service
	ProviderClient   providerpayment.Client
	Locker           *lock.Locker `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             config.DunningConfig
	clock           clock.Clock
	repo            subscriptiondomain.Repository
	accountRepo     accountdomain.Repository
	notificationSvc notificationdomain.Service
	providerClient  providerpayment.Client
	locker          *lock.Locker
}

func NewService(p Params) dunningdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("dunning.service"),
		cfg:             p.Cfg.Dunning,
		clock:           p.Clock,
		repo:            p.SubscriptionRepo,
		accountRepo:     p.AccountRepo,
		notificationSvc: p.NotificationSvc,
		providerClient:  p.ProviderClient,
		locker:          p.Locker,
	}
}

// overdueStatuses are the states a sweep can still escalate. CANCELLED is
// terminal and never revisited.
var overdueStatuses = []subscriptiondomain.SubscriptionStatus{
	subscriptiondomain.SubscriptionStatusActive,
	subscriptiondomain.SubscriptionStatusTrial,
	subscriptiondomain.SubscriptionStatusPastDue,
	subscriptiondomain.SubscriptionStatusSuspended,
}

func (s *Service) Sweep(ctx context.Context) (dunningdomain.SweepResult, error) {
	now := s.clock.Now()

	candidates, err := s.repo.ListOverdue(ctx, s.db, overdueStatuses, now, listBatchSize)
	if err != nil {
		return dunningdomain.SweepResult{}, err
	}

	var reminded, suspended, cancelled, failures atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	group.SetLimit(concurrency)

	for i := range candidates {
		id := candidates[i].ID
		group.Go(func() error {
			action, err := s.processOne(groupCtx, id)
			if err != nil {
				failures.Add(1)
				s.log.Warn("dunning escalation failed",
					zap.String("subscription_id", id.String()),
					zap.Error(err),
				)
				return nil
			}
			switch action {
			case actionRemind:
				reminded.Add(1)
			case actionSuspend:
				suspended.Add(1)
			case actionCancel:
				cancelled.Add(1)
			}
			return nil
		})
	}
	_ = group.Wait()

	result := dunningdomain.SweepResult{
		Considered: len(candidates),
		Reminded:   int(reminded.Load()),
		Suspended:  int(suspended.Load()),
		Cancelled:  int(cancelled.Load()),
		Errors:     int(failures.Load()),
	}
	s.log.Info("dunning sweep finished",
		zap.Int("considered", result.Considered),
		zap.Int("reminded", result.Reminded),
		zap.Int("suspended", result.Suspended),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

type action int

const (
	actionNone action = iota
	actionRemind
	actionSuspend
	actionCancel
)

// processOne escalates a single subscription under an advisory lock. The row
// is re-read under FOR UPDATE inside the transaction so a payment applied
// between listing and locking wins.
func (s *Service) processOne(ctx context.Context, id snowflake.ID) (action, error) {
	lockKey := fmt.Sprintf("dunning:subscription:%s", id.String())
	token, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return actionNone, err
	}
	if !acquired {
		return actionNone, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("dunning lock release failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	now := s.clock.Now()

	var (
		decided action
		target  *subscriptiondomain.Subscription
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return nil
		}

		decided = s.decide(subscription, now)
		if decided == actionNone {
			return nil
		}
		// The provider call for cancellation happens before our state flips so
		// billing stops even if the transaction later rolls back. Stripe
		// treats a repeated cancel as already done.
		if decided == actionCancel {
			if err := s.providerClient.CancelSubscription(ctx, subscription.Provider, subscription.ProviderSubscriptionID); err != nil {
				return err
			}
		}

		switch decided {
		case actionRemind:
			subscription.LastReminderAt = &now
		case actionSuspend:
			subscription.Status = subscriptiondomain.SubscriptionStatusSuspended
		case actionCancel:
			subscription.Status = subscriptiondomain.SubscriptionStatusCancelled
			subscription.EndDate = &now
		}
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}

		switch decided {
		case actionSuspend:
			if err := s.accountRepo.UpdateStatus(ctx, tx, subscription.AccountID, accountdomain.AccountStatusSuspended); err != nil {
				return err
			}
		case actionCancel:
			if err := s.accountRepo.UpdateStatus(ctx, tx, subscription.AccountID, accountdomain.AccountStatusCancelled); err != nil {
				return err
			}
		}
		target = subscription
		return nil
	})
	if err != nil || decided == actionNone || target == nil {
		return actionNone, err
	}

	s.notify(ctx, target, decided, now)
	switch decided {
	case actionRemind:
		obsmetrics.Default().RecordDunningAction("reminded")
	case actionSuspend:
		obsmetrics.Default().RecordDunningAction("suspended")
	case actionCancel:
		obsmetrics.Default().RecordDunningAction("cancelled")
	}
	return decided, nil
}

// decide picks the escalation for a subscription at the given instant.
// Thresholds are checked most severe first so a long-overdue subscription
// jumps straight to the final state. Suspension and cancellation are
// monotonic; the reminder tier never writes status and is sent at most once
// per overdue period, tracked by last_reminder_at.
func (s *Service) decide(subscription *subscriptiondomain.Subscription, now time.Time) action {
	if subscription.CurrentPeriodEnd == nil {
		return actionNone
	}
	overdue := now.Sub(*subscription.CurrentPeriodEnd)
	if overdue <= 0 {
		return actionNone
	}
	daysOverdue := int(overdue.Hours() / 24)

	switch {
	case daysOverdue >= s.cfg.CancelAfterDays:
		if subscriptiondomain.IsEscalationAllowed(subscription.Status, subscriptiondomain.SubscriptionStatusCancelled) {
			return actionCancel
		}
	case daysOverdue >= s.cfg.SuspendAfterDays:
		if subscriptiondomain.IsEscalationAllowed(subscription.Status, subscriptiondomain.SubscriptionStatusSuspended) {
			return actionSuspend
		}
	case daysOverdue >= s.cfg.ReminderAfterDays:
		if subscription.Status == subscriptiondomain.SubscriptionStatusSuspended {
			return actionNone
		}
		if subscription.LastReminderAt != nil && subscription.LastReminderAt.After(*subscription.CurrentPeriodEnd) {
			return actionNone
		}
		return actionRemind
	}
	return actionNone
}

func (s *Service) notify(ctx context.Context, subscription *subscriptiondomain.Subscription, decided action, now time.Time) {
	var (
		template string
		ntype    notificationdomain.NotificationType
		priority notificationdomain.NotificationPriority
		title    string
		message  string
		subject  string
	)
	switch decided {
	case actionRemind:
		template = "billing_reminder"
		ntype = notificationdomain.NotificationTypeWarning
		priority = notificationdomain.NotificationPriorityMedium
		title = "Payment overdue"
		message = "Your subscription payment is overdue. Please update your payment method."
		subject = "Payment overdue - AdPilot"
	case actionSuspend:
		template = "account_suspended"
		ntype = notificationdomain.NotificationTypeError
		priority = notificationdomain.NotificationPriorityHigh
		title = "Account suspended"
		message = "Your account has been suspended for non-payment. Campaign management is paused."
		subject = "Account suspended - AdPilot"
	case actionCancel:
		template = "subscription_cancelled"
		ntype = notificationdomain.NotificationTypeError
		priority = notificationdomain.NotificationPriorityHigh
		title = "Subscription cancelled"
		message = "Your subscription has been cancelled after repeated failed payments."
		subject = "Subscription cancelled - AdPilot"
	default:
		return
	}

	accountName := "there"
	if acct, err := s.accountRepo.FindByID(ctx, s.db, subscription.AccountID); err == nil && acct != nil {
		accountName = acct.Name
	}
	body, err := email.Render(template, map[string]any{
		"AccountName": accountName,
		"Date":        now.UTC().Format("January 2, 2006"),
	})
	if err != nil {
		s.log.Warn("dunning template render failed", zap.String("template", template), zap.Error(err))
		body = message
	}

	accountID := subscription.AccountID
	if _, err := s.notificationSvc.Dispatch(ctx, notificationdomain.DispatchRequest{
		Type:      ntype,
		Title:     title,
		Message:   message,
		AccountID: &accountID,
		Priority:  priority,
		Email: &notificationdomain.EmailRequest{
			Subject:  subject,
			HTMLBody: body,
		},
	}); err != nil {
		s.log.Warn("dunning notification failed",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err),
		)
	}
}
