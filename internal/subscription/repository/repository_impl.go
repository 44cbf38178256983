package repository

import (
	"context"
	"strings"
	"time"

	"github.com/adpilot-io/adpilot/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, account_id, provider, provider_subscription_id,
	provider_customer_id, status, plan_id, amount, currency,
	current_period_start, current_period_end, end_date, last_reminder_at,
	metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM subscriptions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	query := db.WithContext(ctx).Table("subscriptions")
	// sqlite has no row locks; its single-writer transactions cover this.
	if db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var item domain.Subscription
	err := query.
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.Subscription, error) {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return nil, nil
	}

	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM subscriptions
		 WHERE provider_subscription_id = ?
		 LIMIT 1`,
		providerSubscriptionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*domain.Subscription, error) {
	providerCustomerID = strings.TrimSpace(providerCustomerID)
	if providerCustomerID == "" {
		return nil, nil
	}

	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM subscriptions
		 WHERE provider_customer_id = ?
		 ORDER BY id DESC
		 LIMIT 1`,
		providerCustomerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, statuses []domain.SubscriptionStatus, periodEndBefore time.Time, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = 500
	}
	var items []domain.Subscription
	err := db.WithContext(ctx).
		Table("subscriptions").
		Where("status IN ?", statuses).
		Where("current_period_end IS NOT NULL AND current_period_end <= ?", periodEndBefore).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	subscription.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, plan_id = ?, amount = ?, currency = ?,
			current_period_start = ?, current_period_end = ?, end_date = ?,
			last_reminder_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.PlanID,
		subscription.Amount,
		subscription.Currency,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.EndDate,
		subscription.LastReminderAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}
