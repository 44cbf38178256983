package repository

import (
	"context"
	"strings"

	"github.com/adpilot-io/adpilot/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, account_id, subscription_id, provider_invoice_id, number,
			amount, currency, status, paid_at, failed_at, failure_reason,
			hosted_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.AccountID,
		invoice.SubscriptionID,
		invoice.ProviderInvoiceID,
		invoice.Number,
		invoice.Amount,
		invoice.Currency,
		invoice.Status,
		invoice.PaidAt,
		invoice.FailedAt,
		invoice.FailureReason,
		invoice.HostedURL,
		invoice.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, subscription_id, provider_invoice_id, number,
			amount, currency, status, paid_at, failed_at, failure_reason,
			hosted_url, created_at
		 FROM invoices
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

func (r *repo) FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, providerInvoiceID string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	providerInvoiceID = strings.TrimSpace(providerInvoiceID)
	if providerInvoiceID == "" {
		return nil, nil
	}

	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, subscription_id, provider_invoice_id, number,
			amount, currency, status, paid_at, failed_at, failure_reason,
			hosted_url, created_at
		 FROM invoices
		 WHERE provider_invoice_id = ? AND status = ?
		 LIMIT 1`,
		providerInvoiceID,
		status,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Invoice
	err := db.WithContext(ctx).
		Table("invoices").
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateHostedURL(ctx context.Context, db *gorm.DB, id snowflake.ID, hostedURL string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET hosted_url = ?
		 WHERE id = ?`,
		hostedURL,
		id,
	).Error
}
