package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrInvoiceNotFound = errors.New("invoice_not_found")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, providerInvoiceID string, status InvoiceStatus) (*Invoice, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]Invoice, error)
	UpdateHostedURL(ctx context.Context, db *gorm.DB, id snowflake.ID, hostedURL string) error
}
