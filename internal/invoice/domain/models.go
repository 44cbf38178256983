// Package domain contains persistence models for billing invoices.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus records the outcome of one billing attempt.
type InvoiceStatus string

const (
	InvoiceStatusPaid   InvoiceStatus = "PAID"
	InvoiceStatusFailed InvoiceStatus = "FAILED"
)

// Invoice is a record of one payment attempt reported by the provider.
// Immutable after creation except for a later-arriving hosted document URL.
type Invoice struct {
	ID                snowflake.ID  `gorm:"primaryKey"`
	AccountID         snowflake.ID  `gorm:"not null;index"`
	SubscriptionID    snowflake.ID  `gorm:"not null;index"`
	ProviderInvoiceID string        `gorm:"type:text;not null"`
	Number            string        `gorm:"type:text;not null"`
	Amount            float64       `gorm:"not null"`
	Currency          string        `gorm:"type:text;not null"`
	Status            InvoiceStatus `gorm:"type:text;not null"`
	PaidAt            *time.Time    `gorm:""`
	FailedAt          *time.Time    `gorm:""`
	FailureReason     *string       `gorm:"type:text"`
	HostedURL         *string       `gorm:"type:text"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Number builds the human-readable invoice number for an invoice created at
// the given time. The snowflake suffix keeps numbers unique without a
// dedicated sequence.
func Number(id snowflake.ID, at time.Time) string {
	return fmt.Sprintf("INV-%s-%06d", at.UTC().Format("20060102"), id.Int64()%1000000)
}
