// Package domain contains persistence models for client subscriptions.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrial     SubscriptionStatus = "TRIAL"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription captures one client account's billing relationship with the
// payment provider. Rows are never deleted; cancelled subscriptions are
// retained for audit.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	AccountID              snowflake.ID       `gorm:"not null;index"`
	Provider               string             `gorm:"type:text;not null"`
	ProviderSubscriptionID string             `gorm:"type:text;not null;uniqueIndex"`
	ProviderCustomerID     string             `gorm:"type:text;not null;index"`
	Status                 SubscriptionStatus `gorm:"type:text;not null"`
	PlanID                 string             `gorm:"type:text;not null"`
	Amount                 float64            `gorm:"not null"`
	Currency               string             `gorm:"type:text;not null"`
	CurrentPeriodStart     *time.Time         `gorm:""`
	CurrentPeriodEnd       *time.Time         `gorm:""`
	EndDate                *time.Time         `gorm:""`
	LastReminderAt         *time.Time         `gorm:""`
	Metadata               datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsValidStatus reports whether s is a known lifecycle state.
func IsValidStatus(s SubscriptionStatus) bool {
	switch s {
	case SubscriptionStatusActive,
		SubscriptionStatusTrial,
		SubscriptionStatusPastDue,
		SubscriptionStatusSuspended,
		SubscriptionStatusCancelled:
		return true
	default:
		return false
	}
}

// escalationRank orders the dunning escalation path. Transitions along this
// path are monotonic; only the payment-success path may move a subscription
// back to ACTIVE.
func escalationRank(s SubscriptionStatus) int {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrial:
		return 0
	case SubscriptionStatusPastDue:
		return 1
	case SubscriptionStatusSuspended:
		return 2
	case SubscriptionStatusCancelled:
		return 3
	default:
		return -1
	}
}

// IsEscalationAllowed reports whether moving current → target respects the
// monotonic escalation invariant.
func IsEscalationAllowed(current, target SubscriptionStatus) bool {
	cr, tr := escalationRank(current), escalationRank(target)
	if cr < 0 || tr < 0 {
		return false
	}
	return tr > cr
}

// MapProviderStatus normalizes the provider's status string onto the local
// enum. Unknown values map to the empty status.
func MapProviderStatus(raw string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return SubscriptionStatusActive
	case "trialing", "trial":
		return SubscriptionStatusTrial
	case "past_due":
		return SubscriptionStatusPastDue
	case "unpaid", "suspended":
		return SubscriptionStatusSuspended
	case "canceled", "cancelled":
		return SubscriptionStatusCancelled
	default:
		return ""
	}
}

// UnixToTime converts provider unix-second timestamps to storage time,
// mapping non-positive values to absent rather than the epoch.
func UnixToTime(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}
