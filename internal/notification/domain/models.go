// Package domain contains persistence models for in-app notifications.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// NotificationType classifies the visual severity of a notification.
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

// NotificationPriority orders notifications in the in-app surface.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is one in-app message. Rows are created by rule evaluation,
// mutated only to flip read state, and never expire.
type Notification struct {
	ID        snowflake.ID         `gorm:"primaryKey"`
	AccountID *snowflake.ID        `gorm:"index"`
	UserID    *snowflake.ID        `gorm:"index"`
	Type      NotificationType     `gorm:"type:text;not null"`
	Title     string               `gorm:"type:text;not null"`
	Message   string               `gorm:"type:text;not null"`
	ActionURL *string              `gorm:"type:text"`
	Priority  NotificationPriority `gorm:"type:text;not null;default:'medium'"`
	Read      bool                 `gorm:"not null;default:false"`
	ReadAt    *time.Time           `gorm:""`
	CreatedAt time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }
