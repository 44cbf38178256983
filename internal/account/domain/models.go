// Package domain contains persistence models for client accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountStatus mirrors the subscription lifecycle onto the tenant record.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusCancelled AccountStatus = "CANCELLED"
)

// ClientAccount is the tenant whose subscription this service manages. The
// record is owned by the onboarding flow; billing only mirrors its status.
type ClientAccount struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	Name        string        `gorm:"type:text;not null"`
	Email       string        `gorm:"type:text;not null"`
	CompanyName string        `gorm:"type:text"`
	Status      AccountStatus `gorm:"type:text;not null;default:'ACTIVE'"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ClientAccount) TableName() string { return "client_accounts" }
