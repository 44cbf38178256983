package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable dedup record for one provider webhook event.
// The (provider, provider_event_id) pair is unique; processed_at marks the
// event as fully applied so redeliveries become no-ops.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeInvoicePaid         = "invoice_paid"
	EventTypeInvoiceFailed       = "invoice_failed"
	EventTypeSubscriptionCreated = "subscription_created"
	EventTypeSubscriptionUpdated = "subscription_updated"
	EventTypeSubscriptionDeleted = "subscription_deleted"
)

// Event is the canonical billing event parsed by adapters. Only the fields
// relevant to the event type are populated.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
	RawPayload      []byte

	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderInvoiceID      string
	Status                 string
	AmountMinor            int64
	Currency               string
	PeriodStart            int64
	PeriodEnd              int64
	HostedURL              string
	FailureReason          string
}

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)

// Adapter translates one payment provider's webhook format into canonical
// events. Verify must reject payloads whose signature does not match before
// Parse is ever called.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// Service is the webhook ingest entrypoint used by the HTTP layer.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
