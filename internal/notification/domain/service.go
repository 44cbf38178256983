package domain

import (
	"context"
	"errors"

	"github.com/adpilot-io/adpilot/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

// DispatchRequest is the dispatcher contract: one persisted notification row
// plus an independent, best-effort transactional email.
type DispatchRequest struct {
	Type      NotificationType
	Title     string
	Message   string
	AccountID *snowflake.ID
	UserID    *snowflake.ID
	ActionURL string
	Priority  NotificationPriority

	// Email carries the optional transactional email for this notification.
	// A zero value means no email is attempted.
	Email *EmailRequest
}

// EmailRequest describes the transactional email tied to a dispatch. The
// recipient is resolved from the account when To is empty.
type EmailRequest struct {
	To       string
	Subject  string
	HTMLBody string
}

type ListNotificationRequest struct {
	AccountID  *snowflake.ID
	UnreadOnly bool
	PageToken  string
	PageSize   int
}

type ListNotificationResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"notifications"`
}

type Service interface {
	// Dispatch persists the notification synchronously; the email send is
	// best-effort and its failure is never returned to the caller.
	Dispatch(ctx context.Context, req DispatchRequest) (*Notification, error)
	List(ctx context.Context, req ListNotificationRequest) (ListNotificationResponse, error)
	MarkRead(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidNotificationType = errors.New("invalid_notification_type")
	ErrMissingTitle            = errors.New("missing_title")
	ErrNotificationNotFound    = errors.New("notification_not_found")
)
