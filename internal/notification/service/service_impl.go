package service

import (
	"context"
	"strings"

	accountdomain "github.com/adpilot-io/adpilot/internal/account/domain"
	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/notification/domain"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/adpilot-io/adpilot/internal/providers/email"
	"github.com/adpilot-io/adpilot/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Email       email.Provider
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	accountRepo accountdomain.Repository
	email       email.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("notification.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		email:       p.Email,
	}
}

// Dispatch writes the notification row first; the row is authoritative and the
// email is advisory, so an email failure never surfaces to the caller.
func (s *Service) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Notification, error) {
	if !isValidType(req.Type) {
		return nil, domain.ErrInvalidNotificationType
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrMissingTitle
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.NotificationPriorityMedium
	}

	notification := &domain.Notification{
		ID:        s.genID.Generate(),
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     title,
		Message:   strings.TrimSpace(req.Message),
		Priority:  priority,
		CreatedAt: s.clock.Now(),
	}
	if url := strings.TrimSpace(req.ActionURL); url != "" {
		notification.ActionURL = &url
	}

	if err := s.repo.Insert(ctx, s.db, notification); err != nil {
		return nil, err
	}
	obsmetrics.Default().RecordNotification(string(req.Type))

	if req.Email != nil {
		s.sendEmail(ctx, notification, req.Email)
	}

	return notification, nil
}

func (s *Service) sendEmail(ctx context.Context, notification *domain.Notification, req *domain.EmailRequest) {
	to := strings.TrimSpace(req.To)
	if to == "" && notification.AccountID != nil {
		acct, err := s.accountRepo.FindByID(ctx, s.db, *notification.AccountID)
		if err != nil || acct == nil {
			s.log.Warn("email recipient lookup failed",
				zap.String("notification_id", notification.ID.String()),
				zap.Error(err),
			)
			obsmetrics.Default().RecordEmailFailure()
			return
		}
		to = acct.Email
	}
	if to == "" {
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = notification.Title
	}

	if err := s.email.Send(ctx, []string{to}, subject, req.HTMLBody); err != nil {
		s.log.Warn("transactional email send failed",
			zap.String("notification_id", notification.ID.String()),
			zap.String("to", to),
			zap.Error(err),
		)
		obsmetrics.Default().RecordEmailFailure()
	}
}

func (s *Service) List(ctx context.Context, req domain.ListNotificationRequest) (domain.ListNotificationResponse, error) {
	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 20
	}

	var afterID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListNotificationResponse{}, err
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListNotificationResponse{}, err
		}
		afterID = parsed
	}

	items, err := s.repo.List(ctx, s.db, req.AccountID, req.UnreadOnly, afterID, limit+1)
	if err != nil {
		return domain.ListNotificationResponse{}, err
	}

	resp := domain.ListNotificationResponse{Notifications: items}
	if len(items) > limit {
		resp.Notifications = items[:limit]
		resp.HasMore = true
		last := resp.Notifications[len(resp.Notifications)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: last.ID.String()})
		if err != nil {
			return domain.ListNotificationResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

func (s *Service) MarkRead(ctx context.Context, id snowflake.ID) error {
	updated, err := s.repo.MarkRead(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		existing, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotificationNotFound
		}
	}
	return nil
}

func isValidType(t domain.NotificationType) bool {
	switch t {
	case domain.NotificationTypeInfo,
		domain.NotificationTypeSuccess,
		domain.NotificationTypeWarning,
		domain.NotificationTypeError:
		return true
	default:
		return false
	}
}
