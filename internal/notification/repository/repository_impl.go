package repository

import (
	"context"
	"time"

	"github.com/adpilot-io/adpilot/internal/notification/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, notification *domain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (
			id, account_id, user_id, type, title, message, action_url,
			priority, read, read_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID,
		notification.AccountID,
		notification.UserID,
		notification.Type,
		notification.Title,
		notification.Message,
		notification.ActionURL,
		notification.Priority,
		notification.Read,
		notification.ReadAt,
		notification.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Notification, error) {
	var item domain.Notification
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, user_id, type, title, message, action_url,
			priority, read, read_at, created_at
		 FROM notifications
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

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID *snowflake.ID, unreadOnly bool, afterID snowflake.ID, limit int) ([]domain.Notification, error) {
	query := db.WithContext(ctx).Table("notifications")
	if accountID != nil {
		query = query.Where("account_id = ?", *accountID)
	}
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	if afterID != 0 {
		query = query.Where("id < ?", afterID)
	}

	var items []domain.Notification
	err := query.Order("id DESC").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, id snowflake.ID, readAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET read = ?, read_at = ?
		 WHERE id = ? AND read = ?`,
		true,
		readAt,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
