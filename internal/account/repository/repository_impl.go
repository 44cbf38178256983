package repository

import (
	"context"
	"time"

	"github.com/adpilot-io/adpilot/internal/account/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ClientAccount, error) {
	var item domain.ClientAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, company_name, status, created_at, updated_at
		 FROM client_accounts
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

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.AccountStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE client_accounts
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}
