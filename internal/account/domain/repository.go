package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ClientAccount, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status AccountStatus) error
}
