package unconfirmed

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, account *models.UnconfirmedAccount) error
	GetByEmail(ctx context.Context, email string) (*models.UnconfirmedAccount, error)
	DeleteByEmail(ctx context.Context, email string) error
}
