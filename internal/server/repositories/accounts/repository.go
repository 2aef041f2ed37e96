package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByToken(ctx context.Context, token string) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, account *models.Account) error
	RotateToken(ctx context.Context, id uuid.UUID, candidate string, validBefore, now time.Time) (*Rotation, error)
	List(ctx context.Context, limit, offset int, desc bool) ([]*models.Account, error)
	Count(ctx context.Context) (int, error)
}

// Rotation is the outcome of RotateToken. Previous is the replaced token and
// is only set when Rotated is true and a token existed before.
type Rotation struct {
	Account  *models.Account
	Previous *string
	Rotated  bool
}
