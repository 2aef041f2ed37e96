// Package unconfirmed stores pending registrations, one row per email.
package unconfirmed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert stores a pending registration, overwriting any row for the same
// email in a single statement so concurrent applies cannot collide.
func (r *PostgresRepository) Upsert(ctx context.Context, a *models.UnconfirmedAccount) error {
	query :=
		`INSERT INTO unconfirmed_accounts (email, first_name, last_name, password_hash, confirmation_code, confirmation_code_valid_before)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO UPDATE
		 SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, password_hash = EXCLUDED.password_hash,
		     confirmation_code = EXCLUDED.confirmation_code, confirmation_code_valid_before = EXCLUDED.confirmation_code_valid_before,
		     created_at = now()
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		a.Email, a.FirstName, a.LastName, a.PasswordHash, a.ConfirmationCode, a.ConfirmationCodeValidBefore,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.UnconfirmedAccount, error) {
	query :=
		`SELECT email, first_name, last_name, password_hash, confirmation_code, confirmation_code_valid_before, created_at
		 FROM unconfirmed_accounts
		 WHERE email = $1`

	a := &models.UnconfirmedAccount{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.ConfirmationCode, &a.ConfirmationCodeValidBefore, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// DeleteByEmail removes the pending row if any; a missing row is not an error.
func (r *PostgresRepository) DeleteByEmail(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM unconfirmed_accounts WHERE email = $1`, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
