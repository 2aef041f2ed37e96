// Package accounts provides the PostgreSQL repository for confirmed accounts.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

var columnList = []string{
	"id", "email", "first_name", "last_name", "phone", "password_hash", "last_password_modified_at",
	"role", "image", "token", "token_valid_before", "confirmation_code", "confirmation_code_valid_before",
	"is_email_verified", "created_at", "pending_email",
}

var columns = strings.Join(columnList, ", ")

func qualifiedColumns(alias string) string {
	qualified := make([]string, len(columnList))
	for i, c := range columnList {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

// PostgresRepository works over dbx.DBTX, so the same code runs inside or
// outside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.PasswordHash,
		&a.LastPasswordDateModified, &a.Role, &a.Image, &a.Token, &a.TokenValidBefore,
		&a.ConfirmationCode, &a.ConfirmationCodeValidBefore, &a.IsEmailVerified, &a.CreatedAt, &a.PendingEmail)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrorNotFound
	case dbx.IsUniqueViolation(err):
		return common.ErrorConflict
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

// Create inserts a new account and fills in the generated id and created_at.
// A duplicate email yields common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (email, first_name, last_name, phone, password_hash, role, is_email_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		account.Email, account.FirstName, account.LastName, account.Phone,
		account.PasswordHash, account.Role, account.IsEmailVerified,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return account, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM accounts WHERE id = $1`, id)
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM accounts WHERE token = $1`, token)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Update writes every mutable column of account.
func (r *PostgresRepository) Update(ctx context.Context, account *models.Account) error {
	query :=
		`UPDATE accounts SET
		   email = $2, first_name = $3, last_name = $4, phone = $5, password_hash = $6,
		   last_password_modified_at = $7, role = $8, image = $9, token = $10, token_valid_before = $11,
		   confirmation_code = $12, confirmation_code_valid_before = $13, is_email_verified = $14,
		   pending_email = $15
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.FirstName, account.LastName, account.Phone, account.PasswordHash,
		account.LastPasswordDateModified, account.Role, account.Image, account.Token, account.TokenValidBefore,
		account.ConfirmationCode, account.ConfirmationCodeValidBefore, account.IsEmailVerified,
		account.PendingEmail,
	)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// RotateToken stores candidate only if the current token is absent or no
// longer valid at now. The check and the write are one statement, so two
// concurrent rotations cannot both win. The result carries the account as
// stored afterwards and, when a rotation happened, the token it replaced.
func (r *PostgresRepository) RotateToken(ctx context.Context, id uuid.UUID, candidate string, validBefore, now time.Time) (*Rotation, error) {
	query :=
		`UPDATE accounts AS a SET token = $2, token_valid_before = $3
		 FROM accounts AS prev
		 WHERE a.id = $1 AND prev.id = a.id
		   AND (a.token IS NULL OR a.token_valid_before IS NULL OR a.token_valid_before <= $4)
		 RETURNING prev.token, ` + qualifiedColumns("a")

	row := r.db.QueryRowContext(ctx, query, id, candidate, validBefore, now)
	a := &models.Account{}
	var previous *string
	err := row.Scan(&previous, &a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.PasswordHash,
		&a.LastPasswordDateModified, &a.Role, &a.Image, &a.Token, &a.TokenValidBefore,
		&a.ConfirmationCode, &a.ConfirmationCodeValidBefore, &a.IsEmailVerified, &a.CreatedAt, &a.PendingEmail)
	if err == nil {
		return &Rotation{Account: a, Previous: previous, Rotated: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	a, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Rotation{Account: a}, nil
}

// List returns a page of accounts ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context, limit, offset int, desc bool) ([]*models.Account, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	query := `SELECT ` + columns + ` FROM accounts ORDER BY created_at ` + order + `, id ` + order + ` LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	items := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
