package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnNames = []string{
	"id", "email", "first_name", "last_name", "phone", "password_hash", "last_password_modified_at",
	"role", "image", "token", "token_valid_before", "confirmation_code", "confirmation_code_valid_before",
	"is_email_verified", "created_at", "pending_email",
}

var (
	accountID = uuid.MustParse("0b4f5c4e-7f62-4a0e-9d8e-3f6b6f1d2a11")
	created   = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(db), mock
}

func accountRow(token any, validBefore any) *sqlmock.Rows {
	return sqlmock.NewRows(columnNames).AddRow(
		accountID.String(), "ann@x.test", "Ann", "Ivanova", nil, "digest", nil,
		"User", nil, token, validBefore, nil, nil, true, created, nil,
	)
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	q := `(?s)^INSERT\s+INTO\s+accounts\s*\(email,\s*first_name,\s*last_name,\s*phone,\s*password_hash,\s*role,\s*is_email_verified\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*RETURNING\s+id,\s*created_at$`
	mock.ExpectQuery(q).
		WithArgs("ann@x.test", "Ann", "Ivanova", nil, "digest", "User", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(accountID.String(), created))

	got, err := repo.Create(context.Background(), &models.Account{
		Email: "ann@x.test", FirstName: "Ann", LastName: "Ivanova",
		PasswordHash: "digest", Role: models.RoleUser, IsEmailVerified: true,
	})
	require.NoError(t, err)
	assert.Equal(t, accountID, got.ID)
	assert.Equal(t, created, got.CreatedAt)
}

func TestCreate_DuplicateEmailIsConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+accounts`).
		WillReturnError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}))

	_, err := repo.Create(context.Background(), &models.Account{Email: "ann@x.test", Role: models.RoleUser})
	assert.ErrorIs(t, err, common.ErrorConflict)
}

func TestCreate_RejectsInvalidRole(t *testing.T) {
	repo, _ := newRepoWithMock(t)

	_, err := repo.Create(context.Background(), &models.Account{Email: "ann@x.test", Role: "root"})
	require.Error(t, err)
}

func TestGetters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		arg   any
		call  func(r *PostgresRepository) (*models.Account, error)
	}{
		{"by id", `(?s)^SELECT\s+id,.+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`, accountID,
			func(r *PostgresRepository) (*models.Account, error) { return r.GetByID(context.Background(), accountID) }},
		{"by id for update", `(?s)^SELECT\s+id,.+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`, accountID,
			func(r *PostgresRepository) (*models.Account, error) {
				return r.GetByIDForUpdate(context.Background(), accountID)
			}},
		{"by email", `(?s)^SELECT\s+id,.+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1$`, "ann@x.test",
			func(r *PostgresRepository) (*models.Account, error) {
				return r.GetByEmail(context.Background(), "ann@x.test")
			}},
		{"by token", `(?s)^SELECT\s+id,.+FROM\s+accounts\s+WHERE\s+token\s*=\s*\$1$`, "tok",
			func(r *PostgresRepository) (*models.Account, error) { return r.GetByToken(context.Background(), "tok") }},
	}

	for _, tt := range tests {
		t.Run(tt.name+" found", func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectQuery(tt.query).WithArgs(tt.arg).WillReturnRows(accountRow("tok", created.Add(time.Hour)))

			got, err := tt.call(repo)
			require.NoError(t, err)
			assert.Equal(t, accountID, got.ID)
			assert.Equal(t, models.RoleUser, got.Role)
			assert.Nil(t, got.Phone)
			require.NotNil(t, got.Token)
			assert.Equal(t, "tok", *got.Token)
			assert.True(t, got.IsEmailVerified)
		})

		t.Run(tt.name+" not found", func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectQuery(tt.query).WithArgs(tt.arg).WillReturnError(sql.ErrNoRows)

			_, err := tt.call(repo)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})

		t.Run(tt.name+" db error", func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectQuery(tt.query).WithArgs(tt.arg).WillReturnError(errors.New("db down"))

			_, err := tt.call(repo)
			require.Error(t, err)
			assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
		})
	}
}

func TestGetByEmail_UnparsableRoleFails(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows(columnNames).AddRow(
		accountID.String(), "ann@x.test", "Ann", "Ivanova", nil, "digest", nil,
		"superuser", nil, nil, nil, nil, nil, true, created, nil,
	)
	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+email`).WithArgs("ann@x.test").WillReturnRows(rows)

	_, err := repo.GetByEmail(context.Background(), "ann@x.test")
	assert.ErrorIs(t, err, common.ErrInvalidRole)
}

func TestExistsByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	q := `(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\)$`
	mock.ExpectQuery(q).WithArgs("ann@x.test").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("bob@x.test").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.ExistsByEmail(context.Background(), "ann@x.test")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExistsByEmail(context.Background(), "bob@x.test")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate(t *testing.T) {
	phone := "+37120000000"
	a := &models.Account{
		ID: accountID, Email: "ann@x.test", FirstName: "Ann", LastName: "Ivanova", Phone: &phone,
		PasswordHash: "digest", Role: models.RoleAdmin, IsEmailVerified: true,
	}
	q := `(?s)^UPDATE\s+accounts\s+SET.+WHERE\s+id\s*=\s*\$1$`

	t.Run("success", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).
			WithArgs(accountID, "ann@x.test", "Ann", "Ivanova", phone, "digest", nil, "Admin", nil, nil, nil, nil, nil, true, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(context.Background(), a))
	})

	t.Run("missing row", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Update(context.Background(), a), common.ErrorNotFound)
	})

	t.Run("email taken", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(&pgconn.PgError{Code: "23505"})

		assert.ErrorIs(t, repo.Update(context.Background(), a), common.ErrorConflict)
	})
}

func TestRotateToken(t *testing.T) {
	now := created.Add(24 * time.Hour)
	validBefore := now.Add(15 * 24 * time.Hour)
	update := `(?s)^UPDATE\s+accounts\s+AS\s+a\s+SET\s+token\s*=\s*\$2,\s*token_valid_before\s*=\s*\$3\s+FROM\s+accounts\s+AS\s+prev\s+WHERE\s+a\.id\s*=\s*\$1\s+AND\s+prev\.id\s*=\s*a\.id\s+AND\s+\(a\.token\s+IS\s+NULL\s+OR\s+a\.token_valid_before\s+IS\s+NULL\s+OR\s+a\.token_valid_before\s*<=\s*\$4\)\s+RETURNING\s+prev\.token,\s*a\.id,.+a\.created_at$`
	selectByID := `(?s)^SELECT\s+id,.+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`

	rotatedRow := func(previous any) *sqlmock.Rows {
		return sqlmock.NewRows(append([]string{"token"}, columnNames...)).AddRow(
			previous, accountID.String(), "ann@x.test", "Ann", "Ivanova", nil, "digest", nil,
			"User", nil, "fresh", validBefore, nil, nil, true, created, nil,
		)
	}

	t.Run("candidate stored when token expired", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).
			WithArgs(accountID, "fresh", validBefore, now).
			WillReturnRows(rotatedRow("stale"))

		got, err := repo.RotateToken(context.Background(), accountID, "fresh", validBefore, now)
		require.NoError(t, err)
		assert.True(t, got.Rotated)
		require.NotNil(t, got.Previous)
		assert.Equal(t, "stale", *got.Previous)
		assert.Equal(t, "fresh", *got.Account.Token)
		assert.Equal(t, validBefore, *got.Account.TokenValidBefore)
	})

	t.Run("first token has no predecessor", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnRows(rotatedRow(nil))

		got, err := repo.RotateToken(context.Background(), accountID, "fresh", validBefore, now)
		require.NoError(t, err)
		assert.True(t, got.Rotated)
		assert.Nil(t, got.Previous)
	})

	t.Run("live token kept", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		live := now.Add(time.Hour)
		mock.ExpectQuery(update).WithArgs(accountID, "fresh", validBefore, now).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(selectByID).WithArgs(accountID).WillReturnRows(accountRow("current", live))

		got, err := repo.RotateToken(context.Background(), accountID, "fresh", validBefore, now)
		require.NoError(t, err)
		assert.False(t, got.Rotated)
		assert.Nil(t, got.Previous)
		assert.Equal(t, "current", *got.Account.Token)
		assert.Equal(t, live, *got.Account.TokenValidBefore)
	})

	t.Run("unknown account", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(selectByID).WithArgs(accountID).WillReturnError(sql.ErrNoRows)

		_, err := repo.RotateToken(context.Background(), accountID, "fresh", validBefore, now)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnError(errors.New("boom"))

		_, err := repo.RotateToken(context.Background(), accountID, "fresh", validBefore, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: boom")
	})
}

func TestList(t *testing.T) {
	t.Run("ascending page", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		q := `(?s)^SELECT\s+id,.+FROM\s+accounts\s+ORDER\s+BY\s+created_at\s+ASC,\s*id\s+ASC\s+LIMIT\s+\$1\s+OFFSET\s+\$2$`
		mock.ExpectQuery(q).WithArgs(10, 20).WillReturnRows(accountRow(nil, nil))

		items, err := repo.List(context.Background(), 10, 20, false)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Nil(t, items[0].Token)
	})

	t.Run("descending empty page", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		q := `ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC`
		mock.ExpectQuery(q).WithArgs(5, 0).WillReturnRows(sqlmock.NewRows(columnNames))

		items, err := repo.List(context.Background(), 5, 0, true)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`FROM\s+accounts\s+ORDER`).WillReturnError(errors.New("boom"))

		_, err := repo.List(context.Background(), 5, 0, false)
		require.Error(t, err)
	})
}

func TestCount(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+accounts$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
