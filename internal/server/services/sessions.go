package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

// Sessions authenticates credentials and issues token pairs.
type Sessions struct {
	accounts *AccountStore
	codec    auth.TokenCodec
	hasher   cryptox.PasswordHasher
	logger   logging.Logger
}

func NewSessions(accounts *AccountStore, codec auth.TokenCodec, hasher cryptox.PasswordHasher, logger logging.Logger) *Sessions {
	return &Sessions{
		accounts: accounts,
		codec:    codec,
		hasher:   hasher,
		logger:   logger.With("module", "sessions"),
	}
}

// Authenticate checks email and password and issues a session. An unknown
// email is common.ErrorNotFound; a wrong password common.ErrInvalidCredentials.
func (s *Sessions) Authenticate(ctx context.Context, email, password string) (models.TokenPair, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return models.TokenPair{}, err
	}

	if !cryptox.Matches(s.hasher, password, a.PasswordHash) {
		return models.TokenPair{}, common.ErrInvalidCredentials
	}

	return s.Issue(ctx, a.Role, a.ID)
}

// Issue mints a candidate pair and runs it through the rotation guard. The
// refresh token in the result is always the one persisted for the account,
// which within its validity window is the previously issued one.
func (s *Sessions) Issue(ctx context.Context, role models.Role, accountID uuid.UUID) (models.TokenPair, error) {
	pair, err := s.codec.Mint(models.TokenPayload{AccountID: accountID, Role: role})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("mint token pair: %w", err)
	}

	a, err := s.accounts.RotateToken(ctx, accountID, pair.RefreshToken)
	if err != nil {
		return models.TokenPair{}, err
	}
	if a.Token == nil {
		return models.TokenPair{}, fmt.Errorf("account %s has no refresh token after rotation: %w", accountID, common.ErrorInternal)
	}

	pair.RefreshToken = *a.Token
	pair.Role = role
	return pair, nil
}

// Restore issues a session for the account currently holding refreshToken.
func (s *Sessions) Restore(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	a, err := s.accounts.GetByToken(ctx, refreshToken)
	if err != nil {
		return models.TokenPair{}, err
	}
	return s.Issue(ctx, a.Role, a.ID)
}

// ChangePassword replaces the password if current is right.
func (s *Sessions) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error {
	return s.accounts.ChangePassword(ctx, accountID, s.hasher.Hash(current), s.hasher.Hash(next))
}

// Authorize decodes a bearer access token.
func (s *Sessions) Authorize(accessToken string) (models.TokenPayload, error) {
	return s.codec.Decode(accessToken)
}
