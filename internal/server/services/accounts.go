// Package services contains the account lifecycle logic: the cache-aside
// account store, pending registrations, the confirmation workflow, session
// issuing and profile management.
package services

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/google/uuid"
)

// CacheTTLs groups the expiry limits per kind of cached read.
type CacheTTLs struct {
	Entity cache.Options
	List   cache.Options
	Total  cache.Options
}

// AccountStore is the durable account store fronted by the cache.
//
// Reads check the cache first and populate it on a miss. Writes commit to
// the database and then overwrite the cache entries of the account with the
// committed value. Cache failures are logged and never fail the request; the
// cache is never consulted for uniqueness.
type AccountStore struct {
	tx              dbx.Transactor
	repos           repomanager.RepositoryManager
	cache           cache.Cache
	ttl             CacheTTLs
	refreshTokenTTL time.Duration
	clock           timex.Clock
	logger          logging.Logger
}

func NewAccountStore(
	tx dbx.Transactor,
	repos repomanager.RepositoryManager,
	c cache.Cache,
	ttl CacheTTLs,
	refreshTokenTTL time.Duration,
	clock timex.Clock,
	logger logging.Logger,
) *AccountStore {
	return &AccountStore{
		tx:              tx,
		repos:           repos,
		cache:           c,
		ttl:             ttl,
		refreshTokenTTL: refreshTokenTTL,
		clock:           clock,
		logger:          logger.With("module", "accounts"),
	}
}

// readThrough returns the cached value under key or loads and caches it.
func readThrough[T any](ctx context.Context, c cache.Cache, logger logging.Logger, key string, opts cache.Options, load func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	ok, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "cache read failed", "key", key, "error", err)
	}
	if ok && err == nil {
		return cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, opts); err != nil {
		logger.Warn(ctx, "cache write failed", "key", key, "error", err)
	}
	return v, nil
}

func (s *AccountStore) readAccount(ctx context.Context, key string, load func(ctx context.Context) (*models.Account, error)) (*models.Account, error) {
	a, err := readThrough(ctx, s.cache, s.logger, key, s.ttl.Entity, func(ctx context.Context) (models.Account, error) {
		a, err := load(ctx)
		if err != nil {
			return models.Account{}, err
		}
		return *a, nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AccountStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.readAccount(ctx, cache.AccountIDKey(id), func(ctx context.Context) (*models.Account, error) {
		return s.repos.Accounts(s.tx.Conn()).GetByID(ctx, id)
	})
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.readAccount(ctx, cache.AccountEmailKey(email), func(ctx context.Context) (*models.Account, error) {
		return s.repos.Accounts(s.tx.Conn()).GetByEmail(ctx, email)
	})
}

// GetByToken looks an account up by its current refresh token.
func (s *AccountStore) GetByToken(ctx context.Context, token string) (*models.Account, error) {
	return s.readAccount(ctx, cache.AccountTokenKey(token), func(ctx context.Context) (*models.Account, error) {
		return s.repos.Accounts(s.tx.Conn()).GetByToken(ctx, token)
	})
}

// ExistsByEmail always asks the database.
func (s *AccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repos.Accounts(s.tx.Conn()).ExistsByEmail(ctx, email)
}

// List returns a page of accounts ordered by creation time.
func (s *AccountStore) List(ctx context.Context, count, offset int, desc bool) ([]models.Account, error) {
	key := cache.AccountListKey(count, offset, desc)
	return readThrough(ctx, s.cache, s.logger, key, s.ttl.List, func(ctx context.Context) ([]models.Account, error) {
		rows, err := s.repos.Accounts(s.tx.Conn()).List(ctx, count, offset, desc)
		if err != nil {
			return nil, err
		}
		items := make([]models.Account, 0, len(rows))
		for _, a := range rows {
			items = append(items, *a)
		}
		return items, nil
	})
}

func (s *AccountStore) Count(ctx context.Context) (int, error) {
	return readThrough(ctx, s.cache, s.logger, cache.AccountsTotalKey, s.ttl.Total, func(ctx context.Context) (int, error) {
		return s.repos.Accounts(s.tx.Conn()).Count(ctx)
	})
}

// Promote turns a pending registration into a verified account with the
// default role. The insert and the removal of the pending row share one
// transaction. If the email was confirmed concurrently the insert hits the
// unique constraint, nothing is committed and common.ErrorConflict is
// returned.
func (s *AccountStore) Promote(ctx context.Context, p *models.UnconfirmedAccount) (*models.Account, error) {
	var created *models.Account
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.repos.Accounts(tx).Create(ctx, &models.Account{
			Email:           p.Email,
			FirstName:       p.FirstName,
			LastName:        p.LastName,
			PasswordHash:    p.PasswordHash,
			Role:            models.DefaultRole,
			IsEmailVerified: true,
		})
		if err != nil {
			return err
		}
		if err := s.repos.Unconfirmed(tx).DeleteByEmail(ctx, p.Email); err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forget(ctx, cache.UnconfirmedKey(p.Email), cache.AccountsTotalKey)
	s.remember(ctx, created)
	return created, nil
}

// Update runs fn against the row locked for update and commits the result.
// An error from fn rolls the transaction back and is returned unchanged.
// The committed account then replaces every cache entry that refers to it.
func (s *AccountStore) Update(ctx context.Context, id uuid.UUID, fn func(a *models.Account) error) (*models.Account, error) {
	var before, after models.Account
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		a, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = *a
		if err := fn(a); err != nil {
			return err
		}
		if !a.Role.Valid() {
			return common.ErrInvalidRole
		}
		if err := repo.Update(ctx, a); err != nil {
			return err
		}
		after = *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	var stale []string
	if before.Email != after.Email {
		stale = append(stale, cache.AccountEmailKey(before.Email))
	}
	if before.Token != nil && (after.Token == nil || *before.Token != *after.Token) {
		stale = append(stale, cache.AccountTokenKey(*before.Token))
	}
	s.forget(ctx, stale...)
	s.remember(ctx, &after)
	return &after, nil
}

// RotateToken persists candidate as the refresh token unless the stored one
// is still valid, in which case the stored one is kept. The returned account
// carries whichever token is persisted. A replaced token stops resolving
// through the cache at once.
func (s *AccountStore) RotateToken(ctx context.Context, id uuid.UUID, candidate string) (*models.Account, error) {
	now := s.clock.Now()
	r, err := s.repos.Accounts(s.tx.Conn()).RotateToken(ctx, id, candidate, now.Add(s.refreshTokenTTL), now)
	if err != nil {
		return nil, err
	}
	if r.Rotated {
		s.logger.Debug(ctx, "refresh token rotated", "account_id", id)
		if r.Previous != nil {
			s.forget(ctx, cache.AccountTokenKey(*r.Previous))
		}
	}
	s.remember(ctx, r.Account)
	return r.Account, nil
}

// Patch applies the supplied profile fields; absent fields stay untouched.
func (s *AccountStore) Patch(ctx context.Context, id uuid.UUID, patch models.AccountPatch) (*models.Account, error) {
	return s.Update(ctx, id, func(a *models.Account) error {
		patch.Apply(a)
		return nil
	})
}

// ChangePassword replaces the password digest if currentDigest matches the
// stored one, and stamps the change time. On mismatch nothing is written.
func (s *AccountStore) ChangePassword(ctx context.Context, id uuid.UUID, currentDigest, newDigest string) error {
	_, err := s.Update(ctx, id, func(a *models.Account) error {
		if subtle.ConstantTimeCompare([]byte(a.PasswordHash), []byte(currentDigest)) != 1 {
			return common.ErrInvalidCredentials
		}
		now := s.clock.Now()
		a.PasswordHash = newDigest
		a.LastPasswordDateModified = &now
		return nil
	})
	return err
}

// SetConfirmationCode stores a fresh code for a later ConfirmEmail of email.
// It replaces any code issued earlier.
func (s *AccountStore) SetConfirmationCode(ctx context.Context, id uuid.UUID, email, code string, validBefore time.Time) error {
	_, err := s.Update(ctx, id, func(a *models.Account) error {
		a.ConfirmationCode = &code
		a.ConfirmationCodeValidBefore = &validBefore
		a.PendingEmail = &email
		return nil
	})
	return err
}

// ConfirmEmail consumes a confirmation code: on a match it sets email,
// marks it verified and clears the code. A missing, wrong or expired code,
// or an email other than the one the code was sent to, yields
// common.ErrCodeMismatch.
func (s *AccountStore) ConfirmEmail(ctx context.Context, id uuid.UUID, email, code string) (*models.Account, error) {
	return s.Update(ctx, id, func(a *models.Account) error {
		if !a.EmailChangeMatches(email, code, s.clock.Now()) {
			return common.ErrCodeMismatch
		}
		a.Email = email
		a.IsEmailVerified = true
		a.ClearConfirmationCode()
		return nil
	})
}

// UpdateImage records the profile image file name.
func (s *AccountStore) UpdateImage(ctx context.Context, id uuid.UUID, fileName string) error {
	_, err := s.Update(ctx, id, func(a *models.Account) error {
		a.Image = &fileName
		return nil
	})
	return err
}

// remember overwrites every cache entry that resolves to a.
func (s *AccountStore) remember(ctx context.Context, a *models.Account) {
	keys := []string{cache.AccountIDKey(a.ID), cache.AccountEmailKey(a.Email)}
	if a.Token != nil {
		keys = append(keys, cache.AccountTokenKey(*a.Token))
	}
	for _, key := range keys {
		if err := s.cache.Set(ctx, key, *a, s.ttl.Entity); err != nil {
			s.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
		}
	}
}

func (s *AccountStore) forget(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn(ctx, "cache delete failed", "keys", keys, "error", err)
	}
}
