package services

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// PendingStore holds registrations awaiting their confirmation code, at most
// one per email, behind the same cache-aside discipline as AccountStore.
type PendingStore struct {
	tx     dbx.Transactor
	repos  repomanager.RepositoryManager
	cache  cache.Cache
	ttl    cache.Options
	logger logging.Logger
}

func NewPendingStore(tx dbx.Transactor, repos repomanager.RepositoryManager, c cache.Cache, ttl cache.Options, logger logging.Logger) *PendingStore {
	return &PendingStore{
		tx:     tx,
		repos:  repos,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("module", "pending"),
	}
}

func (s *PendingStore) Get(ctx context.Context, email string) (*models.UnconfirmedAccount, error) {
	p, err := readThrough(ctx, s.cache, s.logger, cache.UnconfirmedKey(email), s.ttl, func(ctx context.Context) (models.UnconfirmedAccount, error) {
		p, err := s.repos.Unconfirmed(s.tx.Conn()).GetByEmail(ctx, email)
		if err != nil {
			return models.UnconfirmedAccount{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Replace stores p in place of any pending row for p.Email, so a later apply
// supersedes an earlier one instead of merging with it. Concurrent applies
// for one email all succeed and the last write wins. The cache entry is
// evicted rather than rewritten so it cannot keep a losing write.
func (s *PendingStore) Replace(ctx context.Context, p *models.UnconfirmedAccount) error {
	if err := s.repos.Unconfirmed(s.tx.Conn()).Upsert(ctx, p); err != nil {
		return err
	}

	key := cache.UnconfirmedKey(p.Email)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "cache evict failed", "key", key, "error", err)
	}
	return nil
}
