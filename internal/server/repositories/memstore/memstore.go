// Package memstore keeps both account tables in memory. It satisfies
// dbx.Transactor and repomanager.RepositoryManager so services can run
// without PostgreSQL in tests.
package memstore

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/unconfirmed"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Store holds accounts and pending registrations. WithTx snapshots both and
// restores the snapshot when the unit of work fails.
type Store struct {
	mu       sync.Mutex
	clock    timex.Clock
	accounts map[uuid.UUID]models.Account
	pending  map[string]models.UnconfirmedAccount
	reads    map[string]int
}

func New(clock timex.Clock) *Store {
	return &Store{
		clock:    clock,
		accounts: map[uuid.UUID]models.Account{},
		pending:  map[string]models.UnconfirmedAccount{},
		reads:    map[string]int{},
	}
}

// Seed stores an account directly, as if another writer committed it.
func (s *Store) Seed(a models.Account) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Role == "" {
		a.Role = models.DefaultRole
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now()
	}
	s.accounts[a.ID] = a
	return a
}

func (s *Store) Account(id uuid.UUID) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *Store) Pending(email string) (models.UnconfirmedAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[email]
	return p, ok
}

func (s *Store) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ReadCount reports how many lookups of the given kind reached the store:
// "id", "id_for_update", "email", "token", "exists", "list", "count" or
// "pending".
func (s *Store) ReadCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[kind]
}

func (s *Store) snapshot() (map[uuid.UUID]models.Account, map[string]models.UnconfirmedAccount) {
	a := make(map[uuid.UUID]models.Account, len(s.accounts))
	for k, v := range s.accounts {
		a[k] = v
	}
	p := make(map[string]models.UnconfirmedAccount, len(s.pending))
	for k, v := range s.pending {
		p[k] = v
	}
	return a, p
}

func (s *Store) Conn() dbx.DBTX { return nil }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	s.mu.Lock()
	a, p := s.snapshot()
	s.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		s.mu.Lock()
		s.accounts, s.pending = a, p
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Accounts(dbx.DBTX) accounts.Repository { return accountRepo{s} }

func (s *Store) Unconfirmed(dbx.DBTX) unconfirmed.Repository { return pendingRepo{s} }

type accountRepo struct {
	s *Store
}

func (r accountRepo) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.Email == a.Email {
			return nil, common.ErrorConflict
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = r.s.clock.Now()
	r.s.accounts[a.ID] = *a
	out := *a
	return &out, nil
}

func (r accountRepo) find(kind string, match func(a models.Account) bool) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads[kind]++
	for _, a := range r.s.accounts {
		if match(a) {
			out := a
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r accountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.find("id", func(a models.Account) bool { return a.ID == id })
}

func (r accountRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.find("id_for_update", func(a models.Account) bool { return a.ID == id })
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.find("email", func(a models.Account) bool { return a.Email == email })
}

func (r accountRepo) GetByToken(ctx context.Context, token string) (*models.Account, error) {
	return r.find("token", func(a models.Account) bool { return a.Token != nil && *a.Token == token })
}

func (r accountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.find("exists", func(a models.Account) bool { return a.Email == email })
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r accountRepo) Update(ctx context.Context, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; !ok {
		return common.ErrorNotFound
	}
	for id, existing := range r.s.accounts {
		if id != a.ID && existing.Email == a.Email {
			return common.ErrorConflict
		}
	}
	r.s.accounts[a.ID] = *a
	return nil
}

func (r accountRepo) RotateToken(ctx context.Context, id uuid.UUID, candidate string, validBefore, now time.Time) (*accounts.Rotation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if !a.TokenExpired(now) {
		out := a
		return &accounts.Rotation{Account: &out}, nil
	}
	previous := a.Token
	a.Token = &candidate
	a.TokenValidBefore = &validBefore
	r.s.accounts[id] = a
	out := a
	return &accounts.Rotation{Account: &out, Previous: previous, Rotated: true}, nil
}

func (r accountRepo) List(ctx context.Context, limit, offset int, desc bool) ([]*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads["list"]++
	all := make([]models.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		less := all[i].CreatedAt.Before(all[j].CreatedAt) ||
			(all[i].CreatedAt.Equal(all[j].CreatedAt) && bytes.Compare(all[i].ID[:], all[j].ID[:]) < 0)
		if desc {
			return !less
		}
		return less
	})
	out := []*models.Account{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		a := all[i]
		out = append(out, &a)
	}
	return out, nil
}

func (r accountRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads["count"]++
	return len(r.s.accounts), nil
}

type pendingRepo struct {
	s *Store
}

func (r pendingRepo) Upsert(ctx context.Context, p *models.UnconfirmedAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.CreatedAt = r.s.clock.Now()
	r.s.pending[p.Email] = *p
	return nil
}

func (r pendingRepo) GetByEmail(ctx context.Context, email string) (*models.UnconfirmedAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reads["pending"]++
	p, ok := r.s.pending[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r pendingRepo) DeleteByEmail(ctx context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.pending, email)
	return nil
}
