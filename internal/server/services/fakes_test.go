package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/images"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memstore"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, address, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{to: address, subject: subject, body: body})
	return nil
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (n *fakeNotifier) lastCode(t *testing.T, to string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].to == to {
			m := codePattern.FindStringSubmatch(n.sent[i].body)
			require.NotNil(t, m, "no code in %q", n.sent[i].body)
			return m[1]
		}
	}
	t.Fatalf("nothing sent to %s", to)
	return ""
}

// brokenCache fails every call.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string, any) (bool, error) {
	return false, errBrokenCache
}
func (brokenCache) Set(context.Context, string, any, cache.Options) error { return errBrokenCache }
func (brokenCache) Delete(context.Context, ...string) error             { return errBrokenCache }

var errBrokenCache = errors.New("cache unavailable")

var testStart = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

var testTTLs = CacheTTLs{
	Entity: cache.Options{Sliding: 10 * time.Minute, Absolute: 5 * time.Minute},
	List:   cache.Options{Sliding: time.Minute, Absolute: 30 * time.Second},
	Total:  cache.Options{Sliding: 30 * time.Second, Absolute: 15 * time.Second},
}

type testEnv struct {
	clock    *timex.FakeClock
	db       *memstore.Store
	cache    cache.Cache
	notifier *fakeNotifier
	hasher   cryptox.PasswordHasher
	accounts *AccountStore
	pending  *PendingStore
	sessions *Sessions
	reg      *Registration
	profiles *Profiles
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := timex.NewFakeClock(testStart)
	return newTestEnvWithCache(t, clock, cache.NewMemoryCache(clock))
}

func newTestEnvWithCache(t *testing.T, clock *timex.FakeClock, c cache.Cache) *testEnv {
	t.Helper()
	db := memstore.New(clock)
	logger := logging.Nop{}

	hasher, err := cryptox.NewPasswordHasher(cryptox.AlgorithmHMACSHA512, "test-key")
	require.NoError(t, err)
	codec := auth.NewJWTCodec("secret", "authkeeper", "clients", 15*time.Minute, clock)
	notifier := &fakeNotifier{}

	store := NewAccountStore(db, db, c, testTTLs, common.RefreshTokenValidity, clock, logger)
	pending := NewPendingStore(db, db, c, testTTLs.Entity, logger)
	sessions := NewSessions(store, codec, hasher, logger)

	return &testEnv{
		clock:    clock,
		db:       db,
		cache:    c,
		notifier: notifier,
		hasher:   hasher,
		accounts: store,
		pending:  pending,
		sessions: sessions,
		reg:      NewRegistration(store, pending, sessions, hasher, notifier, clock, common.ConfirmationCodeValidity, logger),
		profiles: NewProfiles(store, images.NewStaticResolver("http://img.test/p"), logger),
	}
}

// register runs apply and confirm for a fresh account.
func (e *testEnv) register(t *testing.T, email, password string) (models.TokenPair, *models.Account) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.reg.Apply(ctx, ApplyRequest{FirstName: "Ann", LastName: "Ivanova", Email: email, Password: password}))
	pair, err := e.reg.Confirm(ctx, email, e.notifier.lastCode(t, email))
	require.NoError(t, err)
	a, err := e.accounts.GetByEmail(ctx, email)
	require.NoError(t, err)
	return pair, a
}
