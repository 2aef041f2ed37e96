package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestAccountStore_GetByIDServedFromCache(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.db.Seed(models.Account{Email: "ann@x.test", FirstName: "Ann"})

	first, err := e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	second, err := e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, e.db.ReadCount("id"))
}

func TestAccountStore_EntryExpiresAfterAbsoluteLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.db.Seed(models.Account{Email: "ann@x.test"})

	_, err := e.accounts.GetByEmail(ctx, "ann@x.test")
	require.NoError(t, err)

	e.clock.Advance(4 * time.Minute)
	_, err = e.accounts.GetByEmail(ctx, "ann@x.test")
	require.NoError(t, err)
	assert.Equal(t, 1, e.db.ReadCount("email"))

	e.clock.Advance(time.Minute)
	got, err := e.accounts.GetByEmail(ctx, "ann@x.test")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, 2, e.db.ReadCount("email"), "a hit does not push past the absolute limit")
}

func TestAccountStore_MissIsNotCached(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.accounts.GetByEmail(ctx, "ghost@x.test")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	e.db.Seed(models.Account{Email: "ghost@x.test"})
	_, err = e.accounts.GetByEmail(ctx, "ghost@x.test")
	assert.NoError(t, err)
}

func TestAccountStore_ReadYourOwnWrite(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.db.Seed(models.Account{Email: "ann@x.test", FirstName: "Ann"})

	// Warm every key first.
	_, err := e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.accounts.GetByEmail(ctx, "ann@x.test")
	require.NoError(t, err)

	_, err = e.accounts.Patch(ctx, a.ID, models.AccountPatch{FirstName: strPtr("Anna"), Phone: strPtr("+37120000000")})
	require.NoError(t, err)

	byID, err := e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", byID.FirstName)
	require.NotNil(t, byID.Phone)
	assert.Equal(t, "+37120000000", *byID.Phone)

	byEmail, err := e.accounts.GetByEmail(ctx, "ann@x.test")
	require.NoError(t, err)
	assert.Equal(t, "Anna", byEmail.FirstName)
	assert.Equal(t, "Ann", a.FirstName, "seed value untouched")
}

func TestAccountStore_BrokenCacheFallsBackToDatabase(t *testing.T) {
	clock := timex.NewFakeClock(testStart)
	e := newTestEnvWithCache(t, clock, brokenCache{})
	ctx := context.Background()

	pair, a := e.register(t, "ann@x.test", "secret")

	got, err := e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.test", got.Email)

	restored, err := e.sessions.Restore(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, restored.RefreshToken)

	require.NoError(t, e.accounts.UpdateImage(ctx, a.ID, "face.png"))
	got, err = e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Image)
	assert.Equal(t, "face.png", *got.Image)
}

func TestAccountStore_ListAndCount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for i, email := range []string{"a@x.test", "b@x.test", "c@x.test"} {
		a := e.db.Seed(models.Account{Email: email, CreatedAt: testStart.Add(time.Duration(i) * time.Minute)})
		ids = append(ids, a.ID)
	}

	asc, err := e.accounts.List(ctx, 2, 0, false)
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, ids[0], asc[0].ID)
	assert.Equal(t, ids[1], asc[1].ID)

	desc, err := e.accounts.List(ctx, 2, 0, true)
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, ids[2], desc[0].ID)
	assert.Equal(t, 2, e.db.ReadCount("list"), "direction is part of the key")

	_, err = e.accounts.List(ctx, 2, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, e.db.ReadCount("list"))

	tail, err := e.accounts.List(ctx, 2, 2, false)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, ids[2], tail[0].ID)

	total, err := e.accounts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	_, err = e.accounts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.db.ReadCount("count"))
}

func TestAccountStore_PromoteResetsTotal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.db.Seed(models.Account{Email: "bob@x.test"})

	total, err := e.accounts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	e.register(t, "ann@x.test", "secret")

	total, err = e.accounts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestAccountStore_InvalidRoleRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.db.Seed(models.Account{Email: "ann@x.test"})

	bad := models.Role("Root")
	_, err := e.accounts.Patch(ctx, a.ID, models.AccountPatch{Role: &bad, FirstName: strPtr("Mallory")})
	assert.ErrorIs(t, err, common.ErrInvalidRole)
	assert.ErrorIs(t, err, common.ErrorValidation)

	stored, _ := e.db.Account(a.ID)
	assert.Equal(t, models.RoleUser, stored.Role)
	assert.Empty(t, stored.FirstName, "nothing committed")

	admin := models.RoleAdmin
	_, err = e.accounts.Patch(ctx, a.ID, models.AccountPatch{Role: &admin})
	require.NoError(t, err)
	got, err := e.accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
}

func TestAccountStore_UpdateUnknownAccount(t *testing.T) {
	e := newTestEnv(t)
	err := e.accounts.UpdateImage(context.Background(), uuid.New(), "x.png")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAccountStore_ExistsByEmailSkipsCache(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.cache.Set(ctx, cache.AccountEmailKey("ann@x.test"), models.Account{Email: "ann@x.test", Role: models.RoleUser}, testTTLs.Entity))

	exists, err := e.accounts.ExistsByEmail(ctx, "ann@x.test")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 1, e.db.ReadCount("exists"))
}
