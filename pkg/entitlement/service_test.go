package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentdesk/contentdesk/pkg/cache"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/store"
)

func setupService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := NewService(mem.Users(), nil, logger.Default())
	return svc, mem
}

func seedUser(t *testing.T, mem *store.Memory, u *store.User) string {
	t.Helper()
	id, err := mem.Users().Create(context.Background(), u)
	require.NoError(t, err)
	return id
}

func TestResolve_FreeUser(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "free@example.com",
		Tier:      store.TierFree,
		Tokens:    7,
		LastReset: time.Now(),
	})

	ent, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.TierFree, ent.Tier)
	assert.Equal(t, 7, ent.Tokens)
	assert.Nil(t, ent.SubscriptionEnd)
}

func TestResolve_LazyExpiry(t *testing.T) {
	svc, mem := setupService(t)
	expired := time.Now().Add(-time.Hour)
	id := seedUser(t, mem, &store.User{
		Email:           "expired@example.com",
		Tier:            store.TierPremium,
		SubscriptionEnd: &expired,
		Tokens:          42,
		LastReset:       time.Now(),
	})

	ent, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.TierFree, ent.Tier)
	assert.Nil(t, ent.SubscriptionEnd)
	// Expiry alone does not touch the balance
	assert.Equal(t, 42, ent.Tokens)

	// Downgrade is persisted, not just computed
	u, err := mem.Users().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.TierFree, u.Tier)
	assert.Nil(t, u.SubscriptionEnd)
}

func TestResolve_ActivePremiumNotDowngraded(t *testing.T) {
	svc, mem := setupService(t)
	end := time.Now().Add(10 * 24 * time.Hour)
	id := seedUser(t, mem, &store.User{
		Email:           "premium@example.com",
		Tier:            store.TierPremium,
		SubscriptionEnd: &end,
		Tokens:          80,
		LastReset:       time.Now(),
	})

	ent, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.TierPremium, ent.Tier)
	require.NotNil(t, ent.SubscriptionEnd)
	assert.WithinDuration(t, end, *ent.SubscriptionEnd, time.Second)
}

func TestResolve_MonthlyReset(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "stale@example.com",
		Tier:      store.TierFree,
		Tokens:    1,
		LastReset: time.Now().AddDate(0, -2, 0),
	})

	ent, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, FreeMonthlyTokens, ent.Tokens)

	// A second read within the same month is a no-op
	ent, err = svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, FreeMonthlyTokens, ent.Tokens)
}

func TestResolve_ExpiryThenResetUsesFreeAllotment(t *testing.T) {
	svc, mem := setupService(t)
	expired := time.Now().Add(-time.Hour)
	id := seedUser(t, mem, &store.User{
		Email:           "both@example.com",
		Tier:            store.TierPremium,
		SubscriptionEnd: &expired,
		Tokens:          60,
		LastReset:       time.Now().AddDate(0, -1, -1),
	})

	// Expiry applies before the reset, so the reset grants the Free allotment
	ent, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.TierFree, ent.Tier)
	assert.Equal(t, FreeMonthlyTokens, ent.Tokens)
}

func TestResolve_UserNotFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Resolve(context.Background(), "recUsrMissing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDebit(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "debit@example.com",
		Tier:      store.TierFree,
		Tokens:    10,
		LastReset: time.Now(),
	})

	ent, err := svc.Debit(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, ent.Tokens)

	u, err := mem.Users().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, u.Tokens)
}

func TestDebit_Insufficient(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "poor@example.com",
		Tier:      store.TierFree,
		Tokens:    1,
		LastReset: time.Now(),
	})

	_, err := svc.Debit(context.Background(), id, 2)
	var insufficientErr *InsufficientTokensError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 2, insufficientErr.Required)
	assert.Equal(t, 1, insufficientErr.Available)

	// A rejected debit leaves the balance untouched
	u, err := mem.Users().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Tokens)
}

func TestDebit_ExactBalance(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "exact@example.com",
		Tier:      store.TierFree,
		Tokens:    2,
		LastReset: time.Now(),
	})

	ent, err := svc.Debit(context.Background(), id, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, ent.Tokens)
}

func TestCredit(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "credit@example.com",
		Tier:      store.TierFree,
		Tokens:    3,
		LastReset: time.Now(),
	})

	ent, err := svc.Credit(context.Background(), id, 50)
	require.NoError(t, err)
	assert.Equal(t, 53, ent.Tokens)
}

func TestCredit_FloorsAtZero(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "floor@example.com",
		Tier:      store.TierFree,
		Tokens:    3,
		LastReset: time.Now(),
	})

	ent, err := svc.Credit(context.Background(), id, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, ent.Tokens)
}

func TestUpgrade(t *testing.T) {
	tests := []struct {
		name           string
		startTokens    int
		expectedTokens int
	}{
		{"drained free account", 0, 90},
		{"untouched free account", 10, 100},
		{"partially used free account", 4, 94},
		{"balance above premium allotment is kept", 120, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mem := setupService(t)
			id := seedUser(t, mem, &store.User{
				Email:     "upgrade@example.com",
				Tier:      store.TierFree,
				Tokens:    tt.startTokens,
				LastReset: time.Now(),
			})

			ent, err := svc.Upgrade(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, store.TierPremium, ent.Tier)
			assert.Equal(t, tt.expectedTokens, ent.Tokens)
			require.NotNil(t, ent.SubscriptionEnd)
			assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *ent.SubscriptionEnd, time.Minute)
		})
	}
}

func TestUpgrade_RenewalExtendsFromNow(t *testing.T) {
	svc, mem := setupService(t)
	end := time.Now().Add(5 * 24 * time.Hour)
	id := seedUser(t, mem, &store.User{
		Email:           "renew@example.com",
		Tier:            store.TierPremium,
		SubscriptionEnd: &end,
		Tokens:          70,
		LastReset:       time.Now(),
	})

	ent, err := svc.Upgrade(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, ent.SubscriptionEnd)
	// 30 days from now, not 35 days from the original purchase
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *ent.SubscriptionEnd, time.Minute)
	// Consumed 30 of the premium allotment, so the renewed balance is 70
	assert.Equal(t, 70, ent.Tokens)
}

func setupCachedService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { cacheClient.Close() })

	mem := store.NewMemory()
	return NewService(mem.Users(), cacheClient, logger.Default()), mem
}

func TestCached_ServesSnapshot(t *testing.T) {
	svc, mem := setupCachedService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "cached@example.com",
		Tier:      store.TierFree,
		Tokens:    7,
		LastReset: time.Now(),
	})

	_, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)

	// The store changes behind our back, but the snapshot is still fresh
	require.NoError(t, mem.Users().Update(context.Background(), id, store.Fields{"Tokens": 1}))

	ent, err := svc.Cached(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, ent.Tokens)
}

func TestCached_InvalidatedByDebit(t *testing.T) {
	svc, mem := setupCachedService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "invalidate@example.com",
		Tier:      store.TierFree,
		Tokens:    7,
		LastReset: time.Now(),
	})

	_, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.Debit(context.Background(), id, 3)
	require.NoError(t, err)

	// The debit drops the snapshot, so the next read is authoritative
	ent, err := svc.Cached(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, ent.Tokens)
}

func TestCached_WithoutCacheResolves(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "nocache@example.com",
		Tier:      store.TierFree,
		Tokens:    5,
		LastReset: time.Now(),
	})

	ent, err := svc.Cached(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5, ent.Tokens)
}

func TestUpgrade_ResetsMonthlyWindow(t *testing.T) {
	svc, mem := setupService(t)
	id := seedUser(t, mem, &store.User{
		Email:     "window@example.com",
		Tier:      store.TierFree,
		Tokens:    10,
		LastReset: time.Now(),
	})

	_, err := svc.Upgrade(context.Background(), id)
	require.NoError(t, err)

	u, err := mem.Users().Get(context.Background(), id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), u.LastReset, time.Minute)
}
