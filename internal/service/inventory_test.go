package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/platform/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventoryFixture(t *testing.T, protected int64) (*InventoryService, *fake.Client, *events.Subscription, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := newStore(t, clock)
	addAccount(t, store, &model.Account{Username: "alice"})

	bus := events.NewBus(nil)
	sub := bus.Subscribe("test", 16)
	t.Cleanup(sub.Close)

	svc := NewInventoryService(store, bus, nil, InventoryConfig{
		AppID:              730,
		ContextID:          2,
		ProtectedContextID: protected,
		TTL:                5 * time.Minute,
	}, nil)
	svc.now = clock.Now

	return svc, fake.NewClient(), sub, clock
}

func liveSession(t *testing.T, client *fake.Client, username string) platform.Session {
	t.Helper()
	sess, err := client.NewSession(username)
	require.NoError(t, err)
	return sess
}

func TestRefreshIsIdempotentWithinTTL(t *testing.T) {
	svc, client, sub, clock := newInventoryFixture(t, 0)
	client.SetAccount("alice", &fake.Account{Items: map[int64][]platform.RawItem{
		2: {{AssetID: "1", Name: "Case", Tradable: true}},
	}})
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	first, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Items, 1)

	clock.Advance(time.Minute)
	second, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Items, second.Items)

	assert.Equal(t, int64(1), client.ListCalls())

	evs := drain(sub)
	require.Len(t, evs, 2)
	assert.Equal(t, events.InventoryUpdated, evs[0].Type)
	assert.False(t, evs[0].Data.(events.InventoryData).FromCache)
	assert.True(t, evs[1].Data.(events.InventoryData).FromCache)
}

func TestRefreshAfterTTLListsAgain(t *testing.T) {
	svc, client, _, clock := newInventoryFixture(t, 0)
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	_, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	res, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), client.ListCalls())
}

func TestForcedRefreshBypassesCache(t *testing.T) {
	svc, client, _, _ := newInventoryFixture(t, 0)
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	_, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	res, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess, Force: true})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), client.ListCalls())
}

func TestRefreshEmptyInventoryIsCached(t *testing.T) {
	svc, client, sub, _ := newInventoryFixture(t, 0)
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	res, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	items, fresh, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Empty(t, items)

	evs := drain(sub)
	require.Len(t, evs, 1)
	data := evs[0].Data.(events.InventoryData)
	assert.Equal(t, 0, data.Count)
	assert.False(t, data.FromCache)
}

func TestRefreshPartialFailureStillCaches(t *testing.T) {
	svc, client, sub, _ := newInventoryFixture(t, 16)
	client.SetAccount("alice", &fake.Account{
		Items:   map[int64][]platform.RawItem{2: {{AssetID: "1", Tradable: true}}},
		ListErr: map[int64]error{16: errors.New("context unavailable")},
	})
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	res, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	items, _, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Len(t, drain(sub), 1)
}

func TestRefreshTotalFailureWritesNothing(t *testing.T) {
	svc, client, sub, _ := newInventoryFixture(t, 16)
	client.SetAccount("alice", &fake.Account{
		ListErr: map[int64]error{2: errors.New("down"), 16: errors.New("down")},
	})
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	_, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.Error(t, err)

	items, fresh, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, items)
	assert.False(t, fresh)
	assert.Empty(t, drain(sub))
}

func TestRefreshMergesProtectedContext(t *testing.T) {
	svc, client, _, _ := newInventoryFixture(t, 16)
	client.SetAccount("alice", &fake.Account{Items: map[int64][]platform.RawItem{
		2:  {{AssetID: "1", Tradable: true}},
		16: {{AssetID: "2", Tradable: true}},
	}})
	sess := liveSession(t, client, "alice")

	res, err := svc.Refresh(context.Background(), RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	byID := map[string]model.Item{}
	for _, it := range res.Items {
		byID[it.ID] = it
	}
	assert.True(t, byID["1"].Tradable)
	assert.False(t, byID["2"].Tradable)
	assert.True(t, byID["2"].TradeProtected)
	assert.Equal(t, int64(2), client.ListCalls())
}

func TestRefreshWithoutSessionIsNotReady(t *testing.T) {
	svc, _, _, _ := newInventoryFixture(t, 0)

	_, err := svc.Refresh(context.Background(), RefreshRequest{Username: "alice"})
	assert.ErrorIs(t, err, model.ErrNotReady)
}

func TestRefreshCanceledContextPublishesNothing(t *testing.T) {
	svc, client, sub, _ := newInventoryFixture(t, 0)
	sess := liveSession(t, client, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.Error(t, err)
	assert.Empty(t, drain(sub))
}

func TestGetUnknownAccount(t *testing.T) {
	svc, _, _, _ := newInventoryFixture(t, 0)

	_, _, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClearCache(t *testing.T) {
	svc, client, _, _ := newInventoryFixture(t, 0)
	sess := liveSession(t, client, "alice")
	ctx := context.Background()

	_, err := svc.Refresh(ctx, RefreshRequest{Username: "alice", Session: sess})
	require.NoError(t, err)

	n, err := svc.ClearCache(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	items, fresh, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, items)
	assert.False(t, fresh)

	n, err = svc.ClearCache(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
