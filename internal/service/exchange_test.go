package service

import (
	"context"
	"errors"
	"testing"

	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/platform/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions map[string]platform.Session

func (s stubSessions) Session(username string) (platform.Session, error) {
	sess, ok := s[username]
	if !ok {
		return nil, model.ErrNotReady.With("account %s", username)
	}
	return sess, nil
}

func newExchangeFixture(t *testing.T, account *model.Account, acc *fake.Account) (*ExchangeService, *fake.Client) {
	t.Helper()
	store := newStore(t, nil)
	addAccount(t, store, account)

	client := fake.NewClient()
	client.SetAccount(account.Username, acc)
	sess, err := client.NewSession(account.Username)
	require.NoError(t, err)

	svc := NewExchangeService(store, stubSessions{account.Username: sess}, nil, InventoryConfig{AppID: 730, ContextID: 2}, nil)
	return svc, client
}

func TestProposeNoTradableItems(t *testing.T) {
	svc, client := newExchangeFixture(t, &model.Account{Username: "alice"}, &fake.Account{
		Items: map[int64][]platform.RawItem{2: {
			{AssetID: "1", Tradable: false},
			{AssetID: "2", Tradable: true, Descriptions: []platform.Description{{Value: "Tradable After 7 days"}}},
		}},
	})

	_, err := svc.Propose(context.Background(), "alice", "https://partner/trade")
	assert.ErrorIs(t, err, model.ErrNoTradableItems)
	assert.Equal(t, int64(0), client.OfferCalls())
}

func TestProposeSendsEveryTradableItem(t *testing.T) {
	svc, client := newExchangeFixture(t, &model.Account{Username: "alice"}, &fake.Account{
		Items: map[int64][]platform.RawItem{2: {
			{AssetID: "1", Tradable: true},
			{AssetID: "2", Tradable: true},
			{AssetID: "3", Tradable: false},
		}},
	})

	res, err := svc.Propose(context.Background(), "alice", "https://partner/trade")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ItemCount)
	assert.Equal(t, "sent", res.Status)
	assert.NotEmpty(t, res.OfferID)
	assert.Equal(t, int64(1), client.OfferCalls())
	assert.Equal(t, int64(0), client.ConfirmCalls())
}

func TestProposeConfirmsPendingOffer(t *testing.T) {
	svc, client := newExchangeFixture(t,
		&model.Account{Username: "alice", IdentitySecret: "aWRlbnRpdHk="},
		&fake.Account{
			Items:       map[int64][]platform.RawItem{2: {{AssetID: "1", Tradable: true}}},
			OfferStatus: platform.OfferPending,
			ConfirmErr:  errors.New("confirmation rejected"),
		})

	res, err := svc.Propose(context.Background(), "alice", "https://partner/trade")
	require.NoError(t, err, "confirmation failures are only logged")
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, int64(1), client.ConfirmCalls())
}

func TestProposePendingWithoutIdentitySecret(t *testing.T) {
	svc, client := newExchangeFixture(t, &model.Account{Username: "alice"}, &fake.Account{
		Items:       map[int64][]platform.RawItem{2: {{AssetID: "1", Tradable: true}}},
		OfferStatus: platform.OfferPending,
	})

	_, err := svc.Propose(context.Background(), "alice", "https://partner/trade")
	require.NoError(t, err)
	assert.Equal(t, int64(0), client.ConfirmCalls())
}

func TestProposeErrors(t *testing.T) {
	svc, _ := newExchangeFixture(t, &model.Account{Username: "alice"}, &fake.Account{})
	ctx := context.Background()

	_, err := svc.Propose(ctx, "nobody", "https://partner/trade")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.Propose(ctx, "alice", " ")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	store := newStore(t, nil)
	addAccount(t, store, &model.Account{Username: "bob"})
	offline := NewExchangeService(store, stubSessions{}, nil, InventoryConfig{AppID: 730, ContextID: 2}, nil)
	_, err = offline.Propose(ctx, "bob", "https://partner/trade")
	assert.ErrorIs(t, err, model.ErrNotReady)
}
