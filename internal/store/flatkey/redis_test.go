package flatkey

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/store/remote"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, "test"), mr
}

func TestCollectionRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sale := &ledger.Sale{ID: 1, Party: "Ramesh", Price: 100000}
	sale.Normalize()
	require.NoError(t, s.ReplaceAll(ctx, ledger.KindSale, []ledger.Record{sale}))

	recs, err := s.List(ctx, ledger.KindSale)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ramesh", ledger.PartyOf(recs[0]))
}

func TestCollectionKeysArePrefixed(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, ledger.KindSale, nil))
	assert.True(t, mr.Exists("test:vehicleSales"))
}

func TestMissingKeyReadsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	recs, err := s.List(context.Background(), ledger.KindSale)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPutAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 1, Party: "Suresh"}))
	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 2, Party: "Mahesh"}))
	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 1, Party: "Suresh Auto"}))

	rec, err := s.Get(ctx, ledger.KindPurchase, 1)
	require.NoError(t, err)
	assert.Equal(t, "Suresh Auto", ledger.PartyOf(rec))

	require.NoError(t, s.Delete(ctx, ledger.KindPurchase, 1))
	_, err = s.Get(ctx, ledger.KindPurchase, 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	recs, err := s.List(ctx, ledger.KindPurchase)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCounters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.LastID(ctx, ledger.KindSale)
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, s.SetLastID(ctx, ledger.KindSale, 42))
	id, err = s.LastID(ctx, ledger.KindSale)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = s.LastID(ctx, ledger.KindDuePayment)
	assert.Error(t, err, "due payments have no sequential counter")
}

func TestEndpointPersistence(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	endpoints := []remote.Endpoint{
		{URL: "http://a.example", Path: "/api"},
		{URL: "http://b.example", Path: "/api"},
	}
	require.NoError(t, s.SaveEndpoints(ctx, endpoints, 1))

	got, primary, err := s.LoadEndpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, endpoints, got)
	assert.Equal(t, 1, primary)
}

func TestLoadEndpointsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	endpoints, primary, err := s.LoadEndpoints(context.Background())
	require.NoError(t, err)
	assert.Nil(t, endpoints)
	assert.Zero(t, primary)
}

func TestDisconnectedTierReportsUnavailable(t *testing.T) {
	s := NewStore(nil, "test")

	_, err := s.List(context.Background(), ledger.KindSale)
	assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	err = s.SetLastID(context.Background(), ledger.KindSale, 1)
	assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
}
