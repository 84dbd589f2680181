package embedded

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorledger/motorledger/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := &ledger.Sale{ID: 1, Party: "Ramesh", Price: 100000}
	sale.Normalize()
	require.NoError(t, s.Put(ctx, ledger.KindSale, sale))

	rec, err := s.Get(ctx, ledger.KindSale, 1)
	require.NoError(t, err)
	got, ok := rec.(*ledger.Sale)
	require.True(t, ok)
	assert.Equal(t, "Ramesh", got.Party)
	assert.Equal(t, 100000.0, got.Total)
	assert.Len(t, got.Installments, ledger.InstallmentSlots)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), ledger.KindSale, 42)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestPutReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 1, Party: "Suresh"}))
	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 1, Party: "Suresh Auto"}))

	recs, err := s.List(ctx, ledger.KindPurchase)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Suresh Auto", ledger.PartyOf(recs[0]))
}

func TestListOrdersByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 3, Party: "C"}))
	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 1, Party: "A"}))
	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 2, Party: "B"}))

	recs, err := s.List(ctx, ledger.KindPurchase)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(1), recs[0].RecordID())
	assert.Equal(t, int64(3), recs[2].RecordID())
}

func TestReplaceAllSwapsCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindPurchase, &ledger.Purchase{ID: 1, Party: "Old"}))
	require.NoError(t, s.ReplaceAll(ctx, ledger.KindPurchase, []ledger.Record{
		&ledger.Purchase{ID: 10, Party: "New"},
	}))

	recs, err := s.List(ctx, ledger.KindPurchase)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(10), recs[0].RecordID())
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindSale, &ledger.Sale{ID: 1, Party: "Ramesh"}))
	require.NoError(t, s.Clear(ctx, ledger.KindSale))

	recs, err := s.List(ctx, ledger.KindSale)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDuePaymentsBySale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindDuePayment, &ledger.DuePayment{ID: 100, SaleID: 1}))
	require.NoError(t, s.Put(ctx, ledger.KindDuePayment, &ledger.DuePayment{ID: 101, SaleID: 2}))
	require.NoError(t, s.Put(ctx, ledger.KindDuePayment, &ledger.DuePayment{ID: 102, SaleID: 1}))

	dues, err := s.DuePaymentsBySale(ctx, 1)
	require.NoError(t, err)
	require.Len(t, dues, 2)
	assert.Equal(t, int64(100), dues[0].ID)
	assert.Equal(t, int64(102), dues[1].ID)
}

func TestListByParty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindSale, &ledger.Sale{ID: 1, Party: "Ramesh"}))
	require.NoError(t, s.Put(ctx, ledger.KindSale, &ledger.Sale{ID: 2, Party: "Mahesh"}))

	recs, err := s.ListByParty(ctx, ledger.KindSale, "Ramesh")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].RecordID())
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ledger.KindSale, &ledger.Sale{ID: 1, Party: "Ramesh"}))
	require.NoError(t, s.Delete(ctx, ledger.KindSale, 1))
	require.NoError(t, s.Delete(ctx, ledger.KindSale, 1))
}
