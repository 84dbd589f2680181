package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTier is an in-memory CollectionTier with optional fault injection.
type memTier struct {
	name  string
	data  map[Kind][]Record
	fail  bool
	calls map[string]int
}

func newMemTier(name string) *memTier {
	return &memTier{name: name, data: map[Kind][]Record{}, calls: map[string]int{}}
}

func (m *memTier) Name() string { return m.name }

func (m *memTier) List(_ context.Context, kind Kind) ([]Record, error) {
	m.calls["list"]++
	if m.fail {
		return nil, ErrStorageUnavailable
	}
	return append([]Record(nil), m.data[kind]...), nil
}

func (m *memTier) Get(_ context.Context, kind Kind, id int64) (Record, error) {
	m.calls["get"]++
	if m.fail {
		return nil, ErrStorageUnavailable
	}
	for _, rec := range m.data[kind] {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memTier) Put(_ context.Context, kind Kind, rec Record) error {
	m.calls["put"]++
	if m.fail {
		return ErrStorageUnavailable
	}
	for i, existing := range m.data[kind] {
		if existing.RecordID() == rec.RecordID() {
			m.data[kind][i] = rec
			return nil
		}
	}
	m.data[kind] = append(m.data[kind], rec)
	return nil
}

func (m *memTier) Delete(_ context.Context, kind Kind, id int64) error {
	m.calls["delete"]++
	if m.fail {
		return ErrStorageUnavailable
	}
	recs := m.data[kind]
	for i, rec := range recs {
		if rec.RecordID() == id {
			m.data[kind] = append(recs[:i:i], recs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memTier) ReplaceAll(_ context.Context, kind Kind, recs []Record) error {
	m.calls["replaceAll"]++
	if m.fail {
		return ErrStorageUnavailable
	}
	m.data[kind] = append([]Record(nil), recs...)
	return nil
}

func (m *memTier) Clear(ctx context.Context, kind Kind) error {
	return m.ReplaceAll(ctx, kind, nil)
}

// memRemote layers the RemoteTier contract over a memTier. assignID lets a
// test simulate a server that overrides locally computed ids.
type memRemote struct {
	*memTier
	assignID int64
}

func newMemRemote() *memRemote {
	return &memRemote{memTier: newMemTier("remote")}
}

func (m *memRemote) Create(ctx context.Context, kind Kind, rec Record) (Record, error) {
	m.calls["create"]++
	if m.fail {
		return nil, ErrStorageUnavailable
	}
	if m.assignID != 0 {
		rec.SetRecordID(m.assignID)
	}
	if err := m.Put(ctx, kind, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *memRemote) Update(ctx context.Context, kind Kind, rec Record) (Record, error) {
	m.calls["update"]++
	if m.fail {
		return nil, ErrStorageUnavailable
	}
	if err := m.Put(ctx, kind, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *memRemote) Restore(_ context.Context, _ *Snapshot) error {
	m.calls["restore"]++
	if m.fail {
		return ErrStorageUnavailable
	}
	return nil
}

type memCounters struct {
	last map[Kind]int64
}

func (m *memCounters) LastID(_ context.Context, kind Kind) (int64, error) {
	return m.last[kind], nil
}

func (m *memCounters) SetLastID(_ context.Context, kind Kind, id int64) error {
	m.last[kind] = id
	return nil
}

type memPhotos struct {
	deleted []string
}

func (m *memPhotos) Delete(ref string) bool {
	m.deleted = append(m.deleted, ref)
	return true
}

type fixture struct {
	coord    *Coordinator
	embedded *memTier
	remote   *memRemote
	sheet    *memTier
	flat     *memTier
	counters *memCounters
	photos   *memPhotos
}

func newFixture() *fixture {
	f := &fixture{
		embedded: newMemTier("embedded"),
		remote:   newMemRemote(),
		sheet:    newMemTier("spreadsheet"),
		flat:     newMemTier("flatkey"),
		counters: &memCounters{last: map[Kind]int64{}},
		photos:   &memPhotos{},
	}
	f.coord = NewCoordinator(CoordinatorParams{
		Embedded: f.embedded,
		Remote:   f.remote,
		Sheet:    f.sheet,
		Flat:     f.flat,
		Counters: f.counters,
		Photos:   f.photos,
	})
	return f
}

func testSale(id int64, party string) *Sale {
	s := &Sale{ID: id, Party: party, Price: 100000, Date: time.Now()}
	s.Normalize()
	return s
}

func TestListShortCircuitsOnEmbedded(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.embedded.Put(context.Background(), KindSale, testSale(1, "Ramesh")))

	recs, err := f.coord.List(context.Background(), KindSale)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Zero(t, f.remote.calls["list"], "remote must not be consulted when embedded answers")
	assert.Zero(t, f.sheet.calls["list"])
	assert.Zero(t, f.flat.calls["list"])
}

func TestListFallsThroughToRemoteAndMirrors(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.remote.Put(context.Background(), KindSale, testSale(5, "Ramesh")))

	recs, err := f.coord.List(context.Background(), KindSale)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Cache fill: the next read is served locally.
	assert.Len(t, f.embedded.data[KindSale], 1)
	_, err = f.coord.List(context.Background(), KindSale)
	require.NoError(t, err)
	assert.Equal(t, 1, f.remote.calls["list"])
}

func TestListFallsThroughToSpreadsheet(t *testing.T) {
	f := newFixture()
	f.remote.fail = true
	require.NoError(t, f.sheet.Put(context.Background(), KindPurchase, &Purchase{ID: 2, Party: "Suresh"}))

	recs, err := f.coord.List(context.Background(), KindPurchase)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Len(t, f.embedded.data[KindPurchase], 1)
}

func TestListReturnsEmptyWhenAllTiersDown(t *testing.T) {
	f := newFixture()
	f.embedded.fail = true
	f.remote.fail = true
	f.sheet.fail = true
	f.flat.fail = true

	recs, err := f.coord.List(context.Background(), KindSale)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetByIDMirrorsRemoteHit(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.remote.Put(context.Background(), KindSale, testSale(9, "Ramesh")))

	rec, err := f.coord.GetByID(context.Background(), KindSale, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.RecordID())
	assert.Len(t, f.embedded.data[KindSale], 1)
}

func TestGetByIDScansLowerTiers(t *testing.T) {
	f := newFixture()
	f.remote.fail = true
	require.NoError(t, f.flat.Put(context.Background(), KindSale, testSale(4, "Ramesh")))

	rec, err := f.coord.GetByID(context.Background(), KindSale, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.RecordID())
}

func TestGetByIDNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.coord.GetByID(context.Background(), KindSale, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAssignsNextID(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.embedded.Put(context.Background(), KindSale, testSale(3, "Old")))

	created, err := f.coord.Create(context.Background(), &Sale{Party: "Ramesh", Price: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(4), created.RecordID())
	assert.Equal(t, int64(4), f.counters.last[KindSale])

	// Every tier saw the write.
	assert.Len(t, f.sheet.data[KindSale], 2)
	assert.Len(t, f.flat.data[KindSale], 2)
	assert.Len(t, f.embedded.data[KindSale], 2)
}

func TestCreateRemoteAssignedIDWins(t *testing.T) {
	f := newFixture()
	f.remote.assignID = 77

	created, err := f.coord.Create(context.Background(), &Sale{Party: "Ramesh", Price: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(77), created.RecordID())
	assert.Equal(t, int64(77), f.counters.last[KindSale])
}

func TestCreateValidationRejected(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Create(context.Background(), &Sale{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.sheet.data[KindSale], "no tier may be written for invalid input")
}

func TestCreateSaleWithBalanceSpawnsDuePayment(t *testing.T) {
	f := newFixture()

	created, err := f.coord.Create(context.Background(), &Sale{Party: "Ramesh", Price: 90000, DueDate: time.Now().AddDate(0, 1, 0)})
	require.NoError(t, err)

	dues := f.embedded.data[KindDuePayment]
	require.Len(t, dues, 1)
	due, ok := dues[0].(*DuePayment)
	require.True(t, ok)
	assert.Equal(t, created.RecordID(), due.SaleID)
	assert.Equal(t, 90000.0, due.DueAmount)
	assert.Equal(t, DueStatusPending, due.Status)
}

func TestCreateFullyPaidSaleSpawnsNoDuePayment(t *testing.T) {
	f := newFixture()
	s := &Sale{Party: "Ramesh", Price: 50000, Installments: []Installment{{Amount: 50000, Enabled: true}}}

	_, err := f.coord.Create(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, f.embedded.data[KindDuePayment])
}

func TestCreateSurvivesRemoteOutage(t *testing.T) {
	f := newFixture()
	f.remote.fail = true

	created, err := f.coord.Create(context.Background(), &Purchase{Party: "Suresh", Price: 70000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.RecordID())
	assert.Len(t, f.embedded.data[KindPurchase], 1)
	assert.Len(t, f.flat.data[KindPurchase], 1)
}

func TestUpdateUnknownRecord(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Update(context.Background(), testSale(8, "Ramesh"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSkipsFlatWhenRemoteAnswers(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.embedded.Put(context.Background(), KindSale, testSale(1, "Ramesh")))

	updated := testSale(1, "Ramesh Kumar")
	_, err := f.coord.Update(context.Background(), updated)
	require.NoError(t, err)
	assert.Zero(t, f.flat.calls["replaceAll"], "flatkey is the remote's fallback only")
	assert.Equal(t, 1, f.remote.calls["update"])
}

func TestUpdateFallsBackToFlatkey(t *testing.T) {
	f := newFixture()
	f.remote.fail = true
	require.NoError(t, f.embedded.Put(context.Background(), KindSale, testSale(1, "Ramesh")))

	_, err := f.coord.Update(context.Background(), testSale(1, "Ramesh Kumar"))
	require.NoError(t, err)
	require.Len(t, f.flat.data[KindSale], 1)
	assert.Equal(t, "Ramesh Kumar", PartyOf(f.flat.data[KindSale][0]))
}

func TestUpdateSaleRefreshesDuePayments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sale := testSale(1, "Ramesh")
	require.NoError(t, f.embedded.Put(ctx, KindSale, sale))
	require.NoError(t, f.embedded.Put(ctx, KindDuePayment, &DuePayment{ID: 1000, SaleID: 1, DueAmount: sale.DueAmount}))

	changed := testSale(1, "Ramesh")
	changed.Installments[0] = Installment{Date: time.Now(), Amount: 40000, Enabled: true}
	changed.Normalize()

	_, err := f.coord.Update(ctx, changed)
	require.NoError(t, err)

	due, ok := f.embedded.data[KindDuePayment][0].(*DuePayment)
	require.True(t, ok)
	assert.Equal(t, 60000.0, due.DueAmount)
	assert.Equal(t, 40000.0, due.LastPaymentAmount)
}

func TestDeleteCascadesAndRemovesPhoto(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sale := testSale(1, "Ramesh")
	sale.PhotoURL = "/photos/abc.jpg"
	require.NoError(t, f.embedded.Put(ctx, KindSale, sale))
	require.NoError(t, f.remote.Put(ctx, KindSale, sale))
	require.NoError(t, f.embedded.Put(ctx, KindDuePayment, &DuePayment{ID: 1000, SaleID: 1}))
	require.NoError(t, f.embedded.Put(ctx, KindDuePayment, &DuePayment{ID: 1001, SaleID: 2}))

	removed, err := f.coord.Delete(ctx, KindSale, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Empty(t, f.embedded.data[KindSale])
	require.Len(t, f.embedded.data[KindDuePayment], 1)
	assert.Equal(t, int64(1001), f.embedded.data[KindDuePayment][0].RecordID())
	assert.Equal(t, []string{"/photos/abc.jpg"}, f.photos.deleted)
}

func TestDeleteMissingRemoteRecordReportsFalse(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	removed, err := f.coord.Delete(ctx, KindSale, 42)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteFallsBackToFlatkeyOnRemoteOutage(t *testing.T) {
	f := newFixture()
	f.remote.fail = true
	ctx := context.Background()
	require.NoError(t, f.embedded.Put(ctx, KindPurchase, &Purchase{ID: 1, Party: "Suresh"}))
	require.NoError(t, f.flat.Put(ctx, KindPurchase, &Purchase{ID: 1, Party: "Suresh"}))

	removed, err := f.coord.Delete(ctx, KindPurchase, 1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, f.flat.data[KindPurchase])
}

func TestRemoteDeleteErrorIsNotNotFound(t *testing.T) {
	f := newFixture()
	f.remote.fail = true

	_, err := f.coord.remoteDelete(context.Background(), KindSale, 1)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestDeleteRemoteMissingStillRewritesFlatkey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sale := testSale(1, "Ramesh")
	require.NoError(t, f.embedded.Put(ctx, KindSale, sale))
	require.NoError(t, f.sheet.Put(ctx, KindSale, sale))
	require.NoError(t, f.flat.Put(ctx, KindSale, sale))
	require.NoError(t, f.flat.Put(ctx, KindDuePayment, &DuePayment{ID: 1000, SaleID: 1}))

	// The remote answers but never held this record. The stale copies in
	// the last-resort tier must still be filtered out, and the caller is
	// told about the local removal.
	removed, err := f.coord.Delete(ctx, KindSale, 1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, f.flat.data[KindSale], "stale sale must not survive in the flatkey tier")
	assert.Empty(t, f.flat.data[KindDuePayment])
}

// indexedMemTier layers the sale-id index over memTier.
type indexedMemTier struct {
	*memTier
	indexCalls int
}

func (m *indexedMemTier) DuePaymentsBySale(_ context.Context, saleID int64) ([]DuePayment, error) {
	m.indexCalls++
	if m.fail {
		return nil, ErrStorageUnavailable
	}
	var dues []DuePayment
	for _, rec := range m.data[KindDuePayment] {
		if due, ok := rec.(*DuePayment); ok && due.SaleID == saleID {
			dues = append(dues, *due)
		}
	}
	return dues, nil
}

func TestDeleteCascadeUsesSaleIndex(t *testing.T) {
	indexed := &indexedMemTier{memTier: newMemTier("embedded")}
	f := newFixture()
	f.coord = NewCoordinator(CoordinatorParams{
		Embedded: indexed,
		Remote:   f.remote,
		Sheet:    f.sheet,
		Flat:     f.flat,
		Counters: f.counters,
		Photos:   f.photos,
	})
	ctx := context.Background()
	require.NoError(t, indexed.Put(ctx, KindSale, testSale(1, "Ramesh")))
	require.NoError(t, f.remote.Put(ctx, KindSale, testSale(1, "Ramesh")))
	require.NoError(t, indexed.Put(ctx, KindDuePayment, &DuePayment{ID: 1000, SaleID: 1}))
	require.NoError(t, indexed.Put(ctx, KindDuePayment, &DuePayment{ID: 1001, SaleID: 2}))

	removed, err := f.coord.Delete(ctx, KindSale, 1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, indexed.indexCalls, "cascade lookup must go through the index")
	require.Len(t, indexed.data[KindDuePayment], 1)
	assert.Equal(t, int64(1001), indexed.data[KindDuePayment][0].RecordID())
}
