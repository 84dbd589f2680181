package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorledger/motorledger/internal/backup"
	"github.com/motorledger/motorledger/internal/ledger"
)

type memTier struct {
	name string
	data map[ledger.Kind][]ledger.Record
}

func newMemTier(name string) *memTier {
	return &memTier{name: name, data: map[ledger.Kind][]ledger.Record{}}
}

func (m *memTier) Name() string { return m.name }

func (m *memTier) List(_ context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	return append([]ledger.Record(nil), m.data[kind]...), nil
}

func (m *memTier) Get(_ context.Context, kind ledger.Kind, id int64) (ledger.Record, error) {
	for _, rec := range m.data[kind] {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memTier) Put(_ context.Context, kind ledger.Kind, rec ledger.Record) error {
	for i, existing := range m.data[kind] {
		if existing.RecordID() == rec.RecordID() {
			m.data[kind][i] = rec
			return nil
		}
	}
	m.data[kind] = append(m.data[kind], rec)
	return nil
}

func (m *memTier) Delete(_ context.Context, kind ledger.Kind, id int64) error {
	for i, rec := range m.data[kind] {
		if rec.RecordID() == id {
			m.data[kind] = append(m.data[kind][:i:i], m.data[kind][i+1:]...)
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (m *memTier) ReplaceAll(_ context.Context, kind ledger.Kind, recs []ledger.Record) error {
	m.data[kind] = append([]ledger.Record(nil), recs...)
	return nil
}

func (m *memTier) Clear(ctx context.Context, kind ledger.Kind) error {
	return m.ReplaceAll(ctx, kind, nil)
}

type memRemote struct{ *memTier }

func (m *memRemote) Create(ctx context.Context, kind ledger.Kind, rec ledger.Record) (ledger.Record, error) {
	return rec, m.Put(ctx, kind, rec)
}

func (m *memRemote) Update(ctx context.Context, kind ledger.Kind, rec ledger.Record) (ledger.Record, error) {
	return rec, m.Put(ctx, kind, rec)
}

func (m *memRemote) Restore(_ context.Context, _ *ledger.Snapshot) error { return nil }

func newTestTasks(t *testing.T) (*Tasks, *memTier, string) {
	t.Helper()
	embedded := newMemTier("embedded")
	coord := ledger.NewCoordinator(ledger.CoordinatorParams{
		Embedded: embedded,
		Remote:   &memRemote{newMemTier("remote")},
		Sheet:    newMemTier("spreadsheet"),
		Flat:     newMemTier("flatkey"),
	})
	backupDir := filepath.Join(t.TempDir(), "backups")
	tasks := NewTasks(coord, backup.NewService(coord, nil), backupDir, coord.Logger())
	return tasks, embedded, backupDir
}

func TestHandleDueRefreshFlipsOverdue(t *testing.T) {
	tasks, embedded, _ := newTestTasks(t)
	ctx := context.Background()
	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, embedded.Put(ctx, ledger.KindDuePayment, &ledger.DuePayment{
		ID: 1000, SaleID: 1, DueDate: yesterday, DueAmount: 5000, Total: 5000,
		Status: ledger.DueStatusPending,
	}))

	task, err := NewDueRefreshTask(DueRefreshPayload{})
	require.NoError(t, err)
	require.NoError(t, tasks.HandleDueRefresh(ctx, task))

	due, ok := embedded.data[ledger.KindDuePayment][0].(*ledger.DuePayment)
	require.True(t, ok)
	assert.Equal(t, ledger.DueStatusOverdue, due.Status)
}

func TestHandleDueRefreshLeavesCurrentAlone(t *testing.T) {
	tasks, embedded, _ := newTestTasks(t)
	ctx := context.Background()
	require.NoError(t, embedded.Put(ctx, ledger.KindDuePayment, &ledger.DuePayment{
		ID: 1000, SaleID: 1, DueDate: time.Now().AddDate(0, 1, 0), DueAmount: 5000, Total: 5000,
		Status: ledger.DueStatusPending,
	}))

	task, err := NewDueRefreshTask(DueRefreshPayload{})
	require.NoError(t, err)
	require.NoError(t, tasks.HandleDueRefresh(ctx, task))

	due, ok := embedded.data[ledger.KindDuePayment][0].(*ledger.DuePayment)
	require.True(t, ok)
	assert.Equal(t, ledger.DueStatusPending, due.Status)
}

func TestHandleSnapshotWritesWorkbook(t *testing.T) {
	tasks, embedded, backupDir := newTestTasks(t)
	ctx := context.Background()
	sale := &ledger.Sale{ID: 1, Party: "Ramesh", Price: 100000}
	sale.Normalize()
	require.NoError(t, embedded.Put(ctx, ledger.KindSale, sale))

	task, err := NewSnapshotTask(SnapshotPayload{Format: "xlsx"})
	require.NoError(t, err)
	require.NoError(t, tasks.HandleSnapshot(ctx, task))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".xlsx", filepath.Ext(entries[0].Name()))
}
