// Package backup serializes the union of all ledger collections into a
// single restorable artifact, as JSON or as a multi-sheet workbook.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/store/spreadsheet"
)

// Service builds snapshots through the coordinator's read path and replays
// restores across the storage tiers.
type Service struct {
	coord  *ledger.Coordinator
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the backup coordinator.
func NewService(coord *ledger.Coordinator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{coord: coord, logger: logger, now: time.Now}
}

// Snapshot assembles the point-in-time union of all collections plus the id
// counters, read through the tiered read path.
func (s *Service) Snapshot(ctx context.Context) (*ledger.Snapshot, error) {
	snap := &ledger.Snapshot{BackupDate: s.now()}

	sales, err := s.coord.List(ctx, ledger.KindSale)
	if err != nil {
		return nil, fmt.Errorf("snapshot sales: %w", err)
	}
	snap.Sales = ledger.SalesOf(sales)

	purchases, err := s.coord.List(ctx, ledger.KindPurchase)
	if err != nil {
		return nil, fmt.Errorf("snapshot purchases: %w", err)
	}
	snap.Purchases = ledger.PurchasesOf(purchases)

	dues, err := s.coord.List(ctx, ledger.KindDuePayment)
	if err != nil {
		return nil, fmt.Errorf("snapshot due payments: %w", err)
	}
	snap.DuePayments = ledger.DuePaymentsOf(dues)

	snap.LastSaleID, snap.LastPurchaseID = s.coord.LastIDs(ctx)
	return snap, nil
}

// SnapshotJSON renders the snapshot as a single JSON document.
func (s *Service) SnapshotJSON(ctx context.Context) ([]byte, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(snap, "", "  ")
}

// SnapshotWorkbook renders the snapshot as a multi-sheet workbook with a
// metadata sheet carrying the counters and the backup timestamp.
func (s *Service) SnapshotWorkbook(ctx context.Context) ([]byte, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return spreadsheet.BuildWorkbook(snap)
}

// Restore parses either artifact representation, validates the top-level
// shape, then destructively replaces every tier's collections. Shape
// problems surface as ledger.ErrInvalidFormat before any destructive step;
// everything else is caught and reported through the returned bool.
func (s *Service) Restore(ctx context.Context, artifact []byte) (bool, error) {
	snap, err := Parse(artifact)
	if err != nil {
		return false, err
	}
	return s.RestoreSnapshot(ctx, snap), nil
}

// RestoreSnapshot replays a parsed snapshot: clear-and-add across the
// embedded tier, a bulk-restore attempt on the remote tier, then an
// unconditional flatkey rewrite as the durable fallback.
func (s *Service) RestoreSnapshot(ctx context.Context, snap *ledger.Snapshot) bool {
	embedded, remote, sheet, flat, counters := s.coord.Tiers()
	collections := map[ledger.Kind][]ledger.Record{
		ledger.KindSale:       ledger.RecordsOfSales(snap.Sales),
		ledger.KindPurchase:   ledger.RecordsOfPurchases(snap.Purchases),
		ledger.KindDuePayment: ledger.RecordsOfDuePayments(snap.DuePayments),
	}

	ok := true
	for _, kind := range ledger.Kinds {
		recs := collections[kind]
		if err := embedded.Clear(ctx, kind); err != nil {
			s.logger.Warn("restore clear", slog.String("kind", string(kind)), slog.Any("error", err))
			ok = false
			continue
		}
		for _, rec := range recs {
			if err := embedded.Put(ctx, kind, rec); err != nil {
				s.logger.Warn("restore add", slog.String("kind", string(kind)), slog.Any("error", err))
				ok = false
			}
		}
		if err := sheet.ReplaceAll(ctx, kind, recs); err != nil {
			s.logger.Warn("restore spreadsheet", slog.String("kind", string(kind)), slog.Any("error", err))
		}
	}

	if err := remote.Restore(ctx, snap); err != nil {
		// The remote tier is attempted only; restore succeeds without it.
		s.logger.Warn("restore remote", slog.Any("error", err))
	} else if resetter, isResetter := remote.(ledger.IDResetter); isResetter {
		// Snapshot counters can lag the restored records; realign them
		// with the endpoint's actual max ids.
		if err := resetter.ResetIDs(ctx); err != nil {
			s.logger.Warn("restore reset ids", slog.Any("error", err))
		}
	}

	for _, kind := range ledger.Kinds {
		if err := flat.ReplaceAll(ctx, kind, collections[kind]); err != nil {
			s.logger.Warn("restore flatkey", slog.String("kind", string(kind)), slog.Any("error", err))
			ok = false
		}
	}
	if counters != nil {
		if err := counters.SetLastID(ctx, ledger.KindSale, snap.LastSaleID); err != nil {
			s.logger.Warn("restore last sale id", slog.Any("error", err))
		}
		if err := counters.SetLastID(ctx, ledger.KindPurchase, snap.LastPurchaseID); err != nil {
			s.logger.Warn("restore last purchase id", slog.Any("error", err))
		}
	}
	return ok
}

// Parse detects the artifact representation and validates that all three
// collections are present. It never guesses a partial restore.
func Parse(artifact []byte) (*ledger.Snapshot, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", ledger.ErrInvalidFormat)
	}
	if bytes.HasPrefix(artifact, []byte("PK")) {
		return spreadsheet.ParseWorkbook(artifact)
	}
	return parseJSON(artifact)
}

func parseJSON(artifact []byte) (*ledger.Snapshot, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(artifact, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFormat, err)
	}
	for _, key := range []string{"vehicleSales", "vehiclePurchases", "duePayments"} {
		if _, ok := shape[key]; !ok {
			return nil, fmt.Errorf("%w: missing collection %q", ledger.ErrInvalidFormat, key)
		}
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(artifact, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFormat, err)
	}
	for i := range snap.Sales {
		snap.Sales[i].Normalize()
	}
	for i := range snap.Purchases {
		snap.Purchases[i].Normalize()
	}
	return &snap, nil
}
