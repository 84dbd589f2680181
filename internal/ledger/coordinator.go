package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Tier is the store contract every backend satisfies. Implementations map
// storage faults to ErrStorageUnavailable; the coordinator treats any error
// as "move to the next tier".
type Tier interface {
	Name() string
	List(ctx context.Context, kind Kind) ([]Record, error)
	Get(ctx context.Context, kind Kind, id int64) (Record, error)
	Put(ctx context.Context, kind Kind, rec Record) error
	Delete(ctx context.Context, kind Kind, id int64) error
}

// CollectionTier is a tier whose collections are rewritten wholesale.
type CollectionTier interface {
	Tier
	ReplaceAll(ctx context.Context, kind Kind, recs []Record) error
	Clear(ctx context.Context, kind Kind) error
}

// RemoteTier is the networked backend. It may assign its own ids on create,
// in which case the returned record is authoritative.
type RemoteTier interface {
	Tier
	Create(ctx context.Context, kind Kind, rec Record) (Record, error)
	Update(ctx context.Context, kind Kind, rec Record) (Record, error)
	Restore(ctx context.Context, snap *Snapshot) error
}

// CounterStore tracks the last-assigned numeric ids.
type CounterStore interface {
	LastID(ctx context.Context, kind Kind) (int64, error)
	SetLastID(ctx context.Context, kind Kind, id int64) error
}

// PhotoDeleter removes a record's photo attachment when the record goes.
type PhotoDeleter interface {
	Delete(ref string) bool
}

// TierMetrics records per-tier attempt outcomes.
type TierMetrics interface {
	TierAttempt(kind, op, tier, outcome string)
}

// DueIndex is the embedded tier's dedicated lookup of due payments by their
// owning sale. Backends without the index are scanned through the read path.
type DueIndex interface {
	DuePaymentsBySale(ctx context.Context, saleID int64) ([]DuePayment, error)
}

// IDResetter realigns a remote endpoint's id counters with the records it
// actually holds. Implemented by backends that assign ids server-side.
type IDResetter interface {
	ResetIDs(ctx context.Context) error
}

// Coordinator runs every entity operation across the four storage tiers in
// priority order: embedded, remote, spreadsheet, flatkey. Reads return the
// first usable result; writes are mirrored best-effort with no rollback, so
// tiers can diverge if the process dies mid-sequence. That is the accepted
// trade-off of this design, not an accident.
type Coordinator struct {
	embedded CollectionTier
	remote   RemoteTier
	sheet    CollectionTier
	flat     CollectionTier

	counters CounterStore
	photos   PhotoDeleter
	metrics  TierMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// CoordinatorParams groups the coordinator's collaborators.
type CoordinatorParams struct {
	Embedded CollectionTier
	Remote   RemoteTier
	Sheet    CollectionTier
	Flat     CollectionTier
	Counters CounterStore
	Photos   PhotoDeleter
	Metrics  TierMetrics
	Logger   *slog.Logger
}

// NewCoordinator constructs the tiered persistence coordinator.
func NewCoordinator(params CoordinatorParams) *Coordinator {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		embedded: params.Embedded,
		remote:   params.Remote,
		sheet:    params.Sheet,
		flat:     params.Flat,
		counters: params.Counters,
		photos:   params.Photos,
		metrics:  params.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Coordinator) observe(kind Kind, op, tier string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.logger.Warn("tier attempt failed",
			slog.String("kind", string(kind)),
			slog.String("op", op),
			slog.String("tier", tier),
			slog.Any("error", err))
	}
	if c.metrics != nil {
		c.metrics.TierAttempt(string(kind), op, tier, outcome)
	}
}

// List returns a collection using the tier fallthrough read path. The
// embedded tier short-circuits on any non-empty result; data written to a
// lower tier by another process stays invisible until the local cache is
// filled or invalidated (local-first policy).
func (c *Coordinator) List(ctx context.Context, kind Kind) ([]Record, error) {
	recs, err := c.embedded.List(ctx, kind)
	c.observe(kind, "list", c.embedded.Name(), err)
	if err == nil && len(recs) > 0 {
		return recs, nil
	}

	recs, err = c.remote.List(ctx, kind)
	c.observe(kind, "list", c.remote.Name(), err)
	if err == nil {
		// Cache fill: mirror the remote result into the embedded tier.
		if mirrorErr := c.embedded.ReplaceAll(ctx, kind, recs); mirrorErr != nil {
			c.logger.Warn("cache fill failed", slog.String("kind", string(kind)), slog.Any("error", mirrorErr))
		}
		return recs, nil
	}

	recs, err = c.sheet.List(ctx, kind)
	c.observe(kind, "list", c.sheet.Name(), err)
	if err == nil && len(recs) > 0 {
		if mirrorErr := c.embedded.ReplaceAll(ctx, kind, recs); mirrorErr != nil {
			c.logger.Warn("cache fill failed", slog.String("kind", string(kind)), slog.Any("error", mirrorErr))
		}
		return recs, nil
	}

	recs, err = c.flat.List(ctx, kind)
	c.observe(kind, "list", c.flat.Name(), err)
	if err != nil {
		return []Record{}, nil
	}
	return recs, nil
}

// GetByID resolves a single record through the same fallthrough order.
func (c *Coordinator) GetByID(ctx context.Context, kind Kind, id int64) (Record, error) {
	rec, err := c.embedded.Get(ctx, kind, id)
	c.observe(kind, "get", c.embedded.Name(), ignoreNotFound(err))
	if err == nil && rec != nil {
		return rec, nil
	}

	rec, err = c.remote.Get(ctx, kind, id)
	c.observe(kind, "get", c.remote.Name(), ignoreNotFound(err))
	if err == nil && rec != nil {
		if mirrorErr := c.embedded.Put(ctx, kind, rec); mirrorErr != nil {
			c.logger.Warn("cache fill failed", slog.String("kind", string(kind)), slog.Any("error", mirrorErr))
		}
		return rec, nil
	}

	for _, tier := range []Tier{c.sheet, c.flat} {
		recs, listErr := tier.List(ctx, kind)
		c.observe(kind, "get", tier.Name(), listErr)
		if listErr != nil {
			continue
		}
		for _, candidate := range recs {
			if candidate.RecordID() == id {
				return candidate, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Create assigns the next id from the read-path collection (max existing
// id + 1) and writes the record through every tier. When the remote tier
// answers with its own assigned record, that record is what the caller
// receives; mirrors written before the remote call keep the local id.
func (c *Coordinator) Create(ctx context.Context, rec Record) (Record, error) {
	if err := ValidateRecord(rec); err != nil {
		return nil, err
	}
	NormalizeRecord(rec)
	kind := rec.RecordKind()

	existing, err := c.List(ctx, kind)
	if err != nil {
		existing = nil
	}
	var maxID int64
	for _, r := range existing {
		if r.RecordID() > maxID {
			maxID = r.RecordID()
		}
	}
	if rec.RecordID() == 0 {
		rec.SetRecordID(maxID + 1)
	}

	collection := append(append([]Record{}, existing...), rec)
	err = c.sheet.ReplaceAll(ctx, kind, collection)
	c.observe(kind, "create", c.sheet.Name(), err)

	err = c.embedded.Put(ctx, kind, rec)
	c.observe(kind, "create", c.embedded.Name(), err)

	result := rec
	remoteRec, err := c.remote.Create(ctx, kind, rec)
	c.observe(kind, "create", c.remote.Name(), err)
	if err == nil && remoteRec != nil {
		result = remoteRec
	}

	flatCollection := append(append([]Record{}, existing...), result)
	err = c.flat.ReplaceAll(ctx, kind, flatCollection)
	c.observe(kind, "create", c.flat.Name(), err)
	if c.counters != nil && (kind == KindSale || kind == KindPurchase) {
		if err := c.counters.SetLastID(ctx, kind, result.RecordID()); err != nil {
			c.logger.Warn("update last id", slog.String("kind", string(kind)), slog.Any("error", err))
		}
	}

	if sale, ok := result.(*Sale); ok && sale.DueAmount > 0 {
		due := DuePaymentFromSale(sale, c.now())
		if _, err := c.Create(ctx, due); err != nil {
			c.logger.Warn("create derived due payment", slog.Int64("saleId", sale.ID), slog.Any("error", err))
		}
	}
	return result, nil
}

// Update rewrites the record across the tiers. The remote result, when
// available, is authoritative; the flatkey tier is only rewritten when the
// remote tier did not answer. A due payment tracking the sale has its
// denormalized fields refreshed.
func (c *Coordinator) Update(ctx context.Context, rec Record) (Record, error) {
	if err := ValidateRecord(rec); err != nil {
		return nil, err
	}
	NormalizeRecord(rec)
	kind := rec.RecordKind()

	existing, err := c.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	replaced := false
	collection := make([]Record, 0, len(existing))
	for _, r := range existing {
		if r.RecordID() == rec.RecordID() {
			collection = append(collection, rec)
			replaced = true
			continue
		}
		collection = append(collection, r)
	}
	if !replaced {
		return nil, ErrNotFound
	}

	err = c.sheet.ReplaceAll(ctx, kind, collection)
	c.observe(kind, "update", c.sheet.Name(), err)

	err = c.embedded.Put(ctx, kind, rec)
	c.observe(kind, "update", c.embedded.Name(), err)

	result := rec
	remoteRec, remoteErr := c.remote.Update(ctx, kind, rec)
	c.observe(kind, "update", c.remote.Name(), remoteErr)
	if remoteErr == nil && remoteRec != nil {
		result = remoteRec
	} else {
		err = c.flat.ReplaceAll(ctx, kind, collection)
		c.observe(kind, "update", c.flat.Name(), err)
	}

	if sale, ok := result.(*Sale); ok {
		c.refreshDuePayments(ctx, sale)
	}
	return result, nil
}

// Delete removes the record from every tier and cascades to due payments
// referencing a deleted sale. The returned bool is the remote endpoint's
// answer when it removed the record; in every other case it reports whether
// a local copy was removed.
func (c *Coordinator) Delete(ctx context.Context, kind Kind, id int64) (bool, error) {
	existing, err := c.List(ctx, kind)
	if err != nil {
		return false, err
	}
	removed := false
	var photoRef string
	collection := make([]Record, 0, len(existing))
	for _, r := range existing {
		if r.RecordID() == id {
			removed = true
			photoRef = PhotoRef(r)
			continue
		}
		collection = append(collection, r)
	}

	err = c.sheet.ReplaceAll(ctx, kind, collection)
	c.observe(kind, "delete", c.sheet.Name(), err)

	err = c.embedded.Delete(ctx, kind, id)
	c.observe(kind, "delete", c.embedded.Name(), err)

	var dueSurvivors []Record
	dueListed := false
	cascade := kind == KindSale
	if cascade {
		for _, due := range c.duePaymentsForSale(ctx, id) {
			if delErr := c.embedded.Delete(ctx, KindDuePayment, due.ID); delErr != nil {
				c.logger.Warn("cascade delete due payment", slog.Int64("saleId", id), slog.Any("error", delErr))
			}
			if _, remoteErr := c.remoteDelete(ctx, KindDuePayment, due.ID); remoteErr != nil {
				c.logger.Warn("cascade delete due payment (remote)", slog.Int64("saleId", id), slog.Any("error", remoteErr))
			}
		}
		if dues, listErr := c.List(ctx, KindDuePayment); listErr == nil {
			dueListed = true
			for _, r := range dues {
				if due, ok := r.(*DuePayment); ok && due.SaleID == id {
					continue
				}
				dueSurvivors = append(dueSurvivors, r)
			}
			if sheetErr := c.sheet.ReplaceAll(ctx, KindDuePayment, dueSurvivors); sheetErr != nil {
				c.logger.Warn("cascade rewrite due payments", slog.Any("error", sheetErr))
			}
		}
	}

	if photoRef != "" && c.photos != nil {
		if !c.photos.Delete(photoRef) {
			c.logger.Warn("delete photo", slog.String("ref", photoRef))
		}
	}

	ok, remoteErr := c.remoteDelete(ctx, kind, id)
	c.observe(kind, "delete", c.remote.Name(), remoteErr)
	if remoteErr == nil && ok {
		return true, nil
	}

	// A remote that answered without ever holding the record says nothing
	// about the last-resort tier, which can carry a stale copy once the
	// tiers have diverged. The flat rewrite runs whenever the remote did
	// not actually remove the record.
	err = c.flat.ReplaceAll(ctx, kind, collection)
	c.observe(kind, "delete", c.flat.Name(), err)
	if cascade && dueListed {
		if flatErr := c.flat.ReplaceAll(ctx, KindDuePayment, dueSurvivors); flatErr != nil {
			c.logger.Warn("cascade rewrite due payments (flatkey)", slog.Any("error", flatErr))
		}
	}
	return removed, nil
}

func (c *Coordinator) remoteDelete(ctx context.Context, kind Kind, id int64) (bool, error) {
	if err := c.remote.Delete(ctx, kind, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// duePaymentsForSale resolves the cascade set for a deleted sale. The
// sale-id index speaks for the embedded tier only, so an empty or failed
// index lookup falls back to scanning the read path.
func (c *Coordinator) duePaymentsForSale(ctx context.Context, saleID int64) []*DuePayment {
	if idx, ok := c.embedded.(DueIndex); ok {
		if dues, err := idx.DuePaymentsBySale(ctx, saleID); err == nil && len(dues) > 0 {
			matched := make([]*DuePayment, len(dues))
			for i := range dues {
				matched[i] = &dues[i]
			}
			return matched
		}
	}
	recs, err := c.List(ctx, KindDuePayment)
	if err != nil {
		return nil
	}
	var matched []*DuePayment
	for _, r := range recs {
		if due, ok := r.(*DuePayment); ok && due.SaleID == saleID {
			matched = append(matched, due)
		}
	}
	return matched
}

// refreshDuePayments re-synchronizes every due payment tracking the sale.
func (c *Coordinator) refreshDuePayments(ctx context.Context, sale *Sale) {
	dues, err := c.List(ctx, KindDuePayment)
	if err != nil {
		return
	}
	now := c.now()
	changed := false
	for _, r := range dues {
		due, ok := r.(*DuePayment)
		if !ok || due.SaleID != sale.ID {
			continue
		}
		due.RefreshFromSale(sale, now)
		changed = true
		if err := c.embedded.Put(ctx, KindDuePayment, due); err != nil {
			c.logger.Warn("refresh due payment", slog.Int64("saleId", sale.ID), slog.Any("error", err))
		}
	}
	if !changed {
		return
	}
	if err := c.sheet.ReplaceAll(ctx, KindDuePayment, dues); err != nil {
		c.logger.Warn("refresh due payments (spreadsheet)", slog.Any("error", err))
	}
	if err := c.flat.ReplaceAll(ctx, KindDuePayment, dues); err != nil {
		c.logger.Warn("refresh due payments (flatkey)", slog.Any("error", err))
	}
}

// LastIDs reports the persisted id counters for the backup snapshot.
func (c *Coordinator) LastIDs(ctx context.Context) (lastSale, lastPurchase int64) {
	if c.counters == nil {
		return 0, 0
	}
	if id, err := c.counters.LastID(ctx, KindSale); err == nil {
		lastSale = id
	}
	if id, err := c.counters.LastID(ctx, KindPurchase); err == nil {
		lastPurchase = id
	}
	return lastSale, lastPurchase
}

// Tiers exposes the tier handles for the backup coordinator, which replays
// restores across them directly.
func (c *Coordinator) Tiers() (embedded CollectionTier, remote RemoteTier, sheet CollectionTier, flat CollectionTier, counters CounterStore) {
	return c.embedded, c.remote, c.sheet, c.flat, c.counters
}

// Logger exposes the coordinator's logger to collaborators built on top.
func (c *Coordinator) Logger() *slog.Logger { return c.logger }

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
