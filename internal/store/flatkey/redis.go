// Package flatkey is the last-resort tier: whole collections stored as
// serialized blobs under fixed keys in redis, plus the last-assigned id
// counters. No indexing; consumers load the blob and scan in memory.
package flatkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/store/remote"
)

var collectionKeys = map[ledger.Kind]string{
	ledger.KindSale:       "vehicleSales",
	ledger.KindPurchase:   "vehiclePurchases",
	ledger.KindDuePayment: "duePayments",
}

var counterKeys = map[ledger.Kind]string{
	ledger.KindSale:     "lastSaleId",
	ledger.KindPurchase: "lastPurchaseId",
}

const endpointsKey = "remoteEndpoints"

// Store is the redis-backed flatkey tier.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore wraps a redis client. The prefix namespaces every key.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Name implements ledger.Tier.
func (s *Store) Name() string { return "flatkey" }

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
}

// The app starts without redis; every call then reports the tier down.
func (s *Store) ready() error {
	if s.client == nil {
		return fmt.Errorf("%w: redis not connected", ledger.ErrStorageUnavailable)
	}
	return nil
}

// GetBlob reads a raw value; missing keys read as empty.
func (s *Store) GetBlob(ctx context.Context, name string) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return data, nil
}

// SetBlob writes a raw value with no expiry.
func (s *Store) SetBlob(ctx context.Context, name string, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// List loads and decodes a whole collection.
func (s *Store) List(ctx context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	key, ok := collectionKeys[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	data, err := s.GetBlob(ctx, key)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalRecords(kind, data)
}

// Get scans the collection for the record.
func (s *Store) Get(ctx context.Context, kind ledger.Kind, id int64) (ledger.Record, error) {
	recs, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	return nil, ledger.ErrNotFound
}

// Put rewrites the collection with the record replaced or appended.
func (s *Store) Put(ctx context.Context, kind ledger.Kind, rec ledger.Record) error {
	recs, err := s.List(ctx, kind)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range recs {
		if existing.RecordID() == rec.RecordID() {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}
	return s.ReplaceAll(ctx, kind, recs)
}

// Delete rewrites the collection without the record.
func (s *Store) Delete(ctx context.Context, kind ledger.Kind, id int64) error {
	recs, err := s.List(ctx, kind)
	if err != nil {
		return err
	}
	filtered := recs[:0]
	for _, rec := range recs {
		if rec.RecordID() != id {
			filtered = append(filtered, rec)
		}
	}
	return s.ReplaceAll(ctx, kind, filtered)
}

// ReplaceAll stores the collection as one blob.
func (s *Store) ReplaceAll(ctx context.Context, kind ledger.Kind, recs []ledger.Record) error {
	key, ok := collectionKeys[kind]
	if !ok {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	data, err := ledger.MarshalRecords(recs)
	if err != nil {
		return err
	}
	return s.SetBlob(ctx, key, data)
}

// Clear resets the collection to empty.
func (s *Store) Clear(ctx context.Context, kind ledger.Kind) error {
	return s.ReplaceAll(ctx, kind, nil)
}

// LastID implements ledger.CounterStore.
func (s *Store) LastID(ctx context.Context, kind ledger.Kind) (int64, error) {
	key, ok := counterKeys[kind]
	if !ok {
		return 0, fmt.Errorf("no id counter for kind %q", kind)
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	id, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return id, nil
}

// SetLastID implements ledger.CounterStore.
func (s *Store) SetLastID(ctx context.Context, kind ledger.Kind, id int64) error {
	key, ok := counterKeys[kind]
	if !ok {
		return fmt.Errorf("no id counter for kind %q", kind)
	}
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), id, 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

type endpointConfig struct {
	Endpoints []remote.Endpoint `json:"endpoints"`
	Primary   int               `json:"primary"`
}

// SaveEndpoints implements remote.Saver so the endpoint registry survives
// restarts.
func (s *Store) SaveEndpoints(ctx context.Context, endpoints []remote.Endpoint, primary int) error {
	data, err := json.Marshal(endpointConfig{Endpoints: endpoints, Primary: primary})
	if err != nil {
		return err
	}
	return s.SetBlob(ctx, endpointsKey, data)
}

// LoadEndpoints implements remote.Saver.
func (s *Store) LoadEndpoints(ctx context.Context) ([]remote.Endpoint, int, error) {
	data, err := s.GetBlob(ctx, endpointsKey)
	if err != nil || len(data) == 0 {
		return nil, 0, err
	}
	var cfg endpointConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, 0, err
	}
	return cfg.Endpoints, cfg.Primary, nil
}
