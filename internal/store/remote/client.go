package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/motorledger/motorledger/internal/ledger"
)

// Store performs entity CRUD against the registry's endpoints. Each request
// walks the current order and uses the first endpoint that answers; that
// endpoint is promoted to primary for subsequent calls. When every candidate
// fails the sentinel ledger.ErrStorageUnavailable comes back so the
// coordinator can fall through to the next tier.
type Store struct {
	registry  *Registry
	client    *http.Client
	logger    *slog.Logger
	onPromote func(Endpoint)
}

// Option configures optional store collaborators.
type Option func(*Store)

// WithHTTPClient overrides the transport (timeouts are its concern).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) { s.client = client }
}

// WithPromotionHook observes sticky-failover promotions.
func WithPromotionHook(hook func(Endpoint)) Option {
	return func(s *Store) { s.onPromote = hook }
}

// NewStore constructs the remote tier client.
func NewStore(registry *Registry, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		registry: registry,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements ledger.Tier.
func (s *Store) Name() string { return "remote" }

// request walks the endpoint order sequentially. At most one successful
// response is used per call; attempt order is deterministic given the
// current primary pointer.
func (s *Store) request(ctx context.Context, entityPath, method string, body any) ([]byte, error) {
	if s.registry == nil || s.registry.Empty() {
		return nil, fmt.Errorf("%w: no remote endpoints configured", ledger.ErrStorageUnavailable)
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = data
	}

	var lastErr error
	for _, ep := range s.registry.CurrentOrder() {
		url := ep.URL + ep.Path + entityPath
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			lastErr = err
			continue
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			s.logger.Debug("remote endpoint failed", slog.String("url", url), slog.Any("error", err))
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			// The endpoint answered; a missing record is not a host failure.
			s.promote(ctx, ep)
			return nil, ledger.ErrNotFound
		}
		if readErr != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("endpoint %s: status %d", url, resp.StatusCode)
			if readErr != nil {
				lastErr = readErr
			}
			s.logger.Debug("remote endpoint failed", slog.String("url", url), slog.Any("error", lastErr))
			continue
		}
		s.promote(ctx, ep)
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, lastErr)
}

func (s *Store) promote(ctx context.Context, ep Endpoint) {
	if s.registry.Promote(ctx, ep) {
		s.logger.Info("promoted remote endpoint", slog.String("url", ep.URL+ep.Path))
		if s.onPromote != nil {
			s.onPromote(ep)
		}
	}
}

// List fetches the whole collection.
func (s *Store) List(ctx context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	data, err := s.request(ctx, "/"+string(kind), http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalRecords(kind, data)
}

// Get fetches one record.
func (s *Store) Get(ctx context.Context, kind ledger.Kind, id int64) (ledger.Record, error) {
	data, err := s.request(ctx, fmt.Sprintf("/%s/%d", kind, id), http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalRecord(kind, data)
}

// Create posts a new record; the response carries the server-assigned
// record, which may have a different id than the one computed locally.
func (s *Store) Create(ctx context.Context, kind ledger.Kind, rec ledger.Record) (ledger.Record, error) {
	data, err := s.request(ctx, "/"+string(kind), http.MethodPost, rec)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalRecord(kind, data)
}

// Update replaces the record server-side and returns the authoritative copy.
func (s *Store) Update(ctx context.Context, kind ledger.Kind, rec ledger.Record) (ledger.Record, error) {
	data, err := s.request(ctx, fmt.Sprintf("/%s/%d", kind, rec.RecordID()), http.MethodPut, rec)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalRecord(kind, data)
}

// Put mirrors a record without caring about the response body.
func (s *Store) Put(ctx context.Context, kind ledger.Kind, rec ledger.Record) error {
	_, err := s.Update(ctx, kind, rec)
	return err
}

// Delete removes the record on the active endpoint.
func (s *Store) Delete(ctx context.Context, kind ledger.Kind, id int64) error {
	_, err := s.request(ctx, fmt.Sprintf("/%s/%d", kind, id), http.MethodDelete, nil)
	return err
}

// Restore replaces all remote collections from a snapshot.
func (s *Store) Restore(ctx context.Context, snap *ledger.Snapshot) error {
	_, err := s.request(ctx, "/restore", http.MethodPost, snap)
	return err
}

// Initialize asks the active endpoint to bootstrap its schema.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.request(ctx, "/initialize", http.MethodPost, nil)
	return err
}

// ResetIDs asks the active endpoint to realign its id counters.
func (s *Store) ResetIDs(ctx context.Context) error {
	_, err := s.request(ctx, "/reset-ids", http.MethodPost, nil)
	return err
}
