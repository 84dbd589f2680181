// Package remoted implements the cloud side of the remote tier: a small
// PostgreSQL-backed server speaking the same wire contract the failover
// client expects.
package remoted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/platform/db"
)

// Repository persists ledger records in PostgreSQL. Records are stored as
// JSONB rows keyed by (kind, id) so the three collections share one schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an open pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Initialize creates the schema if it does not exist yet.
func (r *Repository) Initialize(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			kind TEXT NOT NULL,
			id BIGINT NOT NULL,
			data JSONB NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("remoted: initialize schema: %w", err)
	}
	return nil
}

// List returns the whole collection ordered by id.
func (r *Repository) List(ctx context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM records WHERE kind = $1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("remoted: list %s: %w", kind, err)
	}
	defer rows.Close()

	var recs []ledger.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("remoted: scan %s: %w", kind, err)
		}
		rec, err := ledger.UnmarshalRecord(kind, data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Get fetches one record or ledger.ErrNotFound.
func (r *Repository) Get(ctx context.Context, kind ledger.Kind, id int64) (ledger.Record, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM records WHERE kind = $1 AND id = $2`, string(kind), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remoted: get %s/%d: %w", kind, id, err)
	}
	return ledger.UnmarshalRecord(kind, data)
}

// Create inserts the record and returns the authoritative copy. Sales and
// purchases get a server-assigned sequential id when the submitted id is
// taken or zero; due payment ids are caller-chosen timestamps and kept as is.
func (r *Repository) Create(ctx context.Context, rec ledger.Record) (ledger.Record, error) {
	kind := rec.RecordKind()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		id := rec.RecordID()
		if kind != ledger.KindDuePayment {
			next, err := nextID(ctx, tx, kind)
			if err != nil {
				return err
			}
			if id == 0 || id < next {
				id = next
			}
			rec.SetRecordID(id)
			if err := setCounter(ctx, tx, counterName(kind), id); err != nil {
				return err
			}
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO records (kind, id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (kind, id) DO UPDATE SET data = EXCLUDED.data`,
			string(kind), rec.RecordID(), data)
		if err != nil {
			return fmt.Errorf("remoted: insert %s/%d: %w", kind, rec.RecordID(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update upserts the record at its id. Mirror writes from the failover
// client arrive as updates for rows this endpoint may never have seen, so a
// missing row is created rather than rejected.
func (r *Repository) Update(ctx context.Context, rec ledger.Record) (ledger.Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	kind := rec.RecordKind()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO records (kind, id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (kind, id) DO UPDATE SET data = EXCLUDED.data`,
		string(kind), rec.RecordID(), data)
	if err != nil {
		return nil, fmt.Errorf("remoted: upsert %s/%d: %w", kind, rec.RecordID(), err)
	}
	return rec, nil
}

// Delete removes the record, reporting ledger.ErrNotFound for unknown ids.
func (r *Repository) Delete(ctx context.Context, kind ledger.Kind, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM records WHERE kind = $1 AND id = $2`, string(kind), id)
	if err != nil {
		return fmt.Errorf("remoted: delete %s/%d: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// Restore atomically replaces every collection and counter from a snapshot.
func (r *Repository) Restore(ctx context.Context, snap *ledger.Snapshot) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM records`); err != nil {
			return fmt.Errorf("remoted: clear records: %w", err)
		}
		groups := map[ledger.Kind][]ledger.Record{
			ledger.KindSale:       ledger.RecordsOfSales(snap.Sales),
			ledger.KindPurchase:   ledger.RecordsOfPurchases(snap.Purchases),
			ledger.KindDuePayment: ledger.RecordsOfDuePayments(snap.DuePayments),
		}
		for kind, recs := range groups {
			for _, rec := range recs {
				data, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				if _, err := tx.Exec(ctx,
					`INSERT INTO records (kind, id, data) VALUES ($1, $2, $3)`,
					string(kind), rec.RecordID(), data); err != nil {
					return fmt.Errorf("remoted: restore %s/%d: %w", kind, rec.RecordID(), err)
				}
			}
		}
		if err := setCounter(ctx, tx, counterName(ledger.KindSale), snap.LastSaleID); err != nil {
			return err
		}
		return setCounter(ctx, tx, counterName(ledger.KindPurchase), snap.LastPurchaseID)
	})
}

// ResetIDs realigns the id counters with the highest stored ids.
func (r *Repository) ResetIDs(ctx context.Context) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, kind := range []ledger.Kind{ledger.KindSale, ledger.KindPurchase} {
			var max int64
			err := tx.QueryRow(ctx,
				`SELECT COALESCE(MAX(id), 0) FROM records WHERE kind = $1`, string(kind)).Scan(&max)
			if err != nil {
				return fmt.Errorf("remoted: max id for %s: %w", kind, err)
			}
			if err := setCounter(ctx, tx, counterName(kind), max); err != nil {
				return err
			}
		}
		return nil
	})
}

func nextID(ctx context.Context, tx pgx.Tx, kind ledger.Kind) (int64, error) {
	var counter int64
	err := tx.QueryRow(ctx,
		`SELECT value FROM counters WHERE name = $1`, counterName(kind)).Scan(&counter)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("remoted: read counter for %s: %w", kind, err)
	}
	var max int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM records WHERE kind = $1`, string(kind)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("remoted: max id for %s: %w", kind, err)
	}
	if max > counter {
		counter = max
	}
	return counter + 1, nil
}

func setCounter(ctx context.Context, tx pgx.Tx, name string, value int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO counters (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
		name, value)
	if err != nil {
		return fmt.Errorf("remoted: set counter %s: %w", name, err)
	}
	return nil
}

func counterName(kind ledger.Kind) string {
	return "last_" + string(kind) + "_id"
}
