// Package embedded is the first-priority tier: a local sqlite database
// acting as cache and fast fallback. Every collection is stored as one JSON
// blob per record, indexed by party name and, for due payments, by the
// originating sale id.
package embedded

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/motorledger/motorledger/internal/ledger"
)

// Store is the sqlite-backed embedded tier.
type Store struct {
	db *sql.DB
}

var tables = map[ledger.Kind]string{
	ledger.KindSale:       "sales",
	ledger.KindPurchase:   "purchases",
	ledger.KindDuePayment: "due_payments",
}

// Open opens (and migrates) the embedded database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY,
			party TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id INTEGER PRIMARY KEY,
			party TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS due_payments (
			id INTEGER PRIMARY KEY,
			party TEXT NOT NULL DEFAULT '',
			sale_id INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_party ON sales(party)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_party ON purchases(party)`,
		`CREATE INDEX IF NOT EXISTS idx_due_payments_party ON due_payments(party)`,
		`CREATE INDEX IF NOT EXISTS idx_due_payments_sale_id ON due_payments(sale_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Name implements ledger.Tier.
func (s *Store) Name() string { return "embedded" }

func (s *Store) table(kind ledger.Kind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
	return t, nil
}

// unavailable wraps a sqlite fault so the coordinator falls through rather
// than failing the operation.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
}

// List returns the whole collection, ordered by id.
func (s *Store) List(ctx context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY id", table))
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var recs []ledger.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable(err)
		}
		rec, err := ledger.UnmarshalRecord(kind, data)
		if err != nil {
			return nil, unavailable(err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return recs, nil
}

// Get returns a single record or ledger.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind ledger.Kind, id int64) (ledger.Record, error) {
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return ledger.UnmarshalRecord(kind, data)
}

// Put inserts or replaces a record.
func (s *Store) Put(ctx context.Context, kind ledger.Kind, rec ledger.Record) error {
	table, err := s.table(kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if due, ok := rec.(*ledger.DuePayment); ok {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("INSERT OR REPLACE INTO %s (id, party, sale_id, data) VALUES (?, ?, ?, ?)", table),
			rec.RecordID(), ledger.PartyOf(rec), due.SaleID, data)
	} else {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("INSERT OR REPLACE INTO %s (id, party, data) VALUES (?, ?, ?)", table),
			rec.RecordID(), ledger.PartyOf(rec), data)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, kind ledger.Kind, id int64) error {
	table, err := s.table(kind)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return unavailable(err)
	}
	return nil
}

// ReplaceAll swaps the collection wholesale inside a transaction.
func (s *Store) ReplaceAll(ctx context.Context, kind ledger.Kind, recs []ledger.Record) error {
	table, err := s.table(kind)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return unavailable(err)
	}
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if due, ok := rec.(*ledger.DuePayment); ok {
			_, err = tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO %s (id, party, sale_id, data) VALUES (?, ?, ?, ?)", table),
				rec.RecordID(), ledger.PartyOf(rec), due.SaleID, data)
		} else {
			_, err = tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO %s (id, party, data) VALUES (?, ?, ?)", table),
				rec.RecordID(), ledger.PartyOf(rec), data)
		}
		if err != nil {
			return unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Clear drops the collection.
func (s *Store) Clear(ctx context.Context, kind ledger.Kind) error {
	return s.ReplaceAll(ctx, kind, nil)
}

// DuePaymentsBySale looks up due payments through the sale-id index.
func (s *Store) DuePaymentsBySale(ctx context.Context, saleID int64) ([]ledger.DuePayment, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM due_payments WHERE sale_id = ? ORDER BY id", saleID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var dues []ledger.DuePayment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable(err)
		}
		var due ledger.DuePayment
		if err := json.Unmarshal(data, &due); err != nil {
			return nil, unavailable(err)
		}
		dues = append(dues, due)
	}
	return dues, rows.Err()
}

// ListByParty looks up records through the party index.
func (s *Store) ListByParty(ctx context.Context, kind ledger.Kind, party string) ([]ledger.Record, error) {
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE party = ? ORDER BY id", table), party)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var recs []ledger.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable(err)
		}
		rec, err := ledger.UnmarshalRecord(kind, data)
		if err != nil {
			return nil, unavailable(err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
