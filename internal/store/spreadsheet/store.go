package spreadsheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/motorledger/motorledger/internal/ledger"
)

// Store keeps every collection in one workbook on disk. The format has no
// per-record update, so all write operations are load-modify-save over the
// whole collection.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore constructs the workbook tier at path (created on first save).
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Name implements ledger.Tier.
func (s *Store) Name() string { return "spreadsheet" }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
}

// LoadAll reads the whole collection for a kind. A missing workbook or
// sheet is an empty collection, not an error.
func (s *Store) LoadAll(ctx context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAllLocked(kind)
}

func (s *Store) loadAllLocked(kind ledger.Kind) ([]ledger.Record, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, unavailable(err)
	}
	defer f.Close()
	return ReadSheet(f, kind)
}

// SaveAll rewrites the whole collection for a kind, leaving other sheets of
// the workbook untouched.
func (s *Store) SaveAll(ctx context.Context, kind ledger.Kind, recs []ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAllLocked(kind, recs)
}

func (s *Store) saveAllLocked(kind ledger.Kind, recs []ledger.Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return unavailable(err)
	}

	var f *excelize.File
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f = excelize.NewFile()
	} else {
		opened, err := excelize.OpenFile(s.path)
		if err != nil {
			return unavailable(err)
		}
		f = opened
	}
	defer f.Close()

	if err := WriteSheet(f, kind, recs); err != nil {
		return err
	}
	dropDefaultSheet(f)
	if err := f.SaveAs(s.path); err != nil {
		return unavailable(err)
	}
	return nil
}

// List implements ledger.Tier.
func (s *Store) List(ctx context.Context, kind ledger.Kind) ([]ledger.Record, error) {
	return s.LoadAll(ctx, kind)
}

// Get scans the collection for the record.
func (s *Store) Get(ctx context.Context, kind ledger.Kind, id int64) (ledger.Record, error) {
	recs, err := s.LoadAll(ctx, kind)
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
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.loadAllLocked(kind)
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
	return s.saveAllLocked(kind, recs)
}

// Delete rewrites the collection without the record.
func (s *Store) Delete(ctx context.Context, kind ledger.Kind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.loadAllLocked(kind)
	if err != nil {
		return err
	}
	filtered := recs[:0]
	for _, rec := range recs {
		if rec.RecordID() != id {
			filtered = append(filtered, rec)
		}
	}
	return s.saveAllLocked(kind, filtered)
}

// ReplaceAll implements ledger.CollectionTier.
func (s *Store) ReplaceAll(ctx context.Context, kind ledger.Kind, recs []ledger.Record) error {
	return s.SaveAll(ctx, kind, recs)
}

// Clear implements ledger.CollectionTier.
func (s *Store) Clear(ctx context.Context, kind ledger.Kind) error {
	return s.SaveAll(ctx, kind, nil)
}

// ReadSheet decodes one kind's sheet from an open workbook.
func ReadSheet(f *excelize.File, kind ledger.Kind) ([]ledger.Record, error) {
	rows, err := f.GetRows(SheetName(kind))
	if err != nil {
		// Missing sheet: empty collection.
		return nil, nil
	}
	if len(rows) < 2 {
		return nil, nil
	}
	index := HeaderIndex(rows[0])
	recs := make([]ledger.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		rec, err := Unflatten(kind, index, row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// WriteSheet replaces one kind's sheet in an open workbook.
func WriteSheet(f *excelize.File, kind ledger.Kind, recs []ledger.Record) error {
	sheet := SheetName(kind)
	if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
		if err := f.DeleteSheet(sheet); err != nil {
			return unavailable(err)
		}
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return unavailable(err)
	}
	writeRow := func(rowNum int, values []string) error {
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeRow(1, Header(kind)); err != nil {
		return unavailable(err)
	}
	for i, rec := range recs {
		if err := writeRow(i+2, Flatten(rec)); err != nil {
			return unavailable(err)
		}
	}
	return nil
}

func dropDefaultSheet(f *excelize.File) {
	if idx, _ := f.GetSheetIndex("Sheet1"); idx >= 0 && len(f.GetSheetList()) > 1 {
		_ = f.DeleteSheet("Sheet1")
	}
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
