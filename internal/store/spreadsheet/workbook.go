package spreadsheet

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/motorledger/motorledger/internal/ledger"
)

// MetaSheet carries the id counters and the backup timestamp in snapshot
// workbooks.
const MetaSheet = "Meta"

// BuildWorkbook renders a snapshot as a multi-sheet workbook: one sheet per
// collection plus the metadata sheet.
func BuildWorkbook(snap *ledger.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := WriteSheet(f, ledger.KindSale, ledger.RecordsOfSales(snap.Sales)); err != nil {
		return nil, err
	}
	if err := WriteSheet(f, ledger.KindPurchase, ledger.RecordsOfPurchases(snap.Purchases)); err != nil {
		return nil, err
	}
	if err := WriteSheet(f, ledger.KindDuePayment, ledger.RecordsOfDuePayments(snap.DuePayments)); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(MetaSheet); err != nil {
		return nil, err
	}
	meta := [][]string{
		{"lastSaleId", strconv.FormatInt(snap.LastSaleID, 10)},
		{"lastPurchaseId", strconv.FormatInt(snap.LastPurchaseID, 10)},
		{"backupDate", snap.BackupDate.Format(time.RFC3339)},
	}
	for i, pair := range meta {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(MetaSheet, keyCell, pair[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(MetaSheet, valueCell, pair[1]); err != nil {
			return nil, err
		}
	}
	dropDefaultSheet(f)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseWorkbook reads a snapshot workbook back. All three collection sheets
// must be present or the artifact is rejected with ledger.ErrInvalidFormat.
func ParseWorkbook(data []byte) (*ledger.Snapshot, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFormat, err)
	}
	defer f.Close()

	for _, kind := range ledger.Kinds {
		if idx, _ := f.GetSheetIndex(SheetName(kind)); idx < 0 {
			return nil, fmt.Errorf("%w: missing sheet %s", ledger.ErrInvalidFormat, SheetName(kind))
		}
	}

	snap := &ledger.Snapshot{}
	sales, err := ReadSheet(f, ledger.KindSale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFormat, err)
	}
	snap.Sales = ledger.SalesOf(sales)

	purchases, err := ReadSheet(f, ledger.KindPurchase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFormat, err)
	}
	snap.Purchases = ledger.PurchasesOf(purchases)

	dues, err := ReadSheet(f, ledger.KindDuePayment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFormat, err)
	}
	snap.DuePayments = ledger.DuePaymentsOf(dues)

	if rows, err := f.GetRows(MetaSheet); err == nil {
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			switch row[0] {
			case "lastSaleId":
				snap.LastSaleID, _ = strconv.ParseInt(row[1], 10, 64)
			case "lastPurchaseId":
				snap.LastPurchaseID, _ = strconv.ParseInt(row[1], 10, 64)
			case "backupDate":
				snap.BackupDate, _ = time.Parse(time.RFC3339, row[1])
			}
		}
	}
	return snap, nil
}
