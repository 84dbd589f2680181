// Package spreadsheet is the tabular tier: whole collections written to one
// xlsx workbook, one sheet per record kind. The format has no nested lists,
// so a sale's installments are flattened into numbered column groups
// (instl{n}_date, instl{n}_amount, instl{n}_paid, instl{n}_enabled) and
// reassembled on load.
package spreadsheet

import (
	"fmt"
	"strconv"
	"time"

	"github.com/motorledger/motorledger/internal/ledger"
)

const dateLayout = "2006-01-02"

var sheetNames = map[ledger.Kind]string{
	ledger.KindSale:       "Sales",
	ledger.KindPurchase:   "Purchases",
	ledger.KindDuePayment: "DuePayments",
}

// SheetName maps a record kind to its workbook sheet.
func SheetName(kind ledger.Kind) string { return sheetNames[kind] }

var saleBaseHeader = []string{
	"id", "manual_id", "date", "party", "address", "phone",
	"model", "vehicle_no", "chassis_no",
	"price", "transport", "insurance", "finance", "repair", "penalty",
	"total", "due_date", "due_amount",
	"witness", "witness_phone", "remark", "photo_url",
}

var purchaseHeader = []string{
	"id", "manual_id", "date", "party", "address", "phone",
	"model", "vehicle_no", "chassis_no",
	"price", "transport", "brokerage", "total",
	"witness", "witness_phone", "remark", "photo_url",
}

var duePaymentHeader = []string{
	"id", "sale_id", "party", "model", "vehicle_no",
	"due_amount", "total", "due_date", "status",
	"last_payment_date", "last_payment_amount",
	"phone", "address", "remark",
}

// Header returns the column layout for a kind, installment groups included.
func Header(kind ledger.Kind) []string {
	switch kind {
	case ledger.KindSale:
		header := append([]string(nil), saleBaseHeader...)
		for n := 1; n <= ledger.InstallmentSlots; n++ {
			header = append(header,
				fmt.Sprintf("instl%d_date", n),
				fmt.Sprintf("instl%d_amount", n),
				fmt.Sprintf("instl%d_paid", n),
				fmt.Sprintf("instl%d_enabled", n),
			)
		}
		return header
	case ledger.KindPurchase:
		return append([]string(nil), purchaseHeader...)
	case ledger.KindDuePayment:
		return append([]string(nil), duePaymentHeader...)
	}
	return nil
}

// Flatten turns a record into one row matching Header(kind).
func Flatten(rec ledger.Record) []string {
	switch v := rec.(type) {
	case *ledger.Sale:
		return flattenSale(v)
	case *ledger.Purchase:
		return flattenPurchase(v)
	case *ledger.DuePayment:
		return flattenDuePayment(v)
	}
	return nil
}

// Unflatten rebuilds a record from a row. The index maps column names to
// positions; rows lacking installment columns come back with an empty
// installment list, which normalization then pads.
func Unflatten(kind ledger.Kind, index map[string]int, row []string) (ledger.Record, error) {
	switch kind {
	case ledger.KindSale:
		return unflattenSale(index, row)
	case ledger.KindPurchase:
		return unflattenPurchase(index, row)
	case ledger.KindDuePayment:
		return unflattenDuePayment(index, row)
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// HeaderIndex maps a header row to column positions.
func HeaderIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	return index
}

func flattenSale(s *ledger.Sale) []string {
	row := []string{
		formatInt(s.ID), s.ManualID, formatDate(s.Date), s.Party, s.Address, s.Phone,
		s.Model, s.VehicleNo, s.ChassisNo,
		formatFloat(s.Price), formatFloat(s.Transport), formatFloat(s.Insurance),
		formatFloat(s.Finance), formatFloat(s.Repair), formatFloat(s.Penalty),
		formatFloat(s.Total), formatDate(s.DueDate), formatFloat(s.DueAmount),
		s.Witness, s.WitnessPhone, s.Remark, s.PhotoURL,
	}
	for n := 0; n < ledger.InstallmentSlots; n++ {
		var in ledger.Installment
		if n < len(s.Installments) {
			in = s.Installments[n]
		}
		row = append(row, formatDate(in.Date), formatFloat(in.Amount), formatBool(in.Paid), formatBool(in.Enabled))
	}
	return row
}

func unflattenSale(index map[string]int, row []string) (*ledger.Sale, error) {
	cell := cellReader(index, row)
	s := &ledger.Sale{
		ID:           parseInt(cell("id")),
		ManualID:     cell("manual_id"),
		Date:         parseDate(cell("date")),
		Party:        cell("party"),
		Address:      cell("address"),
		Phone:        cell("phone"),
		Model:        cell("model"),
		VehicleNo:    cell("vehicle_no"),
		ChassisNo:    cell("chassis_no"),
		Price:        parseFloat(cell("price")),
		Transport:    parseFloat(cell("transport")),
		Insurance:    parseFloat(cell("insurance")),
		Finance:      parseFloat(cell("finance")),
		Repair:       parseFloat(cell("repair")),
		Penalty:      parseFloat(cell("penalty")),
		DueDate:      parseDate(cell("due_date")),
		Witness:      cell("witness"),
		WitnessPhone: cell("witness_phone"),
		Remark:       cell("remark"),
		PhotoURL:     cell("photo_url"),
	}
	for n := 1; n <= ledger.InstallmentSlots; n++ {
		dateCol := fmt.Sprintf("instl%d_date", n)
		if _, ok := index[dateCol]; !ok {
			break
		}
		s.Installments = append(s.Installments, ledger.Installment{
			Date:    parseDate(cell(dateCol)),
			Amount:  parseFloat(cell(fmt.Sprintf("instl%d_amount", n))),
			Paid:    parseBool(cell(fmt.Sprintf("instl%d_paid", n))),
			Enabled: parseBool(cell(fmt.Sprintf("instl%d_enabled", n))),
		})
	}
	s.Normalize()
	return s, nil
}

func flattenPurchase(p *ledger.Purchase) []string {
	return []string{
		formatInt(p.ID), p.ManualID, formatDate(p.Date), p.Party, p.Address, p.Phone,
		p.Model, p.VehicleNo, p.ChassisNo,
		formatFloat(p.Price), formatFloat(p.Transport), formatFloat(p.Brokerage), formatFloat(p.Total),
		p.Witness, p.WitnessPhone, p.Remark, p.PhotoURL,
	}
}

func unflattenPurchase(index map[string]int, row []string) (*ledger.Purchase, error) {
	cell := cellReader(index, row)
	p := &ledger.Purchase{
		ID:           parseInt(cell("id")),
		ManualID:     cell("manual_id"),
		Date:         parseDate(cell("date")),
		Party:        cell("party"),
		Address:      cell("address"),
		Phone:        cell("phone"),
		Model:        cell("model"),
		VehicleNo:    cell("vehicle_no"),
		ChassisNo:    cell("chassis_no"),
		Price:        parseFloat(cell("price")),
		Transport:    parseFloat(cell("transport")),
		Brokerage:    parseFloat(cell("brokerage")),
		Witness:      cell("witness"),
		WitnessPhone: cell("witness_phone"),
		Remark:       cell("remark"),
		PhotoURL:     cell("photo_url"),
	}
	p.Normalize()
	return p, nil
}

func flattenDuePayment(d *ledger.DuePayment) []string {
	return []string{
		formatInt(d.ID), formatInt(d.SaleID), d.Party, d.Model, d.VehicleNo,
		formatFloat(d.DueAmount), formatFloat(d.Total), formatDate(d.DueDate), string(d.Status),
		formatDate(d.LastPaymentDate), formatFloat(d.LastPaymentAmount),
		d.Phone, d.Address, d.Remark,
	}
}

func unflattenDuePayment(index map[string]int, row []string) (*ledger.DuePayment, error) {
	cell := cellReader(index, row)
	d := &ledger.DuePayment{
		ID:                parseInt(cell("id")),
		SaleID:            parseInt(cell("sale_id")),
		Party:             cell("party"),
		Model:             cell("model"),
		VehicleNo:         cell("vehicle_no"),
		DueAmount:         parseFloat(cell("due_amount")),
		Total:             parseFloat(cell("total")),
		DueDate:           parseDate(cell("due_date")),
		Status:            ledger.DueStatus(cell("status")),
		LastPaymentDate:   parseDate(cell("last_payment_date")),
		LastPaymentAmount: parseFloat(cell("last_payment_amount")),
		Phone:             cell("phone"),
		Address:           cell("address"),
		Remark:            cell("remark"),
	}
	return d, nil
}

func cellReader(index map[string]int, row []string) func(string) string {
	return func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseBool(s string) bool {
	return s == "true" || s == "1"
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
