// Package ledger holds the dealership record types and the tiered
// persistence coordinator that keeps them stored across backends.
package ledger

import (
	"time"
)

// Kind identifies one of the three record collections.
type Kind string

const (
	KindSale       Kind = "sales"
	KindPurchase   Kind = "purchases"
	KindDuePayment Kind = "duepayments"
)

// Kinds lists every collection in canonical order.
var Kinds = []Kind{KindSale, KindPurchase, KindDuePayment}

// InstallmentSlots is the fixed capacity of a sale's installment list.
// Slots beyond the entered installments stay disabled.
const InstallmentSlots = 18

// DueStatus tags a due payment relative to today.
type DueStatus string

const (
	DueStatusPending DueStatus = "pending"
	DueStatusPartial DueStatus = "partial"
	DueStatusOverdue DueStatus = "overdue"
)

// Record is implemented by every ledger entity so the storage tiers can
// handle collections generically.
type Record interface {
	RecordID() int64
	SetRecordID(id int64)
	RecordKind() Kind
}

// Installment is one slot of a sale's payment plan.
type Installment struct {
	Date    time.Time `json:"date"`
	Amount  float64   `json:"amount"`
	Paid    bool      `json:"paid"`
	Enabled bool      `json:"enabled"`
}

// Sale is a vehicle sale with its payment plan.
type Sale struct {
	ID           int64         `json:"id"`
	ManualID     string        `json:"manualId,omitempty"`
	Date         time.Time     `json:"date"`
	Party        string        `json:"party" validate:"required"`
	Address      string        `json:"address,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Model        string        `json:"model,omitempty"`
	VehicleNo    string        `json:"vehicleNo,omitempty"`
	ChassisNo    string        `json:"chassisNo,omitempty"`
	Price        float64       `json:"price"`
	Transport    float64       `json:"transport"`
	Insurance    float64       `json:"insurance"`
	Finance      float64       `json:"finance"`
	Repair       float64       `json:"repair"`
	Penalty      float64       `json:"penalty"`
	Total        float64       `json:"total"`
	DueDate      time.Time     `json:"dueDate"`
	DueAmount    float64       `json:"dueAmount"`
	Witness      string        `json:"witness,omitempty"`
	WitnessPhone string        `json:"witnessPhone,omitempty"`
	Remark       string        `json:"remark,omitempty"`
	PhotoURL     string        `json:"photoUrl,omitempty"`
	Installments []Installment `json:"installments"`
}

// Purchase is a vehicle bought into stock. No installments, no due tracking.
type Purchase struct {
	ID           int64     `json:"id"`
	ManualID     string    `json:"manualId,omitempty"`
	Date         time.Time `json:"date"`
	Party        string    `json:"party" validate:"required"`
	Address      string    `json:"address,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Model        string    `json:"model,omitempty"`
	VehicleNo    string    `json:"vehicleNo,omitempty"`
	ChassisNo    string    `json:"chassisNo,omitempty"`
	Price        float64   `json:"price"`
	Transport    float64   `json:"transport"`
	Brokerage    float64   `json:"brokerage"`
	Total        float64   `json:"total"`
	Witness      string    `json:"witness,omitempty"`
	WitnessPhone string    `json:"witnessPhone,omitempty"`
	Remark       string    `json:"remark,omitempty"`
	PhotoURL     string    `json:"photoUrl,omitempty"`
}

// DuePayment tracks the outstanding balance of one sale. It is derived:
// created when a sale carries a due amount, refreshed on sale update and
// removed on sale delete.
type DuePayment struct {
	ID                int64     `json:"id"`
	SaleID            int64     `json:"saleId"`
	Party             string    `json:"party"`
	Model             string    `json:"model,omitempty"`
	VehicleNo         string    `json:"vehicleNo,omitempty"`
	DueAmount         float64   `json:"dueAmount"`
	Total             float64   `json:"total"`
	DueDate           time.Time `json:"dueDate"`
	Status            DueStatus `json:"status"`
	LastPaymentDate   time.Time `json:"lastPaymentDate,omitempty"`
	LastPaymentAmount float64   `json:"lastPaymentAmount,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	Address           string    `json:"address,omitempty"`
	Remark            string    `json:"remark,omitempty"`
}

// Snapshot is a point-in-time union of all collections plus the id counters.
type Snapshot struct {
	Sales          []Sale       `json:"vehicleSales"`
	Purchases      []Purchase   `json:"vehiclePurchases"`
	DuePayments    []DuePayment `json:"duePayments"`
	LastSaleID     int64        `json:"lastSaleId"`
	LastPurchaseID int64        `json:"lastPurchaseId"`
	BackupDate     time.Time    `json:"backupDate"`
}

func (s *Sale) RecordID() int64      { return s.ID }
func (s *Sale) SetRecordID(id int64) { s.ID = id }
func (s *Sale) RecordKind() Kind     { return KindSale }

func (p *Purchase) RecordID() int64      { return p.ID }
func (p *Purchase) SetRecordID(id int64) { p.ID = id }
func (p *Purchase) RecordKind() Kind     { return KindPurchase }

func (d *DuePayment) RecordID() int64      { return d.ID }
func (d *DuePayment) SetRecordID(id int64) { d.ID = id }
func (d *DuePayment) RecordKind() Kind     { return KindDuePayment }

// NewSale returns a sale with the defaults a fresh entry form carries:
// today's date, zero costs, every installment slot disabled.
func NewSale() *Sale {
	s := &Sale{Date: time.Now(), DueDate: time.Now()}
	s.Normalize()
	return s
}

// Normalize recomputes the derived fields and pads the installment list to
// its fixed capacity. It is applied at every tier boundary so records read
// back from any store share one shape. Idempotent.
func (s *Sale) Normalize() {
	if len(s.Installments) > InstallmentSlots {
		s.Installments = s.Installments[:InstallmentSlots]
	}
	for len(s.Installments) < InstallmentSlots {
		s.Installments = append(s.Installments, Installment{})
	}
	s.Total = s.Price + s.Transport + s.Insurance + s.Finance + s.Repair + s.Penalty
	var paid float64
	for _, in := range s.Installments {
		if in.Enabled {
			paid += in.Amount
		}
	}
	s.DueAmount = s.Total - paid
	if s.DueAmount < 0 {
		s.DueAmount = 0
	}
}

// Normalize recomputes the purchase total.
func (p *Purchase) Normalize() {
	p.Total = p.Price + p.Transport + p.Brokerage
}

// DeriveDueStatus classifies an outstanding balance: overdue once the due
// date has passed, partial when something has been paid against the total,
// pending otherwise.
func DeriveDueStatus(dueDate time.Time, dueAmount, total float64, now time.Time) DueStatus {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	if !dueDate.IsZero() && day(dueDate).Before(day(now)) {
		return DueStatusOverdue
	}
	if dueAmount < total {
		return DueStatusPartial
	}
	return DueStatusPending
}

// DuePaymentFromSale derives the due record tracking a sale's balance.
// The id is a unix-millisecond timestamp so it never collides with the
// sale id sequence.
func DuePaymentFromSale(s *Sale, now time.Time) *DuePayment {
	d := &DuePayment{
		ID:      now.UnixMilli(),
		SaleID:  s.ID,
		DueDate: s.DueDate,
	}
	d.RefreshFromSale(s, now)
	return d
}

// RefreshFromSale re-synchronizes the denormalized fields after the
// originating sale changed.
func (d *DuePayment) RefreshFromSale(s *Sale, now time.Time) {
	d.SaleID = s.ID
	d.Party = s.Party
	d.Model = s.Model
	d.VehicleNo = s.VehicleNo
	d.Phone = s.Phone
	d.Address = s.Address
	d.DueAmount = s.DueAmount
	d.Total = s.Total
	d.DueDate = s.DueDate
	d.Status = DeriveDueStatus(s.DueDate, s.DueAmount, s.Total, now)
	for _, in := range s.Installments {
		if in.Enabled && in.Date.After(d.LastPaymentDate) {
			d.LastPaymentDate = in.Date
			d.LastPaymentAmount = in.Amount
		}
	}
}

// PhotoRef reports the photo attachment of a record, if any.
func PhotoRef(rec Record) string {
	switch v := rec.(type) {
	case *Sale:
		return v.PhotoURL
	case *Purchase:
		return v.PhotoURL
	}
	return ""
}

// PartyOf reports the counterparty name of a record.
func PartyOf(rec Record) string {
	switch v := rec.(type) {
	case *Sale:
		return v.Party
	case *Purchase:
		return v.Party
	case *DuePayment:
		return v.Party
	}
	return ""
}
