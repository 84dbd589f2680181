package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// NewRecord returns an empty record of the given kind. Storage tiers use it
// to decode serialized collections back into their concrete shapes.
func NewRecord(kind Kind) (Record, error) {
	switch kind {
	case KindSale:
		return &Sale{}, nil
	case KindPurchase:
		return &Purchase{}, nil
	case KindDuePayment:
		return &DuePayment{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// NormalizeRecord applies the kind's normalization at a tier boundary.
func NormalizeRecord(rec Record) {
	switch v := rec.(type) {
	case *Sale:
		v.Normalize()
	case *Purchase:
		v.Normalize()
	case *DuePayment:
		if v.Status == "" {
			v.Status = DeriveDueStatus(v.DueDate, v.DueAmount, v.Total, time.Now())
		}
	}
}

// MarshalRecords serializes a collection for blob-style tiers.
func MarshalRecords(recs []Record) ([]byte, error) {
	if recs == nil {
		recs = []Record{}
	}
	return json.Marshal(recs)
}

// UnmarshalRecords decodes a serialized collection of the given kind,
// normalizing every record on the way in.
func UnmarshalRecords(kind Kind, data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s collection: %w", kind, err)
	}
	recs := make([]Record, 0, len(raw))
	for _, item := range raw {
		rec, err := UnmarshalRecord(kind, item)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// UnmarshalRecord decodes a single record of the given kind.
func UnmarshalRecord(kind Kind, data []byte) (Record, error) {
	rec, err := NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", kind, err)
	}
	NormalizeRecord(rec)
	return rec, nil
}

// SalesOf narrows a generic collection back to sales.
func SalesOf(recs []Record) []Sale {
	out := make([]Sale, 0, len(recs))
	for _, rec := range recs {
		if s, ok := rec.(*Sale); ok {
			out = append(out, *s)
		}
	}
	return out
}

// PurchasesOf narrows a generic collection back to purchases.
func PurchasesOf(recs []Record) []Purchase {
	out := make([]Purchase, 0, len(recs))
	for _, rec := range recs {
		if p, ok := rec.(*Purchase); ok {
			out = append(out, *p)
		}
	}
	return out
}

// DuePaymentsOf narrows a generic collection back to due payments.
func DuePaymentsOf(recs []Record) []DuePayment {
	out := make([]DuePayment, 0, len(recs))
	for _, rec := range recs {
		if d, ok := rec.(*DuePayment); ok {
			out = append(out, *d)
		}
	}
	return out
}

// RecordsOfSales widens a typed slice for the tier interfaces.
func RecordsOfSales(sales []Sale) []Record {
	out := make([]Record, len(sales))
	for i := range sales {
		s := sales[i]
		out[i] = &s
	}
	return out
}

// RecordsOfPurchases widens a typed slice for the tier interfaces.
func RecordsOfPurchases(purchases []Purchase) []Record {
	out := make([]Record, len(purchases))
	for i := range purchases {
		p := purchases[i]
		out[i] = &p
	}
	return out
}

// RecordsOfDuePayments widens a typed slice for the tier interfaces.
func RecordsOfDuePayments(dues []DuePayment) []Record {
	out := make([]Record, len(dues))
	for i := range dues {
		d := dues[i]
		out[i] = &d
	}
	return out
}
