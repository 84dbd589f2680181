package ledger

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRecord rejects records missing required fields before any tier is
// written. Due payments are derived, never user-authored, so they are only
// checked for a sale reference.
func ValidateRecord(rec Record) error {
	switch v := rec.(type) {
	case *Sale, *Purchase:
		if err := validate.Struct(v); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	case *DuePayment:
		if v.SaleID == 0 {
			return fmt.Errorf("%w: due payment requires a sale reference", ErrValidation)
		}
	}
	return nil
}
