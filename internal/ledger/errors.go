package ledger

import "errors"

var (
	// ErrNotFound indicates no record with the requested id in any tier.
	ErrNotFound = errors.New("record not found")
	// ErrStorageUnavailable marks a tier that could not be reached. It is
	// never surfaced to callers; the coordinator falls through to the
	// next tier instead.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrValidation indicates a record rejected before any tier write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidFormat indicates a backup artifact whose top-level shape
	// is missing one of the required collections.
	ErrInvalidFormat = errors.New("invalid backup format")
)
