package domain

import "errors"

var (
	// Lookup errors
	ErrEntryNotFound   = errors.New("ledger entry not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// Validation errors
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrInvalidDiscount           = errors.New("discount must not be negative")
	ErrEmptySelection            = errors.New("no entries selected")
	ErrDuplicateSelection        = errors.New("entry selected more than once")
	ErrPartialExceedsOutstanding = errors.New("partial payment exceeds total outstanding of selected entries")
	ErrFullPaymentMismatch       = errors.New("full payment must equal total outstanding of selected entries")
	ErrInvalidPaymentType        = errors.New("invalid payment type")
	ErrInvalidPaymentMethod      = errors.New("invalid payment method")
	ErrInvalidPaymentDetails     = errors.New("invalid payment details")
	ErrInvalidEntryDetails       = errors.New("invalid entry details")
	ErrKindMismatch              = errors.New("entry kind does not match counterparty type")
	ErrNothingOutstanding        = errors.New("entry has no outstanding amount")
	ErrEntryCounterpartyMismatch = errors.New("entry belongs to a different counterparty")
	ErrInvalidAdjustment         = errors.New("adjustment would make entry amounts negative")

	// Invariant violations
	ErrOverAllocation          = errors.New("allocation would drive outstanding amount below zero")
	ErrReversalExceedsOriginal = errors.New("reversal would raise outstanding amount above original amount")

	// Concurrency errors
	ErrConcurrentModification = errors.New("entry was modified concurrently")
	ErrPaymentInFlight        = errors.New("another payment for this counterparty is in progress")
)

var validationErrors = []error{
	ErrInvalidAmount,
	ErrInvalidDiscount,
	ErrEmptySelection,
	ErrDuplicateSelection,
	ErrPartialExceedsOutstanding,
	ErrFullPaymentMismatch,
	ErrInvalidPaymentType,
	ErrInvalidPaymentMethod,
	ErrInvalidPaymentDetails,
	ErrInvalidEntryDetails,
	ErrKindMismatch,
	ErrNothingOutstanding,
	ErrEntryCounterpartyMismatch,
	ErrInvalidAdjustment,
	ErrInvalidCounterparty,
	ErrAmountTooLarge,
	ErrAmountTooSmall,
	ErrInvalidIDFormat,
	ErrNotesTooLong,
	ErrSelectionTooLarge,
}

// IsValidation reports whether err was caused by invalid caller input.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsInvariantViolation reports whether err signals corrupted balances.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrOverAllocation) || errors.Is(err, ErrReversalExceedsOriginal)
}

// IsRetryable reports whether the operation may succeed if run again against
// fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
