package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidCounterparty = errors.New("invalid counterparty")
	ErrAmountTooLarge      = errors.New("amount exceeds maximum allowed")
	ErrAmountTooSmall      = errors.New("amount below minimum allowed")
	ErrInvalidIDFormat     = errors.New("invalid ID format")
	ErrNotesTooLong        = errors.New("notes exceed maximum length")
	ErrSelectionTooLarge   = errors.New("too many entries selected")
)

// Validation constants
const (
	MaxCounterpartyNameLength = 255
	MaxNotesLength            = 1024
	MaxPaymentAmount          = "100000000000" // 100 billion
	MinPaymentAmount          = "0.01"
	MaxSelectedEntries        = 500
)

var (
	ifscRegex = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

	minPaymentAmount = decimal.RequireFromString(MinPaymentAmount)
	maxPaymentAmount = decimal.RequireFromString(MaxPaymentAmount)
)

// ValidateCounterpartyName validates a supplier or customer name.
func ValidateCounterpartyName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCounterparty)
	}

	if len(name) > MaxCounterpartyNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidCounterparty, MaxCounterpartyNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control characters", ErrInvalidCounterparty)
		}
	}

	return nil
}

// ValidatePaymentAmount validates a payment amount against the allowed range.
func ValidatePaymentAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.LessThan(minPaymentAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinPaymentAmount)
	}

	if amount.GreaterThan(maxPaymentAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxPaymentAmount)
	}

	return nil
}

// ValidateDiscount validates a cash discount.
func ValidateDiscount(discount decimal.Decimal) error {
	if discount.IsNegative() {
		return ErrInvalidDiscount
	}
	return nil
}

// ValidateID validates a ULID identifier.
func ValidateID(id string) error {
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("%w: %q is not a valid ULID", ErrInvalidIDFormat, id)
	}
	return nil
}

// ValidateSelection checks a list of selected entry IDs.
func ValidateSelection(ids []string) error {
	if len(ids) == 0 {
		return ErrEmptySelection
	}

	if len(ids) > MaxSelectedEntries {
		return fmt.Errorf("%w: at most %d entries per payment", ErrSelectionTooLarge, MaxSelectedEntries)
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty entry ID", ErrInvalidIDFormat)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateSelection, id)
		}
		seen[id] = true
	}

	return nil
}

// ValidateNotes validates free-form notes.
func ValidateNotes(notes string) error {
	if len(notes) > MaxNotesLength {
		return fmt.Errorf("%w: limit is %d characters", ErrNotesTooLong, MaxNotesLength)
	}
	return nil
}

// ValidateIFSC validates an Indian Financial System Code.
func ValidateIFSC(code string) error {
	if !ifscRegex.MatchString(strings.ToUpper(strings.TrimSpace(code))) {
		return fmt.Errorf("%w: IFSC %q is malformed", ErrInvalidPaymentDetails, code)
	}
	return nil
}
