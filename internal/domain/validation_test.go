package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateCounterpartyName(t *testing.T) {
	t.Parallel()

	t.Run("valid name", func(t *testing.T) {
		if err := ValidateCounterpartyName("Shree Ganesh Traders"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := ValidateCounterpartyName("   ")
		if !errors.Is(err, ErrInvalidCounterparty) {
			t.Fatalf("expected ErrInvalidCounterparty, got %v", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		tooLong := strings.Repeat("a", MaxCounterpartyNameLength+1)
		err := ValidateCounterpartyName(tooLong)
		if !errors.Is(err, ErrInvalidCounterparty) {
			t.Fatalf("expected ErrInvalidCounterparty, got %v", err)
		}
	})

	t.Run("control characters", func(t *testing.T) {
		err := ValidateCounterpartyName("bad\x00name")
		if !errors.Is(err, ErrInvalidCounterparty) {
			t.Fatalf("expected ErrInvalidCounterparty, got %v", err)
		}
	})
}

func TestValidatePaymentAmount(t *testing.T) {
	t.Parallel()

	if err := ValidatePaymentAmount(decimal.NewFromFloat(100.25)); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	if err := ValidatePaymentAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}

	if err := ValidatePaymentAmount(decimal.NewFromFloat(0.001)); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}

	huge := decimal.RequireFromString(MaxPaymentAmount).Add(decimal.NewFromInt(1))
	if err := ValidatePaymentAmount(huge); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestValidateSelection(t *testing.T) {
	t.Parallel()

	tooMany := make([]string, MaxSelectedEntries+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("e%d", i)
	}

	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"valid", []string{"a", "b"}, nil},
		{"empty", nil, ErrEmptySelection},
		{"duplicate", []string{"a", "b", "a"}, ErrDuplicateSelection},
		{"blank id", []string{"a", ""}, ErrInvalidIDFormat},
		{"too many", tooMany, ErrSelectionTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelection(tt.ids)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	t.Parallel()

	if err := ValidateID("01ARZ3NDEKTSV4RRFFQ69G5FAV"); err != nil {
		t.Fatalf("expected valid ULID, got %v", err)
	}

	if err := ValidateID("01arz3ndektsv4rrffq69g5fav"); err != nil {
		t.Fatalf("expected lowercase ULID to be accepted, got %v", err)
	}

	for _, id := range []string{"not-a-ulid", "e1", "01ARZ3NDEKTSV4RRFFQ69G5FAU", "8ZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		if err := ValidateID(id); !errors.Is(err, ErrInvalidIDFormat) {
			t.Fatalf("%q: expected ErrInvalidIDFormat, got %v", id, err)
		}
	}
}

func TestValidateNotes(t *testing.T) {
	t.Parallel()

	if err := ValidateNotes(strings.Repeat("n", MaxNotesLength)); err != nil {
		t.Fatalf("expected notes at the limit to pass, got %v", err)
	}

	if err := ValidateNotes(strings.Repeat("n", MaxNotesLength+1)); !errors.Is(err, ErrNotesTooLong) {
		t.Fatalf("expected ErrNotesTooLong, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("create payment: %w", ErrPartialExceedsOutstanding)
	if !IsValidation(wrapped) {
		t.Fatal("expected partial overpayment to be a validation error")
	}

	if IsValidation(ErrConcurrentModification) {
		t.Fatal("concurrent modification must not be a validation error")
	}

	if !IsRetryable(fmt.Errorf("update: %w", ErrConcurrentModification)) {
		t.Fatal("expected concurrent modification to be retryable")
	}

	if !IsInvariantViolation(fmt.Errorf("apply: %w", ErrOverAllocation)) {
		t.Fatal("expected over-allocation to be an invariant violation")
	}
}
