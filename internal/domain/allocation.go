package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// AllocationResult is the split of a payment across ledger entries.
type AllocationResult struct {
	Allocations []Allocation
	Remainder   decimal.Decimal
}

// TotalApplied sums cash and discount applied across all allocations.
func (r AllocationResult) TotalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.Total())
	}
	return total
}

// Allocate splits a cash payment across entries, oldest first.
func Allocate(amount decimal.Decimal, entries []*LedgerEntry) (AllocationResult, error) {
	return AllocateWithDiscount(amount, decimal.Zero, entries)
}

// AllocateWithDiscount splits a cash payment plus a cash discount across
// entries in ascending date order, ties kept in input order. Each entry
// takes min(outstanding, remaining); the cash pool is drawn before the
// discount pool. Entries are not modified.
func AllocateWithDiscount(amount, discount decimal.Decimal, entries []*LedgerEntry) (AllocationResult, error) {
	if !amount.IsPositive() {
		return AllocationResult{}, ErrInvalidAmount
	}

	if discount.IsNegative() {
		return AllocationResult{}, ErrInvalidDiscount
	}

	if len(entries) == 0 {
		return AllocationResult{}, ErrEmptySelection
	}

	for _, e := range entries {
		if !e.OutstandingAmount.IsPositive() {
			return AllocationResult{}, fmt.Errorf("%w: %s", ErrNothingOutstanding, e.ID)
		}
	}

	ordered := make([]*LedgerEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	cash, disc := amount, discount
	allocations := make([]Allocation, 0, len(ordered))

	for _, e := range ordered {
		remaining := cash.Add(disc)
		if !remaining.IsPositive() {
			break
		}

		applied := decimal.Min(e.OutstandingAmount, remaining)
		fromCash := decimal.Min(applied, cash)
		fromDiscount := applied.Sub(fromCash)

		cash = cash.Sub(fromCash)
		disc = disc.Sub(fromDiscount)

		allocations = append(allocations, Allocation{
			EntryID:         e.ID,
			AmountApplied:   fromCash,
			DiscountApplied: fromDiscount,
		})
	}

	return AllocationResult{
		Allocations: allocations,
		Remainder:   cash.Add(disc),
	}, nil
}

// TotalOutstanding sums the outstanding amounts of entries.
func TotalOutstanding(entries []*LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.OutstandingAmount)
	}
	return total
}
