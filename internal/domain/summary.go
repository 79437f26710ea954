package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance used when comparing stored and derived balances.
var Epsilon = decimal.New(1, -6)

// Summary is a rollup of entries and payments for one counterparty or for
// the whole book.
type Summary struct {
	FirstDate               time.Time
	LastDate                time.Time
	PaidByMethod            map[PaymentMethod]decimal.Decimal
	CounterpartyKey         string
	TotalOriginal           decimal.Decimal
	TotalPaid               decimal.Decimal
	TotalDiscount           decimal.Decimal
	TotalOutstanding        decimal.Decimal
	TotalWeight             decimal.Decimal
	AverageRate             decimal.Decimal
	AverageDeductionPercent decimal.Decimal
	EntryCount              int
	OutstandingCount        int
	SettledCount            int
	PaymentCount            int
}

// FleetSummary holds per-counterparty summaries and the grand total.
type FleetSummary struct {
	Counterparties []Summary
	Total          Summary
}

// Discrepancy is an entry whose stored outstanding amount disagrees with the
// amount derived from committed allocations.
type Discrepancy struct {
	EntryID         string
	CounterpartyKey string
	Stored          decimal.Decimal
	Derived         decimal.Decimal
	Difference      decimal.Decimal
}

// ReconciliationReport is the result of replaying allocations against entries.
type ReconciliationReport struct {
	Discrepancies  []Discrepancy
	OrphanEntryIDs []string
	CheckedEntries int
}

// Balanced reports whether no discrepancy or orphan allocation was found.
func (r ReconciliationReport) Balanced() bool {
	return len(r.Discrepancies) == 0 && len(r.OrphanEntryIDs) == 0
}

type applied struct {
	amount   decimal.Decimal
	discount decimal.Decimal
}

func appliedByEntry(payments []*Payment) map[string]applied {
	out := make(map[string]applied)
	for _, p := range payments {
		for _, a := range p.Allocations {
			cur := out[a.EntryID]
			cur.amount = cur.amount.Add(a.AmountApplied)
			cur.discount = cur.discount.Add(a.DiscountApplied)
			out[a.EntryID] = cur
		}
	}
	return out
}

func commonKey(entries []*LedgerEntry) string {
	if len(entries) == 0 {
		return ""
	}
	key := entries[0].CounterpartyKey
	for _, e := range entries[1:] {
		if e.CounterpartyKey != key {
			return ""
		}
	}
	return key
}

func safeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den).Round(4)
}

// Summarize folds entries and the payments allocated against them. Paid and
// outstanding totals are derived from allocations, never from stored
// running balances.
func Summarize(entries []*LedgerEntry, payments []*Payment) Summary {
	s := Summary{
		PaidByMethod:            make(map[PaymentMethod]decimal.Decimal),
		TotalOriginal:           decimal.Zero,
		TotalPaid:               decimal.Zero,
		TotalDiscount:           decimal.Zero,
		TotalOutstanding:        decimal.Zero,
		TotalWeight:             decimal.Zero,
		AverageRate:             decimal.Zero,
		AverageDeductionPercent: decimal.Zero,
	}

	byEntry := appliedByEntry(payments)
	weightedRate := decimal.Zero
	weightedDeduction := decimal.Zero

	for _, e := range entries {
		s.EntryCount++
		s.TotalOriginal = s.TotalOriginal.Add(e.OriginalAmount)

		a := byEntry[e.ID]
		paid := a.amount.Add(a.discount)
		s.TotalPaid = s.TotalPaid.Add(a.amount)
		s.TotalDiscount = s.TotalDiscount.Add(a.discount)

		if e.OriginalAmount.Sub(paid).LessThan(SettledThreshold) {
			s.SettledCount++
		} else {
			s.OutstandingCount++
		}

		if e.Details != nil {
			b := e.Details.Basis()
			if b.Weight.IsPositive() {
				s.TotalWeight = s.TotalWeight.Add(b.Weight)
				weightedRate = weightedRate.Add(b.Weight.Mul(b.Rate))
				weightedDeduction = weightedDeduction.Add(b.Weight.Mul(b.DeductionPercent))
			}
		}

		if s.FirstDate.IsZero() || e.Date.Before(s.FirstDate) {
			s.FirstDate = e.Date
		}
		if e.Date.After(s.LastDate) {
			s.LastDate = e.Date
		}
	}

	s.CounterpartyKey = commonKey(entries)

	for _, p := range payments {
		s.PaymentCount++
		method := p.Method()
		cur, ok := s.PaidByMethod[method]
		if !ok {
			cur = decimal.Zero
		}
		s.PaidByMethod[method] = cur.Add(p.Amount)
	}

	s.TotalOutstanding = s.TotalOriginal.Sub(s.TotalPaid).Sub(s.TotalDiscount)
	s.AverageRate = safeDiv(weightedRate, s.TotalWeight)
	s.AverageDeductionPercent = safeDiv(weightedDeduction, s.TotalWeight)

	return s
}

// SummarizeFleet groups entries and payments by counterparty and summarizes
// each group plus the whole book. Groups are sorted by counterparty key.
func SummarizeFleet(entries []*LedgerEntry, payments []*Payment) FleetSummary {
	entriesByKey := make(map[string][]*LedgerEntry)
	paymentsByKey := make(map[string][]*Payment)
	keys := make([]string, 0)

	for _, e := range entries {
		if _, ok := entriesByKey[e.CounterpartyKey]; !ok {
			keys = append(keys, e.CounterpartyKey)
		}
		entriesByKey[e.CounterpartyKey] = append(entriesByKey[e.CounterpartyKey], e)
	}

	for _, p := range payments {
		if _, ok := entriesByKey[p.CounterpartyKey]; !ok {
			if _, seen := paymentsByKey[p.CounterpartyKey]; !seen {
				keys = append(keys, p.CounterpartyKey)
			}
		}
		paymentsByKey[p.CounterpartyKey] = append(paymentsByKey[p.CounterpartyKey], p)
	}

	sort.Strings(keys)

	fleet := FleetSummary{Counterparties: make([]Summary, 0, len(keys))}
	for _, key := range keys {
		s := Summarize(entriesByKey[key], paymentsByKey[key])
		s.CounterpartyKey = key
		fleet.Counterparties = append(fleet.Counterparties, s)
	}

	fleet.Total = Summarize(entries, payments)
	fleet.Total.CounterpartyKey = ""

	return fleet
}

// Reconcile recomputes every entry's outstanding amount from the committed
// allocations and reports where the stored value disagrees. Allocations
// referencing unknown entries are reported as orphans.
func Reconcile(entries []*LedgerEntry, payments []*Payment) ReconciliationReport {
	byEntry := appliedByEntry(payments)
	report := ReconciliationReport{CheckedEntries: len(entries)}

	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.ID] = true

		a := byEntry[e.ID]
		derived := e.OriginalAmount.Sub(a.amount).Sub(a.discount)
		diff := e.OutstandingAmount.Sub(derived)
		if diff.Abs().GreaterThan(Epsilon) {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				EntryID:         e.ID,
				CounterpartyKey: e.CounterpartyKey,
				Stored:          e.OutstandingAmount,
				Derived:         derived,
				Difference:      diff,
			})
		}
	}

	for id := range byEntry {
		if !known[id] {
			report.OrphanEntryIDs = append(report.OrphanEntryIDs, id)
		}
	}
	sort.Strings(report.OrphanEntryIDs)

	return report
}
