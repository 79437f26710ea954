package dto

import (
	"time"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// EntryResponse represents a ledger entry in API responses.
type EntryResponse struct {
	ID                string    `json:"id"`
	CounterpartyKey   string    `json:"counterparty_key"`
	CounterpartyType  string    `json:"counterparty_type"`
	Kind              string    `json:"kind"`
	Date              time.Time `json:"date"`
	Details           any       `json:"details"`
	OriginalAmount    string    `json:"original_amount"`
	OutstandingAmount string    `json:"outstanding_amount"`
	Paid              string    `json:"paid"`
	Settled           bool      `json:"settled"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// EntryFromDomain converts a domain entry to a response.
func EntryFromDomain(e *domain.LedgerEntry) *EntryResponse {
	return &EntryResponse{
		ID:                e.ID,
		CounterpartyKey:   e.CounterpartyKey,
		CounterpartyType:  string(e.CounterpartyType),
		Kind:              string(e.Kind()),
		Date:              e.Date,
		Details:           e.Details,
		OriginalAmount:    e.OriginalAmount.String(),
		OutstandingAmount: e.OutstandingAmount.String(),
		Paid:              e.Paid().String(),
		Settled:           e.IsSettled(),
		Version:           e.Version,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.LedgerEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// AllocationResponse is one entry touched by a payment.
type AllocationResponse struct {
	EntryID         string `json:"entry_id"`
	AmountApplied   string `json:"amount_applied"`
	DiscountApplied string `json:"discount_applied"`
}

func allocationsFromDomain(allocations []domain.Allocation) []AllocationResponse {
	result := make([]AllocationResponse, len(allocations))
	for i, a := range allocations {
		result[i] = AllocationResponse{
			EntryID:         a.EntryID,
			AmountApplied:   a.AmountApplied.String(),
			DiscountApplied: a.DiscountApplied.String(),
		}
	}
	return result
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID               string               `json:"id"`
	PaymentID        string               `json:"payment_id"`
	CounterpartyKey  string               `json:"counterparty_key"`
	CounterpartyType string               `json:"counterparty_type"`
	Type             string               `json:"type"`
	Method           string               `json:"method"`
	Details          any                  `json:"details"`
	Date             time.Time            `json:"date"`
	Amount           string               `json:"amount"`
	Discount         string               `json:"discount"`
	Notes            string               `json:"notes,omitempty"`
	Allocations      []AllocationResponse `json:"allocations"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// PaymentFromDomain converts a domain payment to a response.
func PaymentFromDomain(p *domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:               p.ID,
		PaymentID:        p.PaymentID,
		CounterpartyKey:  p.CounterpartyKey,
		CounterpartyType: string(p.CounterpartyType),
		Type:             string(p.Type),
		Method:           string(p.Method()),
		Details:          p.Details,
		Date:             p.Date,
		Amount:           p.Amount.String(),
		Discount:         p.Discount.String(),
		Notes:            p.Notes,
		Allocations:      allocationsFromDomain(p.Allocations),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// PaymentsFromDomain converts domain payments to responses.
func PaymentsFromDomain(payments []*domain.Payment) []*PaymentResponse {
	result := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		result[i] = PaymentFromDomain(p)
	}
	return result
}

// PreviewResponse shows how a payment would be allocated.
type PreviewResponse struct {
	Type             string               `json:"type"`
	Amount           string               `json:"amount"`
	Discount         string               `json:"discount"`
	TotalOutstanding string               `json:"total_outstanding"`
	Remainder        string               `json:"remainder"`
	Allocations      []AllocationResponse `json:"allocations"`
}

// PreviewFromUseCase converts a payment preview to a response.
func PreviewFromUseCase(p *usecase.PaymentPreview) *PreviewResponse {
	return &PreviewResponse{
		Type:             string(p.Type),
		Amount:           p.Amount.String(),
		Discount:         p.Discount.String(),
		TotalOutstanding: p.TotalOutstanding.String(),
		Remainder:        p.Remainder.String(),
		Allocations:      allocationsFromDomain(p.Allocations),
	}
}

// SummaryResponse represents aggregated totals.
type SummaryResponse struct {
	CounterpartyKey         string            `json:"counterparty_key,omitempty"`
	TotalOriginal           string            `json:"total_original"`
	TotalPaid               string            `json:"total_paid"`
	TotalDiscount           string            `json:"total_discount"`
	TotalOutstanding        string            `json:"total_outstanding"`
	PaidByMethod            map[string]string `json:"paid_by_method"`
	TotalWeight             string            `json:"total_weight"`
	AverageRate             string            `json:"average_rate"`
	AverageDeductionPercent string            `json:"average_deduction_percent"`
	EntryCount              int               `json:"entry_count"`
	OutstandingCount        int               `json:"outstanding_count"`
	SettledCount            int               `json:"settled_count"`
	PaymentCount            int               `json:"payment_count"`
	FirstDate               *time.Time        `json:"first_date,omitempty"`
	LastDate                *time.Time        `json:"last_date,omitempty"`
}

// SummaryFromDomain converts a domain summary to a response.
func SummaryFromDomain(s domain.Summary) *SummaryResponse {
	paid := make(map[string]string, len(s.PaidByMethod))
	for method, amount := range s.PaidByMethod {
		paid[string(method)] = amount.String()
	}

	resp := &SummaryResponse{
		CounterpartyKey:         s.CounterpartyKey,
		TotalOriginal:           s.TotalOriginal.String(),
		TotalPaid:               s.TotalPaid.String(),
		TotalDiscount:           s.TotalDiscount.String(),
		TotalOutstanding:        s.TotalOutstanding.String(),
		PaidByMethod:            paid,
		TotalWeight:             s.TotalWeight.String(),
		AverageRate:             s.AverageRate.StringFixed(2),
		AverageDeductionPercent: s.AverageDeductionPercent.StringFixed(2),
		EntryCount:              s.EntryCount,
		OutstandingCount:        s.OutstandingCount,
		SettledCount:            s.SettledCount,
		PaymentCount:            s.PaymentCount,
	}

	if !s.FirstDate.IsZero() {
		first, last := s.FirstDate, s.LastDate
		resp.FirstDate = &first
		resp.LastDate = &last
	}

	return resp
}

// FleetSummaryResponse holds per-counterparty summaries and their total.
type FleetSummaryResponse struct {
	Counterparties []*SummaryResponse `json:"counterparties"`
	Total          *SummaryResponse   `json:"total"`
}

// FleetSummaryFromDomain converts a fleet summary to a response.
func FleetSummaryFromDomain(f domain.FleetSummary) *FleetSummaryResponse {
	resp := &FleetSummaryResponse{
		Counterparties: make([]*SummaryResponse, len(f.Counterparties)),
		Total:          SummaryFromDomain(f.Total),
	}
	for i, s := range f.Counterparties {
		resp.Counterparties[i] = SummaryFromDomain(s)
	}
	return resp
}

// DiscrepancyResponse is an entry whose stored outstanding disagrees with
// its payment history.
type DiscrepancyResponse struct {
	EntryID         string `json:"entry_id"`
	CounterpartyKey string `json:"counterparty_key"`
	Stored          string `json:"stored"`
	Derived         string `json:"derived"`
	Difference      string `json:"difference"`
}

// ReconciliationResponse represents a reconciliation report.
type ReconciliationResponse struct {
	Balanced       bool                  `json:"balanced"`
	CheckedEntries int                   `json:"checked_entries"`
	Discrepancies  []DiscrepancyResponse `json:"discrepancies"`
	OrphanEntryIDs []string              `json:"orphan_entry_ids,omitempty"`
}

// ReconciliationFromDomain converts a reconciliation report to a response.
func ReconciliationFromDomain(r *domain.ReconciliationReport) *ReconciliationResponse {
	resp := &ReconciliationResponse{
		Balanced:       r.Balanced(),
		CheckedEntries: r.CheckedEntries,
		Discrepancies:  make([]DiscrepancyResponse, len(r.Discrepancies)),
		OrphanEntryIDs: append([]string(nil), r.OrphanEntryIDs...),
	}
	for i, d := range r.Discrepancies {
		resp.Discrepancies[i] = DiscrepancyResponse{
			EntryID:         d.EntryID,
			CounterpartyKey: d.CounterpartyKey,
			Stored:          d.Stored.String(),
			Derived:         d.Derived.String(),
			Difference:      d.Difference.String(),
		}
	}
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
