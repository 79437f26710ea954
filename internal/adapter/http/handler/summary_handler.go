package handler

import (
	"context"
	"net/http"

	"github.com/iho/tradebook/internal/adapter/http/dto"
	"github.com/iho/tradebook/internal/domain"
)

// SummaryService is the part of usecase.SummaryUseCase the handler needs.
type SummaryService interface {
	CounterpartySummary(ctx context.Context, counterpartyKey string) (*domain.Summary, error)
	FleetSummary(ctx context.Context) (*domain.FleetSummary, error)
	Reconcile(ctx context.Context) (*domain.ReconciliationReport, error)
}

// SummaryHandler serves aggregated totals and the reconciliation report.
type SummaryHandler struct {
	summaryUC SummaryService
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(summaryUC SummaryService) *SummaryHandler {
	return &SummaryHandler{summaryUC: summaryUC}
}

// Counterparty returns the summary of one counterparty.
func (h *SummaryHandler) Counterparty(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing counterparty key", "")
		return
	}

	summary, err := h.summaryUC.CounterpartySummary(r.Context(), key)
	if err != nil {
		writeDomainError(w, "failed to summarize counterparty", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SummaryFromDomain(*summary))
}

// Fleet returns per-counterparty summaries and the grand total.
func (h *SummaryHandler) Fleet(w http.ResponseWriter, r *http.Request) {
	fleet, err := h.summaryUC.FleetSummary(r.Context())
	if err != nil {
		writeDomainError(w, "failed to summarize ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FleetSummaryFromDomain(*fleet))
}

// Reconcile checks stored outstanding amounts against payment history.
// An unbalanced ledger is reported with 200; the body says what differs.
func (h *SummaryHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.summaryUC.Reconcile(r.Context())
	if err != nil {
		writeDomainError(w, "failed to reconcile ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromDomain(report))
}
