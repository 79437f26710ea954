package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/infrastructure/metrics"
)

// SummaryUseCase derives rollups and reconciliation reports from committed
// entries and payments. Nothing it computes is stored.
type SummaryUseCase struct {
	entryRepo   EntryRepository
	paymentRepo PaymentRepository
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewSummaryUseCase creates a new SummaryUseCase.
func NewSummaryUseCase(entryRepo EntryRepository, paymentRepo PaymentRepository, metrics *metrics.Metrics, logger zerolog.Logger) *SummaryUseCase {
	return &SummaryUseCase{
		entryRepo:   entryRepo,
		paymentRepo: paymentRepo,
		metrics:     metrics,
		logger:      logger,
	}
}

// CounterpartySummary summarizes one supplier or customer.
func (uc *SummaryUseCase) CounterpartySummary(ctx context.Context, counterpartyKey string) (*domain.Summary, error) {
	if counterpartyKey == "" {
		return nil, fmt.Errorf("%w: counterparty key is required", domain.ErrInvalidCounterparty)
	}

	entries, err := uc.entryRepo.ListByCounterparty(ctx, counterpartyKey, false)
	if err != nil {
		return nil, err
	}

	payments, err := uc.paymentRepo.ListByCounterparty(ctx, counterpartyKey)
	if err != nil {
		return nil, err
	}

	summary := domain.Summarize(entries, payments)
	summary.CounterpartyKey = counterpartyKey

	return &summary, nil
}

// FleetSummary summarizes every counterparty and the whole book.
func (uc *SummaryUseCase) FleetSummary(ctx context.Context) (*domain.FleetSummary, error) {
	entries, payments, err := uc.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	fleet := domain.SummarizeFleet(entries, payments)
	return &fleet, nil
}

// Reconcile replays all committed allocations and reports entries whose
// stored outstanding amount has drifted.
func (uc *SummaryUseCase) Reconcile(ctx context.Context) (*domain.ReconciliationReport, error) {
	entries, payments, err := uc.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	report := domain.Reconcile(entries, payments)

	// Entries and payments are read separately, so a payment committed
	// between the two reads looks like drift. Keep only what a second pass
	// confirms.
	if !report.Balanced() {
		entries, payments, err = uc.loadAll(ctx)
		if err != nil {
			return nil, err
		}
		report = confirm(report, domain.Reconcile(entries, payments))
	}

	if uc.metrics != nil {
		uc.metrics.ReconciliationRuns.Inc()
		uc.metrics.ReconciliationDiscrepancies.Set(float64(len(report.Discrepancies)))
	}

	if !report.Balanced() {
		uc.logger.Warn().
			Int("discrepancies", len(report.Discrepancies)).
			Int("orphans", len(report.OrphanEntryIDs)).
			Msg("ledger reconciliation found drift")
	}

	return &report, nil
}

func (uc *SummaryUseCase) loadAll(ctx context.Context) ([]*domain.LedgerEntry, []*domain.Payment, error) {
	entries, err := uc.entryRepo.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load entries: %w", err)
	}

	payments, err := uc.paymentRepo.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payments: %w", err)
	}

	return entries, payments, nil
}

func confirm(first, second domain.ReconciliationReport) domain.ReconciliationReport {
	seen := make(map[string]bool, len(first.Discrepancies)+len(first.OrphanEntryIDs))
	for _, d := range first.Discrepancies {
		seen[d.EntryID] = true
	}
	for _, id := range first.OrphanEntryIDs {
		seen[id] = true
	}

	out := domain.ReconciliationReport{CheckedEntries: second.CheckedEntries}
	for _, d := range second.Discrepancies {
		if seen[d.EntryID] {
			out.Discrepancies = append(out.Discrepancies, d)
		}
	}
	for _, id := range second.OrphanEntryIDs {
		if seen[id] {
			out.OrphanEntryIDs = append(out.OrphanEntryIDs, id)
		}
	}
	return out
}
