package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/infrastructure/metrics"
)

// EntryUseCase handles ledger entry business logic.
type EntryUseCase struct {
	uow        *UnitOfWork
	entryRepo  EntryRepository
	outboxRepo OutboxRepository
	idGen      IDGenerator
	metrics    *metrics.Metrics
}

// NewEntryUseCase creates a new EntryUseCase.
func NewEntryUseCase(
	uow *UnitOfWork,
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *EntryUseCase {
	return &EntryUseCase{
		uow:        uow,
		entryRepo:  entryRepo,
		outboxRepo: outboxRepo,
		idGen:      idGen,
		metrics:    metrics,
	}
}

// CreateEntryInput represents input for booking a purchase or sale.
type CreateEntryInput struct {
	Date             *time.Time
	Details          domain.EntryDetails
	CounterpartyName string
	Contact          string
	CounterpartyType domain.CounterpartyType
}

// CreateEntry books a new ledger entry whose outstanding amount equals its
// computed original amount.
func (uc *EntryUseCase) CreateEntry(ctx context.Context, input CreateEntryInput) (*domain.LedgerEntry, error) {
	key, err := domain.CounterpartyKey(input.CounterpartyName, input.Contact)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	var date time.Time
	if input.Date != nil {
		date = input.Date.UTC()
	}

	entry, err := domain.NewLedgerEntry(uc.idGen.Generate(), key, input.CounterpartyType, date, input.Details, now)
	if err != nil {
		return nil, err
	}

	err = uc.uow.Do(ctx, func(ctx context.Context, tx Transaction) error {
		if err := uc.entryRepo.Create(ctx, tx, entry); err != nil {
			return err
		}
		return uc.emit(ctx, tx, entry, domain.EventTypeEntryCreated, nil, now)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesCreated.WithLabelValues(string(entry.Kind())).Inc()
	}

	return entry, nil
}

// GetEntry retrieves a ledger entry by ID.
func (uc *EntryUseCase) GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	return uc.entryRepo.GetByID(ctx, id)
}

// ListEntriesByCounterparty lists entries of one counterparty, oldest first.
// With outstandingOnly set, settled entries are left out.
func (uc *EntryUseCase) ListEntriesByCounterparty(ctx context.Context, counterpartyKey string, outstandingOnly bool) ([]*domain.LedgerEntry, error) {
	if counterpartyKey == "" {
		return nil, fmt.Errorf("%w: counterparty key is required", domain.ErrInvalidCounterparty)
	}

	entries, err := uc.entryRepo.ListByCounterparty(ctx, counterpartyKey, outstandingOnly)
	if err != nil {
		return nil, err
	}

	if !outstandingOnly {
		return entries, nil
	}

	// The store filters on outstanding > 0; the settled threshold is a
	// domain rule.
	filtered := entries[:0]
	for _, e := range entries {
		if !e.IsSettled() {
			filtered = append(filtered, e)
		}
	}

	return filtered, nil
}

// AdjustEntry shifts the original and outstanding amounts of an entry by
// delta, e.g. a government top-up.
func (uc *EntryUseCase) AdjustEntry(ctx context.Context, id string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	if err := domain.ValidateNotes(reason); err != nil {
		return nil, err
	}

	var adjusted *domain.LedgerEntry

	err := uc.uow.Do(ctx, func(ctx context.Context, tx Transaction) error {
		entries, err := uc.entryRepo.GetByIDsForUpdate(ctx, tx, []string{id})
		if err != nil {
			return err
		}

		if len(entries) != 1 {
			return domain.ErrEntryNotFound
		}

		entry := entries[0]
		if err := entry.Adjust(delta); err != nil {
			return err
		}

		now := time.Now().UTC()
		entry.UpdatedAt = now

		if err := uc.entryRepo.UpdateBalances(ctx, tx, entry); err != nil {
			return err
		}
		entry.Version++

		extra := map[string]any{"delta": delta.String(), "reason": reason}
		if err := uc.emit(ctx, tx, entry, domain.EventTypeEntryAdjusted, extra, now); err != nil {
			return err
		}

		adjusted = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesAdjusted.Inc()
	}

	return adjusted, nil
}

func (uc *EntryUseCase) emit(ctx context.Context, tx Transaction, entry *domain.LedgerEntry, eventType string, extra map[string]any, now time.Time) error {
	if uc.outboxRepo == nil {
		return nil
	}

	payload := domain.EntryEventPayload(entry)
	for k, v := range extra {
		payload[k] = v
	}

	event := domain.NewOutboxEvent(uc.idGen.Generate(), domain.AggregateTypeEntry, entry.ID, eventType, payload, now)
	return uc.outboxRepo.Create(ctx, tx, event)
}
