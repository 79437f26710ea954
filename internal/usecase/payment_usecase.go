package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/infrastructure/metrics"
)

// PaymentUseCase allocates payments across ledger entries and reverses them.
type PaymentUseCase struct {
	uow         *UnitOfWork
	entryRepo   EntryRepository
	paymentRepo PaymentRepository
	outboxRepo  OutboxRepository
	idGen       IDGenerator
	guard       SubmissionGuard
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewPaymentUseCase creates a new PaymentUseCase.
func NewPaymentUseCase(
	uow *UnitOfWork,
	entryRepo EntryRepository,
	paymentRepo PaymentRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *PaymentUseCase {
	return &PaymentUseCase{
		uow:         uow,
		entryRepo:   entryRepo,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		idGen:       idGen,
		metrics:     metrics,
		logger:      zerolog.Nop(),
	}
}

// WithGuard rejects concurrent submissions for the same counterparty.
func (uc *PaymentUseCase) WithGuard(guard SubmissionGuard) *PaymentUseCase {
	uc.guard = guard
	return uc
}

// WithLogger sets the logger.
func (uc *PaymentUseCase) WithLogger(logger zerolog.Logger) *PaymentUseCase {
	uc.logger = logger
	return uc
}

// PaymentInput describes a payment against selected entries of one
// counterparty. For a Full payment Amount may be zero, in which case it is
// set to the selected outstanding total minus Discount.
type PaymentInput struct {
	Date            *time.Time
	Details         domain.PaymentDetails
	CounterpartyKey string
	Type            domain.PaymentType
	Notes           string
	EntryIDs        []string
	Amount          decimal.Decimal
	Discount        decimal.Decimal
}

// PaymentPreview is the allocation a payment would make right now.
type PaymentPreview struct {
	Type             domain.PaymentType
	Allocations      []domain.Allocation
	Amount           decimal.Decimal
	Discount         decimal.Decimal
	TotalOutstanding decimal.Decimal
	Remainder        decimal.Decimal
}

func validatePaymentInput(input PaymentInput) error {
	if input.CounterpartyKey == "" {
		return fmt.Errorf("%w: counterparty key is required", domain.ErrInvalidCounterparty)
	}

	if err := domain.ValidateSelection(input.EntryIDs); err != nil {
		return err
	}

	if !input.Type.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPaymentType, input.Type)
	}

	if input.Details == nil {
		return domain.ErrInvalidPaymentMethod
	}

	if err := input.Details.Validate(); err != nil {
		return err
	}

	if err := domain.ValidateDiscount(input.Discount); err != nil {
		return err
	}

	switch {
	case input.Type == domain.PaymentTypePartial:
		if err := domain.ValidatePaymentAmount(input.Amount); err != nil {
			return err
		}
	case input.Amount.IsNegative():
		return domain.ErrInvalidAmount
	}

	return domain.ValidateNotes(input.Notes)
}

// resolveAmount applies the Full/Partial rules against the selected total
// and returns the cash amount to allocate.
func resolveAmount(input PaymentInput, total decimal.Decimal) (decimal.Decimal, error) {
	requested := input.Amount.Add(input.Discount)

	if input.Type == domain.PaymentTypePartial {
		if requested.GreaterThan(total) {
			return decimal.Zero, fmt.Errorf("%w: %s requested, %s outstanding",
				domain.ErrPartialExceedsOutstanding, requested, total)
		}
		return input.Amount, nil
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = total.Sub(input.Discount)
	}

	if !amount.Add(input.Discount).Equal(total) {
		return decimal.Zero, fmt.Errorf("%w: %s requested, %s outstanding",
			domain.ErrFullPaymentMismatch, amount.Add(input.Discount), total)
	}

	if err := domain.ValidatePaymentAmount(amount); err != nil {
		return decimal.Zero, fmt.Errorf("%w: discount leaves nothing to pay", domain.ErrFullPaymentMismatch)
	}

	return amount, nil
}

func selectEntries(byID map[string]*domain.LedgerEntry, ids []string) []*domain.LedgerEntry {
	selected := make([]*domain.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		selected = append(selected, byID[id])
	}
	return selected
}

func checkCounterparty(entries []*domain.LedgerEntry, counterpartyKey string) error {
	for _, e := range entries {
		if e.CounterpartyKey != counterpartyKey {
			return fmt.Errorf("%w: entry %s", domain.ErrEntryCounterpartyMismatch, e.ID)
		}
	}
	return nil
}

// Preview computes the allocation against committed balances without
// writing anything.
func (uc *PaymentUseCase) Preview(ctx context.Context, input PaymentInput) (*PaymentPreview, error) {
	if err := validatePaymentInput(input); err != nil {
		return nil, err
	}

	entries, err := uc.entryRepo.GetByIDs(ctx, input.EntryIDs)
	if err != nil {
		return nil, err
	}

	byID, err := indexEntries(entries, input.EntryIDs)
	if err != nil {
		return nil, err
	}

	selected := selectEntries(byID, input.EntryIDs)
	if err := checkCounterparty(selected, input.CounterpartyKey); err != nil {
		return nil, err
	}

	total := domain.TotalOutstanding(selected)
	amount, err := resolveAmount(input, total)
	if err != nil {
		return nil, err
	}

	result, err := domain.AllocateWithDiscount(amount, input.Discount, selected)
	if err != nil {
		return nil, err
	}

	return &PaymentPreview{
		Type:             input.Type,
		Allocations:      result.Allocations,
		Amount:           amount,
		Discount:         input.Discount,
		TotalOutstanding: total,
		Remainder:        result.Remainder,
	}, nil
}

// CreatePayment allocates a new payment and commits it with the updated
// entry balances.
func (uc *PaymentUseCase) CreatePayment(ctx context.Context, input PaymentInput) (*domain.Payment, error) {
	start := time.Now()

	if err := validatePaymentInput(input); err != nil {
		uc.recordError(err)
		return nil, err
	}

	release, err := uc.acquire(ctx, input.CounterpartyKey)
	if err != nil {
		uc.recordError(err)
		return nil, err
	}
	defer release()

	var payment *domain.Payment

	err = uc.uow.Do(ctx, func(ctx context.Context, tx Transaction) error {
		byID, err := uc.lockEntries(ctx, tx, input.CounterpartyKey, input.EntryIDs)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		p, err := uc.applyPayment(byID, input, now)
		if err != nil {
			return err
		}

		if err := uc.persistEntries(ctx, tx, byID, p.EntryIDs(), now); err != nil {
			return err
		}

		existing, err := uc.paymentRepo.ListPaymentIDs(ctx, tx, domain.PaymentIDPrefix(p.CounterpartyType))
		if err != nil {
			return err
		}

		p.ID = uc.idGen.Generate()
		p.PaymentID = domain.NextPaymentID(domain.PaymentIDPrefix(p.CounterpartyType), existing)
		p.CreatedAt = now

		if err := uc.paymentRepo.Create(ctx, tx, p); err != nil {
			return err
		}

		if err := uc.emit(ctx, tx, p, domain.EventTypePaymentCreated, now); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		uc.recordError(err)
		return nil, err
	}

	uc.logger.Info().
		Str("payment_id", payment.PaymentID).
		Str("counterparty", payment.CounterpartyKey).
		Str("amount", payment.Amount.String()).
		Int("allocations", len(payment.Allocations)).
		Msg("payment created")

	if uc.metrics != nil {
		uc.metrics.PaymentsCreated.Inc()
		uc.metrics.AllocationsTotal.Add(float64(len(payment.Allocations)))
		uc.metrics.PaymentDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
		uc.metrics.PaymentAmount.WithLabelValues(string(payment.Method())).Observe(payment.Amount.InexactFloat64())
	}

	return payment, nil
}

// EditPayment reverses the stored allocations of a payment and applies the
// edited input in the same transaction. The payment keeps its IDs.
func (uc *PaymentUseCase) EditPayment(ctx context.Context, id string, input PaymentInput) (*domain.Payment, error) {
	start := time.Now()

	if err := validatePaymentInput(input); err != nil {
		uc.recordError(err)
		return nil, err
	}

	release, err := uc.acquire(ctx, input.CounterpartyKey)
	if err != nil {
		uc.recordError(err)
		return nil, err
	}
	defer release()

	var payment *domain.Payment

	err = uc.uow.Do(ctx, func(ctx context.Context, tx Transaction) error {
		old, err := uc.paymentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if old.CounterpartyKey != input.CounterpartyKey {
			return fmt.Errorf("%w: payment %s belongs to %s", domain.ErrEntryCounterpartyMismatch, old.PaymentID, old.CounterpartyKey)
		}

		touched := unionIDs(old.EntryIDs(), input.EntryIDs)

		byID, err := uc.lockEntries(ctx, tx, input.CounterpartyKey, touched)
		if err != nil {
			return err
		}

		if err := reverse(byID, old); err != nil {
			return err
		}

		now := time.Now().UTC()

		p, err := uc.applyPayment(byID, input, now)
		if err != nil {
			return err
		}

		if err := uc.persistEntries(ctx, tx, byID, touched, now); err != nil {
			return err
		}

		p.ID = old.ID
		p.PaymentID = old.PaymentID
		p.CreatedAt = old.CreatedAt
		if input.Date == nil {
			p.Date = old.Date
		}

		if err := uc.paymentRepo.Update(ctx, tx, p); err != nil {
			return err
		}

		if err := uc.emit(ctx, tx, p, domain.EventTypePaymentEdited, now); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		uc.recordError(err)
		return nil, err
	}

	uc.logger.Info().
		Str("payment_id", payment.PaymentID).
		Str("counterparty", payment.CounterpartyKey).
		Str("amount", payment.Amount.String()).
		Msg("payment edited")

	if uc.metrics != nil {
		uc.metrics.PaymentsEdited.Inc()
		uc.metrics.PaymentDuration.WithLabelValues("edit").Observe(time.Since(start).Seconds())
	}

	return payment, nil
}

// DeletePayment restores every entry the payment touched and removes it.
func (uc *PaymentUseCase) DeletePayment(ctx context.Context, id string) error {
	start := time.Now()

	existing, err := uc.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	release, err := uc.acquire(ctx, existing.CounterpartyKey)
	if err != nil {
		uc.recordError(err)
		return err
	}
	defer release()

	var deleted *domain.Payment

	err = uc.uow.Do(ctx, func(ctx context.Context, tx Transaction) error {
		old, err := uc.paymentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		touched := unionIDs(old.EntryIDs(), nil)

		byID, err := uc.lockEntries(ctx, tx, old.CounterpartyKey, touched)
		if err != nil {
			return err
		}

		if err := reverse(byID, old); err != nil {
			return err
		}

		now := time.Now().UTC()

		if err := uc.persistEntries(ctx, tx, byID, touched, now); err != nil {
			return err
		}

		if err := uc.paymentRepo.Delete(ctx, tx, old.ID); err != nil {
			return err
		}

		old.UpdatedAt = now
		if err := uc.emit(ctx, tx, old, domain.EventTypePaymentDeleted, now); err != nil {
			return err
		}

		deleted = old
		return nil
	})
	if err != nil {
		uc.recordError(err)
		return err
	}

	uc.logger.Info().
		Str("payment_id", deleted.PaymentID).
		Str("counterparty", deleted.CounterpartyKey).
		Msg("payment deleted")

	if uc.metrics != nil {
		uc.metrics.PaymentsDeleted.Inc()
		uc.metrics.PaymentDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}

	return nil
}

// GetPayment retrieves a payment by ID.
func (uc *PaymentUseCase) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return uc.paymentRepo.GetByID(ctx, id)
}

// ListPaymentsByCounterparty lists payments of one counterparty.
func (uc *PaymentUseCase) ListPaymentsByCounterparty(ctx context.Context, counterpartyKey string) ([]*domain.Payment, error) {
	return uc.paymentRepo.ListByCounterparty(ctx, counterpartyKey)
}

func (uc *PaymentUseCase) acquire(ctx context.Context, counterpartyKey string) (func(), error) {
	if uc.guard == nil {
		return func() {}, nil
	}

	token, ok, err := uc.guard.Acquire(ctx, counterpartyKey)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentInFlight, counterpartyKey)
	}

	return func() {
		// Release on a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		if err := uc.guard.Release(releaseCtx, counterpartyKey, token); err != nil {
			uc.logger.Warn().Err(err).Str("counterparty", counterpartyKey).Msg("failed to release submission guard")
		}
	}, nil
}

// lockEntries locks ids in sorted order to avoid deadlocks between
// overlapping payments, and checks they all belong to the counterparty.
func (uc *PaymentUseCase) lockEntries(ctx context.Context, tx Transaction, counterpartyKey string, ids []string) (map[string]*domain.LedgerEntry, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	entries, err := uc.entryRepo.GetByIDsForUpdate(ctx, tx, sorted)
	if err != nil {
		return nil, err
	}

	byID, err := indexEntries(entries, sorted)
	if err != nil {
		return nil, err
	}

	if err := checkCounterparty(entries, counterpartyKey); err != nil {
		return nil, err
	}

	return byID, nil
}

// applyPayment allocates input against the locked entries and decrements
// them in memory.
func (uc *PaymentUseCase) applyPayment(byID map[string]*domain.LedgerEntry, input PaymentInput, now time.Time) (*domain.Payment, error) {
	selected := selectEntries(byID, input.EntryIDs)

	amount, err := resolveAmount(input, domain.TotalOutstanding(selected))
	if err != nil {
		return nil, err
	}

	result, err := domain.AllocateWithDiscount(amount, input.Discount, selected)
	if err != nil {
		return nil, err
	}

	// Both rules cap the request at the selected total, so nothing is left.
	if !result.Remainder.IsZero() {
		return nil, fmt.Errorf("%w: %s left unallocated", domain.ErrOverAllocation, result.Remainder)
	}

	for _, a := range result.Allocations {
		if err := byID[a.EntryID].Decrement(a.Total()); err != nil {
			return nil, err
		}
	}

	date := now
	if input.Date != nil {
		date = input.Date.UTC()
	}

	p := &domain.Payment{
		CounterpartyKey:  input.CounterpartyKey,
		CounterpartyType: selected[0].CounterpartyType,
		Date:             date,
		Details:          input.Details,
		Type:             input.Type,
		Notes:            input.Notes,
		Amount:           amount,
		Discount:         input.Discount,
		Allocations:      result.Allocations,
		UpdatedAt:        now,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

func (uc *PaymentUseCase) persistEntries(ctx context.Context, tx Transaction, byID map[string]*domain.LedgerEntry, ids []string, now time.Time) error {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	for _, id := range sorted {
		e := byID[id]
		e.UpdatedAt = now
		if err := uc.entryRepo.UpdateBalances(ctx, tx, e); err != nil {
			return err
		}
		e.Version++
	}

	return nil
}

func (uc *PaymentUseCase) emit(ctx context.Context, tx Transaction, p *domain.Payment, eventType string, now time.Time) error {
	if uc.outboxRepo == nil {
		return nil
	}

	event := domain.NewOutboxEvent(uc.idGen.Generate(), domain.AggregateTypePayment, p.ID, eventType, domain.PaymentEventPayload(p), now)
	return uc.outboxRepo.Create(ctx, tx, event)
}

func (uc *PaymentUseCase) recordError(err error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.PaymentErrors.WithLabelValues(errorType(err)).Inc()
}

// reverse restores every entry referenced by the payment's allocations.
func reverse(byID map[string]*domain.LedgerEntry, p *domain.Payment) error {
	for _, a := range p.Allocations {
		e, ok := byID[a.EntryID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, a.EntryID)
		}

		total := a.Total()
		if total.IsZero() {
			continue
		}

		if err := e.Increment(total); err != nil {
			return err
		}
	}
	return nil
}

func indexEntries(entries []*domain.LedgerEntry, ids []string) (map[string]*domain.LedgerEntry, error) {
	byID := make(map[string]*domain.LedgerEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
		}
	}

	return byID, nil
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func errorType(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation"
	case errors.Is(err, domain.ErrEntryNotFound), errors.Is(err, domain.ErrPaymentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPaymentInFlight), domain.IsRetryable(err):
		return "conflict"
	case domain.IsInvariantViolation(err):
		return "invariant"
	default:
		return "internal"
	}
}
