package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/tradebook/internal/adapter/repository/memory"
	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
	"github.com/iho/tradebook/internal/usecase/mocks"
)

const rameshKey = "ramesh|1"

type fixture struct {
	store    *memory.Store
	entries  *memory.EntryRepository
	payments *memory.PaymentRepository
	outbox   *memory.OutboxRepository
	uow      *usecase.UnitOfWork
	idGen    *mocks.MockIDGenerator
	entryUC  *usecase.EntryUseCase
	payUC    *usecase.PaymentUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	f := &fixture{
		store:    store,
		entries:  memory.NewEntryRepository(store),
		payments: memory.NewPaymentRepository(store),
		outbox:   memory.NewOutboxRepository(store),
		uow:      usecase.NewUnitOfWork(memory.NewTxManager(store)),
		idGen:    mocks.NewMockIDGenerator(),
	}

	f.entryUC = usecase.NewEntryUseCase(f.uow, f.entries, f.outbox, f.idGen, nil)
	f.payUC = usecase.NewPaymentUseCase(f.uow, f.entries, f.payments, f.outbox, f.idGen, nil)

	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) *time.Time {
	d := time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
	return &d
}

// book creates a supplier purchase whose amount is exactly amount.
func (f *fixture) book(t *testing.T, name string, date int, amount string) *domain.LedgerEntry {
	t.Helper()

	entry, err := f.entryUC.CreateEntry(context.Background(), usecase.CreateEntryInput{
		CounterpartyName: name,
		Contact:          "1",
		CounterpartyType: domain.CounterpartySupplier,
		Date:             day(date),
		Details:          domain.PurchaseDetails{GrossWeight: dec(amount), Rate: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)
	require.True(t, entry.OriginalAmount.Equal(dec(amount)), "booked %s", entry.OriginalAmount)

	return entry
}

func (f *fixture) outstanding(t *testing.T, id string) decimal.Decimal {
	t.Helper()

	e, err := f.entries.GetByID(context.Background(), id)
	require.NoError(t, err)
	return e.OutstandingAmount
}

func partial(amount string, ids ...string) usecase.PaymentInput {
	return usecase.PaymentInput{
		CounterpartyKey: rameshKey,
		EntryIDs:        ids,
		Amount:          dec(amount),
		Type:            domain.PaymentTypePartial,
		Details:         domain.CashDetails{},
	}
}

func TestPaymentUseCase_CreateAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.book(t, "Ramesh", 1, "100")
	e2 := f.book(t, "Ramesh", 2, "200")

	payment, err := f.payUC.CreatePayment(ctx, partial("150", e2.ID, e1.ID))
	require.NoError(t, err)

	assert.Equal(t, "SP00001", payment.PaymentID)
	assert.Equal(t, domain.CounterpartySupplier, payment.CounterpartyType)
	require.Len(t, payment.Allocations, 2)
	assert.Equal(t, e1.ID, payment.Allocations[0].EntryID)
	assert.True(t, payment.Allocations[0].AmountApplied.Equal(dec("100")))
	assert.Equal(t, e2.ID, payment.Allocations[1].EntryID)
	assert.True(t, payment.Allocations[1].AmountApplied.Equal(dec("50")))

	assert.True(t, f.outstanding(t, e1.ID).IsZero())
	assert.True(t, f.outstanding(t, e2.ID).Equal(dec("150")))

	stored, err := f.payUC.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.Allocations, stored.Allocations)

	require.NoError(t, f.payUC.DeletePayment(ctx, payment.ID))

	assert.True(t, f.outstanding(t, e1.ID).Equal(dec("100")))
	assert.True(t, f.outstanding(t, e2.ID).Equal(dec("200")))

	_, err = f.payUC.GetPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	events, err := f.outbox.GetUnpublished(ctx, 100)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		domain.EventTypeEntryCreated,
		domain.EventTypeEntryCreated,
		domain.EventTypePaymentCreated,
		domain.EventTypePaymentDeleted,
	}, types)
}

func TestPaymentUseCase_PartialExceedingOutstanding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.book(t, "Ramesh", 1, "100")
	e2 := f.book(t, "Ramesh", 2, "200")

	_, err := f.payUC.CreatePayment(ctx, partial("300.01", e1.ID, e2.ID))
	assert.ErrorIs(t, err, domain.ErrPartialExceedsOutstanding)

	assert.True(t, f.outstanding(t, e1.ID).Equal(dec("100")))
	assert.True(t, f.outstanding(t, e2.ID).Equal(dec("200")))

	payments, err := f.payUC.ListPaymentsByCounterparty(ctx, rameshKey)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPaymentUseCase_FullPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("omitted amount settles everything", func(t *testing.T) {
		f := newFixture(t)
		e1 := f.book(t, "Ramesh", 1, "123.45")
		e2 := f.book(t, "Ramesh", 2, "76.55")

		input := partial("0", e1.ID, e2.ID)
		input.Type = domain.PaymentTypeFull

		payment, err := f.payUC.CreatePayment(ctx, input)
		require.NoError(t, err)
		assert.True(t, payment.Amount.Equal(dec("200")))
		assert.True(t, f.outstanding(t, e1.ID).IsZero())
		assert.True(t, f.outstanding(t, e2.ID).IsZero())
	})

	t.Run("discount reduces cash", func(t *testing.T) {
		f := newFixture(t)
		e1 := f.book(t, "Ramesh", 1, "100")
		e2 := f.book(t, "Ramesh", 2, "200")

		input := partial("0", e1.ID, e2.ID)
		input.Type = domain.PaymentTypeFull
		input.Discount = dec("20")

		payment, err := f.payUC.CreatePayment(ctx, input)
		require.NoError(t, err)
		assert.True(t, payment.Amount.Equal(dec("280")))
		assert.True(t, payment.Allocations[1].DiscountApplied.Equal(dec("20")))
		assert.True(t, f.outstanding(t, e2.ID).IsZero())
	})

	t.Run("mismatched amount rejected", func(t *testing.T) {
		f := newFixture(t)
		e1 := f.book(t, "Ramesh", 1, "100")

		input := partial("150", e1.ID)
		input.Type = domain.PaymentTypeFull

		_, err := f.payUC.CreatePayment(ctx, input)
		assert.ErrorIs(t, err, domain.ErrFullPaymentMismatch)
		assert.True(t, f.outstanding(t, e1.ID).Equal(dec("100")))
	})
}

func TestPaymentUseCase_EditEqualsReverseAndReapply(t *testing.T) {
	ctx := context.Background()

	edited := newFixture(t)
	a1 := edited.book(t, "Ramesh", 1, "100")
	a2 := edited.book(t, "Ramesh", 2, "200")

	original, err := edited.payUC.CreatePayment(ctx, partial("150", a1.ID, a2.ID))
	require.NoError(t, err)

	updated, err := edited.payUC.EditPayment(ctx, original.ID, partial("250", a1.ID, a2.ID))
	require.NoError(t, err)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, original.PaymentID, updated.PaymentID)
	assert.True(t, updated.Amount.Equal(dec("250")))

	fresh := newFixture(t)
	b1 := fresh.book(t, "Ramesh", 1, "100")
	b2 := fresh.book(t, "Ramesh", 2, "200")
	_, err = fresh.payUC.CreatePayment(ctx, partial("250", b1.ID, b2.ID))
	require.NoError(t, err)

	assert.True(t, edited.outstanding(t, a1.ID).Equal(fresh.outstanding(t, b1.ID)))
	assert.True(t, edited.outstanding(t, a2.ID).Equal(fresh.outstanding(t, b2.ID)))
	assert.True(t, edited.outstanding(t, a2.ID).Equal(dec("50")))

	payments, err := edited.payUC.ListPaymentsByCounterparty(ctx, rameshKey)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestPaymentUseCase_EditChangesSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.book(t, "Ramesh", 1, "100")
	e2 := f.book(t, "Ramesh", 2, "200")

	p, err := f.payUC.CreatePayment(ctx, partial("100", e1.ID))
	require.NoError(t, err)
	require.True(t, f.outstanding(t, e1.ID).IsZero())

	// Moving the payment to E2 frees E1 again.
	_, err = f.payUC.EditPayment(ctx, p.ID, partial("100", e2.ID))
	require.NoError(t, err)

	assert.True(t, f.outstanding(t, e1.ID).Equal(dec("100")))
	assert.True(t, f.outstanding(t, e2.ID).Equal(dec("100")))

	// A rejected edit leaves the previous allocation in place.
	_, err = f.payUC.EditPayment(ctx, p.ID, partial("500", e2.ID))
	assert.ErrorIs(t, err, domain.ErrPartialExceedsOutstanding)
	assert.True(t, f.outstanding(t, e2.ID).Equal(dec("100")))

	stored, err := f.payUC.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, e2.ID, stored.Allocations[0].EntryID)
}

func TestPaymentUseCase_ValidationBeforeTransaction(t *testing.T) {
	txManager := mocks.NewMockTransactionManager()
	uc := usecase.NewPaymentUseCase(usecase.NewUnitOfWork(txManager), nil, nil, nil, mocks.NewMockIDGenerator(), nil)

	tests := []struct {
		name   string
		mutate func(in *usecase.PaymentInput)
		want   error
	}{
		{"empty selection", func(in *usecase.PaymentInput) { in.EntryIDs = nil }, domain.ErrEmptySelection},
		{"duplicate selection", func(in *usecase.PaymentInput) { in.EntryIDs = []string{"a", "a"} }, domain.ErrDuplicateSelection},
		{"zero partial", func(in *usecase.PaymentInput) { in.Amount = decimal.Zero }, domain.ErrInvalidAmount},
		{"negative discount", func(in *usecase.PaymentInput) { in.Discount = dec("-5") }, domain.ErrInvalidDiscount},
		{"unknown type", func(in *usecase.PaymentInput) { in.Type = "Advance" }, domain.ErrInvalidPaymentType},
		{"missing method", func(in *usecase.PaymentInput) { in.Details = nil }, domain.ErrInvalidPaymentMethod},
		{"bad rtgs", func(in *usecase.PaymentInput) { in.Details = domain.RtgsDetails{BankName: "SBI"} }, domain.ErrInvalidPaymentDetails},
		{"missing counterparty", func(in *usecase.PaymentInput) { in.CounterpartyKey = "" }, domain.ErrInvalidCounterparty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := partial("10", "a", "b")
			tt.mutate(&input)

			_, err := uc.CreatePayment(context.Background(), input)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsValidation(err))
		})
	}

	assert.Zero(t, txManager.Begun, "no transaction may start for invalid input")
}

func TestPaymentUseCase_SelectionChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine := f.book(t, "Ramesh", 1, "100")
	theirs := f.book(t, "Suresh", 1, "100")

	_, err := f.payUC.CreatePayment(ctx, partial("50", mine.ID, theirs.ID))
	assert.ErrorIs(t, err, domain.ErrEntryCounterpartyMismatch)

	_, err = f.payUC.CreatePayment(ctx, partial("50", mine.ID, "01HZZZZZZZZZZZZZZZZZZZZZZZ"))
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	_, err = f.payUC.CreatePayment(ctx, partial("100", mine.ID))
	require.NoError(t, err)

	_, err = f.payUC.CreatePayment(ctx, partial("1", mine.ID))
	assert.ErrorIs(t, err, domain.ErrPartialExceedsOutstanding)

	assert.True(t, f.outstanding(t, theirs.ID).Equal(dec("100")))
}

func TestPaymentUseCase_PaymentIDSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.book(t, "Ramesh", 1, "1000")

	customer, err := f.entryUC.CreateEntry(ctx, usecase.CreateEntryInput{
		CounterpartyName: "Mahesh",
		Contact:          "2",
		CounterpartyType: domain.CounterpartyCustomer,
		Date:             day(1),
		Details:          domain.SaleDetails{Weight: dec("10"), Rate: dec("10")},
	})
	require.NoError(t, err)

	first, err := f.payUC.CreatePayment(ctx, partial("10", e1.ID))
	require.NoError(t, err)
	second, err := f.payUC.CreatePayment(ctx, partial("10", e1.ID))
	require.NoError(t, err)

	receipt, err := f.payUC.CreatePayment(ctx, usecase.PaymentInput{
		CounterpartyKey: "mahesh|2",
		EntryIDs:        []string{customer.ID},
		Amount:          dec("40"),
		Type:            domain.PaymentTypePartial,
		Details:         domain.GovDetails{Scheme: "MSP"},
	})
	require.NoError(t, err)

	assert.Equal(t, "SP00001", first.PaymentID)
	assert.Equal(t, "SP00002", second.PaymentID)
	assert.Equal(t, "CR00001", receipt.PaymentID)

	// Deleting the latest frees its number.
	require.NoError(t, f.payUC.DeletePayment(ctx, second.ID))
	third, err := f.payUC.CreatePayment(ctx, partial("10", e1.ID))
	require.NoError(t, err)
	assert.Equal(t, "SP00002", third.PaymentID)
}

func TestPaymentUseCase_Preview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.book(t, "Ramesh", 1, "50")
	e2 := f.book(t, "Ramesh", 2, "30")
	e3 := f.book(t, "Ramesh", 3, "20")

	preview, err := f.payUC.Preview(ctx, partial("60", e3.ID, e2.ID, e1.ID))
	require.NoError(t, err)

	require.Len(t, preview.Allocations, 2)
	assert.True(t, preview.Allocations[0].AmountApplied.Equal(dec("50")))
	assert.True(t, preview.Allocations[1].AmountApplied.Equal(dec("10")))
	assert.True(t, preview.TotalOutstanding.Equal(dec("100")))
	assert.True(t, preview.Remainder.IsZero())

	assert.True(t, f.outstanding(t, e1.ID).Equal(dec("50")), "preview must not write")
}

func TestPaymentUseCase_NoNegativeBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ids := []string{
		f.book(t, "Ramesh", 1, "97.13").ID,
		f.book(t, "Ramesh", 2, "210.40").ID,
		f.book(t, "Ramesh", 3, "55.55").ID,
	}

	var created []*domain.Payment
	for _, amount := range []string{"33.33", "120", "0.07", "150", "59.68"} {
		var open []string
		for _, id := range ids {
			if f.outstanding(t, id).IsPositive() {
				open = append(open, id)
			}
		}

		if len(open) < len(ids) {
			_, err := f.payUC.CreatePayment(ctx, partial("0.01", ids...))
			assert.ErrorIs(t, err, domain.ErrNothingOutstanding, "settled entries cannot be selected again")
		}

		p, err := f.payUC.CreatePayment(ctx, partial(amount, open...))
		require.NoError(t, err)
		created = append(created, p)

		for _, id := range ids {
			assert.False(t, f.outstanding(t, id).IsNegative())
		}
	}

	for _, id := range ids {
		assert.True(t, f.outstanding(t, id).IsZero(), "entry %s should be settled", id)
	}

	// Deleting out of order still restores the originals exactly.
	for i := len(created) - 2; i >= 0; i-- {
		require.NoError(t, f.payUC.DeletePayment(ctx, created[i].ID))
	}
	require.NoError(t, f.payUC.DeletePayment(ctx, created[len(created)-1].ID))

	assert.True(t, f.outstanding(t, ids[0]).Equal(dec("97.13")))
	assert.True(t, f.outstanding(t, ids[1]).Equal(dec("210.40")))
	assert.True(t, f.outstanding(t, ids[2]).Equal(dec("55.55")))
}

func TestPaymentUseCase_ConcurrentPaymentsSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.book(t, "Ramesh", 1, "100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.payUC.CreatePayment(ctx, partial("60", e1.ID))
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrPartialExceedsOutstanding)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.True(t, f.outstanding(t, e1.ID).Equal(dec("40")))
}

func TestPaymentUseCase_SubmissionGuard(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	f := newFixture(t)
	e1 := f.book(t, "Ramesh", 1, "100")

	guard := mocks.NewMockSubmissionGuard(ctrl)
	f.payUC.WithGuard(guard)

	gomock.InOrder(
		guard.EXPECT().Acquire(gomock.Any(), rameshKey).Return("", false, nil),
		guard.EXPECT().Acquire(gomock.Any(), rameshKey).Return("tok-1", true, nil),
		guard.EXPECT().Release(gomock.Any(), rameshKey, "tok-1").Return(nil),
	)

	_, err := f.payUC.CreatePayment(ctx, partial("10", e1.ID))
	assert.ErrorIs(t, err, domain.ErrPaymentInFlight)
	assert.True(t, f.outstanding(t, e1.ID).Equal(dec("100")))

	_, err = f.payUC.CreatePayment(ctx, partial("10", e1.ID))
	require.NoError(t, err)
}

func TestPaymentUseCase_ConcurrentModificationAborts(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	entryRepo := mocks.NewMockEntryRepository(ctrl)
	paymentRepo := mocks.NewMockPaymentRepository(ctrl)
	outboxRepo := mocks.NewMockOutboxRepository(ctrl)

	tx := &mocks.MockTransaction{}
	txManager := mocks.NewMockTransactionManager()
	txManager.BeginFunc = func(ctx context.Context) (usecase.Transaction, error) { return tx, nil }

	entry := &domain.LedgerEntry{
		ID:                "e1",
		CounterpartyKey:   rameshKey,
		CounterpartyType:  domain.CounterpartySupplier,
		OriginalAmount:    dec("100"),
		OutstandingAmount: dec("100"),
		Version:           3,
	}

	entryRepo.EXPECT().GetByIDsForUpdate(gomock.Any(), tx, []string{"e1"}).Return([]*domain.LedgerEntry{entry}, nil)
	entryRepo.EXPECT().UpdateBalances(gomock.Any(), tx, gomock.Any()).Return(domain.ErrConcurrentModification)

	uc := usecase.NewPaymentUseCase(usecase.NewUnitOfWork(txManager), entryRepo, paymentRepo, outboxRepo, mocks.NewMockIDGenerator(), nil)

	_, err := uc.CreatePayment(ctx, partial("40", "e1"))
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.True(t, domain.IsRetryable(err))
	assert.False(t, tx.Committed)
	assert.True(t, tx.RolledBack)
}
