package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// PaymentRepository implements usecase.PaymentRepository.
type PaymentRepository struct {
	store *Store
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(store *Store) *PaymentRepository {
	return &PaymentRepository{store: store}
}

// Create inserts a payment. PaymentID must be unique.
func (r *PaymentRepository) Create(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	st, err := workState(tx)
	if err != nil {
		return err
	}

	if _, exists := st.payments[payment.ID]; exists {
		return fmt.Errorf("memory: payment %s already exists", payment.ID)
	}

	for _, p := range st.payments {
		if p.PaymentID == payment.PaymentID {
			return fmt.Errorf("memory: payment id %s already taken", payment.PaymentID)
		}
	}

	st.payments[payment.ID] = copyPayment(*payment)
	return nil
}

// Update replaces a payment and its allocations.
func (r *PaymentRepository) Update(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	st, err := workState(tx)
	if err != nil {
		return err
	}

	if _, exists := st.payments[payment.ID]; !exists {
		return domain.ErrPaymentNotFound
	}

	st.payments[payment.ID] = copyPayment(*payment)
	return nil
}

// Delete removes a payment.
func (r *PaymentRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	st, err := workState(tx)
	if err != nil {
		return err
	}

	if _, exists := st.payments[id]; !exists {
		return domain.ErrPaymentNotFound
	}

	delete(st.payments, id)
	return nil
}

// GetByID retrieves a committed payment.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	p, ok := r.store.snapshot().payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	p = copyPayment(p)
	return &p, nil
}

// GetByIDForUpdate reads a payment from the transaction's working copy.
func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Payment, error) {
	st, err := workState(tx)
	if err != nil {
		return nil, err
	}

	p, ok := st.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	p = copyPayment(p)
	return &p, nil
}

// ListPaymentIDs lists human payment IDs with the given prefix.
func (r *PaymentRepository) ListPaymentIDs(ctx context.Context, tx usecase.Transaction, prefix string) ([]string, error) {
	st, err := workState(tx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, p := range st.payments {
		if strings.HasPrefix(p.PaymentID, prefix) {
			ids = append(ids, p.PaymentID)
		}
	}
	return ids, nil
}

// ListByCounterparty lists committed payments of a counterparty, oldest first.
func (r *PaymentRepository) ListByCounterparty(ctx context.Context, counterpartyKey string) ([]*domain.Payment, error) {
	var out []*domain.Payment
	for _, p := range r.store.snapshot().payments {
		if p.CounterpartyKey != counterpartyKey {
			continue
		}
		p = copyPayment(p)
		out = append(out, &p)
	}
	sortPayments(out)
	return out, nil
}

// ListAll lists every committed payment, oldest first.
func (r *PaymentRepository) ListAll(ctx context.Context) ([]*domain.Payment, error) {
	snap := r.store.snapshot()
	out := make([]*domain.Payment, 0, len(snap.payments))
	for _, p := range snap.payments {
		p = copyPayment(p)
		out = append(out, &p)
	}
	sortPayments(out)
	return out, nil
}

func sortPayments(payments []*domain.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].Date.Equal(payments[j].Date) {
			return payments[i].Date.Before(payments[j].Date)
		}
		return payments[i].PaymentID < payments[j].PaymentID
	})
}
