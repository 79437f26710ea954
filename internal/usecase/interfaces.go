package usecase

import (
	"context"
	"time"

	"github.com/iho/tradebook/internal/domain"
)

// EntryRepository defines data access for ledger entries.
type EntryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.LedgerEntry, error)
	// GetByIDsForUpdate locks the entries in the order given. Missing ids are
	// skipped, callers compare lengths.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.LedgerEntry, error)
	// UpdateBalances writes the amounts of entry if its stored version still
	// equals entry.Version, and bumps the stored version by one. A stale
	// version yields domain.ErrConcurrentModification.
	UpdateBalances(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	ListByCounterparty(ctx context.Context, counterpartyKey string, outstandingOnly bool) ([]*domain.LedgerEntry, error)
	ListAll(ctx context.Context) ([]*domain.LedgerEntry, error)
}

// PaymentRepository defines data access for payment records and their
// allocations.
type PaymentRepository interface {
	Create(ctx context.Context, tx Transaction, payment *domain.Payment) error
	Update(ctx context.Context, tx Transaction, payment *domain.Payment) error
	Delete(ctx context.Context, tx Transaction, id string) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Payment, error)
	ListPaymentIDs(ctx context.Context, tx Transaction, prefix string) ([]string, error)
	ListByCounterparty(ctx context.Context, counterpartyKey string) ([]*domain.Payment, error)
	ListAll(ctx context.Context) ([]*domain.Payment, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient store failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// SubmissionGuard serializes payment submissions per counterparty.
type SubmissionGuard interface {
	// Acquire returns false if another submission holds the key. The
	// token identifies this holder to Release.
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	// Release frees key only while token still owns it.
	Release(ctx context.Context, key, token string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically claims key with response, or with
	// IdempotencyPending when response is nil. If the key was already claimed
	// it returns true and the stored value.
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update replaces the value of a claimed key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claim so that the request can be retried.
	Release(ctx context.Context, key string) error
}
