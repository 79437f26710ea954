package usecase

import (
	"context"
	"time"
)

// UnitOfWork runs a function inside one store transaction. The function
// receives a context bound to the transaction timeout and the transaction
// handle; returning an error rolls everything back.
type UnitOfWork struct {
	txManager TransactionManager
	retrier   Retrier
	timeout   time.Duration
}

// NewUnitOfWork creates a UnitOfWork with the default transaction timeout.
func NewUnitOfWork(txManager TransactionManager) *UnitOfWork {
	return &UnitOfWork{
		txManager: txManager,
		timeout:   DefaultTransactionTimeout,
	}
}

// WithRetrier re-runs the whole transaction on retryable failures.
func (u *UnitOfWork) WithRetrier(r Retrier) *UnitOfWork {
	u.retrier = r
	return u
}

// WithTimeout overrides the per-attempt transaction timeout.
func (u *UnitOfWork) WithTimeout(d time.Duration) *UnitOfWork {
	if d > 0 {
		u.timeout = d
	}
	return u
}

// Do executes fn atomically. Each retry starts a fresh transaction, so fn
// must not carry state between attempts other than through its result.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error {
	attempt := func() error {
		txCtx, cancel := context.WithTimeout(ctx, u.timeout)
		defer cancel()

		tx, err := u.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if u.retrier == nil {
		return attempt()
	}

	return u.retrier.Retry(ctx, attempt)
}
