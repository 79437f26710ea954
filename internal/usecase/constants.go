package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyPending marks a key whose request is still being served.
	IdempotencyPending = "processing"

	// SubmissionLockTTL bounds how long a counterparty stays locked if the
	// holder dies without releasing.
	SubmissionLockTTL = 30 * time.Second
)
