// Package memory is an in-process store with the same transactional contract
// as the postgres adapter. Transactions are serialized and work on a private
// copy of the committed state; reads outside a transaction see the last
// committed state.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// ErrTxClosed is returned when committing a finished transaction.
var ErrTxClosed = errors.New("memory: transaction already closed")

// errForeignTx is returned when a repository receives a transaction from
// another adapter.
var errForeignTx = errors.New("memory: transaction was not started by this store")

type state struct {
	entries  map[string]domain.LedgerEntry
	payments map[string]domain.Payment
}

func newState() *state {
	return &state{
		entries:  make(map[string]domain.LedgerEntry),
		payments: make(map[string]domain.Payment),
	}
}

func (s *state) clone() *state {
	c := &state{
		entries:  make(map[string]domain.LedgerEntry, len(s.entries)),
		payments: make(map[string]domain.Payment, len(s.payments)),
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = copyPayment(v)
	}
	return c
}

func copyPayment(p domain.Payment) domain.Payment {
	p.Allocations = append([]domain.Allocation(nil), p.Allocations...)
	return p
}

// Store holds the committed state. Outbox events are kept outside the
// copy-on-write state in an append-only log with its own lock.
type Store struct {
	writer  chan struct{}
	mu      sync.RWMutex
	current *state

	outboxMu    sync.Mutex
	outbox      map[string]*domain.OutboxEvent
	outboxOrder []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		writer:  make(chan struct{}, 1),
		current: newState(),
		outbox:  make(map[string]*domain.OutboxEvent),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) acquireWriter(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) releaseWriter() {
	<-s.writer
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin waits for any running transaction to finish and starts a new one.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := m.store.acquireWriter(ctx); err != nil {
		return nil, err
	}

	return &Tx{store: m.store, work: m.store.snapshot().clone()}, nil
}

// Tx is a serialized transaction over a private copy of the state.
type Tx struct {
	store  *Store
	work   *state
	events []domain.OutboxEvent
	done   bool
}

// Commit publishes the working copy.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}

	t.store.mu.Lock()
	t.store.current = t.work
	t.store.appendEvents(t.events)
	t.store.mu.Unlock()

	t.done = true
	t.store.releaseWriter()
	return nil
}

// Rollback discards the working copy. It is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}

	t.done = true
	t.work = nil
	t.events = nil
	t.store.releaseWriter()
	return nil
}

// appendEvents is called with mu held; lock order is mu then outboxMu.
func (s *Store) appendEvents(events []domain.OutboxEvent) {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	for i := range events {
		e := events[i]
		s.outbox[e.ID] = &e
		s.outboxOrder = append(s.outboxOrder, e.ID)
	}
}

func workTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.done {
		return nil, errForeignTx
	}
	return t, nil
}

func workState(tx usecase.Transaction) (*state, error) {
	t, err := workTx(tx)
	if err != nil {
		return nil, err
	}
	return t.work, nil
}
