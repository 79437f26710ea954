package memory

import (
	"context"
	"time"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create queues an event; it becomes visible when tx commits.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := workTx(tx)
	if err != nil {
		return err
	}

	t.events = append(t.events, *event)
	return nil
}

// GetUnpublished returns up to limit unpublished events in insertion order.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.outboxMu.Lock()
	defer r.store.outboxMu.Unlock()

	var out []*domain.OutboxEvent
	for _, id := range r.store.outboxOrder {
		if len(out) >= limit {
			break
		}
		e := *r.store.outbox[id]
		if e.Published {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

// MarkPublished flags an event as published. Unknown IDs are ignored.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.outboxMu.Lock()
	defer r.store.outboxMu.Unlock()

	if e, ok := r.store.outbox[id]; ok {
		e.Published = true
		e.PublishedAt = &publishedAt
	}
	return nil
}
