package domain

import "time"

// Event types
const (
	EventTypePaymentCreated = "payment.created"
	EventTypePaymentEdited  = "payment.edited"
	EventTypePaymentDeleted = "payment.deleted"
	EventTypeEntryCreated   = "entry.created"
	EventTypeEntryAdjusted  = "entry.adjusted"
)

// Aggregate types
const (
	AggregateTypePayment = "payment"
	AggregateTypeEntry   = "ledger_entry"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewOutboxEvent builds an unpublished event.
func NewOutboxEvent(id, aggregateType, aggregateID, eventType string, payload map[string]any, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}

// PaymentEventPayload describes a payment and what it touched.
func PaymentEventPayload(p *Payment) map[string]any {
	allocations := make([]map[string]any, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		allocations = append(allocations, map[string]any{
			"entry_id":         a.EntryID,
			"amount_applied":   a.AmountApplied.String(),
			"discount_applied": a.DiscountApplied.String(),
		})
	}

	return map[string]any{
		"payment_id":       p.PaymentID,
		"counterparty_key": p.CounterpartyKey,
		"type":             string(p.Type),
		"method":           string(p.Method()),
		"amount":           p.Amount.String(),
		"discount":         p.Discount.String(),
		"allocations":      allocations,
		"event_at":         p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// EntryEventPayload describes the balances of a ledger entry.
func EntryEventPayload(e *LedgerEntry) map[string]any {
	return map[string]any{
		"entry_id":           e.ID,
		"counterparty_key":   e.CounterpartyKey,
		"kind":               string(e.Kind()),
		"original_amount":    e.OriginalAmount.String(),
		"outstanding_amount": e.OutstandingAmount.String(),
	}
}
