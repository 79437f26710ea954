package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// CounterpartyType distinguishes suppliers from customers.
type CounterpartyType string

const (
	CounterpartySupplier CounterpartyType = "supplier"
	CounterpartyCustomer CounterpartyType = "customer"
)

// IsValid checks if the counterparty type is known.
func (t CounterpartyType) IsValid() bool {
	return t == CounterpartySupplier || t == CounterpartyCustomer
}

// EntryKind returns the kind of ledger entry booked against this counterparty type.
func (t CounterpartyType) EntryKind() EntryKind {
	if t == CounterpartyCustomer {
		return EntryKindSale
	}
	return EntryKindPurchase
}

// CounterpartyKey derives the grouping key for a supplier or customer from
// its name and contact number.
func CounterpartyKey(name, contact string) (string, error) {
	if err := ValidateCounterpartyName(name); err != nil {
		return "", err
	}

	normalized := strings.Join(strings.Fields(strings.ToLower(name)), " ")

	var digits strings.Builder
	for _, r := range contact {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	return fmt.Sprintf("%s|%s", normalized, digits.String()), nil
}
