package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PaymentIDWidth is the zero-padded width of the numeric suffix.
const PaymentIDWidth = 5

// Payment ID prefixes per counterparty type.
const (
	PaymentIDPrefixSupplier = "SP"
	PaymentIDPrefixCustomer = "CR"
)

// PaymentIDPrefix returns the sequence prefix for payments to or from ctype.
func PaymentIDPrefix(ctype CounterpartyType) string {
	if ctype == CounterpartyCustomer {
		return PaymentIDPrefixCustomer
	}
	return PaymentIDPrefixSupplier
}

// NextPaymentID returns the next human-readable payment ID after the highest
// numeric suffix found among existing IDs with the same prefix.
func NextPaymentID(prefix string, existing []string) string {
	var highest int64
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(id, prefix)
		if !isDigits(suffix) {
			continue
		}
		// Suffixes without a representable successor are ignored.
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil || n == math.MaxInt64 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, PaymentIDWidth, highest+1)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
