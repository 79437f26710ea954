package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// CreateEntryRequest books a purchase (supplier) or sale (customer). Details
// carry the purchase or sale fields matching counterparty_type.
type CreateEntryRequest struct {
	CounterpartyName string          `json:"counterparty_name" validate:"max=255"`
	Contact          string          `json:"contact" validate:"omitempty,max=32"`
	CounterpartyType string          `json:"counterparty_type"`
	Date             *time.Time      `json:"date,omitempty"`
	Details          json.RawMessage `json:"details"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateEntryRequest) ToUseCaseInput() (usecase.CreateEntryInput, error) {
	if err := checkFields(r, nil, domain.ErrInvalidCounterparty); err != nil {
		return usecase.CreateEntryInput{}, err
	}

	cpType := domain.CounterpartyType(strings.ToLower(r.CounterpartyType))
	if !cpType.IsValid() {
		return usecase.CreateEntryInput{}, fmt.Errorf("%w: unknown counterparty type %q", domain.ErrInvalidCounterparty, r.CounterpartyType)
	}

	if len(r.Details) == 0 {
		return usecase.CreateEntryInput{}, fmt.Errorf("%w: details are required", domain.ErrInvalidEntryDetails)
	}

	details, err := domain.UnmarshalEntryDetails(cpType.EntryKind(), r.Details)
	if err != nil {
		return usecase.CreateEntryInput{}, err
	}

	return usecase.CreateEntryInput{
		Date:             r.Date,
		Details:          details,
		CounterpartyName: r.CounterpartyName,
		Contact:          r.Contact,
		CounterpartyType: cpType,
	}, nil
}

// AdjustEntryRequest corrects the amount of a ledger entry.
type AdjustEntryRequest struct {
	Delta  string `json:"delta"`
	Reason string `json:"reason" validate:"max=500"`
}

// Parse returns the adjustment delta.
func (r *AdjustEntryRequest) Parse() (decimal.Decimal, error) {
	if err := checkFields(r, nil, domain.ErrInvalidAdjustment); err != nil {
		return decimal.Zero, err
	}

	delta, err := decimal.NewFromString(r.Delta)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: delta %q", domain.ErrInvalidAdjustment, r.Delta)
	}
	return delta, nil
}

// PaymentRequest creates, edits or previews a payment. Amount may be empty
// for a Full payment. Details carry the fields of the chosen method.
type PaymentRequest struct {
	CounterpartyKey string          `json:"counterparty_key"`
	Type            string          `json:"type" validate:"omitempty,oneof=Full Partial"`
	Method          string          `json:"method"`
	Details         json.RawMessage `json:"details,omitempty"`
	EntryIDs        []string        `json:"entry_ids" validate:"max=500,dive,required,ulid_strict"`
	Amount          string          `json:"amount,omitempty"`
	Discount        string          `json:"discount,omitempty"`
	Date            *time.Time      `json:"date,omitempty"`
	Notes           string          `json:"notes,omitempty" validate:"max=1024"`
}

var paymentFieldErrors = map[string]error{
	"type":          domain.ErrInvalidPaymentType,
	"entry_ids.max": domain.ErrSelectionTooLarge,
	"entry_ids":     domain.ErrInvalidIDFormat,
	"notes":         domain.ErrNotesTooLong,
}

// ToUseCaseInput converts to use case input.
func (r *PaymentRequest) ToUseCaseInput() (usecase.PaymentInput, error) {
	if err := checkFields(r, paymentFieldErrors, domain.ErrInvalidPaymentDetails); err != nil {
		return usecase.PaymentInput{}, err
	}

	amount, err := parseOptionalDecimal(r.Amount)
	if err != nil {
		return usecase.PaymentInput{}, fmt.Errorf("%w: amount %q", domain.ErrInvalidAmount, r.Amount)
	}

	discount, err := parseOptionalDecimal(r.Discount)
	if err != nil {
		return usecase.PaymentInput{}, fmt.Errorf("%w: discount %q", domain.ErrInvalidDiscount, r.Discount)
	}

	details, err := domain.UnmarshalPaymentDetails(domain.PaymentMethod(strings.ToLower(r.Method)), r.Details)
	if err != nil {
		return usecase.PaymentInput{}, err
	}

	return usecase.PaymentInput{
		Date:            r.Date,
		Details:         details,
		CounterpartyKey: r.CounterpartyKey,
		Type:            domain.PaymentType(r.Type),
		Notes:           r.Notes,
		EntryIDs:        r.EntryIDs,
		Amount:          amount,
		Discount:        discount,
	}, nil
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
