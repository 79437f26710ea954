package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType records whether the amount was forced to the selected total.
type PaymentType string

const (
	PaymentTypeFull    PaymentType = "Full"
	PaymentTypePartial PaymentType = "Partial"
)

// IsValid checks if the payment type is known.
func (t PaymentType) IsValid() bool {
	return t == PaymentTypeFull || t == PaymentTypePartial
}

// PaymentMethod is the variant of a payment.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodRTGS PaymentMethod = "rtgs"
	PaymentMethodGov  PaymentMethod = "gov"
)

// PaymentDetails holds the method-specific fields of a payment.
type PaymentDetails interface {
	Method() PaymentMethod
	Validate() error
	isPaymentDetails()
}

// CashDetails describes a cash payment.
type CashDetails struct {
	ReceivedBy string `json:"received_by,omitempty"`
}

func (CashDetails) Method() PaymentMethod { return PaymentMethodCash }
func (CashDetails) isPaymentDetails()     {}
func (CashDetails) Validate() error       { return nil }

// RtgsDetails describes a bank transfer, used to print the bank advice.
type RtgsDetails struct {
	BankName      string `json:"bank_name"`
	BranchName    string `json:"branch_name,omitempty"`
	IFSC          string `json:"ifsc"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder,omitempty"`
	UTR           string `json:"utr,omitempty"`
}

func (RtgsDetails) Method() PaymentMethod { return PaymentMethodRTGS }
func (RtgsDetails) isPaymentDetails()     {}

func (d RtgsDetails) Validate() error {
	if strings.TrimSpace(d.BankName) == "" {
		return fmt.Errorf("%w: bank name is required", ErrInvalidPaymentDetails)
	}
	if strings.TrimSpace(d.AccountNumber) == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidPaymentDetails)
	}
	return ValidateIFSC(d.IFSC)
}

// GovDetails describes a payment made under a government procurement scheme.
type GovDetails struct {
	Scheme      string `json:"scheme"`
	ReferenceNo string `json:"reference_no,omitempty"`
}

func (GovDetails) Method() PaymentMethod { return PaymentMethodGov }
func (GovDetails) isPaymentDetails()     {}

func (d GovDetails) Validate() error {
	if strings.TrimSpace(d.Scheme) == "" {
		return fmt.Errorf("%w: scheme is required", ErrInvalidPaymentDetails)
	}
	return nil
}

// Allocation is the part of a payment applied to one ledger entry.
type Allocation struct {
	EntryID         string          `json:"entry_id"`
	AmountApplied   decimal.Decimal `json:"amount_applied"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
}

// Total is the reduction in the entry's outstanding amount.
func (a Allocation) Total() decimal.Decimal {
	return a.AmountApplied.Add(a.DiscountApplied)
}

// Payment is a committed payment and the exact allocations it made.
type Payment struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Date             time.Time
	Details          PaymentDetails
	ID               string
	PaymentID        string
	CounterpartyKey  string
	CounterpartyType CounterpartyType
	Type             PaymentType
	Notes            string
	Amount           decimal.Decimal
	Discount         decimal.Decimal
	Allocations      []Allocation
}

// Method returns the payment variant.
func (p *Payment) Method() PaymentMethod {
	if p.Details == nil {
		return ""
	}
	return p.Details.Method()
}

// Applied sums the cash and discount applied across all allocations.
func (p *Payment) Applied() (amount, discount decimal.Decimal) {
	amount, discount = decimal.Zero, decimal.Zero
	for _, a := range p.Allocations {
		amount = amount.Add(a.AmountApplied)
		discount = discount.Add(a.DiscountApplied)
	}
	return amount, discount
}

// EntryIDs lists the entries this payment touched, in allocation order.
func (p *Payment) EntryIDs() []string {
	ids := make([]string, len(p.Allocations))
	for i, a := range p.Allocations {
		ids[i] = a.EntryID
	}
	return ids
}

// Validate checks the record is internally consistent.
func (p *Payment) Validate() error {
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentType, p.Type)
	}

	if p.Details == nil {
		return ErrInvalidPaymentMethod
	}

	if err := p.Details.Validate(); err != nil {
		return err
	}

	if err := ValidatePaymentAmount(p.Amount); err != nil {
		return err
	}

	if err := ValidateDiscount(p.Discount); err != nil {
		return err
	}

	amount, discount := p.Applied()
	if !amount.Equal(p.Amount) || !discount.Equal(p.Discount) {
		return fmt.Errorf("%w: allocations sum to %s+%s, payment is %s+%s",
			ErrOverAllocation, amount, discount, p.Amount, p.Discount)
	}

	return ValidateNotes(p.Notes)
}
