package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SettledThreshold is the outstanding amount below which an entry counts as
// fully settled.
var SettledThreshold = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// EntryKind is the variant of a ledger entry.
type EntryKind string

const (
	EntryKindPurchase EntryKind = "purchase"
	EntryKindSale     EntryKind = "sale"
)

// Basis is the quantity/price basis an entry amount was computed from.
type Basis struct {
	Weight           decimal.Decimal
	Rate             decimal.Decimal
	DeductionPercent decimal.Decimal
}

// EntryDetails holds the variant-specific fields of a ledger entry.
type EntryDetails interface {
	Kind() EntryKind
	Amount() decimal.Decimal
	Basis() Basis
	Validate() error
	isEntryDetails()
}

// PurchaseDetails describes goods bought from a supplier.
type PurchaseDetails struct {
	Variety       string          `json:"variety"`
	GrossWeight   decimal.Decimal `json:"gross_weight"`
	TareWeight    decimal.Decimal `json:"tare_weight"`
	KartaPercent  decimal.Decimal `json:"karta_percent"`
	Rate          decimal.Decimal `json:"rate"`
	LabourCharges decimal.Decimal `json:"labour_charges"`
	KanataCharges decimal.Decimal `json:"kanata_charges"`
}

func (PurchaseDetails) Kind() EntryKind { return EntryKindPurchase }
func (PurchaseDetails) isEntryDetails() {}

// NetWeight is gross minus tare minus the karta deduction.
func (d PurchaseDetails) NetWeight() decimal.Decimal {
	weight := d.GrossWeight.Sub(d.TareWeight)
	karta := weight.Mul(d.KartaPercent).Div(hundred)
	return weight.Sub(karta)
}

// Amount is the payable to the supplier.
func (d PurchaseDetails) Amount() decimal.Decimal {
	return d.NetWeight().Mul(d.Rate).Sub(d.LabourCharges).Sub(d.KanataCharges).Round(2)
}

func (d PurchaseDetails) Basis() Basis {
	return Basis{Weight: d.NetWeight(), Rate: d.Rate, DeductionPercent: d.KartaPercent}
}

func (d PurchaseDetails) Validate() error {
	switch {
	case !d.GrossWeight.IsPositive():
		return fmt.Errorf("%w: gross weight must be positive", ErrInvalidEntryDetails)
	case d.TareWeight.IsNegative() || d.TareWeight.GreaterThanOrEqual(d.GrossWeight):
		return fmt.Errorf("%w: tare weight must be between zero and gross weight", ErrInvalidEntryDetails)
	case d.KartaPercent.IsNegative() || d.KartaPercent.GreaterThanOrEqual(hundred):
		return fmt.Errorf("%w: karta percent must be in [0, 100)", ErrInvalidEntryDetails)
	case !d.Rate.IsPositive():
		return fmt.Errorf("%w: rate must be positive", ErrInvalidEntryDetails)
	case d.LabourCharges.IsNegative() || d.KanataCharges.IsNegative():
		return fmt.Errorf("%w: charges must not be negative", ErrInvalidEntryDetails)
	case !d.Amount().IsPositive():
		return fmt.Errorf("%w: charges exceed purchase value", ErrInvalidEntryDetails)
	}
	return nil
}

// SaleDetails describes goods sold to a customer.
type SaleDetails struct {
	Variety          string          `json:"variety"`
	Weight           decimal.Decimal `json:"weight"`
	Bags             int64           `json:"bags"`
	Rate             decimal.Decimal `json:"rate"`
	BrokeragePercent decimal.Decimal `json:"brokerage_percent"`
	TransportCharges decimal.Decimal `json:"transport_charges"`
}

func (SaleDetails) Kind() EntryKind { return EntryKindSale }
func (SaleDetails) isEntryDetails() {}

// Amount is the receivable from the customer.
func (d SaleDetails) Amount() decimal.Decimal {
	gross := d.Weight.Mul(d.Rate)
	brokerage := gross.Mul(d.BrokeragePercent).Div(hundred)
	return gross.Sub(brokerage).Sub(d.TransportCharges).Round(2)
}

func (d SaleDetails) Basis() Basis {
	return Basis{Weight: d.Weight, Rate: d.Rate, DeductionPercent: d.BrokeragePercent}
}

func (d SaleDetails) Validate() error {
	switch {
	case !d.Weight.IsPositive():
		return fmt.Errorf("%w: weight must be positive", ErrInvalidEntryDetails)
	case d.Bags < 0:
		return fmt.Errorf("%w: bags must not be negative", ErrInvalidEntryDetails)
	case !d.Rate.IsPositive():
		return fmt.Errorf("%w: rate must be positive", ErrInvalidEntryDetails)
	case d.BrokeragePercent.IsNegative() || d.BrokeragePercent.GreaterThanOrEqual(hundred):
		return fmt.Errorf("%w: brokerage percent must be in [0, 100)", ErrInvalidEntryDetails)
	case d.TransportCharges.IsNegative():
		return fmt.Errorf("%w: transport charges must not be negative", ErrInvalidEntryDetails)
	case !d.Amount().IsPositive():
		return fmt.Errorf("%w: charges exceed sale value", ErrInvalidEntryDetails)
	}
	return nil
}

// LedgerEntry is a purchase or sale with an outstanding balance.
// OutstandingAmount is only changed by payment allocation, reversal and
// explicit adjustment.
type LedgerEntry struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Date              time.Time
	Details           EntryDetails
	ID                string
	CounterpartyKey   string
	CounterpartyType  CounterpartyType
	OriginalAmount    decimal.Decimal
	OutstandingAmount decimal.Decimal
	Version           int64
}

// NewLedgerEntry creates an entry whose outstanding amount equals its
// original amount.
func NewLedgerEntry(id, counterpartyKey string, counterpartyType CounterpartyType, date time.Time, details EntryDetails, now time.Time) (*LedgerEntry, error) {
	if counterpartyKey == "" {
		return nil, fmt.Errorf("%w: counterparty key is required", ErrInvalidCounterparty)
	}

	if !counterpartyType.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCounterparty, counterpartyType)
	}

	if details == nil {
		return nil, fmt.Errorf("%w: details are required", ErrInvalidEntryDetails)
	}

	if details.Kind() != counterpartyType.EntryKind() {
		return nil, fmt.Errorf("%w: %s entry for %s", ErrKindMismatch, details.Kind(), counterpartyType)
	}

	if err := details.Validate(); err != nil {
		return nil, err
	}

	if date.IsZero() {
		date = now
	}

	amount := details.Amount()

	return &LedgerEntry{
		ID:                id,
		CounterpartyKey:   counterpartyKey,
		CounterpartyType:  counterpartyType,
		Date:              date,
		Details:           details,
		OriginalAmount:    amount,
		OutstandingAmount: amount,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Kind returns the entry variant.
func (e *LedgerEntry) Kind() EntryKind {
	return e.Details.Kind()
}

// IsSettled reports whether the entry is considered fully paid.
func (e *LedgerEntry) IsSettled() bool {
	return e.OutstandingAmount.LessThan(SettledThreshold)
}

// Paid returns how much of the entry has been settled so far.
func (e *LedgerEntry) Paid() decimal.Decimal {
	return e.OriginalAmount.Sub(e.OutstandingAmount)
}

// Decrement applies an allocation to the outstanding balance.
func (e *LedgerEntry) Decrement(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	next := e.OutstandingAmount.Sub(amount)
	if next.IsNegative() {
		return fmt.Errorf("%w: entry %s outstanding %s, applying %s", ErrOverAllocation, e.ID, e.OutstandingAmount, amount)
	}

	e.OutstandingAmount = next
	return nil
}

// Increment restores a previously applied allocation.
func (e *LedgerEntry) Increment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	next := e.OutstandingAmount.Add(amount)
	if next.GreaterThan(e.OriginalAmount) {
		return fmt.Errorf("%w: entry %s original %s, restoring to %s", ErrReversalExceedsOriginal, e.ID, e.OriginalAmount, next)
	}

	e.OutstandingAmount = next
	return nil
}

// Adjust changes the original and outstanding amounts by the same delta,
// e.g. for a government top-up.
func (e *LedgerEntry) Adjust(delta decimal.Decimal) error {
	if delta.IsZero() {
		return fmt.Errorf("%w: delta must not be zero", ErrInvalidAdjustment)
	}

	original := e.OriginalAmount.Add(delta)
	outstanding := e.OutstandingAmount.Add(delta)
	if !original.IsPositive() || outstanding.IsNegative() {
		return fmt.Errorf("%w: entry %s by %s", ErrInvalidAdjustment, e.ID, delta)
	}

	e.OriginalAmount = original
	e.OutstandingAmount = outstanding
	return nil
}
