package domain

import (
	"encoding/json"
	"fmt"
)

// MarshalEntryDetails encodes entry details for storage.
func MarshalEntryDetails(d EntryDetails) ([]byte, error) {
	if d == nil {
		return nil, ErrInvalidEntryDetails
	}
	return json.Marshal(d)
}

// UnmarshalEntryDetails decodes stored entry details of the given kind.
func UnmarshalEntryDetails(kind EntryKind, data []byte) (EntryDetails, error) {
	switch kind {
	case EntryKindPurchase:
		var d PurchaseDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntryDetails, err)
		}
		return d, nil
	case EntryKindSale:
		var d SaleDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntryDetails, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntryDetails, kind)
	}
}

// MarshalPaymentDetails encodes payment details for storage.
func MarshalPaymentDetails(d PaymentDetails) ([]byte, error) {
	if d == nil {
		return nil, ErrInvalidPaymentMethod
	}
	return json.Marshal(d)
}

// UnmarshalPaymentDetails decodes stored payment details of the given method.
func UnmarshalPaymentDetails(method PaymentMethod, data []byte) (PaymentDetails, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch method {
	case PaymentMethodCash:
		var d CashDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentDetails, err)
		}
		return d, nil
	case PaymentMethodRTGS:
		var d RtgsDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentDetails, err)
		}
		return d, nil
	case PaymentMethodGov:
		var d GovDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentDetails, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}
}
