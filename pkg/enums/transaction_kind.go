package enums

import "fmt"

// TransactionKind maps to the transaction_kind enum in Postgres.
type TransactionKind string

const (
	TransactionKindEarn     TransactionKind = "earn"
	TransactionKindRedeem   TransactionKind = "redeem"
	TransactionKindExpire   TransactionKind = "expire"
	TransactionKindRefund   TransactionKind = "refund"
	TransactionKindPurchase TransactionKind = "purchase"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindEarn,
	TransactionKindRedeem,
	TransactionKindExpire,
	TransactionKindRefund,
	TransactionKindPurchase,
}

// IsValid reports whether the value matches the canonical transaction kind enum.
func (k TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
