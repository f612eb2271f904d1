package enums

import "fmt"

// TransactionSource identifies the code path that produced a ledger entry.
type TransactionSource string

const (
	TransactionSourceCheckout TransactionSource = "checkout"
	TransactionSourceCallback TransactionSource = "payment_callback"
	TransactionSourceAdmin    TransactionSource = "admin"
)

var validTransactionSources = []TransactionSource{
	TransactionSourceCheckout,
	TransactionSourceCallback,
	TransactionSourceAdmin,
}

// IsValid reports whether the value matches the canonical source enum.
func (s TransactionSource) IsValid() bool {
	for _, candidate := range validTransactionSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionSource converts raw input into TransactionSource.
func ParseTransactionSource(value string) (TransactionSource, error) {
	for _, candidate := range validTransactionSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction source %q", value)
}
