package enums

import "fmt"

// TransactionCategory maps to the transaction_category enum in Postgres.
// One ledger posting sequence writes at most one entry per category.
type TransactionCategory string

const (
	TransactionCategoryPurchase   TransactionCategory = "purchase"
	TransactionCategoryRedemption TransactionCategory = "redemption"
	TransactionCategoryEarning    TransactionCategory = "earning"
	TransactionCategoryPromotion  TransactionCategory = "promotion"
)

var validTransactionCategories = []TransactionCategory{
	TransactionCategoryPurchase,
	TransactionCategoryRedemption,
	TransactionCategoryEarning,
	TransactionCategoryPromotion,
}

// IsValid reports whether the value matches the canonical category enum.
func (c TransactionCategory) IsValid() bool {
	for _, candidate := range validTransactionCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseTransactionCategory converts raw input into TransactionCategory.
func ParseTransactionCategory(value string) (TransactionCategory, error) {
	for _, candidate := range validTransactionCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction category %q", value)
}
