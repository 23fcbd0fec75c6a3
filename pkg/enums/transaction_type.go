package enums

import "fmt"

// TransactionType classifies a ledger entry.
//
// issue: stock checked out with an expected return.
// use: stock consumed with no return expected.
// add/remove: synthetic entries written by manual quantity adjustments.
type TransactionType string

const (
	TransactionTypeIssue  TransactionType = "issue"
	TransactionTypeUse    TransactionType = "use"
	TransactionTypeAdd    TransactionType = "add"
	TransactionTypeRemove TransactionType = "remove"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeIssue,
	TransactionTypeUse,
	TransactionTypeAdd,
	TransactionTypeRemove,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// RemovesStock reports whether the entry takes units out of on-hand quantity.
func (t TransactionType) RemovesStock() bool {
	return t == TransactionTypeIssue || t == TransactionTypeUse || t == TransactionTypeRemove
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
