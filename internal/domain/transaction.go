package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells whether a ledger entry added to or took from the balance.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// MaxAmount is the exclusive upper bound that fits NUMERIC(15,2).
var MaxAmount = decimal.New(1, 13)

// TransactionRecord is one immutable ledger entry.
type TransactionRecord struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Direction    Direction       `json:"type"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"timestamp"`
}

// ValidateAmount checks a money amount: strictly positive, at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("amount", "Amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return NewValidationError("amount", "Amount can have at most 2 decimal places")
	}
	if amount.GreaterThanOrEqual(MaxAmount) {
		return NewValidationError("amount", "Amount exceeds the supported range")
	}
	return nil
}
