/**
 * @description
 * This file contains the ledger: the only code path that changes an account
 * balance. Every change locks the account row, checks funds, writes the new
 * balance, appends a transaction record and enqueues an event in one transaction.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// LedgerService handles deposits, withdrawals and transaction history.
type LedgerService struct {
	store  store.Store
	logger *slog.Logger
}

func NewLedgerService(s store.Store, logger *slog.Logger) *LedgerService {
	return &LedgerService{store: s, logger: logger}
}

// Deposit credits amount and returns the new balance.
func (s *LedgerService) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.TransactionRecord, error) {
	return s.ApplyBalanceDelta(ctx, accountID, amount, domain.Credit, "Deposit")
}

// Withdraw debits amount and returns the new balance. The balance never goes negative.
func (s *LedgerService) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.TransactionRecord, error) {
	return s.ApplyBalanceDelta(ctx, accountID, amount, domain.Debit, "Withdrawal")
}

// ApplyBalanceDelta moves money in or out of one account atomically.
func (s *LedgerService) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, direction domain.Direction, description string) (*domain.TransactionRecord, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var record *domain.TransactionRecord
	err := s.store.InTx(ctx, func(q store.Queries) error {
		var err error
		record, err = applyBalanceDelta(ctx, q, accountID, amount, direction, description)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ledger entry recorded",
		"account_id", accountID,
		"direction", direction,
		"amount", amount.String(),
		"balance_after", record.BalanceAfter.String(),
	)
	return record, nil
}

// applyBalanceDelta runs inside an open transaction. Registration reuses it for
// the opening balance.
func applyBalanceDelta(ctx context.Context, q store.Queries, accountID uuid.UUID, amount decimal.Decimal, direction domain.Direction, description string) (*domain.TransactionRecord, error) {
	account, err := q.LockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var balance decimal.Decimal
	switch direction {
	case domain.Credit:
		balance = account.Balance.Add(amount)
		if balance.GreaterThanOrEqual(domain.MaxAmount) {
			return nil, domain.NewValidationError("amount", "Resulting balance exceeds the supported range")
		}
	case domain.Debit:
		if amount.GreaterThan(account.Balance) {
			return nil, domain.NewError(domain.ErrInsufficientFunds, "Insufficient balance")
		}
		balance = account.Balance.Sub(amount)
	default:
		return nil, domain.NewValidationError("type", "Unknown transaction direction")
	}

	if err := q.UpdateBalance(ctx, accountID, balance); err != nil {
		return nil, err
	}

	record := &domain.TransactionRecord{
		AccountID:    accountID,
		Amount:       amount,
		Direction:    direction,
		Description:  description,
		BalanceAfter: balance,
	}
	if err := q.InsertTransaction(ctx, record); err != nil {
		return nil, err
	}

	event := domain.LedgerEntryRecordedEvent{
		TransactionID: record.ID,
		AccountID:     accountID,
		Direction:     direction,
		Amount:        amount,
		BalanceAfter:  balance,
		Description:   description,
		OccurredAt:    record.CreatedAt,
	}
	if err := q.EnqueueEvent(ctx, domain.EventsExchange, domain.RoutingLedgerEntryRecorded, event); err != nil {
		return nil, err
	}
	return record, nil
}

// History returns the newest ledger entries for an account. limit <= 0 means
// DefaultHistoryLimit; larger values are capped at MaxHistoryLimit.
func (s *LedgerService) History(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, accountID, limit)
}
