package store

import (
	"context"
	"fmt"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/google/uuid"
)

// InsertTransaction appends a ledger entry. Entries are never updated afterwards.
func (q *queries) InsertTransaction(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO transactions (account_id, amount, direction, description, balance_after)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := q.db.QueryRow(ctx, query,
		record.AccountID,
		record.Amount,
		string(record.Direction),
		record.Description,
		record.BalanceAfter,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert transaction: %w", err))
	}
	return nil
}

// ListTransactions returns the newest entries first.
func (q *queries) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, account_id, amount, direction, description, balance_after, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := q.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	records := []domain.TransactionRecord{}
	for rows.Next() {
		var r domain.TransactionRecord
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Amount, &r.Direction, &r.Description, &r.BalanceAfter, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
