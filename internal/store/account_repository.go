/**
 * @description
 * This file implements the data access layer for customer accounts, including
 * the balance column that only the ledger writes.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 */
package store

import (
	"context"
	"fmt"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, account_number, name, email, phone, gender, dob, aadhaar, pan,
	account_type, type_of_account, balance, password_hash, role, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.AccountNumber,
		&a.Name,
		&a.Email,
		&a.Phone,
		&a.Gender,
		&a.DOB,
		&a.Aadhaar,
		&a.PAN,
		&a.AccountType,
		&a.SubType,
		&a.Balance,
		&a.PasswordHash,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a customer. ID, account number and timestamps are
// assigned by the database and written back onto account.
func (q *queries) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (name, email, phone, gender, dob, aadhaar, pan, account_type,
			type_of_account, balance, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, account_number, created_at, updated_at
	`
	err := q.db.QueryRow(ctx, query,
		account.Name,
		account.Email,
		account.Phone,
		account.Gender,
		account.DOB,
		account.Aadhaar,
		account.PAN,
		string(account.AccountType),
		account.SubType,
		account.Balance,
		account.PasswordHash,
		string(account.Role),
	).Scan(&account.ID, &account.AccountNumber, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert account: %w", err))
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return q.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND role = 'user'`, id)
}

// LockAccount reads the account and holds its row lock until the transaction ends.
func (q *queries) LockAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return q.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND role = 'user' FOR UPDATE`, id)
}

func (q *queries) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return q.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1 AND role = 'user'`, phone)
}

func (q *queries) getAccount(ctx context.Context, query string, arg any) (*domain.Account, error) {
	account, err := scanAccount(q.db.QueryRow(ctx, query, arg))
	if err != nil {
		if noRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return account, nil
}

func (q *queries) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := q.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE role = 'user' ORDER BY created_at, account_number`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// UpdateAccount writes the profile columns. Balance, account number and role
// are never touched here.
func (q *queries) UpdateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET name = $2, email = $3, phone = $4, gender = $5, dob = $6, aadhaar = $7, pan = $8,
			account_type = $9, type_of_account = $10, updated_at = NOW()
		WHERE id = $1 AND role = 'user'
		RETURNING updated_at
	`
	err := q.db.QueryRow(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.Phone,
		account.Gender,
		account.DOB,
		account.Aadhaar,
		account.PAN,
		string(account.AccountType),
		account.SubType,
	).Scan(&account.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return ErrAccountNotFound
		}
		return mapError(fmt.Errorf("update account: %w", err))
	}
	return nil
}

func (q *queries) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, id, balance)
	if err != nil {
		return mapError(fmt.Errorf("update balance: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes the customer together with its ledger and requests.
func (q *queries) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND role = 'user'`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// GetDashboardStats aggregates in a single statement so all figures come from
// one snapshot.
func (q *queries) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	query := `
		SELECT 'total', '', COUNT(*), COALESCE(SUM(balance), 0) FROM accounts WHERE role = 'user'
		UNION ALL
		SELECT 'gender', gender, COUNT(*), 0 FROM accounts WHERE role = 'user' GROUP BY gender
		UNION ALL
		SELECT 'account_type', account_type, COUNT(*), 0 FROM accounts WHERE role = 'user' GROUP BY account_type
	`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.DashboardStats{
		TotalBalance:         decimal.Zero,
		GenderBreakdown:      map[string]int64{},
		AccountTypeBreakdown: map[string]int64{},
	}
	for rows.Next() {
		var (
			kind, key string
			count     int64
			sum       decimal.Decimal
		)
		if err := rows.Scan(&kind, &key, &count, &sum); err != nil {
			return nil, err
		}
		switch kind {
		case "total":
			stats.TotalUsers = count
			stats.TotalBalance = sum
		case "gender":
			stats.GenderBreakdown[key] = count
		case "account_type":
			stats.AccountTypeBreakdown[key] = count
		}
	}
	return stats, rows.Err()
}
