/**
 * @description
 * This file defines the customer Account model and its enumerations.
 *
 * @notes
 * - Balance only ever changes through the ledger; no other write path touches it.
 * - AccountNumber is assigned by the database and never changes afterwards.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies the kind of principal a token was issued to.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AccountType is the product family of an account.
type AccountType string

const (
	SavingsAccount AccountType = "savings"
	CurrentAccount AccountType = "current"
)

// Account represents a customer and their single balance.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Email         *string         `json:"email,omitempty"`
	Phone         string          `json:"phone"`
	Gender        string          `json:"gender"`
	DOB           string          `json:"dob"`
	Aadhaar       string          `json:"aadhaar"`
	PAN           string          `json:"pan"`
	AccountType   AccountType     `json:"account_type"`
	SubType       string          `json:"type_of_account"`
	Balance       decimal.Decimal `json:"balance"`
	PasswordHash  string          `json:"-"`
	Role          Role            `json:"role"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Admin is a back-office operator. Admins never hold a balance.
type Admin struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DashboardStats is a point-in-time aggregate over customer accounts.
type DashboardStats struct {
	TotalUsers           int64            `json:"total_users"`
	TotalBalance         decimal.Decimal  `json:"total_balance"`
	GenderBreakdown      map[string]int64 `json:"gender_breakdown"`
	AccountTypeBreakdown map[string]int64 `json:"account_type_breakdown"`
}
