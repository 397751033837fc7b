/**
 * @description
 * This file defines the interfaces for the data access layer. Services depend on
 * these interfaces, never on the PostgreSQL implementation, so workflows can be
 * tested against the in-memory store in storetest.
 *
 * @notes
 * - Queries runs against whatever connection it was created for: the pool for
 *   standalone reads, or an open transaction inside Store.InTx.
 * - Lock* methods take a row lock (SELECT ... FOR UPDATE) and are only meaningful
 *   inside InTx.
 */
package store

import (
	"context"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = domain.NewNotFoundError("Account not found")
	ErrAdminNotFound   = domain.NewNotFoundError("Admin not found")
	ErrRequestNotFound = domain.NewNotFoundError("Request not found or already processed")
)

// Queries is the set of data operations available inside and outside a transaction.
type Queries interface {
	AccountQueries
	LedgerQueries
	UpdateRequestQueries
	KYCRequestQueries
	AdminQueries

	// EnqueueEvent writes an event to the outbox. Call it inside the transaction
	// that makes the state change the event describes.
	EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

type AccountQueries interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	LockAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, account *domain.Account) error
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

type LedgerQueries interface {
	InsertTransaction(ctx context.Context, record *domain.TransactionRecord) error
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error)
}

type UpdateRequestQueries interface {
	HasPendingUpdateRequest(ctx context.Context, accountID uuid.UUID) (bool, error)
	InsertUpdateRequest(ctx context.Context, req *domain.FieldUpdateRequest) error
	LockUpdateRequest(ctx context.Context, id uuid.UUID) (*domain.FieldUpdateRequest, error)
	ResolveUpdateRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, adminID uuid.UUID, at time.Time) error
	ListPendingUpdateRequests(ctx context.Context) ([]domain.FieldUpdateRequest, error)
}

type KYCRequestQueries interface {
	// FindActiveKYCRequest returns the account's pending or approved request, or ErrRequestNotFound.
	FindActiveKYCRequest(ctx context.Context, accountID uuid.UUID) (*domain.KYCRequest, error)
	LatestKYCRequest(ctx context.Context, accountID uuid.UUID) (*domain.KYCRequest, error)
	GetKYCRequest(ctx context.Context, id uuid.UUID) (*domain.KYCRequest, error)
	InsertKYCRequest(ctx context.Context, req *domain.KYCRequest) error
	LockKYCRequest(ctx context.Context, id uuid.UUID) (*domain.KYCRequest, error)
	ResolveKYCRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, adminID uuid.UUID, at time.Time) error
	ListPendingKYCRequests(ctx context.Context) ([]domain.KYCRequest, error)
	// KYCDocumentRefs lists the blob references of every KYC request of the account.
	KYCDocumentRefs(ctx context.Context, accountID uuid.UUID) ([]string, error)
}

type AdminQueries interface {
	CreateAdmin(ctx context.Context, admin *domain.Admin) error
	FindAdminByUsername(ctx context.Context, username string) (*domain.Admin, error)
	GetAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
}

// Store is the unit-of-work entry point handed to every service.
type Store interface {
	Queries
	// InTx runs fn inside one transaction. A non-nil error from fn rolls back
	// every write fn made, including enqueued events.
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// OutboxMessage is one claimed event awaiting publication.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// OutboxRepository is used by the dispatcher to drain the event outbox.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error
}

var constraintErrors = map[string]*domain.Error{
	"accounts_phone_key":            domain.NewValidationError("phone", "Phone number already registered"),
	"accounts_email_key":            domain.NewValidationError("email", "Email already registered"),
	"accounts_aadhaar_key":          domain.NewValidationError("aadhaar", "Aadhaar already registered"),
	"accounts_pan_key":              domain.NewValidationError("pan", "PAN already registered"),
	"admins_username_key":           domain.NewValidationError("username", "Username already exists"),
	"kyc_requests_one_active_idx":   domain.NewConflictError("A KYC request is already pending or approved"),
	"update_requests_one_pending":   domain.NewConflictError("You already have a pending update request"),
	"accounts_balance_non_negative": domain.NewError(domain.ErrInsufficientFunds, "Insufficient balance"),
}

// ConstraintError translates a violated constraint name into the domain error
// clients see. ok is false for constraints without a mapping.
func ConstraintError(name string) (*domain.Error, bool) {
	de, ok := constraintErrors[name]
	return de, ok
}
