/**
 * @description
 * This file is the back-office gateway: admin login, review queues, account
 * administration and the dashboard. Every method assumes the caller has already
 * been authorized as an admin by the API layer.
 *
 * @notes
 * - Admin edits go through the same field enumeration as customer requests, but
 *   may also touch admin-only fields. Balance and account number stay read-only.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/google/uuid"
)

var (
	errInvalidAdminCredentials = domain.NewError(domain.ErrAuth, "Invalid username or password")
	errAdminGone               = domain.NewError(domain.ErrAuth, "Invalid or expired token")
)

// AdminService implements the admin gateway.
type AdminService struct {
	store    store.Store
	accounts *AccountService
	ledger   *LedgerService
	updates  *UpdateRequestService
	kyc      *KYCService
	hasher   auth.PasswordHasher
	tokens   *auth.TokenIssuer
	logger   *slog.Logger
}

func NewAdminService(
	s store.Store,
	accounts *AccountService,
	ledger *LedgerService,
	updates *UpdateRequestService,
	kyc *KYCService,
	hasher auth.PasswordHasher,
	tokens *auth.TokenIssuer,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		store:    s,
		accounts: accounts,
		ledger:   ledger,
		updates:  updates,
		kyc:      kyc,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger,
	}
}

// Login authenticates an admin and issues an admin token.
func (s *AdminService) Login(ctx context.Context, username, password string) (*auth.Token, error) {
	admin, err := s.store.FindAdminByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, errInvalidAdminCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(admin.PasswordHash, password); err != nil {
		return nil, errInvalidAdminCredentials
	}
	s.logger.Info("admin logged in", "admin_id", admin.ID)
	return s.tokens.Issue(auth.Identity{SubjectID: admin.ID, Role: domain.RoleAdmin})
}

// Principal returns the admin behind an admin token. A token whose admin no
// longer exists fails with an AuthError.
func (s *AdminService) Principal(ctx context.Context, adminID uuid.UUID) (*domain.Admin, error) {
	admin, err := s.store.GetAdmin(ctx, adminID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errAdminGone
		}
		return nil, err
	}
	return admin, nil
}

// CreateAdmin provisions a back-office operator.
func (s *AdminService) CreateAdmin(ctx context.Context, username, name, password string) (*domain.Admin, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if name == "" {
		missing = append(missing, "name")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError(missing[0], "Missing fields: "+strings.Join(missing, ", "))
	}
	if len(password) < 8 {
		return nil, domain.NewValidationError("password", "password must be at least 8 characters long")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	admin := &domain.Admin{Username: username, Name: name, PasswordHash: hash}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}
	s.logger.Info("admin created", "admin_id", admin.ID, "username", admin.Username)
	return admin, nil
}

// ListPendingUpdateRequests returns the profile update queue, oldest first.
func (s *AdminService) ListPendingUpdateRequests(ctx context.Context) ([]domain.FieldUpdateRequest, error) {
	return s.updates.ListPending(ctx)
}

// ListPendingKYCRequests returns the KYC queue, oldest first.
func (s *AdminService) ListPendingKYCRequests(ctx context.Context) ([]domain.KYCRequest, error) {
	return s.kyc.ListPending(ctx)
}

// Resolve applies an admin decision to a request of either kind and returns
// the resolved request.
func (s *AdminService) Resolve(ctx context.Context, kind domain.RequestKind, requestID uuid.UUID, action domain.Action, adminID uuid.UUID) (interface{}, error) {
	switch kind {
	case domain.KindUpdate:
		return s.updates.Resolve(ctx, requestID, action, adminID)
	case domain.KindKYC:
		return s.kyc.Resolve(ctx, requestID, action, adminID)
	}
	return nil, domain.NewValidationError("kind", "Unknown request kind")
}

// CreateAccount opens a customer account on behalf of a customer.
func (s *AdminService) CreateAccount(ctx context.Context, in RegisterInput, adminID uuid.UUID) (*domain.Account, error) {
	return s.accounts.CreateAccount(ctx, in, adminID.String())
}

func (s *AdminService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.store.ListAccounts(ctx)
}

func (s *AdminService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// UpdateAccount applies field edits directly, bypassing the request workflow.
// Unknown fields, balance and account number are rejected.
func (s *AdminService) UpdateAccount(ctx context.Context, id uuid.UUID, changes map[string]string) (*domain.Account, error) {
	if len(changes) == 0 {
		return nil, domain.NewError(domain.ErrNoChange, "No changes provided")
	}
	fields := make(map[domain.AccountField]string, len(changes))
	for name, value := range changes {
		field, err := domain.ParseAccountField(name)
		if err != nil {
			return nil, err
		}
		fields[field] = value
	}

	var updated *domain.Account
	err := s.store.InTx(ctx, func(q store.Queries) error {
		account, err := q.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		for _, field := range domain.AccountFields() {
			value, ok := fields[field]
			if !ok {
				continue
			}
			if err := field.Apply(account, value); err != nil {
				return err
			}
		}
		if err := q.UpdateAccount(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account updated by admin", "account_id", id, "fields", len(fields))
	return updated, nil
}

// DeleteAccount removes a customer with their ledger and requests. Stored KYC
// documents are deleted once the rows are gone.
func (s *AdminService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	var refs []string
	err := s.store.InTx(ctx, func(q store.Queries) error {
		var err error
		if refs, err = q.KYCDocumentRefs(ctx, id); err != nil {
			return err
		}
		return q.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	s.kyc.discard(refs)
	s.logger.Info("account deleted by admin", "account_id", id, "kyc_documents", len(refs))
	return nil
}

// AccountTransactions returns the newest ledger entries of one customer.
func (s *AdminService) AccountTransactions(ctx context.Context, id uuid.UUID) ([]domain.TransactionRecord, error) {
	return s.ledger.History(ctx, id, DefaultHistoryLimit)
}

func (s *AdminService) Dashboard(ctx context.Context) (*domain.DashboardStats, error) {
	return s.store.GetDashboardStats(ctx)
}
