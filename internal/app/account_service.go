/**
 * @description
 * This file contains customer account registration, login and profile reads.
 * Registration is the single creation path: admins creating a user go through
 * CreateAccount as well.
 *
 * @notes
 * - An opening deposit is recorded as a ledger credit in the registration
 *   transaction, so the ledger always explains the balance.
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
	"github.com/shopspring/decimal"
)

var errInvalidCredentials = domain.NewError(domain.ErrAuth, "Invalid phone number or password")

// RegisterInput is the payload for opening a customer account.
type RegisterInput struct {
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Gender          string          `json:"gender"`
	DOB             string          `json:"dob"`
	Aadhaar         string          `json:"aadhaar"`
	PAN             string          `json:"pan"`
	AccountType     string          `json:"account_type"`
	TypeOfAccount   string          `json:"type_of_account"`
	InitialDeposit  decimal.Decimal `json:"initial_balance"`
	Password        string          `json:"password" validate:"required,min=6"`
	ConfirmPassword string          `json:"confirm_password" validate:"required,eqfield=Password"`
}

// Profile is an account together with its workflow flags.
type Profile struct {
	*domain.Account
	HasPendingUpdateRequest bool   `json:"has_pending_update_request"`
	KYCStatus               string `json:"kyc_status"`
}

// AccountService registers customers and authenticates them.
type AccountService struct {
	store  store.Store
	hasher auth.PasswordHasher
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

func NewAccountService(s store.Store, hasher auth.PasswordHasher, tokens *auth.TokenIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{store: s, hasher: hasher, tokens: tokens, logger: logger}
}

// Register opens an account for a customer signing up themselves.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	return s.CreateAccount(ctx, in, "self")
}

// CreateAccount validates the input, hashes the password and inserts the account.
// createdBy is recorded on the registration event ("self" or an admin ID).
func (s *AccountService) CreateAccount(ctx context.Context, in RegisterInput, createdBy string) (*domain.Account, error) {
	account := &domain.Account{
		Name:        in.Name,
		Phone:       in.Phone,
		Gender:      in.Gender,
		DOB:         in.DOB,
		Aadhaar:     in.Aadhaar,
		PAN:         in.PAN,
		AccountType: domain.AccountType(in.AccountType),
		SubType:     in.TypeOfAccount,
		Balance:     decimal.Zero,
		Role:        domain.RoleUser,
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		account.Email = &email
	}
	if err := domain.ValidateAccount(account); err != nil {
		return nil, err
	}
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.InitialDeposit.IsNegative() {
		return nil, domain.NewValidationError("initial_balance", "Initial balance cannot be negative")
	}
	if in.InitialDeposit.IsPositive() {
		if err := domain.ValidateAmount(in.InitialDeposit); err != nil {
			if de, ok := domain.AsError(err); ok {
				return nil, domain.NewValidationError("initial_balance", de.Message)
			}
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	account.PasswordHash = hash

	err = s.store.InTx(ctx, func(q store.Queries) error {
		if err := q.CreateAccount(ctx, account); err != nil {
			return err
		}
		if in.InitialDeposit.IsPositive() {
			record, err := applyBalanceDelta(ctx, q, account.ID, in.InitialDeposit, domain.Credit, "Opening balance")
			if err != nil {
				return err
			}
			account.Balance = record.BalanceAfter
		}
		return q.EnqueueEvent(ctx, domain.EventsExchange, domain.RoutingAccountRegistered, domain.AccountRegisteredEvent{
			AccountID:     account.ID,
			AccountNumber: account.AccountNumber,
			AccountType:   account.AccountType,
			CreatedBy:     createdBy,
			OccurredAt:    account.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "account_number", account.AccountNumber, "created_by", createdBy)
	return account, nil
}

// Authenticate checks a phone/password pair and issues a user token. Unknown
// phones and wrong passwords fail identically.
func (s *AccountService) Authenticate(ctx context.Context, phone, password string) (*auth.Token, error) {
	account, err := s.store.FindAccountByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials
	}
	return s.tokens.Issue(auth.Identity{SubjectID: account.ID, Role: domain.RoleUser})
}

// Profile returns the account with its pending-update flag and latest KYC status.
func (s *AccountService) Profile(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	var profile *Profile
	err := s.store.InTx(ctx, func(q store.Queries) error {
		account, err := q.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		pending, err := q.HasPendingUpdateRequest(ctx, accountID)
		if err != nil {
			return err
		}
		kycStatus := domain.KYCNotSubmitted
		latest, err := q.LatestKYCRequest(ctx, accountID)
		switch {
		case err == nil:
			kycStatus = string(latest.Status)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		profile = &Profile{Account: account, HasPendingUpdateRequest: pending, KYCStatus: kycStatus}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}
