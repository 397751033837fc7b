/**
 * @description
 * This file contains the customer-facing HTTP handlers. Handlers parse the
 * request, call the application services and write the response; every business
 * rule lives in internal/app.
 *
 * @dependencies
 * - internal/app, internal/domain: Services, models and the error taxonomy.
 */
package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/avsbank/banking-service/internal/app"
	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Handlers holds the application services the HTTP layer dispatches to.
type Handlers struct {
	accounts *app.AccountService
	ledger   *app.LedgerService
	updates  *app.UpdateRequestService
	kyc      *app.KYCService
	admin    *app.AdminService
	logger   *slog.Logger
}

func NewHandlers(
	accounts *app.AccountService,
	ledger *app.LedgerService,
	updates *app.UpdateRequestService,
	kyc *app.KYCService,
	admin *app.AdminService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		accounts: accounts,
		ledger:   ledger,
		updates:  updates,
		kyc:      kyc,
		admin:    admin,
		logger:   logger,
	}
}

type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	Msg         string                    `json:"msg"`
	NewBalance  decimal.Decimal           `json:"new_balance"`
	Transaction *domain.TransactionRecord `json:"transaction"`
}

func identityOf(r *http.Request) auth.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}

// RegisterHandler opens a customer account.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"msg":            "User registered successfully",
		"account_number": account.AccountNumber,
		"user":           account,
	})
}

// LoginHandler exchanges a phone/password pair for a customer token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.accounts.Authenticate(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// ProfileHandler returns the caller's account with its workflow flags.
func (h *Handlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.accounts.Profile(r.Context(), identityOf(r).SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, domain.Credit)
}

func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, domain.Debit)
}

func (h *Handlers) balanceChange(w http.ResponseWriter, r *http.Request, direction domain.Direction) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	accountID := identityOf(r).SubjectID
	var (
		record *domain.TransactionRecord
		err    error
		msg    string
	)
	if direction == domain.Credit {
		record, err = h.ledger.Deposit(r.Context(), accountID, req.Amount)
		msg = "Deposit successful"
	} else {
		record, err = h.ledger.Withdraw(r.Context(), accountID, req.Amount)
		msg = "Withdrawal successful"
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Msg: msg, NewBalance: record.BalanceAfter, Transaction: record})
}

// TransactionsHandler lists the caller's newest ledger entries. ?limit= caps the count.
func (h *Handlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, domain.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}
	records, err := h.ledger.History(r.Context(), identityOf(r).SubjectID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// RequestUpdateHandler submits proposed profile values for admin approval.
func (h *Handlers) RequestUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var proposed map[string]string
	if err := decodeJSON(r, &proposed); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.updates.Submit(r.Context(), identityOf(r).SubjectID, proposed)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"msg":      "Update request submitted for admin approval",
		"requests": created,
	})
}

// RequestKYCHandler accepts the three KYC documents as multipart form files.
func (h *Handlers) RequestKYCHandler(w http.ResponseWriter, r *http.Request) {
	maxDoc := h.kyc.MaxDocumentBytes()
	kinds := domain.DocumentKinds()
	r.Body = http.MaxBytesReader(w, r.Body, maxDoc*int64(len(kinds))+1<<20)
	if err := r.ParseMultipartForm(maxDoc); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, domain.NewValidationError("", "Upload exceeds the allowed size"))
			return
		}
		h.fail(w, r, domain.NewValidationError("", "Expected a multipart form upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	docs := make(map[domain.DocumentKind]*app.Document, len(kinds))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, kind := range kinds {
		file, header, err := r.FormFile(string(kind))
		if err != nil {
			continue
		}
		opened = append(opened, file)
		docs[kind] = &app.Document{Filename: header.Filename, Size: header.Size, Content: file}
	}

	req, err := h.kyc.Submit(r.Context(), identityOf(r).SubjectID, docs)
	if err != nil {
		// The KYC route reports an already pending request as a bad request.
		if errors.Is(err, domain.ErrConflict) {
			h.failWithStatus(w, r, err, http.StatusBadRequest)
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"msg":     "KYC documents submitted for verification",
		"request": req,
	})
}
