/**
 * @description
 * This file contains the admin gateway handlers: login, dashboard, account
 * administration and the two review queues.
 */
package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/avsbank/banking-service/internal/app"
	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type resolveRequest struct {
	Action string `json:"action"`
}

// pathID parses the {id} URL parameter. Malformed IDs are reported as notFound.
func pathID(r *http.Request, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}

// AdminLoginHandler exchanges a username/password pair for an admin token.
func (h *Handlers) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.admin.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CreateUserHandler opens a customer account on the customer's behalf.
func (h *Handlers) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.admin.CreateAccount(r.Context(), in, identityOf(r).SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"msg":            "User created successfully",
		"account_number": account.AccountNumber,
		"user":           account,
	})
}

func (h *Handlers) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.admin.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, store.ErrAccountNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.admin.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdateUserHandler edits account fields directly. The body maps field names to new values.
func (h *Handlers) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, store.ErrAccountNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var changes map[string]string
	if err := decodeJSON(r, &changes); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.admin.UpdateAccount(r.Context(), id, changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"msg":  "User updated successfully",
		"user": account,
	})
}

func (h *Handlers) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, store.ErrAccountNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.admin.DeleteAccount(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User deleted successfully")
}

func (h *Handlers) UserTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, store.ErrAccountNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.admin.AccountTransactions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handlers) ListUpdateRequestsHandler(w http.ResponseWriter, r *http.Request) {
	requests, err := h.admin.ListPendingUpdateRequests(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *Handlers) ListKYCRequestsHandler(w http.ResponseWriter, r *http.Request) {
	requests, err := h.admin.ListPendingKYCRequests(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *Handlers) ResolveUpdateRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.KindUpdate)
}

func (h *Handlers) ResolveKYCRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.KindKYC)
}

func (h *Handlers) resolve(w http.ResponseWriter, r *http.Request, kind domain.RequestKind) {
	id, err := pathID(r, store.ErrRequestNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resolved, err := h.admin.Resolve(r.Context(), kind, id, action, identityOf(r).SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"msg":     "Request " + string(action.Target()),
		"request": resolved,
	})
}

// KYCDocumentHandler streams one stored document of a KYC request.
func (h *Handlers) KYCDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, store.ErrRequestNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kind := domain.DocumentKind(chi.URLParam(r, "kind"))

	rc, ref, err := h.kyc.OpenDocument(r.Context(), id, kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", documentContentType(ref))
	w.Header().Set("Content-Disposition", `inline; filename="`+ref+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("kyc document stream interrupted", "request_id", id, "kind", kind, "error", err)
	}
}

func documentContentType(ref string) string {
	switch {
	case strings.HasSuffix(ref, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(ref, ".jpg"), strings.HasSuffix(ref, ".jpeg"):
		return "image/jpeg"
	}
	return "application/octet-stream"
}
