package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avsbank/banking-service/internal/app"
	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store/storetest"
	"github.com/avsbank/banking-service/pkg/blobstore"
	"github.com/avsbank/banking-service/pkg/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (b *memBlobs) Save(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = data
	return name, nil
}

func (b *memBlobs) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[ref]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, ref)
	return nil
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	admin   *app.AdminService
	tokens  *auth.TokenIssuer
}

func newTestAPI(t *testing.T, loginLimit int) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := storetest.NewMemory()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens := auth.NewTokenIssuer(strings.Repeat("k", 32), 15*time.Minute)

	accounts := app.NewAccountService(mem, hasher, tokens, logger)
	ledger := app.NewLedgerService(mem, logger)
	updates := app.NewUpdateRequestService(mem, logger)
	kyc := app.NewKYCService(mem, &memBlobs{files: map[string][]byte{}}, 1<<20, logger)
	admin := app.NewAdminService(mem, accounts, ledger, updates, kyc, hasher, tokens, logger)

	handler := NewRouter(NewHandlers(accounts, ledger, updates, kyc, admin, logger), RouterOptions{
		Tokens:                  tokens,
		Limiter:                 middleware.NewMemoryLimiter(),
		LoginRateLimitPerMinute: loginLimit,
		AllowedOrigins:          []string{"*"},
		RequestTimeout:          5 * time.Second,
	})
	return &testAPI{t: t, handler: handler, admin: admin, tokens: tokens}
}

func (a *testAPI) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "198.51.100.7:40000"
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return a.serve(req, token)
}

func (a *testAPI) uploadKYC(token string, files map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, name := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			a.t.Fatalf("create form file: %v", err)
		}
		fmt.Fprintf(part, "contents of %s", name)
	}
	if err := mw.Close(); err != nil {
		a.t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/request-kyc-update", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.serve(req, token)
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func registration(n int) map[string]interface{} {
	return map[string]interface{}{
		"name":             "Asha Rao",
		"email":            fmt.Sprintf("asha%d@example.com", n),
		"phone":            fmt.Sprintf("90000000%02d", n),
		"gender":           "Female",
		"dob":              "1992-03-04",
		"aadhaar":          fmt.Sprintf("5555666677%02d", n),
		"pan":              fmt.Sprintf("PQRST12%02dZ", n),
		"account_type":     "savings",
		"type_of_account":  "regular",
		"password":         "hunter22",
		"confirm_password": "hunter22",
	}
}

func (a *testAPI) registerAndLogin(n int) string {
	a.t.Helper()
	expectStatus(a.t, a.do(http.MethodPost, "/register", "", registration(n)), http.StatusCreated)
	rec := a.do(http.MethodPost, "/login", "", map[string]string{
		"phone":    fmt.Sprintf("90000000%02d", n),
		"password": "hunter22",
	})
	expectStatus(a.t, rec, http.StatusOK)
	var token auth.Token
	decodeBody(a.t, rec, &token)
	return token.AccessToken
}

func (a *testAPI) adminToken() string {
	a.t.Helper()
	if _, err := a.admin.CreateAdmin(context.Background(), "ops", "Operations", "opspassword"); err != nil {
		a.t.Fatalf("CreateAdmin returned error: %v", err)
	}
	rec := a.do(http.MethodPost, "/admin/login", "", map[string]string{"username": "ops", "password": "opspassword"})
	expectStatus(a.t, rec, http.StatusOK)
	var token auth.Token
	decodeBody(a.t, rec, &token)
	if token.Role != domain.RoleAdmin {
		a.t.Fatalf("expected admin role, got %s", token.Role)
	}
	return token.AccessToken
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 0)
	rec := api.do(http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestOverlongPasswordIsBadRequest(t *testing.T) {
	api := newTestAPI(t, 0)
	admin := api.adminToken()
	long := strings.Repeat("p", 80)

	for _, path := range []string{"/register", "/admin/create-user"} {
		body := registration(9)
		body["password"], body["confirm_password"] = long, long
		token := ""
		if path == "/admin/create-user" {
			token = admin
		}

		rec := api.do(http.MethodPost, path, token, body)
		expectStatus(t, rec, http.StatusBadRequest)
		var resp errorResponse
		decodeBody(t, rec, &resp)
		if resp.Field != "password" {
			t.Fatalf("%s: expected password field, got %+v", path, resp)
		}
	}
}

func TestCustomerJourney(t *testing.T) {
	api := newTestAPI(t, 0)

	rec := api.do(http.MethodPost, "/register", "", registration(1))
	expectStatus(t, rec, http.StatusCreated)
	var registered struct {
		AccountNumber string `json:"account_number"`
	}
	decodeBody(t, rec, &registered)
	if registered.AccountNumber != "AVS1001" {
		t.Fatalf("expected AVS1001, got %s", registered.AccountNumber)
	}

	rec = api.do(http.MethodPost, "/register", "", registration(1))
	expectStatus(t, rec, http.StatusBadRequest)
	var dup errorResponse
	decodeBody(t, rec, &dup)
	if dup.Field != "phone" {
		t.Fatalf("expected duplicate phone, got %+v", dup)
	}

	rec = api.do(http.MethodPost, "/login", "", map[string]string{"phone": "9000000001", "password": "wrong"})
	expectStatus(t, rec, http.StatusUnauthorized)
	rec = api.do(http.MethodPost, "/login", "", map[string]string{"phone": "9000000001"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = api.do(http.MethodPost, "/login", "", map[string]string{"phone": "9000000001", "password": "hunter22"})
	expectStatus(t, rec, http.StatusOK)
	var token auth.Token
	decodeBody(t, rec, &token)
	user := token.AccessToken

	rec = api.do(http.MethodPost, "/deposit", user, map[string]string{"amount": "500.00"})
	expectStatus(t, rec, http.StatusOK)
	var balance struct {
		NewBalance string `json:"new_balance"`
	}
	decodeBody(t, rec, &balance)
	if balance.NewBalance != "500" {
		t.Fatalf("expected new balance 500, got %s", balance.NewBalance)
	}

	rec = api.do(http.MethodPost, "/withdraw", user, map[string]interface{}{"amount": 800})
	expectStatus(t, rec, http.StatusBadRequest)
	var insufficient errorResponse
	decodeBody(t, rec, &insufficient)
	if insufficient.Msg != "Insufficient balance" {
		t.Fatalf("unexpected message %q", insufficient.Msg)
	}

	rec = api.do(http.MethodPost, "/withdraw", user, map[string]interface{}{"amount": 120.5})
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &balance)
	if balance.NewBalance != "379.5" {
		t.Fatalf("expected new balance 379.5, got %s", balance.NewBalance)
	}

	rec = api.do(http.MethodGet, "/transactions?limit=5", user, nil)
	expectStatus(t, rec, http.StatusOK)
	var history []domain.TransactionRecord
	decodeBody(t, rec, &history)
	if len(history) != 2 || history[0].Direction != domain.Debit {
		t.Fatalf("expected withdrawal then deposit, got %+v", history)
	}

	rec = api.do(http.MethodPost, "/request-update", user, map[string]string{"name": "Asha R. Rao"})
	expectStatus(t, rec, http.StatusOK)
	rec = api.do(http.MethodPost, "/request-update", user, map[string]string{"gender": "Other"})
	expectStatus(t, rec, http.StatusConflict)

	admin := api.adminToken()
	rec = api.do(http.MethodGet, "/admin/update-requests", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var pending []domain.FieldUpdateRequest
	decodeBody(t, rec, &pending)
	if len(pending) != 1 || pending[0].AccountNumber != "AVS1001" || pending[0].NewValue != "Asha R. Rao" {
		t.Fatalf("unexpected pending queue: %+v", pending)
	}

	rec = api.do(http.MethodPost, "/admin/update-requests/"+pending[0].ID.String(), admin, map[string]string{"action": "approve"})
	expectStatus(t, rec, http.StatusOK)

	rec = api.do(http.MethodGet, "/profile", user, nil)
	expectStatus(t, rec, http.StatusOK)
	var profile struct {
		Name                    string `json:"name"`
		Balance                 string `json:"balance"`
		HasPendingUpdateRequest bool   `json:"has_pending_update_request"`
		KYCStatus               string `json:"kyc_status"`
	}
	decodeBody(t, rec, &profile)
	if profile.Name != "Asha R. Rao" || profile.Balance != "379.5" || profile.HasPendingUpdateRequest || profile.KYCStatus != "not_submitted" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("profile must not expose the password hash: %s", rec.Body.String())
	}
}

func TestKYCJourney(t *testing.T) {
	api := newTestAPI(t, 0)
	user := api.registerAndLogin(2)
	admin := api.adminToken()
	files := map[string]string{"id_document": "id.pdf", "photo": "me.jpg", "signature": "sign.jpeg"}

	rec := api.uploadKYC(user, map[string]string{"id_document": "id.pdf", "photo": "me.jpg"})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = api.uploadKYC(user, map[string]string{"id_document": "id.gif", "photo": "me.jpg", "signature": "sign.jpeg"})
	expectStatus(t, rec, http.StatusBadRequest)

	expectStatus(t, api.uploadKYC(user, files), http.StatusOK)
	rec = api.uploadKYC(user, files)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = api.do(http.MethodGet, "/admin/kyc-requests", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var pending []domain.KYCRequest
	decodeBody(t, rec, &pending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending KYC request, got %d", len(pending))
	}
	first := pending[0].ID.String()

	rec = api.do(http.MethodGet, "/admin/kyc-requests/"+first+"/documents/id_document", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "application/pdf" || rec.Body.String() != "contents of id.pdf" {
		t.Fatalf("unexpected document response %q (%s)", rec.Body.String(), rec.Header().Get("Content-Type"))
	}

	expectStatus(t, api.do(http.MethodPost, "/admin/kyc-requests/"+first, admin, map[string]string{"action": "reject"}), http.StatusOK)

	rec = api.do(http.MethodGet, "/profile", user, nil)
	if !strings.Contains(rec.Body.String(), `"kyc_status":"rejected"`) {
		t.Fatalf("expected rejected KYC status, got %s", rec.Body.String())
	}

	expectStatus(t, api.uploadKYC(user, files), http.StatusOK)
	rec = api.do(http.MethodGet, "/admin/kyc-requests", admin, nil)
	decodeBody(t, rec, &pending)
	expectStatus(t, api.do(http.MethodPost, "/admin/kyc-requests/"+pending[0].ID.String(), admin, map[string]string{"action": "approve"}), http.StatusOK)

	rec = api.uploadKYC(user, files)
	expectStatus(t, rec, http.StatusBadRequest)
	var verified errorResponse
	decodeBody(t, rec, &verified)
	if verified.Msg != "Your KYC is already verified" {
		t.Fatalf("unexpected message %q", verified.Msg)
	}
}

func TestAuthorization(t *testing.T) {
	api := newTestAPI(t, 0)
	user := api.registerAndLogin(3)
	admin := api.adminToken()
	removedAdmin, err := api.tokens.Issue(auth.Identity{SubjectID: uuid.New(), Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/profile", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/profile", "not-a-jwt", http.StatusUnauthorized},
		{"user on admin route", http.MethodGet, "/admin/dashboard", user, http.StatusForbidden},
		{"user resolving", http.MethodPost, "/admin/update-requests/00000000-0000-0000-0000-000000000000", user, http.StatusForbidden},
		{"admin on user route", http.MethodGet, "/profile", admin, http.StatusForbidden},
		{"admin dashboard", http.MethodGet, "/admin/dashboard", admin, http.StatusOK},
		{"token of removed admin", http.MethodGet, "/admin/dashboard", removedAdmin.AccessToken, http.StatusUnauthorized},
		{"user profile", http.MethodGet, "/profile", user, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, api.do(tt.method, tt.path, tt.token, nil), tt.want)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Token "+user)
	expectStatus(t, api.serve(req, ""), http.StatusUnauthorized)

	var body errorResponse
	decodeBody(t, api.do(http.MethodGet, "/admin/users", user, nil), &body)
	if body.Msg != "Admin access required" {
		t.Fatalf("unexpected forbidden message %q", body.Msg)
	}
}

func TestResolveErrors(t *testing.T) {
	api := newTestAPI(t, 0)
	user := api.registerAndLogin(4)
	admin := api.adminToken()

	expectStatus(t, api.do(http.MethodPost, "/request-update", user, map[string]string{"dob": "1999-12-31"}), http.StatusOK)
	var pending []domain.FieldUpdateRequest
	decodeBody(t, api.do(http.MethodGet, "/admin/update-requests", admin, nil), &pending)
	path := "/admin/update-requests/" + pending[0].ID.String()

	expectStatus(t, api.do(http.MethodPost, path, admin, map[string]string{"action": "maybe"}), http.StatusBadRequest)
	expectStatus(t, api.do(http.MethodPost, path, admin, map[string]string{"action": "reject"}), http.StatusOK)

	rec := api.do(http.MethodPost, path, admin, map[string]string{"action": "approve"})
	expectStatus(t, rec, http.StatusNotFound)
	var notFound errorResponse
	decodeBody(t, rec, &notFound)
	if notFound.Msg != "Request not found or already processed" {
		t.Fatalf("unexpected message %q", notFound.Msg)
	}

	expectStatus(t, api.do(http.MethodPost, "/admin/update-requests/42", admin, map[string]string{"action": "approve"}), http.StatusNotFound)
	expectStatus(t, api.do(http.MethodPost, "/admin/kyc-requests/"+pending[0].ID.String(), admin, map[string]string{"action": "approve"}), http.StatusNotFound)
}

func TestAdminUserManagement(t *testing.T) {
	api := newTestAPI(t, 0)
	admin := api.adminToken()

	body := registration(5)
	body["initial_balance"] = "250.75"
	rec := api.do(http.MethodPost, "/admin/create-user", admin, body)
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		User domain.Account `json:"user"`
	}
	decodeBody(t, rec, &created)
	path := "/admin/users/" + created.User.ID.String()

	rec = api.do(http.MethodGet, "/admin/users", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var users []domain.Account
	decodeBody(t, rec, &users)
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}

	expectStatus(t, api.do(http.MethodPut, path, admin, map[string]string{"pan": "lmnop4321q", "type_of_account": "premium"}), http.StatusOK)
	expectStatus(t, api.do(http.MethodPut, path, admin, map[string]string{"balance": "99999"}), http.StatusBadRequest)

	rec = api.do(http.MethodGet, path, admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var account domain.Account
	decodeBody(t, rec, &account)
	if account.PAN != "LMNOP4321Q" || account.SubType != "premium" || account.Balance.String() != "250.75" {
		t.Fatalf("unexpected account after edit: %+v", account)
	}

	rec = api.do(http.MethodGet, path+"/transactions", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var history []domain.TransactionRecord
	decodeBody(t, rec, &history)
	if len(history) != 1 || history[0].Description != "Opening balance" {
		t.Fatalf("unexpected history: %+v", history)
	}

	rec = api.do(http.MethodGet, "/admin/dashboard", admin, nil)
	var stats struct {
		TotalUsers   int64  `json:"total_users"`
		TotalBalance string `json:"total_balance"`
	}
	decodeBody(t, rec, &stats)
	if stats.TotalUsers != 1 || stats.TotalBalance != "250.75" {
		t.Fatalf("unexpected dashboard: %+v", stats)
	}

	expectStatus(t, api.do(http.MethodDelete, path, admin, nil), http.StatusOK)
	expectStatus(t, api.do(http.MethodGet, path, admin, nil), http.StatusNotFound)
	expectStatus(t, api.do(http.MethodGet, "/admin/users/not-a-uuid", admin, nil), http.StatusNotFound)
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t, 2)
	creds := map[string]string{"phone": "9999999999", "password": "whatever"}

	expectStatus(t, api.do(http.MethodPost, "/login", "", creds), http.StatusUnauthorized)
	expectStatus(t, api.do(http.MethodPost, "/admin/login", "", map[string]string{"username": "x", "password": "y"}), http.StatusUnauthorized)
	rec := api.do(http.MethodPost, "/login", "", creds)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("x", "bad"), http.StatusBadRequest},
		{domain.NewError(domain.ErrInsufficientFunds, "low"), http.StatusBadRequest},
		{domain.NewError(domain.ErrNoChange, "same"), http.StatusBadRequest},
		{domain.NewError(domain.ErrAlreadyVerified, "done"), http.StatusBadRequest},
		{domain.NewError(domain.ErrAuth, "who"), http.StatusUnauthorized},
		{domain.NewError(domain.ErrForbidden, "no"), http.StatusForbidden},
		{domain.NewNotFoundError("gone"), http.StatusNotFound},
		{domain.NewConflictError("busy"), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", domain.NewNotFoundError("gone")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rec := httptest.NewRecorder()
	h.fail(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: connection refused on 10.0.0.5"))

	expectStatus(t, rec, http.StatusInternalServerError)
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}
