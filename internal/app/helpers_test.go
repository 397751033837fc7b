package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store/storetest"
	"github.com/avsbank/banking-service/pkg/blobstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type memoryBlobs struct {
	mu      sync.Mutex
	files   map[string][]byte
	failOn  string
	deleted []string
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{files: map[string][]byte{}}
}

func (b *memoryBlobs) Save(_ context.Context, name string, r io.Reader) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOn != "" && strings.HasPrefix(name, b.failOn) {
		return "", errors.New("disk full")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.files[name] = data
	return name, nil
}

func (b *memoryBlobs) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[ref]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBlobs) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, ref)
	b.deleted = append(b.deleted, ref)
	return nil
}

func (b *memoryBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}

type testEnv struct {
	store    *storetest.Memory
	blobs    *memoryBlobs
	tokens   *auth.TokenIssuer
	accounts *AccountService
	ledger   *LedgerService
	updates  *UpdateRequestService
	kyc      *KYCService
	admin    *AdminService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := storetest.NewMemory()
	blobs := newMemoryBlobs()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens := auth.NewTokenIssuer(strings.Repeat("t", 32), 15*time.Minute)
	logger := discardLogger()

	accounts := NewAccountService(mem, hasher, tokens, logger)
	ledger := NewLedgerService(mem, logger)
	updates := NewUpdateRequestService(mem, logger)
	kyc := NewKYCService(mem, blobs, 5<<20, logger)
	admin := NewAdminService(mem, accounts, ledger, updates, kyc, hasher, tokens, logger)

	return &testEnv{
		store:    mem,
		blobs:    blobs,
		tokens:   tokens,
		accounts: accounts,
		ledger:   ledger,
		updates:  updates,
		kyc:      kyc,
		admin:    admin,
	}
}

// registerInput returns a valid registration whose unique fields derive from n.
func registerInput(n int) RegisterInput {
	return RegisterInput{
		Name:            "Customer " + string(rune('A'+n)),
		Email:           "customer" + string(rune('a'+n)) + "@example.com",
		Phone:           "98765432" + twoDigits(n),
		Gender:          "Female",
		DOB:             "1990-05-17",
		Aadhaar:         "1234123412" + twoDigits(n),
		PAN:             "ABCDE12" + twoDigits(n) + "F",
		AccountType:     "savings",
		TypeOfAccount:   "regular",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	}
}

func twoDigits(n int) string {
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func mustRegister(t *testing.T, env *testEnv, in RegisterInput) *domain.Account {
	t.Helper()
	account, err := env.accounts.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return account
}

func mustAdmin(t *testing.T, env *testEnv) *domain.Admin {
	t.Helper()
	admin, err := env.admin.CreateAdmin(context.Background(), "root", "Root Admin", "adminpass")
	if err != nil {
		t.Fatalf("CreateAdmin returned error: %v", err)
	}
	return admin
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balanceOf(t *testing.T, env *testEnv, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := env.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	return account.Balance
}

func expectKind(t *testing.T, err error, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func kycDocs() map[domain.DocumentKind]*Document {
	return map[domain.DocumentKind]*Document{
		domain.DocumentID:        {Filename: "aadhaar.pdf", Size: 4, Content: strings.NewReader("%PDF")},
		domain.DocumentPhoto:     {Filename: "me.JPG", Size: 3, Content: strings.NewReader("jpg")},
		domain.DocumentSignature: {Filename: "sig.jpeg", Size: 3, Content: strings.NewReader("sig")},
	}
}
