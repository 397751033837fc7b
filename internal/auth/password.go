package auth

import (
	"fmt"
	"sync"

	"github.com/avsbank/banking-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt can hash. The limit is in
// bytes, not characters.
const MaxPasswordBytes = 72

// PasswordHasher hashes and checks login passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	// CompareDummy spends the same time as a real comparison and always fails.
	// Use it when the principal does not exist.
	CompareDummy(password string)
}

// BcryptHasher is the production PasswordHasher. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int

	once  sync.Once
	dummy []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash rejects passwords longer than MaxPasswordBytes with a ValidationError.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", domain.NewValidationError("password", fmt.Sprintf("password must be at most %d bytes long", MaxPasswordBytes))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (h *BcryptHasher) CompareDummy(password string) {
	h.once.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("avs-dummy-password"), h.cost())
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
