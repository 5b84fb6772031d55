package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MaxPasswordLen    = 72 // bcrypt ignores input past 72 bytes
	TempPasswordLen   = 8
)

var (
	ErrEmptyPassword   = errors.New("password cannot be empty")
	ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", MaxPasswordLen)
)

const tempPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// Hasher hashes and verifies passwords with bcrypt
type Hasher struct {
	cost int
	// dummyHash is compared against when the account does not exist so that
	// unknown usernames cost one bcrypt comparison like a wrong password does.
	dummyHash []byte
}

// NewHasher creates a Hasher with the given bcrypt cost, falling back to the
// default when the cost is out of range
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("consensus-dummy-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("auth: generate dummy hash: %v", err))
	}
	return &Hasher{cost: cost, dummyHash: dummy}
}

// Hash returns a salted one-way hash of the password
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLen {
		return "", ErrPasswordTooLong
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify reports whether password matches hash. Malformed hashes yield false.
func (h *Hasher) Verify(password, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy performs a throwaway comparison and always returns false
func (h *Hasher) VerifyDummy(password string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
	return false
}

// GenerateTemporaryPassword returns a random alphanumeric password of length n
func GenerateTemporaryPassword(n int) (string, error) {
	if n <= 0 {
		n = TempPasswordLen
	}
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate temporary password: %w", err)
		}
		out[i] = tempPasswordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
