package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8
	// BcryptCost is the cost factor for new hashes.
	BcryptCost = 12
)

// CredentialVerifier checks a username and secret. Login is refused when no
// verifier is configured.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, secret string) (bool, error)
}

// PasswordHashes looks up the stored hash for a username; "" means unknown.
type PasswordHashes interface {
	PasswordHash(ctx context.Context, username string) (string, error)
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// dummyHash is compared against when there is no stored hash, so a missing
// account costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	b, err := bcrypt.GenerateFromPassword([]byte("no account has this password"), BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("auth: generating dummy hash: %v", err))
	}
	return b
})

// BcryptVerifier verifies secrets against bcrypt hashes held by the store.
type BcryptVerifier struct {
	Hashes PasswordHashes
}

func NewBcryptVerifier(h PasswordHashes) *BcryptVerifier {
	return &BcryptVerifier{Hashes: h}
}

func (v *BcryptVerifier) VerifyCredentials(ctx context.Context, username, secret string) (bool, error) {
	hash, err := v.Hashes.PasswordHash(ctx, username)
	if err != nil {
		return false, fmt.Errorf("loading password hash: %w", err)
	}
	// Accounts without a password cannot log in.
	if hash == "" || secret == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(secret))
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check password: %w", err)
	}
}
