package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

const MinPasswordLen = 8

// PasswordHasher hashes user passwords for storage in User.PasswordHash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher falls back to bcrypt.DefaultCost for out of range costs.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", apperrors.NewBadRequest(fmt.Sprintf("password must be at least %d characters", MinPasswordLen), nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", apperrors.NewInternal(fmt.Errorf("failed to hash password: %w", err))
	}
	return string(hash), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
