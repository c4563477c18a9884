// Package password hashes and verifies user secrets with bcrypt.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned for secrets bcrypt would silently truncate.
var ErrTooLong = errors.New("secret exceeds 72 bytes")

// Hasher produces salted, slow one-way hashes. The zero value
// uses bcrypt.DefaultCost.
type Hasher struct {
	cost int
}

// NewHasher builds a Hasher. Costs outside bcrypt's range fall back to the default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the encoded bcrypt hash of secret. Every call uses a fresh salt.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) > 72 {
		return "", ErrTooLong
	}
	cost := bcrypt.DefaultCost
	if h != nil && h.cost != 0 {
		cost = h.cost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether secret matches storedHash. It never returns an error;
// a malformed hash simply does not match.
func (h *Hasher) Verify(secret, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
}
