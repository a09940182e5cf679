package auth

import (
	"crypto/sha256"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Returns nil only if they match. Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Bcrypt password hasher
// Password is pre-hashed with sha256, so bcrypt 72 bytes limit does not truncate long passwords
type BcryptHasher struct{}

// Used if user not provide it's own hasher
var DefaultHasher PasswordHasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcrypt.DefaultCost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}

// Digest compared against when user not found, so login takes the same time either way
var dummyHash = sync.OnceValue(func() string {
	hash, _ := BcryptHasher{}.Hash("dummy password nobody has")
	return hash
})
