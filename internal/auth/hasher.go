package auth

import "golang.org/x/crypto/bcrypt"

const defaultHashCost = 10

// PasswordHasher produces and verifies salted bcrypt digests.
// Plaintext passwords never leave this package's callers unhashed.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher with the default cost, tuned
// so verification takes tens of milliseconds.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: defaultHashCost}
}

// NewPasswordHasherWithCost allows tests to use bcrypt.MinCost.
func NewPasswordHasherWithCost(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultHashCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt digest of plaintext. A fresh random salt is
// embedded on every call, so two hashes of the same input differ.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext hashes to digest under the salt and
// cost embedded in the digest. bcrypt's comparison is constant-time.
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
