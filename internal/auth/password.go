// ABOUTME: Password verification against bcrypt hashes and legacy plaintext credentials
// ABOUTME: Signals when a matched plaintext credential should be upgraded to a hash

package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// hashPrefix marks a stored credential as a bcrypt hash ($2a$, $2b$, $2y$).
const hashPrefix = "$2"

// dummyHash is compared against when there is no real credential, so unknown
// emails cost as much as wrong passwords.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// VerifyResult is the outcome of checking a password.
type VerifyResult struct {
	Valid bool

	// UpgradeNeeded is set when the password matched a credential that is not
	// a usable bcrypt hash and should be replaced by one.
	UpgradeNeeded bool
}

// PasswordVerifier checks and produces stored credentials.
// It holds no mutable state; one instance serves all requests.
type PasswordVerifier struct {
	cost int
}

// NewPasswordVerifier creates a verifier that hashes at the given bcrypt cost.
// Zero selects bcrypt.DefaultCost; values outside bcrypt's range are clamped.
func NewPasswordVerifier(cost int) *PasswordVerifier {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &PasswordVerifier{cost: cost}
}

// Cost returns the bcrypt cost used by Hash.
func (v *PasswordVerifier) Cost() int {
	return v.cost
}

// IsHashed reports whether stored looks like a bcrypt hash.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, hashPrefix)
}

// Verify checks plaintext against a stored credential.
//
// Hash-marked credentials are compared with bcrypt. If bcrypt cannot use the
// stored value at all (anything other than a plain mismatch), the check falls
// back to plaintext equality, and a match there asks for an upgrade.
// Credentials without the marker are compared as plaintext and always ask for
// an upgrade on match. An empty stored credential never verifies.
func (v *PasswordVerifier) Verify(plaintext, stored string) VerifyResult {
	if stored == "" {
		v.DummyCompare(plaintext)
		return VerifyResult{}
	}

	if IsHashed(stored) {
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
		if err == nil {
			return VerifyResult{Valid: true}
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return VerifyResult{}
		}
		// Malformed hash: treat the column as a legacy value.
	}

	if constantTimeEqual(plaintext, stored) {
		return VerifyResult{Valid: true, UpgradeNeeded: true}
	}
	return VerifyResult{}
}

// Hash returns a bcrypt hash of plaintext at the verifier's cost.
func (v *PasswordVerifier) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// DummyCompare burns one bcrypt comparison and discards the result.
func (v *PasswordVerifier) DummyCompare(plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plaintext))
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
