package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// TokenPrefix marks plaintext API tokens so they're recognizable in logs
// and pasted-token scanners without revealing anything about the hash.
const TokenPrefix = "crgs_"

// HashToken returns the SHA-256 digest of a plaintext token, the form
// stored and looked up in ApiToken.HashedToken.
func HashToken(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}

// VerifyToken checks a looked-up ApiToken against the endpoint and crate
// name the request is attempting, per §4.6 item 2.
func VerifyToken(t *registry.ApiToken, now time.Time, scope registry.EndpointScope, crateName string) error {
	if t.Revoked {
		return apperror.New(apperror.Authentication, op+".VerifyToken", "token has been revoked")
	}
	if t.Expired(now) {
		return apperror.New(apperror.Authentication, op+".VerifyToken", "token has expired")
	}
	if !t.AllowsEndpoint(scope) {
		return apperror.New(apperror.Authorization, op+".VerifyToken", "token is not scoped for this endpoint")
	}
	if len(t.CrateScope) > 0 && !matchesCrateScope(t.CrateScope, crateName) {
		return apperror.New(apperror.Authorization, op+".VerifyToken", "token is not scoped for this crate")
	}
	return nil
}

// matchesCrateScope reports whether name matches any of the exact names or
// "*"-glob patterns in scope. Only a single trailing "*" is supported, the
// form crates.io itself exposes to users when scoping a token.
func matchesCrateScope(scope []string, name string) bool {
	for _, pattern := range scope {
		if pattern == name {
			return true
		}
		if n := len(pattern); n > 0 && pattern[n-1] == '*' {
			prefix := pattern[:n-1]
			if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}

// ConstantTimeEqualHash reports whether a looked-up hash matches the hash
// of the presented plaintext, without leaking timing information.
func ConstantTimeEqualHash(stored []byte, plaintext string) bool {
	got := HashToken(plaintext)
	return subtle.ConstantTimeCompare(stored, got) == 1
}
