// Package trustpub implements the Trusted Publishing token exchange
// (spec §4.6 item 3 and §5): trading a short-lived OIDC ID token from a CI
// provider for a short-lived, crate-scoped registry token, the same
// "exchange a foreign credential for a bounded one" shape the teacher
// applies to its own registry auth tokens.
package trustpub

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

const op = "trustpub"

// Claims is the subset of a CI provider's OIDC ID token this package reads.
// GitHub Actions is the reference shape; other providers map their own
// claims onto the same fields at the KeyFunc/issuer-allowlist boundary.
type Claims struct {
	jwt.RegisteredClaims
	RepositoryOwner string `json:"repository_owner"`
	Repository      string `json:"repository"`
	WorkflowRef     string `json:"job_workflow_ref"`
	Environment     string `json:"environment,omitempty"`
	RunID           string `json:"run_id,omitempty"`
}

// ConfigStore resolves the TrustedPublisherConfig a claimed identity must
// match before a token is minted.
type ConfigStore interface {
	TrustedPublisherConfig(ctx context.Context, provider, repo, workflow string) (*registry.TrustedPublisherConfig, bool, error)
}

// TokenStore persists the minted, hashed token.
type TokenStore interface {
	MintToken(ctx context.Context, hashed []byte, userID int64, crateIDs []int64, expiresAt time.Time) error
}

// JTIStore guards against ID token replay: an OIDC ID token's "jti" claim
// may be exchanged at most once.
type JTIStore interface {
	RecordJTI(ctx context.Context, jti string, expiresAt time.Time) (fresh bool, err error)
}

// Options configures an Exchanger.
type Options struct {
	Provider string // e.g. "github", matched against TrustedPublisherConfig.Provider
	Keys     jwt.Keyfunc
	Configs  ConfigStore
	Tokens   TokenStore
	JTIs     JTIStore
	TokenTTL time.Duration
}

// Exchanger implements the OIDC-token-for-registry-token exchange.
type Exchanger struct {
	*Options
}

// New constructs an Exchanger from opts.
func New(opts *Options) *Exchanger {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	return &Exchanger{Options: opts}
}

// Exchange validates idToken's signature and claims, matches it against a
// registered TrustedPublisherConfig, and mints a single-crate-scoped
// registry token valid for TokenTTL.
func (e *Exchanger) Exchange(ctx context.Context, idToken string, now time.Time) (plaintext string, expiresAt time.Time, err error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	token, parseErr := parser.ParseWithClaims(idToken, &claims, e.Keys)
	if parseErr != nil || !token.Valid {
		return "", time.Time{}, apperror.Wrap(apperror.Authentication, op+".Exchange", "invalid OIDC id token", parseErr)
	}

	cfg, found, err := e.Configs.TrustedPublisherConfig(ctx, e.Provider, claims.RepositoryOwner+"/"+claims.Repository, claims.WorkflowRef)
	if err != nil {
		return "", time.Time{}, err
	}
	if !found {
		return "", time.Time{}, apperror.New(apperror.Authorization, op+".Exchange", "no trusted publisher is configured for this repository and workflow")
	}
	if cfg.Environment != "" && cfg.Environment != claims.Environment {
		return "", time.Time{}, apperror.New(apperror.Authorization, op+".Exchange", "id token environment does not match the configured trusted publisher")
	}

	if claims.ID == "" {
		return "", time.Time{}, apperror.New(apperror.Authentication, op+".Exchange", "id token is missing a jti claim")
	}
	fresh, err := e.JTIs.RecordJTI(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return "", time.Time{}, err
	}
	if !fresh {
		return "", time.Time{}, apperror.New(apperror.Authentication, op+".Exchange", "id token has already been exchanged")
	}

	plaintext = auth.TrustPubTokenPrefix + uuid.NewString()
	expiresAt = now.Add(e.TokenTTL)
	if err := e.Tokens.MintToken(ctx, auth.HashToken(plaintext), cfg.RepoOwnerID, []int64{cfg.CrateID}, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return plaintext, expiresAt, nil
}
