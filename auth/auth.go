package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// CredentialKind tags which of §4.6's three forms produced an
// AuthorizedUser.
type CredentialKind string

const (
	CredentialCookie   CredentialKind = "cookie"
	CredentialApiToken CredentialKind = "api_token"
	CredentialTrustPub CredentialKind = "trustpub"
)

// TrustPubTokenPrefix distinguishes a trusted-publishing token from a
// regular ApiToken presented in the same Authorization header.
const TrustPubTokenPrefix = "crgs_trustpub_"

// AuthorizedUser is the result of a successful Authenticate call,
// carrying the provenance needed to resolve its permission set.
type AuthorizedUser struct {
	UserID           int64
	GitHubID         int64
	Provenance       CredentialKind
	TokenID          int64 // 0 unless Provenance is ApiToken
	TrustPubCrateIDs []int64
}

// UserStore resolves the User a credential identifies.
type UserStore interface {
	UserByID(ctx context.Context, id int64) (*registry.User, error)
}

// ApiTokenStore resolves an ApiToken by its hash. It does not record the
// token's use: last_used_at is not updated here.
type ApiTokenStore interface {
	ApiTokenByHash(ctx context.Context, hash []byte) (*registry.ApiToken, error)
}

// TrustPubToken is a minted, short-lived trusted-publishing token, scoped
// to the set of crate ids it may publish updates for.
type TrustPubToken struct {
	HashedToken []byte
	UserID      int64
	CrateIDs    []int64
	ExpiresAt   time.Time
}

// TrustPubTokenStore resolves a minted trusted-publishing token.
type TrustPubTokenStore interface {
	TrustPubTokenByHash(ctx context.Context, hash []byte) (*TrustPubToken, error)
}

// Options configures an Authenticator.
type Options struct {
	Users          UserStore
	ApiTokens      ApiTokenStore
	TrustPubTokens TrustPubTokenStore
	CookieSecret   []byte
	AllowedOrigins []string
}

// Authenticator resolves the three credential forms §4.6 defines into an
// AuthorizedUser, rejecting unverified-email and locked accounts.
type Authenticator struct {
	*Options
}

// New constructs an Authenticator from opts.
func New(opts *Options) *Authenticator {
	return &Authenticator{Options: opts}
}

// Authenticate inspects r for an Authorization header or session cookie,
// in that order, resolves the underlying User, and enforces verified
// email and account-lock per §4.7 step 1.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, now time.Time, primaryEmailVerified func(ctx context.Context, userID int64) (bool, error)) (*AuthorizedUser, error) {
	var (
		au  *AuthorizedUser
		err error
	)

	if hdr := r.Header.Get("Authorization"); hdr != "" {
		au, err = a.authenticateToken(ctx, hdr)
	} else {
		au, err = a.authenticateCookie(ctx, r)
	}
	if err != nil {
		return nil, err
	}

	user, err := a.Users.UserByID(ctx, au.UserID)
	if err != nil {
		return nil, err
	}
	au.GitHubID = user.GitHubID

	if err := CheckLock(user, now); err != nil {
		return nil, err
	}

	if primaryEmailVerified != nil {
		verified, err := primaryEmailVerified(ctx, au.UserID)
		if err != nil {
			return nil, err
		}
		if !verified {
			return nil, apperror.New(apperror.Authentication, op+".Authenticate", "primary email is not verified")
		}
	}

	return au, nil
}

func (a *Authenticator) authenticateToken(ctx context.Context, headerValue string) (*AuthorizedUser, error) {
	plaintext := strings.TrimSpace(headerValue)
	hash := HashToken(plaintext)

	if strings.HasPrefix(plaintext, TrustPubTokenPrefix) {
		if a.TrustPubTokens == nil {
			return nil, apperror.New(apperror.Authentication, op+".authenticateToken", "trusted publishing is not configured")
		}
		tok, err := a.TrustPubTokens.TrustPubTokenByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		if time.Now().After(tok.ExpiresAt) {
			return nil, apperror.New(apperror.Authentication, op+".authenticateToken", "trusted publishing token has expired")
		}
		return &AuthorizedUser{
			UserID:           tok.UserID,
			Provenance:       CredentialTrustPub,
			TrustPubCrateIDs: tok.CrateIDs,
		}, nil
	}

	if a.ApiTokens == nil {
		return nil, apperror.New(apperror.Authentication, op+".authenticateToken", "api tokens are not configured")
	}
	t, err := a.ApiTokens.ApiTokenByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if t.Revoked {
		return nil, apperror.New(apperror.Authentication, op+".authenticateToken", "token has been revoked")
	}
	if t.Expired(time.Now()) {
		return nil, apperror.New(apperror.Authentication, op+".authenticateToken", "token has expired")
	}
	return &AuthorizedUser{UserID: t.UserID, Provenance: CredentialApiToken, TokenID: t.ID}, nil
}

func (a *Authenticator) authenticateCookie(ctx context.Context, r *http.Request) (*AuthorizedUser, error) {
	if err := CheckOrigin(r.Header.Get("Origin"), a.AllowedOrigins); err != nil {
		return nil, err
	}
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, apperror.Wrap(apperror.Authentication, op+".authenticateCookie", "missing session cookie", err)
	}
	userID, err := VerifyCookie(a.CookieSecret, c.Value)
	if err != nil {
		return nil, err
	}
	return &AuthorizedUser{UserID: userID, Provenance: CredentialCookie}, nil
}

// Authorize enforces the permission rules §4.6 lays out: a trusted-publishing
// credential may only PublishUpdate a crate in its own scope and never
// PublishNew; otherwise Rights must satisfy Required(perm), with an
// administrator flag granting YankVersion globally regardless of Rights.
func Authorize(au *AuthorizedUser, perm Permission, crateID int64, rights Rights, isAdmin bool) error {
	if au.Provenance == CredentialTrustPub {
		if perm.Kind != PublishUpdate {
			return apperror.New(apperror.Authorization, op+".Authorize", "trusted publishing tokens may only publish updates")
		}
		for _, id := range au.TrustPubCrateIDs {
			if id == crateID {
				return nil
			}
		}
		return apperror.New(apperror.Authorization, op+".Authorize", "trusted publishing token is not scoped to this crate")
	}

	if perm.Kind == YankVersion && isAdmin {
		return nil
	}

	if !rights.Satisfies(Required(perm)) {
		return apperror.New(apperror.Authorization, op+".Authorize", "insufficient rights for this operation")
	}
	return nil
}
