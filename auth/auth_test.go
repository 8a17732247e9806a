package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

type memUserStore map[int64]*registry.User

func (m memUserStore) UserByID(ctx context.Context, id int64) (*registry.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "test", "no such user")
	}
	return u, nil
}

type memTokenStore map[string]*registry.ApiToken

func (m memTokenStore) ApiTokenByHash(ctx context.Context, hash []byte) (*registry.ApiToken, error) {
	t, ok := m[string(hash)]
	if !ok {
		return nil, apperror.New(apperror.Authentication, "test", "unknown token")
	}
	return t, nil
}

func TestSignVerifyCookieRoundTrip(t *testing.T) {
	secret := []byte("top-secret")
	v := SignCookie(secret, 42)
	id, err := VerifyCookie(secret, v)
	if err != nil {
		t.Fatalf("VerifyCookie: %v", err)
	}
	if id != 42 {
		t.Fatalf("got user id %d, want 42", id)
	}
}

func TestVerifyCookieRejectsTampering(t *testing.T) {
	secret := []byte("top-secret")
	v := SignCookie(secret, 42)
	tampered := "43" + v[2:]
	if _, err := VerifyCookie(secret, tampered); err == nil {
		t.Fatal("expected tampered cookie to fail verification")
	}
}

func TestVerifyCookieWrongSecret(t *testing.T) {
	v := SignCookie([]byte("secret-a"), 1)
	if _, err := VerifyCookie([]byte("secret-b"), v); err == nil {
		t.Fatal("expected wrong-secret verification to fail")
	}
}

func TestCheckOriginAllowed(t *testing.T) {
	allowed := []string{"https://example.com"}
	if err := CheckOrigin("https://example.com", allowed); err != nil {
		t.Fatalf("expected allowed origin to pass: %v", err)
	}
	if err := CheckOrigin("https://evil.example", allowed); err == nil {
		t.Fatal("expected disallowed origin to fail")
	}
	if err := CheckOrigin("", allowed); err == nil {
		t.Fatal("expected missing origin to fail")
	}
}

func TestCheckLock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	unlocked := &registry.User{}
	if err := CheckLock(unlocked, now); err != nil {
		t.Fatalf("unlocked user should pass: %v", err)
	}

	future := now.Add(24 * time.Hour)
	locked := &registry.User{AccountLockReason: "abuse", AccountLockUntil: &future}
	err := CheckLock(locked, now)
	if err == nil {
		t.Fatal("expected locked account to fail")
	}
	if got := apperror.DetailOf(err); got == "" {
		t.Fatal("expected a detail message")
	}

	past := now.Add(-time.Hour)
	expired := &registry.User{AccountLockReason: "abuse", AccountLockUntil: &past}
	if err := CheckLock(expired, now); err != nil {
		t.Fatalf("expired lock should pass: %v", err)
	}

	indefinite := &registry.User{AccountLockReason: "fraud"}
	err = CheckLock(indefinite, now)
	if err == nil {
		t.Fatal("expected indefinitely locked account to fail")
	}
}

func TestVerifyTokenScopes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tok := &registry.ApiToken{
		CrateScope:    []string{"serde*"},
		EndpointScope: []registry.EndpointScope{registry.ScopePublishUpdate},
	}
	if err := VerifyToken(tok, now, registry.ScopePublishUpdate, "serde_json"); err != nil {
		t.Fatalf("expected glob scope match: %v", err)
	}
	if err := VerifyToken(tok, now, registry.ScopePublishUpdate, "tokio"); err == nil {
		t.Fatal("expected crate scope mismatch to fail")
	}
	if err := VerifyToken(tok, now, registry.ScopeYank, "serde"); err == nil {
		t.Fatal("expected endpoint scope mismatch to fail")
	}

	revoked := &registry.ApiToken{Revoked: true}
	if err := VerifyToken(revoked, now, registry.ScopePublishNew, "any"); err == nil {
		t.Fatal("expected revoked token to fail")
	}

	expiresAt := now.Add(-time.Minute)
	expired := &registry.ApiToken{ExpiresAt: &expiresAt}
	if err := VerifyToken(expired, now, registry.ScopePublishNew, "any"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestResolveRightsFullForUserOwner(t *testing.T) {
	owners := []Owner{{IsTeam: false, UserID: 7}}
	r, err := ResolveRights(context.Background(), 7, 700, owners, nil)
	if err != nil {
		t.Fatalf("ResolveRights: %v", err)
	}
	if r != Full {
		t.Fatalf("got %v, want Full", r)
	}
}

type fakeTeams map[int64]map[int64]bool

func (f fakeTeams) IsActiveMember(ctx context.Context, teamGitHubID, userGitHubID int64) (bool, error) {
	return f[teamGitHubID][userGitHubID], nil
}

func TestResolveRightsPublishForTeamMember(t *testing.T) {
	owners := []Owner{{IsTeam: true, TeamGitHubID: 900}}
	teams := fakeTeams{900: {55: true}}
	r, err := ResolveRights(context.Background(), 1, 55, owners, teams)
	if err != nil {
		t.Fatalf("ResolveRights: %v", err)
	}
	if r != Publish {
		t.Fatalf("got %v, want Publish", r)
	}
}

func TestResolveRightsNoneForStranger(t *testing.T) {
	owners := []Owner{{IsTeam: false, UserID: 7}, {IsTeam: true, TeamGitHubID: 900}}
	teams := fakeTeams{900: {55: true}}
	r, err := ResolveRights(context.Background(), 99, 99, owners, teams)
	if err != nil {
		t.Fatalf("ResolveRights: %v", err)
	}
	if r != None {
		t.Fatalf("got %v, want None", r)
	}
}

func TestAuthorizePublishRequiresPublishRights(t *testing.T) {
	au := &AuthorizedUser{UserID: 1, Provenance: CredentialCookie}
	perm := Permission{Kind: PublishUpdate, Crate: "serde"}
	if err := Authorize(au, perm, 1, None, false); err == nil {
		t.Fatal("expected None rights to fail PublishUpdate")
	}
	if err := Authorize(au, perm, 1, Publish, false); err != nil {
		t.Fatalf("expected Publish rights to pass PublishUpdate: %v", err)
	}
}

func TestAuthorizeModifyOwnersRequiresFull(t *testing.T) {
	au := &AuthorizedUser{UserID: 1, Provenance: CredentialCookie}
	perm := Permission{Kind: ModifyOwners, Crate: "serde"}
	if err := Authorize(au, perm, 1, Publish, false); err == nil {
		t.Fatal("expected Publish rights to fail ModifyOwners")
	}
	if err := Authorize(au, perm, 1, Full, false); err != nil {
		t.Fatalf("expected Full rights to pass ModifyOwners: %v", err)
	}
}

func TestAuthorizeAdminGrantsYankGlobally(t *testing.T) {
	au := &AuthorizedUser{UserID: 1, Provenance: CredentialCookie}
	perm := Permission{Kind: YankVersion, Crate: "serde"}
	if err := Authorize(au, perm, 1, None, true); err != nil {
		t.Fatalf("expected admin to yank regardless of rights: %v", err)
	}
	if err := Authorize(au, perm, 1, None, false); err == nil {
		t.Fatal("expected non-admin with None rights to fail yank")
	}
}

func TestAuthorizeTrustPubScopedToPublishUpdate(t *testing.T) {
	au := &AuthorizedUser{UserID: 1, Provenance: CredentialTrustPub, TrustPubCrateIDs: []int64{5}}

	if err := Authorize(au, Permission{Kind: PublishUpdate, Crate: "serde"}, 5, None, false); err != nil {
		t.Fatalf("expected trustpub token to publish-update its crate: %v", err)
	}
	if err := Authorize(au, Permission{Kind: PublishUpdate, Crate: "other"}, 6, None, false); err == nil {
		t.Fatal("expected trustpub token scoped to crate 5 to fail against crate 6")
	}
	if err := Authorize(au, Permission{Kind: PublishNew, Crate: "new-crate"}, 0, Full, false); err == nil {
		t.Fatal("expected trustpub token to never be allowed PublishNew")
	}
}

func TestAuthenticateCookieAndLockedAccount(t *testing.T) {
	secret := []byte("s3cr3t")
	users := memUserStore{
		1: {ID: 1, GitHubID: 100},
	}
	a := New(&Options{
		Users:          users,
		CookieSecret:   secret,
		AllowedOrigins: []string{"https://example.com"},
	})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/crates/new", nil)
	r.Header.Set("Origin", "https://example.com")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: SignCookie(secret, 1)})

	au, err := a.Authenticate(context.Background(), r, time.Now(), nil)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if au.UserID != 1 || au.Provenance != CredentialCookie {
		t.Fatalf("unexpected AuthorizedUser: %+v", au)
	}

	future := time.Now().Add(time.Hour)
	users[1].AccountLockReason = "abuse"
	users[1].AccountLockUntil = &future
	if _, err := a.Authenticate(context.Background(), r, time.Now(), nil); err == nil {
		t.Fatal("expected locked account to fail authentication")
	}
}

func TestAuthenticateApiToken(t *testing.T) {
	plaintext := "crgs_abc123"
	hash := HashToken(plaintext)
	users := memUserStore{2: {ID: 2, GitHubID: 200}}
	tokens := memTokenStore{string(hash): {ID: 9, UserID: 2}}

	a := New(&Options{Users: users, ApiTokens: tokens})

	r := httptest.NewRequest(http.MethodPut, "/api/v1/crates/new", nil)
	r.Header.Set("Authorization", plaintext)

	au, err := a.Authenticate(context.Background(), r, time.Now(), nil)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if au.UserID != 2 || au.Provenance != CredentialApiToken || au.TokenID != 9 {
		t.Fatalf("unexpected AuthorizedUser: %+v", au)
	}
}
