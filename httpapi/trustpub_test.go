package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crates-registry/core/registry"
	"github.com/crates-registry/core/trustpub"
)

type memConfigs map[string]*registry.TrustedPublisherConfig

func (m memConfigs) TrustedPublisherConfig(ctx context.Context, provider, repo, workflow string) (*registry.TrustedPublisherConfig, bool, error) {
	cfg, ok := m[provider+"|"+repo+"|"+workflow]
	return cfg, ok, nil
}

type memTokens struct{ minted int }

func (m *memTokens) MintToken(ctx context.Context, hashed []byte, userID int64, crateIDs []int64, expiresAt time.Time) error {
	m.minted++
	return nil
}

type memJTIs map[string]bool

func (m memJTIs) RecordJTI(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	if m[jti] {
		return false, nil
	}
	m[jti] = true
	return true, nil
}

func TestHandleTrustPubExchangeMintsToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	claims := trustpub.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		RepositoryOwner: "rustlang",
		Repository:      "example",
		WorkflowRef:     "rustlang/example/.github/workflows/release.yml@refs/heads/main",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	idToken, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	configs := memConfigs{
		"github|rustlang/example|" + claims.WorkflowRef: {
			ID: 1, CrateID: 10, Provider: "github", RepoOwnerID: 5, Repo: "rustlang/example", Workflow: claims.WorkflowRef,
		},
	}
	tokens := &memTokens{}
	ex := trustpub.New(&trustpub.Options{
		Provider: "github",
		Keys:     func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil },
		Configs:  configs,
		Tokens:   tokens,
		JTIs:     memJTIs{},
	})

	s := testServer(&Options{TrustPub: ex, Clock: func() time.Time { return now }})

	body := strings.NewReader(`{"jwt":"` + idToken + `"}`)
	req := httptest.NewRequest("POST", "/api/v1/trusted_publishing/tokens", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a non-empty token")
	}
	if tokens.minted != 1 {
		t.Fatalf("expected one minted token, got %d", tokens.minted)
	}
}

func TestHandleTrustPubExchangeRejectsMissingJWT(t *testing.T) {
	ex := trustpub.New(&trustpub.Options{
		Keys:    func(*jwt.Token) (interface{}, error) { return nil, nil },
		Configs: memConfigs{},
		Tokens:  &memTokens{},
		JTIs:    memJTIs{},
	})
	s := testServer(&Options{TrustPub: ex})

	req := httptest.NewRequest("POST", "/api/v1/trusted_publishing/tokens", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code == 200 {
		t.Fatalf("expected an error status for a missing jwt, got 200: %s", rec.Body.String())
	}
}

func TestHandleTrustPubExchangeRejectsReadOnly(t *testing.T) {
	ex := trustpub.New(&trustpub.Options{
		Keys:    func(*jwt.Token) (interface{}, error) { return nil, nil },
		Configs: memConfigs{},
		Tokens:  &memTokens{},
		JTIs:    memJTIs{},
	})
	s := testServer(&Options{TrustPub: ex, ReadOnly: func() bool { return true }})

	req := httptest.NewRequest("POST", "/api/v1/trusted_publishing/tokens", strings.NewReader(`{"jwt":"x"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code == 200 {
		t.Fatalf("expected an error status in read-only mode, got 200: %s", rec.Body.String())
	}
}
