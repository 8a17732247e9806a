package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// TrustedPublisherConfig implements trustpub.ConfigStore: the lookup an
// OIDC token exchange runs against before minting a scoped token.
func (s *Store) TrustedPublisherConfig(ctx context.Context, provider, repo, workflow string) (*registry.TrustedPublisherConfig, bool, error) {
	q := newQuery("trusted_publisher_config")
	var err error
	done := q.start(&err)
	defer done()

	row := s.pool.QueryRow(ctx, q.SQL, provider, repo, workflow)
	var c registry.TrustedPublisherConfig
	scanErr := row.Scan(&c.ID, &c.CrateID, &c.Provider, &c.RepoOwnerID, &c.Repo, &c.Workflow, &c.Environment)
	switch {
	case scanErr == pgx.ErrNoRows:
		return nil, false, nil
	case scanErr != nil:
		err = scanErr
		return nil, false, apperror.Wrap(apperror.Internal, op+".TrustedPublisherConfig", "selecting trusted publisher config", err)
	}
	return &c, true, nil
}

// MintToken implements trustpub.TokenStore.
func (s *Store) MintToken(ctx context.Context, hashed []byte, userID int64, crateIDs []int64, expiresAt time.Time) error {
	q := newQuery("mint_trustpub_token")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = s.pool.Exec(ctx, q.SQL, hashed, userID, crateIDs, expiresAt); err != nil {
		return apperror.Wrap(apperror.Internal, op+".MintToken", "minting trusted publishing token", err)
	}
	return nil
}

// RecordJTI implements trustpub.JTIStore: a successful insert means the id
// token's jti hasn't been seen before.
func (s *Store) RecordJTI(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	q := newQuery("record_jti")
	var err error
	done := q.start(&err)
	defer done()

	tag, execErr := s.pool.Exec(ctx, q.SQL, jti, expiresAt)
	if execErr != nil {
		err = execErr
		return false, apperror.Wrap(apperror.Internal, op+".RecordJTI", "recording id token jti", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpiredTokens implements trustpub.Expirer for
// trustpub::delete_expired_tokens.
func (s *Store) DeleteExpiredTokens(ctx context.Context) error {
	q := newQuery("delete_expired_trustpub_tokens")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = s.pool.Exec(ctx, q.SQL); err != nil {
		return apperror.Wrap(apperror.Internal, op+".DeleteExpiredTokens", "deleting expired trusted publishing tokens", err)
	}
	return nil
}

// DeleteExpiredJTIs implements trustpub.Expirer for
// trustpub::delete_expired_jtis.
func (s *Store) DeleteExpiredJTIs(ctx context.Context) error {
	q := newQuery("delete_expired_jtis")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = s.pool.Exec(ctx, q.SQL); err != nil {
		return apperror.Wrap(apperror.Internal, op+".DeleteExpiredJTIs", "deleting expired id token jtis", err)
	}
	return nil
}
