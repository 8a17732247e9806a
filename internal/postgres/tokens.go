package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// ApiTokenByID implements publish.Tx: the in-transaction scope check step
// 4 runs against the presented token's endpoint and crate scopes.
func (t *tx) ApiTokenByID(ctx context.Context, id int64) (*registry.ApiToken, error) {
	q := newQuery("api_token_by_id")
	var err error
	done := q.start(&err)
	defer done()

	row := t.QueryRow(ctx, q.SQL, id)
	token, scanErr := scanApiToken(row)
	switch {
	case scanErr == pgx.ErrNoRows:
		err = scanErr
		return nil, apperror.New(apperror.NotFound, op+".ApiTokenByID", "api token not found")
	case scanErr != nil:
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".ApiTokenByID", "selecting api token", err)
	}
	return token, nil
}

// ApiTokenByHash implements auth.ApiTokenStore: the lookup Authenticate
// runs against a presented bearer token's hash.
func (s *Store) ApiTokenByHash(ctx context.Context, hash []byte) (*registry.ApiToken, error) {
	q := newQuery("api_token_by_hash")
	var err error
	done := q.start(&err)
	defer done()

	row := s.pool.QueryRow(ctx, q.SQL, hash)
	token, scanErr := scanApiToken(row)
	switch {
	case scanErr == pgx.ErrNoRows:
		err = scanErr
		return nil, apperror.New(apperror.NotFound, op+".ApiTokenByHash", "api token not found")
	case scanErr != nil:
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".ApiTokenByHash", "selecting api token", err)
	}
	return token, nil
}

// TrustPubTokenByHash implements auth.TrustPubTokenStore: resolves a
// minted, short-lived trusted-publishing token.
func (s *Store) TrustPubTokenByHash(ctx context.Context, hash []byte) (*auth.TrustPubToken, error) {
	q := newQuery("trustpub_token_by_hash")
	var err error
	done := q.start(&err)
	defer done()

	row := s.pool.QueryRow(ctx, q.SQL, hash)
	var tok auth.TrustPubToken
	scanErr := row.Scan(&tok.HashedToken, &tok.UserID, &tok.CrateIDs, &tok.ExpiresAt)
	switch {
	case scanErr == pgx.ErrNoRows:
		err = scanErr
		return nil, apperror.New(apperror.NotFound, op+".TrustPubTokenByHash", "trusted publishing token not found")
	case scanErr != nil:
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".TrustPubTokenByHash", "selecting trusted publishing token", err)
	}
	return &tok, nil
}

func scanApiToken(row pgx.Row) (*registry.ApiToken, error) {
	var t registry.ApiToken
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.HashedToken, &t.CreatedAt, &t.LastUsedAt,
		&t.ExpiresAt, &t.Revoked, &t.CrateScope, &t.EndpointScope)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
