package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/internal/apperror"
)

// PrimaryEmailVerified backs the Authenticate callback httpapi passes for
// endpoints that require a verified email, per §4.6 item 1. A user with no
// primary email on file counts as unverified rather than erroring.
func (s *Store) PrimaryEmailVerified(ctx context.Context, userID int64) (bool, error) {
	q := newQuery("primary_email_verified")
	var err error
	done := q.start(&err)
	defer done()

	var verified bool
	row := s.pool.QueryRow(ctx, q.SQL, userID)
	scanErr := row.Scan(&verified)
	switch {
	case scanErr == pgx.ErrNoRows:
		return false, nil
	case scanErr != nil:
		err = scanErr
		return false, apperror.Wrap(apperror.Internal, op+".PrimaryEmailVerified", "checking primary email verification", err)
	}
	return verified, nil
}
