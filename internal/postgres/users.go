package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// UserByID implements auth.UserStore: resolves the account a credential
// identifies, account-lock fields included so Authenticate can reject a
// locked account before issuing an AuthorizedUser.
func (s *Store) UserByID(ctx context.Context, id int64) (*registry.User, error) {
	q := newQuery("user_by_id")
	var err error
	done := q.start(&err)
	defer done()

	row := s.pool.QueryRow(ctx, q.SQL, id)
	var u registry.User
	scanErr := row.Scan(&u.ID, &u.Login, &u.DisplayName, &u.GitHubID, &u.AvatarURL,
		&u.EncryptedToken, &u.IsAdmin, &u.AccountLockReason, &u.AccountLockUntil)
	switch {
	case scanErr == pgx.ErrNoRows:
		err = scanErr
		return nil, apperror.New(apperror.NotFound, op+".UserByID", "user not found")
	case scanErr != nil:
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".UserByID", "selecting user", err)
	}
	return &u, nil
}
