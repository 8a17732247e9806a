package postgres

import (
	"context"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// OwnersWithEmailNotifications implements publish.Tx: step 10's
// notification recipient set.
func (t *tx) OwnersWithEmailNotifications(ctx context.Context, crateID int64) ([]registry.User, error) {
	q := newQuery("owners_with_email_notifications")
	var err error
	done := q.start(&err)
	defer done()

	rows, queryErr := t.Query(ctx, q.SQL, crateID)
	if queryErr != nil {
		err = queryErr
		return nil, apperror.Wrap(apperror.Internal, op+".OwnersWithEmailNotifications", "selecting notifiable owners", err)
	}
	defer rows.Close()

	var users []registry.User
	for rows.Next() {
		var u registry.User
		if err = rows.Scan(&u.ID, &u.Login, &u.DisplayName, &u.GitHubID, &u.AvatarURL, &u.IsAdmin); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".OwnersWithEmailNotifications", "scanning owner", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".OwnersWithEmailNotifications", "iterating owners", err)
	}
	return users, nil
}

// RecordOwnerAction implements lifecycle.Tx: the audit row written by
// every yank/unyank.
func (t *tx) RecordOwnerAction(ctx context.Context, a *registry.VersionOwnerAction) error {
	q := newQuery("record_owner_action")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = t.Exec(ctx, q.SQL, a.VersionID, a.UserID, a.ApiTokenID, a.Action); err != nil {
		return apperror.Wrap(apperror.Internal, op+".RecordOwnerAction", "recording owner action", err)
	}
	return nil
}
