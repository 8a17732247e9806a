// Package lifecycle implements Yank/Unyank & Delete (spec §4.8): toggling
// a version's yanked flag with an audit trail, and the narrow
// within-24-hours version/crate deletion path.
package lifecycle

import (
	"context"
	"time"

	"github.com/quay/zlog"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/blobstore"
	"github.com/crates-registry/core/gitindex"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/jobqueue"
	"github.com/crates-registry/core/registry"
)

const op = "lifecycle"

// DeletionWindow is how long after a version's CreatedAt its deletion
// remains allowed, per §4.8.
const DeletionWindow = 24 * time.Hour

// Tx is the transactional handle yank/unyank/delete run against.
type Tx interface {
	jobqueue.Execer

	VersionByNum(ctx context.Context, crateID int64, num string) (*registry.Version, error)
	CrateByName(ctx context.Context, name string) (*registry.Crate, error)
	CrateOwners(ctx context.Context, crateID int64) ([]auth.Owner, error)
	SetYanked(ctx context.Context, versionID int64, yanked bool) error
	RecordOwnerAction(ctx context.Context, a *registry.VersionOwnerAction) error
	DeleteVersion(ctx context.Context, versionID int64) error
	RemainingVersionCount(ctx context.Context, crateID int64) (int, error)
	DeleteCrate(ctx context.Context, crateID int64) error
	RecordDeletedCrate(ctx context.Context, d *registry.DeletedCrate) error
}

// Store opens a Tx spanning one lifecycle operation.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Options configures a Manager.
type Options struct {
	Store Store
	Jobs  jobqueue.Execer
	Blobs blobstore.Store
}

// Manager implements yank/unyank/delete.
type Manager struct {
	*Options
}

// New constructs a Manager from opts.
func New(opts *Options) *Manager {
	return &Manager{Options: opts}
}

// setYank is the shared body of Yank and Unyank: §4.8's toggle is
// symmetric in every respect but the recorded action and target state.
func (m *Manager) setYank(ctx context.Context, au *auth.AuthorizedUser, isAdmin bool, crateName, versionNum string, yanked bool, action registry.OwnerActionKind, now time.Time) error {
	return m.Store.WithTx(ctx, func(tx Tx) error {
		crate, err := tx.CrateByName(ctx, crateName)
		if err != nil {
			return err
		}
		version, err := tx.VersionByNum(ctx, crate.ID, versionNum)
		if err != nil {
			return err
		}

		owners, err := tx.CrateOwners(ctx, crate.ID)
		if err != nil {
			return err
		}
		rights, err := auth.ResolveRights(ctx, au.UserID, au.GitHubID, owners, nil)
		if err != nil {
			return err
		}
		if err := auth.Authorize(au, auth.Permission{Kind: auth.YankVersion, Crate: crateName}, crate.ID, rights, isAdmin); err != nil {
			return err
		}

		if err := tx.SetYanked(ctx, version.ID, yanked); err != nil {
			return err
		}

		var tokenID *int64
		if au.Provenance == auth.CredentialApiToken {
			id := au.TokenID
			tokenID = &id
		}
		if err := tx.RecordOwnerAction(ctx, &registry.VersionOwnerAction{
			VersionID:  version.ID,
			UserID:     au.UserID,
			ApiTokenID: tokenID,
			Action:     action,
			Time:       now,
		}); err != nil {
			return err
		}

		for _, j := range []struct {
			jobType string
			payload any
		}{
			{jobqueue.TypeSyncToSparseIndex, map[string]string{"name": crateName}},
			{jobqueue.TypeSyncToGitIndex, map[string]string{"name": crateName}},
			{jobqueue.TypeInvalidateCDNs, map[string][]string{"paths": {blobstore.IndexKey(gitindex.ShardDir(crateName), crateName)}}},
		} {
			if err := jobqueue.Enqueue(ctx, tx, j.jobType, j.payload, "default"); err != nil {
				return apperror.Wrap(apperror.Internal, op+".setYank", "enqueuing follow-up job", err)
			}
		}
		return nil
	})
}

// Yank marks a version unavailable for new dependency resolution while
// leaving it fetchable, per §3's "yanked versions remain fetchable"
// invariant.
func (m *Manager) Yank(ctx context.Context, au *auth.AuthorizedUser, isAdmin bool, crateName, versionNum string, now time.Time) error {
	return m.setYank(ctx, au, isAdmin, crateName, versionNum, true, registry.ActionYank, now)
}

// Unyank reverses a Yank.
func (m *Manager) Unyank(ctx context.Context, au *auth.AuthorizedUser, isAdmin bool, crateName, versionNum string, now time.Time) error {
	return m.setYank(ctx, au, isAdmin, crateName, versionNum, false, registry.ActionUnyank, now)
}

// DeleteVersion implements §4.8's version deletion: allowed only within
// DeletionWindow of the version's CreatedAt. Deleting the last version of
// a crate also deletes the crate and reserves its name for
// registry.NameReuseWindow.
func (m *Manager) DeleteVersion(ctx context.Context, au *auth.AuthorizedUser, isAdmin bool, crateName, versionNum string, now time.Time) error {
	return m.Store.WithTx(ctx, func(tx Tx) error {
		crate, err := tx.CrateByName(ctx, crateName)
		if err != nil {
			return err
		}
		version, err := tx.VersionByNum(ctx, crate.ID, versionNum)
		if err != nil {
			return err
		}

		owners, err := tx.CrateOwners(ctx, crate.ID)
		if err != nil {
			return err
		}
		rights, err := auth.ResolveRights(ctx, au.UserID, au.GitHubID, owners, nil)
		if err != nil {
			return err
		}
		if err := auth.Authorize(au, auth.Permission{Kind: auth.ModifyOwners, Crate: crateName}, crate.ID, rights, isAdmin); err != nil {
			return err
		}

		if now.Sub(version.CreatedAt) > DeletionWindow {
			return apperror.New(apperror.Validation, op+".DeleteVersion", "version can only be deleted within 24 hours of publishing")
		}

		if err := tx.DeleteVersion(ctx, version.ID); err != nil {
			return err
		}

		remaining, err := tx.RemainingVersionCount(ctx, crate.ID)
		if err != nil {
			return err
		}

		crateDeleted := remaining == 0
		if crateDeleted {
			if err := tx.DeleteCrate(ctx, crate.ID); err != nil {
				return err
			}
			if err := tx.RecordDeletedCrate(ctx, &registry.DeletedCrate{
				Name:        crateName,
				DeletedAt:   now,
				AvailableAt: now.Add(registry.NameReuseWindow),
			}); err != nil {
				return err
			}
		}

		if err := jobqueue.Enqueue(ctx, tx, jobqueue.TypeDeleteCrateFromStorage, map[string]any{
			"name": crateName, "version": versionNum, "crate_deleted": crateDeleted,
		}, "default"); err != nil {
			return apperror.Wrap(apperror.Internal, op+".DeleteVersion", "enqueuing blob cleanup", err)
		}
		if err := jobqueue.Enqueue(ctx, tx, jobqueue.TypeInvalidateCDNs, map[string][]string{
			"paths": {blobstore.IndexKey(gitindex.ShardDir(crateName), crateName)},
		}, "default"); err != nil {
			return apperror.Wrap(apperror.Internal, op+".DeleteVersion", "enqueuing CDN invalidation", err)
		}

		zlog.Info(ctx).Str("crate", crateName).Str("version", versionNum).Bool("crate_deleted", crateDeleted).Msg("version deleted")
		return nil
	})
}
