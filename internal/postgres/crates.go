package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// CrateByCanonicalName implements publish.Tx: resolves an existing crate
// by its folded name, the collision check publish's step 4 runs before
// deciding whether this is a new or existing crate.
func (t *tx) CrateByCanonicalName(ctx context.Context, canonical string) (*registry.Crate, bool, error) {
	q := newQuery("crate_by_canonical_name")
	var err error
	done := q.start(&err)
	defer done()

	row := t.QueryRow(ctx, q.SQL, canonical)
	c, scanErr := scanCrate(row)
	switch {
	case scanErr == pgx.ErrNoRows:
		return nil, false, nil
	case scanErr != nil:
		err = scanErr
		return nil, false, apperror.Wrap(apperror.Internal, op+".CrateByCanonicalName", "selecting crate", err)
	}
	return c, true, nil
}

// CrateByName implements lifecycle.Tx: resolves a crate by its as-typed
// name, used to look up the version to yank/unyank/delete.
func (t *tx) CrateByName(ctx context.Context, name string) (*registry.Crate, error) {
	q := newQuery("crate_by_canonical_name")
	var err error
	done := q.start(&err)
	defer done()

	row := t.QueryRow(ctx, q.SQL, registry.CanonicalName(name))
	c, scanErr := scanCrate(row)
	switch {
	case scanErr == pgx.ErrNoRows:
		err = scanErr
		return nil, apperror.New(apperror.NotFound, op+".CrateByName", "crate not found")
	case scanErr != nil:
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".CrateByName", "selecting crate", err)
	}
	return c, nil
}

// SimilarCrateName implements publish.Tx: the name-similarity guard §3
// requires before allowing a brand-new crate name to be registered.
func (t *tx) SimilarCrateName(ctx context.Context, canonical string) (string, bool, error) {
	q := newQuery("similar_crate_name")
	var err error
	done := q.start(&err)
	defer done()

	row := t.QueryRow(ctx, q.SQL, canonical)
	var existing string
	scanErr := row.Scan(&existing)
	switch {
	case scanErr == pgx.ErrNoRows:
		return "", false, nil
	case scanErr != nil:
		err = scanErr
		return "", false, apperror.Wrap(apperror.Internal, op+".SimilarCrateName", "selecting similar name", err)
	}
	return existing, true, nil
}

// DeletedCrateCooldown implements publish.Tx: reports whether canonical
// names a deleted_crates row whose name-reuse window hasn't elapsed yet.
func (t *tx) DeletedCrateCooldown(ctx context.Context, canonical string) (bool, error) {
	q := newQuery("deleted_crate_cooldown")
	var err error
	done := q.start(&err)
	defer done()

	row := t.QueryRow(ctx, q.SQL, canonical)
	var inCooldown bool
	if err = row.Scan(&inCooldown); err != nil {
		return false, apperror.Wrap(apperror.Internal, op+".DeletedCrateCooldown", "checking deletion cooldown", err)
	}
	return inCooldown, nil
}

// CreateCrate implements publish.Tx: inserts a brand-new crate and its
// first owner row in one statement pair, step 4's "new crate" branch.
func (t *tx) CreateCrate(ctx context.Context, c *registry.Crate, ownerUserID int64) (*registry.Crate, error) {
	q := newQuery("create_crate")
	var err error
	done := q.start(&err)

	row := t.QueryRow(ctx, q.SQL, c.Name, c.CanonicalName, c.Description, c.Homepage, c.Documentation, c.Repository, c.MaxUploadSize)
	created, scanErr := scanCrate(row)
	done()
	if scanErr != nil {
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".CreateCrate", "inserting crate", err)
	}

	oq := newQuery("create_owner")
	var ownerErr error
	odone := oq.start(&ownerErr)
	_, ownerErr = t.Exec(ctx, oq.SQL, created.ID, registry.OwnerUser, ownerUserID, ownerUserID)
	odone()
	if ownerErr != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".CreateCrate", "inserting initial owner", ownerErr)
	}
	return created, nil
}

// CrateOwners implements both publish.Tx and lifecycle.Tx: the active
// (non-deleted) owner set rights resolution runs against.
func (t *tx) CrateOwners(ctx context.Context, crateID int64) ([]auth.Owner, error) {
	q := newQuery("crate_owners")
	var err error
	done := q.start(&err)
	defer done()

	rows, queryErr := t.Query(ctx, q.SQL, crateID)
	if queryErr != nil {
		err = queryErr
		return nil, apperror.Wrap(apperror.Internal, op+".CrateOwners", "selecting owners", err)
	}
	defer rows.Close()

	var owners []auth.Owner
	for rows.Next() {
		var kind registry.OwnerKind
		var id int64
		if err = rows.Scan(&kind, &id); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".CrateOwners", "scanning owner row", err)
		}
		if kind == registry.OwnerTeam {
			owners = append(owners, auth.Owner{IsTeam: true, TeamGitHubID: id})
		} else {
			owners = append(owners, auth.Owner{UserID: id})
		}
	}
	if err = rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".CrateOwners", "iterating owners", err)
	}
	return owners, nil
}

// DeleteCrate implements lifecycle.Tx: removes a crate row once its last
// version has been deleted.
func (t *tx) DeleteCrate(ctx context.Context, crateID int64) error {
	q := newQuery("delete_crate")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = t.Exec(ctx, q.SQL, crateID); err != nil {
		return apperror.Wrap(apperror.Internal, op+".DeleteCrate", "deleting crate", err)
	}
	return nil
}

// RecordDeletedCrate implements lifecycle.Tx: writes the name-reuse
// tombstone alongside a crate's final deletion.
func (t *tx) RecordDeletedCrate(ctx context.Context, d *registry.DeletedCrate) error {
	q := newQuery("record_deleted_crate")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = t.Exec(ctx, q.SQL, d.Name, d.AvailableAt, d.Reason); err != nil {
		return apperror.Wrap(apperror.Internal, op+".RecordDeletedCrate", "recording deleted crate", err)
	}
	return nil
}

func scanCrate(row pgx.Row) (*registry.Crate, error) {
	var c registry.Crate
	err := row.Scan(&c.ID, &c.Name, &c.CanonicalName, &c.Description, &c.Homepage,
		&c.Documentation, &c.Repository, &c.Downloads, &c.MaxUploadSize, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
