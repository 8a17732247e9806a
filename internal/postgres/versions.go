package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// VersionExists implements publish.Tx: the (crate_id, normalized_version)
// uniqueness check step 5 runs before inserting.
func (t *tx) VersionExists(ctx context.Context, crateID int64, normalizedVersion string) (bool, error) {
	q := newQuery("version_exists")
	var err error
	done := q.start(&err)
	defer done()

	var exists bool
	row := t.QueryRow(ctx, q.SQL, crateID, normalizedVersion)
	if err = row.Scan(&exists); err != nil {
		return false, apperror.Wrap(apperror.Internal, op+".VersionExists", "checking version uniqueness", err)
	}
	return exists, nil
}

// InsertVersion implements publish.Tx: step 6's version row plus its
// dependency edges, in one transaction.
func (t *tx) InsertVersion(ctx context.Context, v *registry.Version) (*registry.Version, error) {
	features, err := json.Marshal(v.Features)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".InsertVersion", "marshaling features", err)
	}
	var trustpub []byte
	if v.TrustedPublishing != nil {
		if trustpub, err = json.Marshal(v.TrustedPublishing); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".InsertVersion", "marshaling trustpub provenance", err)
		}
	}

	q := newQuery("insert_version")
	var insErr error
	done := q.start(&insErr)
	row := t.QueryRow(ctx, q.SQL, v.CrateID, v.Num, v.NormalizedNum, v.Checksum, v.CrateSize,
		v.License, string(features), v.Links, v.RustVersion, v.PublishedBy, trustpub)
	inserted := *v
	insErr = row.Scan(&inserted.ID, &inserted.CreatedAt)
	done()
	if insErr != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".InsertVersion", "inserting version", insErr)
	}

	depq := newQuery("insert_dependency")
	for i := range v.Dependencies {
		d := &v.Dependencies[i]
		var depErr error
		ddone := depq.start(&depErr)
		_, depErr = t.Exec(ctx, depq.SQL, inserted.ID, d.CrateName, d.Requirement, d.Kind,
			d.Optional, d.DefaultFeatures, d.Features, d.Target, d.ExplicitNameInToml, d.Registry)
		ddone()
		if depErr != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".InsertVersion", "inserting dependency", depErr)
		}
	}
	return &inserted, nil
}

// VersionByNum implements lifecycle.Tx: resolves a single version by its
// crate and exact (non-normalized) number, as the yank/delete endpoints
// address them.
func (t *tx) VersionByNum(ctx context.Context, crateID int64, num string) (*registry.Version, error) {
	q := newQuery("version_by_num")
	var err error
	done := q.start(&err)
	defer done()

	row := t.QueryRow(ctx, q.SQL, crateID, num)
	var v registry.Version
	var features, trustpub []byte
	scanErr := row.Scan(&v.ID, &v.CrateID, &v.Num, &v.NormalizedNum, &v.Checksum, &v.CrateSize,
		&v.Yanked, &v.YankMessage, &v.License, &features, &v.Links, &v.RustVersion,
		&v.CreatedAt, &v.PublishedBy, &trustpub)
	switch {
	case scanErr == pgx.ErrNoRows:
		err = scanErr
		return nil, apperror.New(apperror.NotFound, op+".VersionByNum", "version not found")
	case scanErr != nil:
		err = scanErr
		return nil, apperror.Wrap(apperror.Internal, op+".VersionByNum", "selecting version", err)
	}
	if len(features) > 0 {
		if err = json.Unmarshal(features, &v.Features); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".VersionByNum", "decoding features", err)
		}
	}
	if len(trustpub) > 0 {
		v.TrustedPublishing = &registry.TrustedPublishingProvenance{}
		if err = json.Unmarshal(trustpub, v.TrustedPublishing); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".VersionByNum", "decoding trustpub provenance", err)
		}
	}
	return &v, nil
}

// SetYanked implements lifecycle.Tx: flips the yanked flag §4.8's
// yank/unyank toggles.
func (t *tx) SetYanked(ctx context.Context, versionID int64, yanked bool) error {
	q := newQuery("set_yanked")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = t.Exec(ctx, q.SQL, versionID, yanked); err != nil {
		return apperror.Wrap(apperror.Internal, op+".SetYanked", "updating yanked flag", err)
	}
	return nil
}

// DeleteVersion implements lifecycle.Tx: the narrow within-window hard
// delete.
func (t *tx) DeleteVersion(ctx context.Context, versionID int64) error {
	q := newQuery("delete_version")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = t.Exec(ctx, q.SQL, versionID); err != nil {
		return apperror.Wrap(apperror.Internal, op+".DeleteVersion", "deleting version", err)
	}
	return nil
}

// RemainingVersionCount implements lifecycle.Tx: tells DeleteVersion
// whether the crate itself should cascade-delete.
func (t *tx) RemainingVersionCount(ctx context.Context, crateID int64) (int, error) {
	q := newQuery("remaining_version_count")
	var err error
	done := q.start(&err)
	defer done()

	var count int
	row := t.QueryRow(ctx, q.SQL, crateID)
	if err = row.Scan(&count); err != nil {
		return 0, apperror.Wrap(apperror.Internal, op+".RemainingVersionCount", "counting remaining versions", err)
	}
	return count, nil
}
