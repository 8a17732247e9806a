package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/gitindex"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// CrateIndexEntries implements the read side of the sync_to_git_index and
// sync_to_sparse_index jobs (§4.3): the full, current set of index lines
// for name, in publish order, which gitindex.Repo reconciles its working
// copy against.
func (s *Store) CrateIndexEntries(ctx context.Context, name string) ([]gitindex.Entry, error) {
	crate, err := s.CrateByName(ctx, name)
	if err != nil {
		return nil, err
	}

	q := newQuery("crate_versions_for_index")
	var qErr error
	done := q.start(&qErr)
	rows, qErr := s.pool.Query(ctx, q.SQL, crate.ID)
	if qErr == nil {
		defer rows.Close()
	}
	done()
	if qErr != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".CrateIndexEntries", "selecting versions", qErr)
	}

	type row struct {
		id          int64
		num         string
		checksum    string
		crateSize   int64
		yanked      bool
		features    []byte
		links       string
		rustVersion string
	}
	var versions []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.num, &r.checksum, &r.crateSize, &r.yanked, &r.features, &r.links, &r.rustVersion); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".CrateIndexEntries", "scanning version row", err)
		}
		versions = append(versions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".CrateIndexEntries", "iterating version rows", err)
	}

	entries := make([]gitindex.Entry, 0, len(versions))
	for _, v := range versions {
		deps, err := s.dependenciesForVersion(ctx, v.id)
		if err != nil {
			return nil, err
		}
		var features map[string][]string
		if len(v.features) > 0 {
			if err := json.Unmarshal(v.features, &features); err != nil {
				return nil, apperror.Wrap(apperror.Internal, op+".CrateIndexEntries", "decoding features", err)
			}
		}
		entries = append(entries, gitindex.Entry{
			Name:        crate.Name,
			Vers:        v.num,
			Deps:        deps,
			Cksum:       v.checksum,
			Features:    features,
			Yanked:      v.yanked,
			Links:       v.links,
			RustVersion: v.rustVersion,
			V:           2,
		})
	}
	return entries, nil
}

func (s *Store) dependenciesForVersion(ctx context.Context, versionID int64) ([]gitindex.Dependency, error) {
	q := newQuery("dependencies_for_version")
	var err error
	done := q.start(&err)
	rows, err := s.pool.Query(ctx, q.SQL, versionID)
	if err == nil {
		defer rows.Close()
	}
	done()
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".dependenciesForVersion", "selecting dependencies", err)
	}

	var deps []gitindex.Dependency
	for rows.Next() {
		var d gitindex.Dependency
		if err := rows.Scan(&d.Name, &d.Req, &d.Kind, &d.Optional, &d.DefaultFeatures, &d.Features, &d.Target, &d.Package, &d.Registry); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".dependenciesForVersion", "scanning dependency row", err)
		}
		// A renamed dependency stores the real crate in crate_name and the
		// manifest key in explicit_name_in_toml; the index line carries the
		// manifest key as name and the real crate as package.
		if d.Package != "" {
			d.Name, d.Package = d.Package, d.Name
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".dependenciesForVersion", "iterating dependency rows", err)
	}
	return deps, nil
}

// CrateByName resolves a crate by its as-typed display name for callers
// outside a transaction, such as the index-sync job handlers.
func (s *Store) CrateByName(ctx context.Context, name string) (*registry.Crate, error) {
	q := newQuery("crate_by_canonical_name")
	var qErr error
	done := q.start(&qErr)
	row := s.pool.QueryRow(ctx, q.SQL, registry.CanonicalName(name))
	crate, scanErr := scanCrate(row)
	done()
	if scanErr != nil {
		qErr = scanErr
		if scanErr == pgx.ErrNoRows {
			return nil, apperror.New(apperror.NotFound, op+".CrateByName", "crate not found")
		}
		return nil, apperror.Wrap(apperror.Internal, op+".CrateByName", "selecting crate", scanErr)
	}
	return crate, nil
}
