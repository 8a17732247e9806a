package postgres

import (
	"context"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// SelectCrates implements search.Runner: runs a search.BuildQuery-compiled
// SELECT and scans its rows into Crates. Query text comes from
// search.BuildQuery, not caller input, so it's safe to run as-is.
func (s *Store) SelectCrates(ctx context.Context, sql string) ([]registry.Crate, error) {
	q := dynamicQuery("search_select", sql)
	var err error
	done := q.start(&err)
	defer done()

	rows, queryErr := s.pool.Query(ctx, sql)
	if queryErr != nil {
		err = queryErr
		return nil, apperror.Wrap(apperror.Internal, op+".SelectCrates", "running search query", err)
	}
	defer rows.Close()

	var crates []registry.Crate
	for rows.Next() {
		c, scanErr := scanCrate(rows)
		if scanErr != nil {
			err = scanErr
			return nil, apperror.Wrap(apperror.Internal, op+".SelectCrates", "scanning search row", err)
		}
		crates = append(crates, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".SelectCrates", "iterating search rows", err)
	}
	return crates, nil
}

// CountCrates implements search.Runner: runs a search.BuildQuery-compiled
// COUNT(*) statement.
func (s *Store) CountCrates(ctx context.Context, sql string) (int64, error) {
	q := dynamicQuery("search_count", sql)
	var err error
	done := q.start(&err)
	defer done()

	var total int64
	if err = s.pool.QueryRow(ctx, sql).Scan(&total); err != nil {
		return 0, apperror.Wrap(apperror.Internal, op+".CountCrates", "counting search results", err)
	}
	return total, nil
}

// TopCrateNames implements typosquat.Corpus: the most-downloaded crate
// names a newly published name is checked against for collisions.
func (s *Store) TopCrateNames(ctx context.Context, limit int) ([]string, error) {
	q := newQuery("top_crate_names")
	var err error
	done := q.start(&err)
	defer done()

	rows, queryErr := s.pool.Query(ctx, q.SQL, limit)
	if queryErr != nil {
		err = queryErr
		return nil, apperror.Wrap(apperror.Internal, op+".TopCrateNames", "selecting top crates", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".TopCrateNames", "scanning crate name", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".TopCrateNames", "iterating crate names", err)
	}
	return names, nil
}
