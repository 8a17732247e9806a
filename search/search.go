// Package search implements Search & Listing (spec §4's catalog reads):
// paginated, filtered queries against the crate catalog. Full-text
// relevance tuning is explicitly out of scope; this package filters on a
// name or description substring match and, for the default relevance
// sort, ranks by download count, the same "good enough" ordering the
// teacher's own non-goals steer toward for anything not central to the
// spec.
package search

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

const op = "search"

// Sort enumerates the `sort` query parameter's accepted values.
type Sort string

const (
	SortRelevance       Sort = "relevance"
	SortDownloads       Sort = "downloads"
	SortRecentDownloads Sort = "recent-downloads"
	SortNewest          Sort = "new"
	SortAlphabetical    Sort = "alphabetical"
)

// DefaultPerPage and MaxPerPage bound the page-size parameter.
const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Query is one catalog search request.
type Query struct {
	Q       string
	Page    int
	PerPage int
	Sort    Sort
}

// Normalize fills in defaults and clamps bounds, mirroring the same
// "accept a loose caller-supplied Query, normalize it once" idiom
// publish.ParseMetadata uses for its own untrusted input.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	if q.Sort == "" {
		q.Sort = SortRelevance
	}
	return q
}

// Result is one page of crates plus the total matching row count, enough
// for the HTTP layer to build the `meta: { total, next_page, prev_page }`
// envelope §4's HTTP surface specifies.
type Result struct {
	Crates []registry.Crate
	Total  int64
}

// BuildQuery compiles q into the SELECT and COUNT statements to run
// against the crates table, using goqu the same way
// datastore/postgres/querybuilder.go composes conditional WHERE clauses
// for vulnerability matching: build up a goqu.Expression list, then
// render it to SQL once at the end.
func BuildQuery(q Query) (selectSQL string, countSQL string, err error) {
	q = q.Normalize()
	psql := goqu.Dialect("postgres")

	var exps []goqu.Expression
	if term := strings.TrimSpace(q.Q); term != "" {
		like := "%" + term + "%"
		exps = append(exps, goqu.Or(
			goqu.C("name").ILike(like),
			goqu.C("description").ILike(like),
		))
	}

	base := psql.From("crates")
	if len(exps) > 0 {
		base = base.Where(exps...)
	}

	sel := base.Select("id", "name", "canonical_name", "description", "homepage",
		"documentation", "repository", "downloads", "max_upload_size", "created_at", "updated_at")

	switch q.Sort {
	case SortDownloads, SortRelevance:
		sel = sel.Order(goqu.C("downloads").Desc(), goqu.C("name").Asc())
	case SortRecentDownloads:
		sel = sel.Order(goqu.C("recent_downloads").Desc(), goqu.C("name").Asc())
	case SortNewest:
		sel = sel.Order(goqu.C("created_at").Desc())
	case SortAlphabetical:
		sel = sel.Order(goqu.C("name").Asc())
	default:
		return "", "", apperror.New(apperror.Validation, op+".BuildQuery", "unknown sort parameter")
	}

	sel = sel.Limit(uint(q.PerPage)).Offset(uint((q.Page - 1) * q.PerPage))

	selectSQL, _, err = sel.ToSQL()
	if err != nil {
		return "", "", apperror.Wrap(apperror.Internal, op+".BuildQuery", "compiling select", err)
	}

	countSQL, _, err = base.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return "", "", apperror.Wrap(apperror.Internal, op+".BuildQuery", "compiling count", err)
	}
	return selectSQL, countSQL, nil
}

// Runner executes the compiled queries. internal/postgres supplies the
// concrete implementation; this package only builds SQL.
type Runner interface {
	SelectCrates(ctx context.Context, sql string) ([]registry.Crate, error)
	CountCrates(ctx context.Context, sql string) (int64, error)
}

// Search runs q against db and assembles a Result, rejecting page
// offsets beyond maxAllowedPageOffset per §4's HTTP surface.
func Search(ctx context.Context, db Runner, q Query, maxAllowedPageOffset int) (*Result, error) {
	q = q.Normalize()
	if offset := (q.Page - 1) * q.PerPage; maxAllowedPageOffset > 0 && offset > maxAllowedPageOffset {
		return nil, apperror.New(apperror.Validation, op+".Search", "requested page offset exceeds the maximum allowed")
	}

	selectSQL, countSQL, err := BuildQuery(q)
	if err != nil {
		return nil, err
	}

	crates, err := db.SelectCrates(ctx, selectSQL)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".Search", "selecting crates", err)
	}
	total, err := db.CountCrates(ctx, countSQL)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".Search", "counting crates", err)
	}

	return &Result{Crates: crates, Total: total}, nil
}
