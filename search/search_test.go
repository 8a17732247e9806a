package search

import (
	"context"
	"strings"
	"testing"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

func TestNormalizeDefaults(t *testing.T) {
	q := Query{}.Normalize()
	if q.Page != 1 || q.PerPage != DefaultPerPage || q.Sort != SortRelevance {
		t.Fatalf("unexpected defaults: %+v", q)
	}
}

func TestNormalizeClampsPerPage(t *testing.T) {
	q := Query{PerPage: 10000}.Normalize()
	if q.PerPage != MaxPerPage {
		t.Fatalf("expected PerPage clamped to %d, got %d", MaxPerPage, q.PerPage)
	}
}

func TestBuildQueryIncludesSearchTerm(t *testing.T) {
	sel, _, err := BuildQuery(Query{Q: "foo"})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.Contains(sel, "ILIKE") {
		t.Fatalf("expected ILIKE clause in generated SQL, got %q", sel)
	}
}

func TestBuildQueryRejectsUnknownSort(t *testing.T) {
	_, _, err := BuildQuery(Query{Sort: "bogus"})
	if err == nil {
		t.Fatal("expected unknown sort to be rejected")
	}
	if apperror.KindOf(err) != apperror.Validation {
		t.Fatalf("expected Validation kind, got %v", apperror.KindOf(err))
	}
}

func TestBuildQueryAppliesLimitOffset(t *testing.T) {
	sel, _, err := BuildQuery(Query{Page: 3, PerPage: 20})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.Contains(sel, "LIMIT 20") || !strings.Contains(sel, "OFFSET 40") {
		t.Fatalf("expected paginated SQL, got %q", sel)
	}
}

type fakeRunner struct {
	crates []registry.Crate
	total  int64
}

func (r *fakeRunner) SelectCrates(ctx context.Context, sql string) ([]registry.Crate, error) {
	return r.crates, nil
}

func (r *fakeRunner) CountCrates(ctx context.Context, sql string) (int64, error) {
	return r.total, nil
}

func TestSearchReturnsResult(t *testing.T) {
	runner := &fakeRunner{crates: []registry.Crate{{Name: "foo"}}, total: 1}
	result, err := Search(context.Background(), runner, Query{Q: "foo"}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Total != 1 || len(result.Crates) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSearchRejectsExcessivePageOffset(t *testing.T) {
	runner := &fakeRunner{}
	_, err := Search(context.Background(), runner, Query{Page: 1000, PerPage: 100}, 500)
	if err == nil {
		t.Fatal("expected page offset beyond max to be rejected")
	}
	if apperror.KindOf(err) != apperror.Validation {
		t.Fatalf("expected Validation kind, got %v", apperror.KindOf(err))
	}
}
