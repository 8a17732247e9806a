package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/crates-registry/core/registry"
)

type memSearchRunner struct {
	crates []registry.Crate
	total  int64
}

func (m memSearchRunner) SelectCrates(ctx context.Context, sql string) ([]registry.Crate, error) {
	return m.crates, nil
}

func (m memSearchRunner) CountCrates(ctx context.Context, sql string) (int64, error) {
	return m.total, nil
}

func testServer(opts *Options) *Server {
	if opts.MaxSearchPageOffset == 0 {
		opts.MaxSearchPageOffset = 10000
	}
	return New(opts)
}

func TestHandleSearchReturnsCratesAndTotal(t *testing.T) {
	runner := memSearchRunner{
		crates: []registry.Crate{{Name: "serde"}, {Name: "serde_json"}},
		total:  2,
	}
	s := testServer(&Options{Search: runner})

	req := httptest.NewRequest("GET", "/api/v1/crates?q=serde", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Crates []registry.Crate `json:"crates"`
		Meta   struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Crates) != 2 {
		t.Fatalf("expected 2 crates, got %d", len(body.Crates))
	}
	if body.Meta.Total != 2 {
		t.Fatalf("expected total 2, got %d", body.Meta.Total)
	}
}

func TestHandleSearchRejectsPageOffsetBeyondMax(t *testing.T) {
	s := testServer(&Options{Search: memSearchRunner{}, MaxSearchPageOffset: 10})

	req := httptest.NewRequest("GET", "/api/v1/crates?page=50&per_page=10", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code == 200 {
		t.Fatalf("expected an error status for an over-limit page offset, got 200: %s", rec.Body.String())
	}
}

func TestHandleSearchRejectsUnknownSort(t *testing.T) {
	s := testServer(&Options{Search: memSearchRunner{}})

	req := httptest.NewRequest("GET", "/api/v1/crates?sort=bogus", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code == 200 {
		t.Fatalf("expected an error status for an unknown sort, got 200: %s", rec.Body.String())
	}
}
