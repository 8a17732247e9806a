package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crates-registry/core/downloads"
)

type memDownloadStore struct {
	recorded int
}

func (m *memDownloadStore) RecordDownload(ctx context.Context, crateName, normalizedVersion string, day time.Time) error {
	m.recorded++
	return nil
}

func TestHandleDownloadRedirectsAndRecordsCount(t *testing.T) {
	store := &memDownloadStore{}
	s := testServer(&Options{
		Downloads: downloads.New(&downloads.Options{Store: store, CDNBaseURL: "https://static.example.com"}),
	})

	req := httptest.NewRequest("GET", "/api/v1/crates/serde/1.0.0/download", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != 302 {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc == "" {
		t.Fatal("expected a Location header")
	}
	if store.recorded != 1 {
		t.Fatalf("expected one recorded download, got %d", store.recorded)
	}
}

func TestHandleDownloadSkipsCountingInReadOnlyMode(t *testing.T) {
	store := &memDownloadStore{}
	s := testServer(&Options{
		Downloads: downloads.New(&downloads.Options{
			Store:      store,
			ReadOnly:   func() bool { return true },
			CDNBaseURL: "https://static.example.com",
		}),
	})

	req := httptest.NewRequest("GET", "/api/v1/crates/serde/1.0.0/download", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != 302 {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if store.recorded != 0 {
		t.Fatalf("expected no recorded downloads in read-only mode, got %d", store.recorded)
	}
}
