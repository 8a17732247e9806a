package downloads

import (
	"context"
	"testing"
	"time"
)

type fakeStore struct {
	calls []string
}

func (s *fakeStore) RecordDownload(ctx context.Context, crateName, normalizedVersion string, day time.Time) error {
	s.calls = append(s.calls, crateName+"@"+normalizedVersion)
	return nil
}

func TestResolveRecordsAndRedirects(t *testing.T) {
	store := &fakeStore{}
	r := New(&Options{Store: store, CDNBaseURL: "https://cdn.example.com"})

	url := r.Resolve(context.Background(), "foo", "1.0.0", time.Now())
	if url != "https://cdn.example.com/crates/foo/foo-1.0.0.crate" {
		t.Fatalf("unexpected URL: %s", url)
	}
	if len(store.calls) != 1 || store.calls[0] != "foo@1.0.0" {
		t.Fatalf("expected download to be recorded, got %v", store.calls)
	}
}

func TestResolveStripsBuildMetadataForCounting(t *testing.T) {
	store := &fakeStore{}
	r := New(&Options{Store: store, CDNBaseURL: "https://cdn.example.com"})

	r.Resolve(context.Background(), "foo", "1.0.0+build.5", time.Now())
	if len(store.calls) != 1 || store.calls[0] != "foo@1.0.0" {
		t.Fatalf("expected normalized version recorded, got %v", store.calls)
	}
}

func TestResolveRedirectsUnconditionallyOnUnknownVersion(t *testing.T) {
	store := &fakeStore{}
	r := New(&Options{Store: store, CDNBaseURL: "https://cdn.example.com"})

	url := r.Resolve(context.Background(), "nope", "9.9.9", time.Now())
	if url == "" {
		t.Fatal("expected a redirect URL regardless of version existence")
	}
}

func TestResolveSkipsCountingInReadOnlyMode(t *testing.T) {
	store := &fakeStore{}
	r := New(&Options{Store: store, CDNBaseURL: "https://cdn.example.com", ReadOnly: func() bool { return true }})

	r.Resolve(context.Background(), "foo", "1.0.0", time.Now())
	if len(store.calls) != 0 {
		t.Fatalf("expected no download recorded in read-only mode, got %v", store.calls)
	}
}

type fakeAggregator struct {
	called bool
}

func (a *fakeAggregator) RollUpDownloads(ctx context.Context) error {
	a.called = true
	return nil
}

func TestUpdateDownloadsHandlerInvokesAggregator(t *testing.T) {
	agg := &fakeAggregator{}
	handler := UpdateDownloadsHandler(agg)
	if err := handler(context.Background(), nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !agg.called {
		t.Fatal("expected RollUpDownloads to be called")
	}
}
