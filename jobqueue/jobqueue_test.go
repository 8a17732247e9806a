package jobqueue

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(TypeUpdateDownloads, func(ctx context.Context, payload json.RawMessage) error {
		called = true
		return nil
	})

	h, ok := r.Lookup(TypeUpdateDownloads)
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	if err := h(context.Background(), nil); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !called {
		t.Fatal("handler was not invoked")
	}

	if _, ok := r.Lookup(TypeSquashIndex); ok {
		t.Fatal("unregistered job type should not resolve")
	}
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(TypeSquashIndex, func(ctx context.Context, payload json.RawMessage) error { return nil })

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register(TypeSquashIndex, func(ctx context.Context, payload json.RawMessage) error { return nil })
}

func TestRegistryTypes(t *testing.T) {
	r := NewRegistry()
	r.Register(TypeSquashIndex, func(ctx context.Context, payload json.RawMessage) error { return nil })
	r.Register(TypeNormalizeIndex, func(ctx context.Context, payload json.RawMessage) error { return nil })

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	seen := map[string]bool{}
	for _, ty := range types {
		seen[ty] = true
	}
	if !seen[TypeSquashIndex] || !seen[TypeNormalizeIndex] {
		t.Fatalf("missing expected types in %v", types)
	}
}

func TestPriority(t *testing.T) {
	cases := map[string]int{
		TypeSyncToGitIndex:       50,
		TypeSyncToSparseIndex:    50,
		TypeRenderAndUploadReadme: 50,
		TypeUpdateDownloads:      DefaultPriority,
		TypeCheckTyposquat:       DefaultPriority,
		"unknown_job_type":       DefaultPriority,
	}
	for jobType, want := range cases {
		if got := Priority(jobType); got != want {
			t.Errorf("Priority(%q) = %d, want %d", jobType, got, want)
		}
	}
}

func TestIsSingleton(t *testing.T) {
	for _, jt := range []string{TypeUpdateDownloads, TypeSquashIndex, TypeNormalizeIndex} {
		if !IsSingleton(jt) {
			t.Errorf("expected %q to be singleton", jt)
		}
	}
	for _, jt := range []string{TypeSyncToGitIndex, TypeCheckTyposquat, "unknown"} {
		if IsSingleton(jt) {
			t.Errorf("expected %q not to be singleton", jt)
		}
	}
}

func TestIsDeduped(t *testing.T) {
	for _, jt := range []string{TypeSyncToGitIndex, TypeSyncToSparseIndex} {
		if !IsDeduped(jt) {
			t.Errorf("expected %q to be deduped", jt)
		}
	}
	for _, jt := range []string{TypeUpdateDownloads, "unknown"} {
		if IsDeduped(jt) {
			t.Errorf("expected %q not to be deduped", jt)
		}
	}
}

func TestAdvisoryLockKeyDeterministicAndDistinct(t *testing.T) {
	a1 := AdvisoryLockKey(TypeSquashIndex)
	a2 := AdvisoryLockKey(TypeSquashIndex)
	if a1 != a2 {
		t.Fatalf("AdvisoryLockKey not deterministic: %d != %d", a1, a2)
	}

	b := AdvisoryLockKey(TypeNormalizeIndex)
	if a1 == b {
		t.Fatalf("distinct job types collided on key %d", a1)
	}

	c := AdvisoryLockKey(TypeUpdateDownloads)
	if a1 == c || b == c {
		t.Fatal("expected three distinct job types to yield three distinct keys")
	}
}
