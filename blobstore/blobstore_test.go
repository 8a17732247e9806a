package blobstore

import (
	"bytes"
	"context"
	"os"
	"testing"
)

func TestCrateKeyEncodesPlus(t *testing.T) {
	k := CrateKey("foo", "1.0.0+build.5")
	want := "crates/foo/foo-1.0.0%2Bbuild.5.crate"
	if k != want {
		t.Fatalf("CrateKey = %q, want %q", k, want)
	}
}

func TestIndexKeyLowercases(t *testing.T) {
	k := IndexKey("fo/o", "FooBar")
	if k != "index/fo/o/foobar" {
		t.Fatalf("IndexKey = %q", k)
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Put(ctx, "crates/a/a-1.0.0.crate", bytes.NewReader([]byte("hello")), 5, "application/gzip"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := s.Get(ctx, "crates/a/a-1.0.0.crate")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("Get = %q", b)
	}

	if _, err := s.Get(ctx, "crates/a/missing.crate"); err == nil {
		t.Fatal("expected not-found error")
	}

	if err := s.Put(ctx, "crates/a/a-2.0.0.crate", bytes.NewReader([]byte("world")), 5, ""); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	keys, err := s.List(ctx, "crates/a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List = %v, want 2 entries", keys)
	}

	if err := s.Delete(ctx, "crates/a/a-1.0.0.crate"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "crates/a/a-1.0.0.crate"); err == nil {
		t.Fatal("expected not-found after delete")
	}

	if err := s.DeletePrefix(ctx, "crates/a/"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	keys, err = s.List(ctx, "crates/a/")
	if err != nil {
		t.Fatalf("List after DeletePrefix: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List after DeletePrefix = %v, want empty", keys)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestFSStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "blobstore-fs-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	testStore(t, s)
}

func TestFSRejectsPathEscape(t *testing.T) {
	dir, err := os.MkdirTemp("", "blobstore-fs-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	err = s.Put(context.Background(), "../../etc/passwd", bytes.NewReader([]byte("x")), 1, "")
	if err == nil {
		t.Fatal("expected rejection of path-escaping key")
	}
}
