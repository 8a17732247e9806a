package gitindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// newTestRemote creates a bare repository with one empty commit, returning
// its filesystem path for use as a file:// remote.
func newTestRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bare := filepath.Join(dir, "remote.git")
	if _, err := git.PlainInit(bare, true); err != nil {
		t.Fatalf("PlainInit bare: %v", err)
	}

	seed := filepath.Join(dir, "seed")
	repo, err := git.PlainInit(seed, false)
	if err != nil {
		t.Fatalf("PlainInit seed: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(seed, "config.json"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("config.json"); err != nil {
		t.Fatal(err)
	}
	sig := &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{bare}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Push(&git.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatalf("seeding remote: %v", err)
	}
	return bare
}

func TestRepoAppendAndYank(t *testing.T) {
	remote := newTestRemote(t)
	workDir := t.TempDir()

	r, err := Open(context.Background(), Options{
		Path:        filepath.Join(workDir, "checkout"),
		RemoteURL:   remote,
		AuthorName:  "registry",
		AuthorEmail: "registry@example.com",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entry := Entry{Name: "foo", Vers: "1.0.0", Cksum: "abc", Deps: []Dependency{}, Features: map[string][]string{}}
	if err := r.Append(context.Background(), "foo", entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := r.CurrentEntries("foo")
	if err != nil {
		t.Fatalf("CurrentEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Vers != "1.0.0" {
		t.Fatalf("unexpected entries after append: %+v", entries)
	}

	if err := r.Yank(context.Background(), "foo", "1.0.0", true); err != nil {
		t.Fatalf("Yank: %v", err)
	}
	entries, err = r.CurrentEntries("foo")
	if err != nil {
		t.Fatalf("CurrentEntries after yank: %v", err)
	}
	if !entries[0].Yanked {
		t.Fatalf("expected yanked entry: %+v", entries[0])
	}

	if err := r.Yank(context.Background(), "foo", "9.9.9", true); err == nil {
		t.Fatal("expected not-found error for missing version")
	}
}
