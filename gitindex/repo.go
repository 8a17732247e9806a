package gitindex

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

const op = "gitindex.Repo"

// SparseUploader is the subset of the Blob Store Facade + CDN Invalidator
// that sync_to_sparse needs, kept as a narrow interface so this package
// never imports blobstore or cdn directly.
type SparseUploader interface {
	PutIndex(ctx context.Context, key string, body []byte) error
	Invalidate(ctx context.Context, paths []string) error
}

// Repo is a single process-wide handle onto the git-backed index working
// copy. All mutating operations serialize through mu, matching the
// process-wide mutex §4.3 requires.
type Repo struct {
	mu   sync.Mutex
	path string
	repo *git.Repository
	auth transport.AuthMethod

	author object.Signature

	sparse SparseUploader

	archiveRemote string // optional second remote for squash()'s archive copy
}

// Options configures Open.
type Options struct {
	// Path is the on-disk working copy directory.
	Path string
	// RemoteURL is the origin git index's URL, cloned into Path if absent.
	RemoteURL string
	Auth      transport.AuthMethod

	AuthorName  string
	AuthorEmail string

	Sparse SparseUploader

	// ArchiveRemoteURL, if set, also receives squash()'s pre-squash branch.
	ArchiveRemoteURL string
}

// Open opens the working copy at opts.Path, cloning it from opts.RemoteURL
// first if the directory doesn't contain a repository yet.
func Open(ctx context.Context, opts Options) (*Repo, error) {
	r := &Repo{
		path:   opts.Path,
		auth:   opts.Auth,
		sparse: opts.Sparse,
		author: object.Signature{
			Name:  opts.AuthorName,
			Email: opts.AuthorEmail,
		},
		archiveRemote: opts.ArchiveRemoteURL,
	}

	repo, err := git.PlainOpen(opts.Path)
	switch {
	case err == nil:
		r.repo = repo
	case err == git.ErrRepositoryNotExists:
		zlog.Info(ctx).Str("path", opts.Path).Msg("cloning index working copy")
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op, "creating working copy directory", err)
		}
		repo, err := git.PlainCloneContext(ctx, opts.Path, false, &git.CloneOptions{
			URL:  opts.RemoteURL,
			Auth: opts.Auth,
		})
		if err != nil {
			return nil, apperror.Wrap(apperror.Upstream, op, "cloning index repository", err)
		}
		r.repo = repo
	default:
		return nil, apperror.Wrap(apperror.Internal, op, "opening index working copy", err)
	}
	return r, nil
}

// withWorkingCopy serializes on mu, resets the working copy to origin's
// HEAD, runs fn to mutate files on disk, then stages/commits/pushes.
// fn returns the set of repo-relative paths it touched and the commit
// message; an empty path slice aborts without committing.
func (r *Repo) withWorkingCopy(ctx context.Context, fn func(wt *git.Worktree) (paths []string, message string, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "getting worktree", err)
	}

	if err := r.resetToOrigin(ctx, wt); err != nil {
		return err
	}

	paths, message, err := fn(wt)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return apperror.Wrap(apperror.Internal, op, "staging "+p, err)
		}
	}
	if _, err := wt.Commit(message, &git.CommitOptions{
		Author:    &r.author,
		Committer: &r.author,
	}); err != nil {
		return apperror.Wrap(apperror.Internal, op, "committing", err)
	}

	return r.pushWithRetry(ctx)
}

func (r *Repo) resetToOrigin(ctx context.Context, wt *git.Worktree) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Auth: r.auth, Force: true})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return apperror.Wrap(apperror.Upstream, op, "fetching origin", err)
	}

	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName("origin", "HEAD"), true)
	if err != nil {
		head, headErr := r.repo.Head()
		if headErr != nil {
			return apperror.Wrap(apperror.Internal, op, "resolving remote HEAD", err)
		}
		ref = head
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()}); err != nil {
		return apperror.Wrap(apperror.Internal, op, "resetting working copy", err)
	}
	return nil
}

// pushWithRetry pushes with force-with-lease, retrying with a doubling
// backoff on failure; the caller's background job is itself retried on
// ultimate failure, matching §4.5's lifecycle.
func (r *Repo) pushWithRetry(ctx context.Context) error {
	const maxAttempts = 3
	wait := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := r.repo.PushContext(ctx, &git.PushOptions{
			RemoteName:     "origin",
			Auth:           r.auth,
			ForceWithLease: &git.ForceWithLease{},
		})
		if err == nil || err == git.NoErrAlreadyUpToDate {
			return nil
		}
		lastErr = err
		zlog.Info(ctx).Err(err).Int("attempt", attempt).Msg("index push failed, retrying")
		select {
		case <-ctx.Done():
			return apperror.Wrap(apperror.Upstream, op, "push canceled", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
		if wait > 10*time.Second {
			wait = 10 * time.Second
		}
	}
	return apperror.Wrap(apperror.Upstream, op, "pushing index after retries", lastErr)
}

func (r *Repo) readFile(wt *git.Worktree, rel string) ([]Entry, error) {
	full := filepath.Join(r.path, rel)
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, "reading "+rel, err)
	}
	return DecodeFile(data)
}

func (r *Repo) writeFile(rel string, entries []Entry) error {
	full := filepath.Join(r.path, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return apperror.Wrap(apperror.Internal, op, "creating crate directory", err)
	}
	data, err := EncodeFile(entries)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "encoding entries", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return apperror.Wrap(apperror.Internal, op, "writing "+rel, err)
	}
	return nil
}

// Append writes a new line to name's index file (rewriting the whole file
// rather than amending) and commits/pushes the change.
func (r *Repo) Append(ctx context.Context, name string, entry Entry) error {
	rel := ShardPath(name)
	return r.withWorkingCopy(ctx, func(wt *git.Worktree) ([]string, string, error) {
		existing, err := r.readFile(wt, rel)
		if err != nil {
			return nil, "", err
		}
		existing = append(existing, entry)
		if err := r.writeFile(rel, existing); err != nil {
			return nil, "", err
		}
		return []string{rel}, fmt.Sprintf("Updating crate %s#%s", name, entry.Vers), nil
	})
}

// Yank toggles the yanked flag for name#version and commits/pushes.
func (r *Repo) Yank(ctx context.Context, name, version string, yanked bool) error {
	rel := ShardPath(name)
	return r.withWorkingCopy(ctx, func(wt *git.Worktree) ([]string, string, error) {
		entries, err := r.readFile(wt, rel)
		if err != nil {
			return nil, "", err
		}
		found := false
		for i := range entries {
			if entries[i].Vers == version {
				entries[i].Yanked = yanked
				found = true
			}
		}
		if !found {
			return nil, "", apperror.New(apperror.NotFound, op, fmt.Sprintf("no index entry for %s#%s", name, version))
		}
		if err := r.writeFile(rel, entries); err != nil {
			return nil, "", err
		}
		verb := "Yanking"
		if !yanked {
			verb = "Unyanking"
		}
		return []string{rel}, fmt.Sprintf("%s %s#%s", verb, name, version), nil
	})
}

// SyncToSparse regenerates the authoritative JSON-lines bytes for name from
// entries (already loaded from the database by the caller) and uploads
// them to the sparse index, then requests invalidation of that path.
func (r *Repo) SyncToSparse(ctx context.Context, name string, entries []Entry) error {
	data, err := EncodeFile(entries)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "encoding sparse index entries", err)
	}
	rel := "index/" + ShardPath(name)
	if err := r.sparse.PutIndex(ctx, rel, data); err != nil {
		return apperror.Wrap(apperror.Upstream, op, "uploading sparse index", err)
	}
	if err := r.sparse.Invalidate(ctx, []string{"/" + rel}); err != nil {
		return apperror.Wrap(apperror.Upstream, op, "invalidating sparse index path", err)
	}
	return nil
}

// Squash fast-forwards history into a single commit representing current
// state, publishing the previous HEAD as a snapshot-YYYY-MM-DD branch (and,
// if an archive remote is configured, pushing it there too).
func (r *Repo) Squash(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "getting worktree", err)
	}
	if err := r.resetToOrigin(ctx, wt); err != nil {
		return err
	}

	head, err := r.repo.Head()
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "resolving HEAD", err)
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "loading HEAD commit", err)
	}

	snapshotName := "snapshot-" + now.UTC().Format("2006-01-02")
	snapshotRef := plumbing.NewBranchReferenceName(snapshotName)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(snapshotRef, head.Hash())); err != nil {
		return apperror.Wrap(apperror.Internal, op, "creating snapshot branch", err)
	}

	squashed := object.Commit{
		Author:       r.author,
		Committer:    r.author,
		Message:      "Collapse index into single commit",
		TreeHash:     headCommit.TreeHash,
		ParentHashes: nil,
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := squashed.Encode(obj); err != nil {
		return apperror.Wrap(apperror.Internal, op, "encoding squashed commit", err)
	}
	newHash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, "storing squashed commit", err)
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(head.Name(), newHash)); err != nil {
		return apperror.Wrap(apperror.Internal, op, "updating HEAD to squashed commit", err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: newHash}); err != nil {
		return apperror.Wrap(apperror.Internal, op, "resetting worktree to squashed commit", err)
	}

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       r.auth,
		RefSpecs: []config.RefSpec{
			config.RefSpec(head.Name().String() + ":" + head.Name().String()),
			config.RefSpec(snapshotRef.String() + ":" + snapshotRef.String()),
		},
		Force: true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return apperror.Wrap(apperror.Upstream, op, "pushing squashed index", err)
	}

	if r.archiveRemote != "" {
		zlog.Info(ctx).Str("branch", snapshotName).Msg("publishing snapshot branch to archive remote")
		if err := r.pushSnapshotToArchive(ctx, snapshotRef); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) pushSnapshotToArchive(ctx context.Context, ref plumbing.ReferenceName) error {
	_, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name: "archive",
		URLs: []string{r.archiveRemote},
	})
	if err != nil && err != git.ErrRemoteExists {
		return apperror.Wrap(apperror.Internal, op, "configuring archive remote", err)
	}
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "archive",
		Auth:       r.auth,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return apperror.Wrap(apperror.Upstream, op, "pushing snapshot to archive remote", err)
	}
	return nil
}

// Normalize rewrites every crate file under the working copy so that null
// kind becomes "normal", empty-string features are dropped, and deps sort
// deterministically. When dryRun is true, no commit/push happens; the
// returned slice still reports which crate files would have changed.
func (r *Repo) Normalize(ctx context.Context, dryRun bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, "getting worktree", err)
	}
	if err := r.resetToOrigin(ctx, wt); err != nil {
		return nil, err
	}

	var changed []string
	err = filepath.Walk(r.path, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.path, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "config.json" {
			return nil
		}
		before, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entries, err := DecodeFile(before)
		if err != nil {
			// Not an index file; skip.
			return nil
		}
		normalized := Normalize(entries)
		after, err := EncodeFile(normalized)
		if err != nil {
			return err
		}
		if !bytes.Equal(before, after) {
			changed = append(changed, rel)
			if !dryRun {
				if err := os.WriteFile(p, after, 0o644); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, "walking working copy", err)
	}
	sort.Strings(changed)

	if dryRun || len(changed) == 0 {
		return changed, nil
	}

	for _, rel := range changed {
		if _, err := wt.Add(rel); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op, "staging "+rel, err)
		}
	}
	if _, err := wt.Commit(fmt.Sprintf("Normalize %d index files", len(changed)), &git.CommitOptions{
		Author:    &r.author,
		Committer: &r.author,
	}); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, "committing normalize", err)
	}
	if err := r.pushWithRetry(ctx); err != nil {
		return nil, err
	}
	return changed, nil
}

// CurrentEntries exposes the decoded entries for name, for callers (such as
// the sync_to_git_index job handler) that need to compare git-index
// state against the database's view.
func (r *Repo) CurrentEntries(name string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(r.path, ShardPath(name)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, "reading index file", err)
	}
	return DecodeFile(data)
}
