package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/crates-registry/core/internal/apperror"
)

// FS stores blobs under a local directory, for development usage the way
// the original implementation's Uploader::Local serves "local_uploads" off
// disk instead of S3.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS returns a Store rooted at dir, creating it if necessary.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "blobstore.NewFS", "creating root directory", err)
	}
	return &FS{root: dir}, nil
}

const opFS = "blobstore.FS"

func (f *FS) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", apperror.New(apperror.Validation, opFS, "invalid blob key: "+key)
	}
	return filepath.Join(f.root, clean), nil
}

func (f *FS) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperror.Wrap(apperror.Internal, opFS, "creating parent directory", err)
	}
	tmp := p + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return apperror.Wrap(apperror.Internal, opFS, "creating blob file", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return apperror.Wrap(apperror.Internal, opFS, "writing blob file", err)
	}
	if err := out.Close(); err != nil {
		return apperror.Wrap(apperror.Internal, opFS, "closing blob file", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return apperror.Wrap(apperror.Internal, opFS, "finalizing blob file", err)
	}
	return nil
}

func (f *FS) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, apperror.New(apperror.NotFound, opFS, "no such blob: "+key)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, opFS, "reading blob file", err)
	}
	return b, nil
}

func (f *FS) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return apperror.Wrap(apperror.Internal, opFS, "removing blob file", err)
	}
	return nil
}

func (f *FS) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := f.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := f.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) List(_ context.Context, prefix string) ([]string, error) {
	base, err := f.path(prefix)
	if err != nil {
		// A prefix need not itself be a valid leaf key; fall back to
		// joining directly against the root for directory walks.
		base = filepath.Join(f.root, filepath.Clean("/"+prefix))
	}
	var out []string
	dir := base
	if info, statErr := os.Stat(base); statErr != nil || !info.IsDir() {
		dir = filepath.Dir(base)
	}
	err = filepath.Walk(dir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, opFS, "walking blob directory", err)
	}
	return out, nil
}
