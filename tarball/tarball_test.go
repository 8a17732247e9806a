package tarball

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const validManifest = `
[package]
name = "foo"
version = "0.1.0"
license = "MIT"
readme = "README.md"
keywords = ["http", "web"]
categories = ["network-programming"]

[dependencies]
bytes = "1.0"
`

func TestInspectValid(t *testing.T) {
	data := buildTarball(t, map[string]string{
		"foo-0.1.0/Cargo.toml":  validManifest,
		"foo-0.1.0/README.md":   "# foo",
		"foo-0.1.0/src/lib.rs":  "pub fn f() {}",
	})
	m, err := Inspect(context.Background(), bytes.NewReader(data), "foo", "0.1.0", Limits{
		MaxUploadSize: int64(len(data)) + 1,
		MaxUnpackSize: 1 << 20,
	})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if m.DeclaredName != "foo" || m.DeclaredVersion != "0.1.0" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if len(m.Dependencies) != 1 || m.Dependencies[0].Name != "bytes" {
		t.Fatalf("unexpected deps: %+v", m.Dependencies)
	}
	if string(m.ReadmeBytes) != "# foo" {
		t.Fatalf("readme not captured: %q", m.ReadmeBytes)
	}
	if m.TarballSHA256 == "" {
		t.Fatal("expected a checksum")
	}
}

func TestInspectNameMismatch(t *testing.T) {
	data := buildTarball(t, map[string]string{
		"foo-0.1.0/Cargo.toml": validManifest,
	})
	_, err := Inspect(context.Background(), bytes.NewReader(data), "bar", "0.1.0", Limits{
		MaxUploadSize: int64(len(data)) + 1,
		MaxUnpackSize: 1 << 20,
	})
	if err == nil {
		t.Fatal("expected a root-directory mismatch error")
	}
}

func TestInspectUploadSizeExceeded(t *testing.T) {
	data := buildTarball(t, map[string]string{
		"foo-0.1.0/Cargo.toml": validManifest,
	})
	_, err := Inspect(context.Background(), bytes.NewReader(data), "foo", "0.1.0", Limits{
		MaxUploadSize: 4,
		MaxUnpackSize: 1 << 20,
	})
	if err == nil {
		t.Fatal("expected a payload-too-large error")
	}
}

func TestInspectMissingManifest(t *testing.T) {
	data := buildTarball(t, map[string]string{
		"foo-0.1.0/src/lib.rs": "fn f() {}",
	})
	_, err := Inspect(context.Background(), bytes.NewReader(data), "foo", "0.1.0", Limits{
		MaxUploadSize: int64(len(data)) + 1,
		MaxUnpackSize: 1 << 20,
	})
	if err == nil {
		t.Fatal("expected a missing-manifest error")
	}
}
