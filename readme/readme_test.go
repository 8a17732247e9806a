package readme

import (
	"context"
	"strings"
	"testing"

	"github.com/crates-registry/core/blobstore"
)

func TestRenderStripsScriptTags(t *testing.T) {
	out, err := Render([]byte("# Hi\n\n<script>alert(1)</script>\n\nbody text"), "", "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(out), "<script") {
		t.Fatalf("expected script tag to be stripped, got %q", out)
	}
	if !strings.Contains(string(out), "<h1") {
		t.Fatalf("expected heading to survive sanitization, got %q", out)
	}
}

func TestRenderAllowsSafeLink(t *testing.T) {
	out, err := Render([]byte("[home](https://example.com)"), "", "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), `href="https://example.com"`) {
		t.Fatalf("expected link to survive, got %q", out)
	}
	if !strings.Contains(string(out), `rel="nofollow"`) {
		t.Fatalf("expected rel=nofollow to be added, got %q", out)
	}
}

func TestRenderRejectsJavascriptScheme(t *testing.T) {
	out, err := Render([]byte("[x](javascript:alert(1))"), "", "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(out), "javascript:") {
		t.Fatalf("expected javascript: scheme to be stripped, got %q", out)
	}
}

func TestRenderResolvesRelativeLinks(t *testing.T) {
	out, err := Render([]byte("[docs](./docs/intro.md)"), "https://github.com/foo/bar", "crates/foo")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), "https://github.com/foo/bar/crates/foo/docs/intro.md") {
		t.Fatalf("expected relative link resolved against base+pkg_path, got %q", out)
	}
}

func TestRenderLeavesAbsoluteLinksAlone(t *testing.T) {
	out, err := Render([]byte("[ext](https://other.example/x)"), "https://github.com/foo/bar", "crates/foo")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), `href="https://other.example/x"`) {
		t.Fatalf("expected absolute link untouched, got %q", out)
	}
}

func TestUploadPutsRenderedHTMLAtReadmeKey(t *testing.T) {
	blobs := blobstore.NewMemory()
	if err := Upload(context.Background(), blobs, "foo", "1.0.0", []byte("# Foo"), "", ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !blobs.Has(blobstore.ReadmeKey("foo", "1.0.0")) {
		t.Fatal("expected rendered readme to be uploaded")
	}
}
