// Package tarball implements the Tarball Inspector (spec §4.1): it parses
// an uploaded package archive under strict size and shape limits and
// extracts the manifest summary the publish pipeline needs.
package tarball

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

// Manifest is the summary the Tarball Inspector produces for one uploaded
// archive, matching §4.1's output shape.
type Manifest struct {
	DeclaredName    string
	DeclaredVersion string
	Dependencies    []Dependency
	Features        map[string][]string
	License         string
	Links           string
	RustVersion     string
	ReadmeBytes     []byte
	ReadmePath      string
	VCSInfo         *VCSInfo
	TotalExtracted  int64
	TarballSHA256   string
	Keywords        []string
	Categories      []string
	Description     string
	Homepage        string
	Documentation   string
	Repository      string
}

// Dependency is one `[dependencies]`-table entry as read off the manifest.
type Dependency struct {
	Name            string
	ExplicitName    string // set when the manifest key differs from Name (renaming)
	Requirement     string
	Kind            string // normal, build, dev
	Optional        bool
	DefaultFeatures bool
	Features        []string
	Target          string
	Registry        string
}

// VCSInfo is the parsed `.cargo_vcs_info.json`-equivalent payload.
type VCSInfo struct {
	GitSHA  string `json:"git_sha"`
	PathInVCS string `json:"path_in_vcs"`
}

// Limits bounds the inspector's work, mirroring §4.1's two ceilings.
type Limits struct {
	MaxUploadSize int64
	MaxUnpackSize int64

	MaxKeywords      int
	MaxCategories    int
	MaxKeywordLength int
}

const op = "tarball.Inspect"

// invalid wraps err (or constructs a fresh error if err is nil) as the
// Validation-kind InvalidTarball failure §4.1 specifies for every listed
// failure mode.
func invalid(format string, args ...any) error {
	return apperror.New(apperror.Validation, op, fmt.Sprintf(format, args...))
}

func invalidf(err error, format string, args ...any) error {
	return apperror.Wrapf(apperror.Validation, op, err, format, args...)
}

// Inspect reads at most limits.MaxUploadSize bytes from r, verifies the
// declared name/version against the tarball's single root directory, and
// extracts the manifest summary. r is not assumed seekable.
func Inspect(ctx context.Context, r io.Reader, declaredName, declaredVersion string, limits Limits) (*Manifest, error) {
	zlog.Debug(ctx).Str("crate", declaredName).Str("version", declaredVersion).Msg("inspecting tarball")

	h := sha256.New()
	lr := &io.LimitedReader{R: r, N: limits.MaxUploadSize + 1}
	tee := io.TeeReader(lr, h)

	gz, err := gzip.NewReader(tee)
	if err != nil {
		return nil, invalidf(err, "failed to open gzip stream")
	}
	defer gz.Close()

	unpackLimit := &io.LimitedReader{R: gz, N: limits.MaxUnpackSize + 1}
	tr := tar.NewReader(unpackLimit)

	rootPrefix := declaredName + "-" + declaredVersion + "/"
	var (
		m              Manifest
		foundManifest  bool
		manifestRaw    *rawManifest
		totalExtracted int64
		readmeName     string
	)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, invalidf(err, "failed reading tar entry")
		}

		name := path.Clean(hdr.Name)
		if path.IsAbs(name) || strings.HasPrefix(name, "../") || name == ".." {
			return nil, invalid("tarball entry %q escapes the archive root", hdr.Name)
		}
		if !strings.HasPrefix(hdr.Name, rootPrefix) && hdr.Name != strings.TrimSuffix(rootPrefix, "/") {
			return nil, invalid("tarball entry %q is outside of expected root %q", hdr.Name, rootPrefix)
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg, tar.TypeRegA:
		case tar.TypeSymlink, tar.TypeLink:
			return nil, invalid("tarball entry %q uses unsupported link type", hdr.Name)
		default:
			return nil, invalid("tarball entry %q uses unsupported type %c", hdr.Name, hdr.Typeflag)
		}

		totalExtracted += hdr.Size
		rel := strings.TrimPrefix(hdr.Name, rootPrefix)

		switch {
		case hdr.Typeflag == tar.TypeReg && isManifestPath(rel):
			b, err := io.ReadAll(tr)
			if err != nil {
				return nil, invalidf(err, "failed reading manifest")
			}
			manifestRaw, err = parseManifest(b)
			if err != nil {
				return nil, invalidf(err, "failed parsing manifest")
			}
			foundManifest = true
		case hdr.Typeflag == tar.TypeReg && rel == ".cargo_vcs_info.json":
			b, err := io.ReadAll(tr)
			if err != nil {
				return nil, invalidf(err, "failed reading vcs info")
			}
			var vi VCSInfo
			if err := json.Unmarshal(b, &vi); err == nil {
				m.VCSInfo = &vi
			}
		case hdr.Typeflag == tar.TypeReg && manifestRaw != nil && manifestRaw.Package != nil &&
			manifestRaw.Package.Readme != nil && rel == manifestRaw.Package.Readme.Value:
			b, err := io.ReadAll(tr)
			if err != nil {
				return nil, invalidf(err, "failed reading readme")
			}
			m.ReadmeBytes = b
			m.ReadmePath = rel
			readmeName = rel
		default:
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return nil, invalidf(err, "failed reading tarball entry %q", hdr.Name)
			}
		}

		if unpackLimit.N <= 0 {
			return nil, invalid("tarball exceeds max unpack size of %d bytes", limits.MaxUnpackSize)
		}
	}

	if lr.N <= 0 {
		return nil, apperror.New(apperror.Validation, op, fmt.Sprintf("tarball exceeds max upload size of %d bytes", limits.MaxUploadSize))
	}
	// Drain anything left in r (shouldn't be anything, but keeps the sha256
	// honest against the whole declared stream).
	_, _ = io.Copy(io.Discard, lr)

	if !foundManifest {
		return nil, invalid("tarball for %s-%s is missing its package manifest", declaredName, declaredVersion)
	}
	if err := validateManifest(manifestRaw); err != nil {
		return nil, invalidf(err, "invalid manifest")
	}
	_ = readmeName

	pkg := manifestRaw.Package
	if pkg.Name != declaredName {
		return nil, invalid("manifest name %q does not match declared name %q", pkg.Name, declaredName)
	}
	if pkg.Version != declaredVersion {
		return nil, invalid("manifest version %q does not match declared version %q", pkg.Version, declaredVersion)
	}

	maxKeywords := limits.MaxKeywords
	if maxKeywords == 0 {
		maxKeywords = 5
	}
	maxCategories := limits.MaxCategories
	if maxCategories == 0 {
		maxCategories = 5
	}
	maxKeywordLen := limits.MaxKeywordLength
	if maxKeywordLen == 0 {
		maxKeywordLen = 20
	}
	if len(pkg.Keywords) > maxKeywords {
		return nil, invalid("too many keywords: found %d, max %d", len(pkg.Keywords), maxKeywords)
	}
	if len(pkg.Categories) > maxCategories {
		return nil, invalid("too many categories: found %d, max %d", len(pkg.Categories), maxCategories)
	}
	for _, k := range pkg.Keywords {
		if len(k) > maxKeywordLen {
			return nil, invalid("keyword %q exceeds max length of %d", k, maxKeywordLen)
		}
	}

	m.DeclaredName = pkg.Name
	m.DeclaredVersion = pkg.Version
	m.License = pkg.License
	m.Links = pkg.Links
	m.RustVersion = pkg.RustVersion
	m.Keywords = pkg.Keywords
	m.Categories = pkg.Categories
	m.Description = pkg.Description
	m.Homepage = pkg.Homepage
	m.Documentation = pkg.Documentation
	m.Repository = pkg.Repository
	m.Features = manifestRaw.Features
	m.Dependencies = flattenDependencies(manifestRaw)
	m.TotalExtracted = totalExtracted
	m.TarballSHA256 = hex.EncodeToString(h.Sum(nil))

	zlog.Debug(ctx).Str("crate", m.DeclaredName).Int64("bytes", totalExtracted).Msg("tarball inspected")
	return &m, nil
}

func isManifestPath(rel string) bool {
	return rel == "Cargo.toml" || rel == "package.toml"
}

func validateManifest(m *rawManifest) error {
	if m == nil || m.Package == nil {
		return fmt.Errorf("missing field `package`")
	}
	p := m.Package
	if p.Version == "" {
		return fmt.Errorf("missing field `version`")
	}
	switch {
	case p.Readme != nil && p.Readme.Inherited,
		p.Edition != nil && p.Edition.Inherited,
		p.Publish != nil && p.Publish.Inherited:
		return fmt.Errorf("value from workspace hasn't been set")
	}
	for _, set := range []map[string]rawDependency{m.Dependencies, m.DevDeps, m.BuildDeps} {
		for name, d := range set {
			if d.Workspace {
				return fmt.Errorf("dependency %q inherits from workspace and was not resolved", name)
			}
		}
	}
	return nil
}

func flattenDependencies(m *rawManifest) []Dependency {
	var out []Dependency
	add := func(set map[string]rawDependency, kind string) {
		for name, d := range set {
			dep := Dependency{
				Name:            name,
				Requirement:     d.Version,
				Kind:            kind,
				Optional:        d.Optional,
				DefaultFeatures: d.DefaultFeatures == nil || *d.DefaultFeatures,
				Features:        d.Features,
				Target:          d.Target,
				Registry:        d.Registry,
			}
			if d.Package != "" && d.Package != name {
				dep.ExplicitName = name
				dep.Name = d.Package
			}
			out = append(out, dep)
		}
	}
	add(m.Dependencies, "normal")
	add(m.BuildDeps, "build")
	add(m.DevDeps, "dev")
	return out
}
