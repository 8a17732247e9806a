package publish

import (
	"encoding/json"
	"regexp"

	"github.com/Masterminds/semver"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

// Metadata is the publish request's declared-intent JSON, step 2 of §4.7.
type Metadata struct {
	Name        string                `json:"name"`
	Vers        string                `json:"vers"`
	Deps        []MetadataDependency  `json:"deps"`
	Features    map[string][]string   `json:"features"`
	Categories  []string              `json:"categories"`
	Keywords    []string              `json:"keywords"`
	Description string                `json:"description,omitempty"`
	Homepage    string                `json:"homepage,omitempty"`
	Documentation string              `json:"documentation,omitempty"`
	Readme      string                `json:"readme,omitempty"`
	ReadmeFile  string                `json:"readme_file,omitempty"`
	License     string                `json:"license,omitempty"`
	LicenseFile string                `json:"license_file,omitempty"`
	Repository  string                `json:"repository,omitempty"`
	Links       string                `json:"links,omitempty"`
	RustVersion string                `json:"rust_version,omitempty"`
}

// MetadataDependency is one `deps[]` entry of the publish metadata.
type MetadataDependency struct {
	Name            string   `json:"name"`
	ExplicitNameInToml string `json:"explicit_name_in_toml,omitempty"`
	VersionReq      string   `json:"version_req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          string   `json:"target,omitempty"`
	Kind            string   `json:"kind,omitempty"`
	Registry        string   `json:"registry,omitempty"`
}

var rustVersionRE = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?(\.[0-9]+)?$`)

const (
	maxCategories = 5
	maxKeywords   = 5
)

// CategoryValidator reports whether a category slug is known to the
// registry. The seed loader that populates the category catalog is an
// administrative concern out of this package's scope (§1); callers supply
// the check.
type CategoryValidator interface {
	IsKnownCategory(slug string) bool
}

// Warnings accumulates the non-fatal issues §4.7 step 11 reports back to
// the caller alongside a successful publish.
type Warnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}

func metaOp(name string) string { return op + "." + name }

// ParseMetadata unmarshals and validates the metadata JSON block, per §4.7
// step 2. Forgivable problems (unknown categories, over-long keyword list
// entries that are simply dropped) are returned as Warnings rather than
// errors; the listed invariants (name, semver, dependency requirements,
// rust-version shape) are hard failures.
func ParseMetadata(body []byte, categories CategoryValidator) (*Metadata, *Warnings, error) {
	var m Metadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, nil, apperror.Wrap(apperror.Validation, metaOp("ParseMetadata"), "malformed metadata JSON", err)
	}

	if !registry.ValidName(m.Name) {
		return nil, nil, apperror.New(apperror.Validation, metaOp("ParseMetadata"), "invalid crate name")
	}
	if _, err := semver.NewVersion(m.Vers); err != nil {
		return nil, nil, apperror.Wrapf(apperror.Validation, metaOp("ParseMetadata"), err, "version %q is not valid semver", m.Vers)
	}
	for _, d := range m.Deps {
		if _, err := semver.NewConstraint(d.VersionReq); err != nil {
			return nil, nil, apperror.Wrapf(apperror.Validation, metaOp("ParseMetadata"), err, "dependency %q has an invalid requirement %q", d.Name, d.VersionReq)
		}
	}
	if m.RustVersion != "" && !rustVersionRE.MatchString(m.RustVersion) {
		return nil, nil, apperror.New(apperror.Validation, metaOp("ParseMetadata"), "rust_version does not match X(.Y)?(.Z)?")
	}

	w := &Warnings{}
	if len(m.Keywords) > maxKeywords {
		w.Other = append(w.Other, "too many keywords were supplied; only the first 5 were kept")
		m.Keywords = m.Keywords[:maxKeywords]
	}
	if len(m.Categories) > maxCategories {
		w.Other = append(w.Other, "too many categories were supplied; only the first 5 were kept")
		m.Categories = m.Categories[:maxCategories]
	}
	if categories != nil {
		kept := m.Categories[:0]
		for _, c := range m.Categories {
			if categories.IsKnownCategory(c) {
				kept = append(kept, c)
			} else {
				w.InvalidCategories = append(w.InvalidCategories, c)
			}
		}
		m.Categories = kept
	}

	return &m, w, nil
}
