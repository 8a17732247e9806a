// Package registry holds the plain domain types shared across the publish
// and distribution pipeline: crates, versions, dependencies, users, teams,
// tokens and the jobs and audit rows that tie them together.
//
// Types here carry no behavior beyond small invariant checks; the packages
// that use them (publish, lifecycle, auth, search, ...) hold the logic.
package registry

import (
	"regexp"
	"time"
)

// nameRE is the reserved character class a Crate name must match: ASCII
// letters, digits, underscore and hyphen, 1 to 64 bytes.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ReservedNames may never be registered as a Crate name.
var ReservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"std": true, "core": true, "alloc": true, "self": true, "crate": true, "super": true,
}

// ValidName reports whether name satisfies the Crate name invariant from
// §3: reserved character class, length 1..=64, not reserved.
func ValidName(name string) bool {
	if !nameRE.MatchString(name) {
		return false
	}
	return !ReservedNames[CanonicalName(name)]
}

// CanonicalName folds a Crate name to the form used for uniqueness and
// collision checks: lowercased, with runs of '_' treated the same as '-'.
func CanonicalName(name string) string {
	b := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_':
			b[i] = '-'
		case c >= 'A' && c <= 'Z':
			b[i] = c - 'A' + 'a'
		default:
			b[i] = c
		}
	}
	return string(b)
}

// Crate is a named collection of published Versions.
type Crate struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	CanonicalName       string    `json:"canonical_name"`
	Description         string    `json:"description,omitempty"`
	Homepage            string    `json:"homepage,omitempty"`
	Documentation       string    `json:"documentation,omitempty"`
	Repository          string    `json:"repository,omitempty"`
	Downloads           int64     `json:"downloads"`
	MaxUploadSize       *int64    `json:"max_upload_size,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DeletedCrate is a tombstone recording a crate name that may not be
// reused until AvailableAt.
type DeletedCrate struct {
	Name        string    `json:"name"`
	DeletedAt   time.Time `json:"deleted_at"`
	AvailableAt time.Time `json:"available_at"`
	Reason      string    `json:"reason,omitempty"`
}

// NameReuseWindow is the interval a deleted crate's name stays reserved.
const NameReuseWindow = 30 * 24 * time.Hour

// DependencyKind enumerates how a Dependency is consumed.
type DependencyKind string

const (
	DependencyNormal DependencyKind = "normal"
	DependencyBuild  DependencyKind = "build"
	DependencyDev    DependencyKind = "dev"
)

// Dependency is one edge from a Version to a required Crate.
type Dependency struct {
	ID                 int64          `json:"id"`
	VersionID          int64          `json:"version_id"`
	CrateName          string         `json:"crate_name"`
	Requirement        string         `json:"req"`
	Kind               DependencyKind `json:"kind"`
	Optional           bool           `json:"optional"`
	DefaultFeatures    bool           `json:"default_features"`
	Features           []string       `json:"features,omitempty"`
	Target             string         `json:"target,omitempty"`
	ExplicitNameInToml string         `json:"explicit_name_in_toml,omitempty"`
	Registry           string         `json:"registry,omitempty"`
}

// TrustedPublishingProvenance records which trusted publisher minted the
// token used for a publish, when applicable.
type TrustedPublishingProvenance struct {
	Provider    string `json:"provider"`
	RepoOwner   string `json:"repo_owner"`
	Repo        string `json:"repo"`
	Workflow    string `json:"workflow"`
	Environment string `json:"environment,omitempty"`
	RunID       string `json:"run_id,omitempty"`
}

// Version is one published release of a Crate.
type Version struct {
	ID                   int64                         `json:"id"`
	CrateID              int64                         `json:"crate_id"`
	Num                  string                        `json:"num"`
	NormalizedNum        string                        `json:"-"`
	Checksum             string                        `json:"checksum"`
	CrateSize            int64                         `json:"crate_size"`
	Yanked               bool                           `json:"yanked"`
	YankMessage          string                         `json:"yank_message,omitempty"`
	License              string                         `json:"license,omitempty"`
	Features             map[string][]string            `json:"features,omitempty"`
	Links                string                         `json:"links,omitempty"`
	RustVersion          string                         `json:"rust_version,omitempty"`
	CreatedAt            time.Time                      `json:"created_at"`
	PublishedBy          *int64                         `json:"published_by,omitempty"`
	TrustedPublishing    *TrustedPublishingProvenance    `json:"trustpub_data,omitempty"`
	Dependencies         []Dependency                   `json:"-"`
}

// OwnerActionKind enumerates §4.8's version_owner_action.action values.
type OwnerActionKind string

const (
	ActionYank   OwnerActionKind = "yank"
	ActionUnyank OwnerActionKind = "unyank"
)

// VersionOwnerAction is the audit row recorded by every yank/unyank.
type VersionOwnerAction struct {
	ID         int64           `json:"id"`
	VersionID  int64           `json:"version_id"`
	UserID     int64           `json:"user_id"`
	ApiTokenID *int64          `json:"api_token_id,omitempty"`
	Action     OwnerActionKind `json:"action"`
	Time       time.Time       `json:"time"`
}
