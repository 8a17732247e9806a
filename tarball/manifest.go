package tarball

import "github.com/pelletier/go-toml/v2"

// manifestPackage mirrors the `[package]` table of the manifest embedded in
// a tarball's root directory, following the field checks the original
// implementation runs in manifest.rs's validate_package before the publish
// pipeline ever sees the data.
type manifestPackage struct {
	Name        string              `toml:"name"`
	Version     string              `toml:"version"`
	Authors     []string            `toml:"authors"`
	Description string              `toml:"description"`
	Homepage    string              `toml:"homepage"`
	Documentation string            `toml:"documentation"`
	Readme      *inheritableString  `toml:"readme"`
	Keywords    []string            `toml:"keywords"`
	Categories  []string            `toml:"categories"`
	License     string              `toml:"license"`
	LicenseFile string              `toml:"license-file"`
	Repository  string              `toml:"repository"`
	Links       string              `toml:"links"`
	RustVersion string              `toml:"rust-version"`
	Edition     *inheritableString  `toml:"edition"`
	Publish     *inheritableBool    `toml:"publish"`
}

// inheritableString/inheritableBool detect workspace-inheritance markers
// (`field.workspace = true`) that the original cargo_manifest crate
// resolves client-side before upload; a manifest that still carries one at
// publish time means inheritance wasn't normalized (§4.1 failure policy).
type inheritableString struct {
	Value     string
	Inherited bool
}

func (s *inheritableString) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case string:
		s.Value = t
	case map[string]any:
		if ws, ok := t["workspace"].(bool); ok && ws {
			s.Inherited = true
		}
	}
	return nil
}

type inheritableBool struct {
	Value     bool
	HasValue  bool
	Inherited bool
}

func (b *inheritableBool) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case bool:
		b.Value, b.HasValue = t, true
	case map[string]any:
		if ws, ok := t["workspace"].(bool); ok && ws {
			b.Inherited = true
		}
	}
	return nil
}

type rawManifest struct {
	Package      *manifestPackage         `toml:"package"`
	Dependencies map[string]rawDependency `toml:"dependencies"`
	DevDeps      map[string]rawDependency `toml:"dev-dependencies"`
	BuildDeps    map[string]rawDependency `toml:"build-dependencies"`
	Features     map[string][]string      `toml:"features"`
}

type rawDependency struct {
	simple  string
	Version string              `toml:"version"`
	Req     string              `toml:"req"`
	Path    string              `toml:"path"`
	Optional bool               `toml:"optional"`
	DefaultFeatures *bool       `toml:"default-features"`
	Features []string           `toml:"features"`
	Package  string             `toml:"package"`
	Target   string             `toml:"target"`
	Registry string             `toml:"registry"`
	Workspace bool              `toml:"workspace"`
}

func (d *rawDependency) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case string:
		d.simple = t
		d.Version = t
	case map[string]any:
		b, err := toml.Marshal(t)
		if err != nil {
			return err
		}
		type alias rawDependency
		var a alias
		if err := toml.Unmarshal(b, &a); err != nil {
			return err
		}
		*d = rawDependency(a)
	}
	return nil
}

func parseManifest(b []byte) (*rawManifest, error) {
	var m rawManifest
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
