package registry

import "github.com/package-url/packageurl-go"

// Purl returns the package URL (https://github.com/package-url/purl-spec)
// identifying a crate version, in the "cargo" ecosystem namespace purl.dev
// registers for crates.io. The publish response surfaces it alongside the registry's own name/version pair so API consumers can
// correlate a crate with SBOM and vulnerability-feed tooling that speaks
// purls natively.
func Purl(name, version string) string {
	return packageurl.PackageURL{
		Type:    "cargo",
		Name:    name,
		Version: version,
	}.String()
}
