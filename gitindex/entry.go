// Package gitindex implements the Index Repository (spec §4.3): a
// git-backed, append-only mirror of published crate metadata plus the
// sparse-index materialization used by the HTTP index protocol.
package gitindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Entry is one JSON-lines record in a crate's index file.
type Entry struct {
	Name        string       `json:"name"`
	Vers        string       `json:"vers"`
	Deps        []Dependency `json:"deps"`
	Cksum       string       `json:"cksum"`
	Features    map[string][]string `json:"features"`
	Features2   map[string][]string `json:"features2,omitempty"`
	Yanked      bool         `json:"yanked"`
	Links       string       `json:"links,omitempty"`
	RustVersion string       `json:"rust_version,omitempty"`
	V           int          `json:"v,omitempty"`
}

// Dependency is one `deps[]` element of an Entry.
type Dependency struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          string   `json:"target,omitempty"`
	Kind            string   `json:"kind"`
	Registry        string   `json:"registry,omitempty"`
	Package         string   `json:"package,omitempty"`
}

// EncodeLine marshals e as one JSON-lines record, ending in "\n".
func EncodeLine(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("gitindex: encoding entry %s#%s: %w", e.Name, e.Vers, err)
	}
	return buf.Bytes(), nil
}

// EncodeFile joins entries (already in publish order) into the full
// contents of a crate's index file.
func EncodeFile(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := EncodeLine(e)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// DecodeFile parses the JSON-lines contents of a crate's index file back
// into entries, preserving publish order.
func DecodeFile(data []byte) ([]Entry, error) {
	var out []Entry
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("gitindex: decoding entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ShardPath returns the convention-defined relative path for a crate's
// index file: 1/<name>, 2/<name>, 3/<first char>/<name>, or
// <first two>/<next two>/<name> for names of four or more characters.
// Names are lowercased per §4.3.
func ShardPath(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return lower
	case 1:
		return "1/" + lower
	case 2:
		return "2/" + lower
	case 3:
		return "3/" + lower[:1] + "/" + lower
	default:
		return lower[:2] + "/" + lower[2:4] + "/" + lower
	}
}

// ShardDir is ShardPath without its trailing "/<name>" component — the
// directory a blob store key or CDN path needs separately from the name,
// e.g. for blobstore.IndexKey.
func ShardDir(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0, 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + lower[:1]
	default:
		return lower[:2] + "/" + lower[2:4]
	}
}

// Normalize fills in the defaults normalize() applies across a crate's
// entries: null kind becomes "normal", empty-string features are dropped,
// and deps are sorted by name then requirement for determinism.
func Normalize(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		deps := make([]Dependency, 0, len(e.Deps))
		for _, d := range e.Deps {
			if d.Kind == "" {
				d.Kind = "normal"
			}
			feats := d.Features[:0:0]
			for _, f := range d.Features {
				if f != "" {
					feats = append(feats, f)
				}
			}
			d.Features = feats
			deps = append(deps, d)
		}
		sort.Slice(deps, func(a, b int) bool {
			if deps[a].Name != deps[b].Name {
				return deps[a].Name < deps[b].Name
			}
			return deps[a].Req < deps[b].Req
		})
		e.Deps = deps
		out[i] = e
	}
	return out
}
