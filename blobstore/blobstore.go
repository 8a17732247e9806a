// Package blobstore implements the Blob Store Facade (spec §4.2): a
// uniform put/get/delete/list surface over S3-compatible object storage or
// a local directory, following the teacher's habit (libindex's FetchArena)
// of hiding a remote-store client behind a small interface so the rest of
// the system never imports the transport package directly.
package blobstore

import (
	"context"
	"io"
	"strings"
)

// Store is the interface every backend implements.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Well-known key prefixes/shapes from §4.2.
const (
	cratesPrefix  = "crates"
	readmesPrefix = "readmes"
	indexPrefix   = "index"
	rssPrefix     = "rss"
	ogImagePrefix = "og-images"
)

// CrateKey is the blob key for a tarball.
func CrateKey(name, version string) string {
	return cratesPrefix + "/" + name + "/" + name + "-" + encodeVersion(version) + ".crate"
}

// ReadmeKey is the blob key for a rendered README.
func ReadmeKey(name, version string) string {
	return readmesPrefix + "/" + name + "/" + name + "-" + encodeVersion(version) + ".html"
}

// IndexKey is the blob key for a crate's sparse index entry. shard follows
// §4.3's path convention.
func IndexKey(shard, name string) string {
	return indexPrefix + "/" + shard + "/" + strings.ToLower(name)
}

// RSSCrateFeedKey, RSSCratesFeedKey, RSSUpdatesFeedKey are the fixed RSS
// feed paths from §4.2.
func RSSCrateFeedKey(name string) string { return rssPrefix + "/crates/" + name + ".xml" }
func RSSCratesFeedKey() string           { return rssPrefix + "/crates.xml" }
func RSSUpdatesFeedKey() string          { return rssPrefix + "/updates.xml" }

// OGImageKey is the blob key for a generated social preview image.
func OGImageKey(name string) string { return ogImagePrefix + "/" + name + ".png" }

// encodeVersion percent-encodes '+' as the spec requires, so build-metadata
// versions don't collide with path separators or query syntax downstream.
func encodeVersion(v string) string {
	return strings.ReplaceAll(v, "+", "%2B")
}
