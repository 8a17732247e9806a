// Package downloads implements the Download Counter & redirect (spec
// §4.9): an unconditional 302 to the CDN paired with a best-effort,
// read-only-mode-aware increment of the per-version-per-day counter.
package downloads

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/crates-registry/core/blobstore"
)

// Store records download events. Counting is best-effort: a failure here
// must never prevent the redirect from being served.
type Store interface {
	RecordDownload(ctx context.Context, crateName, normalizedVersion string, day time.Time) error
}

// ReadOnly reports whether the primary database is currently configured
// read-only, in which case download counting is skipped per §4.9.
type ReadOnly func() bool

// Options configures a Redirector.
type Options struct {
	Store      Store
	ReadOnly   ReadOnly
	CDNBaseURL string
}

// Redirector resolves the download endpoint's target URL and records the
// count, never failing the redirect itself.
type Redirector struct {
	*Options
}

// New constructs a Redirector from opts.
func New(opts *Options) *Redirector {
	return &Redirector{Options: opts}
}

// Resolve implements §4.9: increments today's count for an exact
// (name, normalized_version) match, and always returns the CDN URL the
// caller should 302 to, even when no such version exists — the CDN itself
// returns 404 in that case.
func (r *Redirector) Resolve(ctx context.Context, crateName, version string, now time.Time) string {
	if r.ReadOnly == nil || !r.ReadOnly() {
		normalized := normalizeVersion(version)
		day := now.UTC().Truncate(24 * time.Hour)
		if err := r.Store.RecordDownload(ctx, crateName, normalized, day); err != nil {
			zlog.Warn(ctx).Err(err).Str("crate", crateName).Str("version", version).Msg("failed to record download")
		}
	}
	return r.cdnURL(crateName, version)
}

// cdnURL builds the Location header value. blobstore.CrateKey already
// percent-encodes "+" per §4.9's HTTP contract.
func (r *Redirector) cdnURL(crateName, version string) string {
	return strings.TrimRight(r.CDNBaseURL, "/") + "/" + blobstore.CrateKey(crateName, version)
}

func normalizeVersion(vers string) string {
	if i := strings.IndexByte(vers, '+'); i >= 0 {
		return vers[:i]
	}
	return vers
}

// Aggregator rolls per-version-per-day counts into the cumulative counters
// the update_downloads job maintains (§4.5, §4.9).
type Aggregator interface {
	RollUpDownloads(ctx context.Context) error
}

// UpdateDownloadsHandler adapts an Aggregator into a jobqueue.Handler for
// the singleton update_downloads job type. The job carries no payload: it
// always aggregates every outstanding version_downloads row.
func UpdateDownloadsHandler(agg Aggregator) func(ctx context.Context, payload json.RawMessage) error {
	return func(ctx context.Context, _ json.RawMessage) error {
		return agg.RollUpDownloads(ctx)
	}
}
