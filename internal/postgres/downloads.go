package postgres

import (
	"context"
	"time"

	"github.com/crates-registry/core/internal/apperror"
)

// RecordDownload implements downloads.Store: an upsert incrementing
// version_downloads(crate_name, normalized_version, day), the per-day
// counter §4.9's aggregation job rolls into crates.downloads.
func (s *Store) RecordDownload(ctx context.Context, crateName, normalizedVersion string, day time.Time) error {
	q := newQuery("record_download")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = s.pool.Exec(ctx, q.SQL, crateName, normalizedVersion, day); err != nil {
		return apperror.Wrap(apperror.Internal, op+".RecordDownload", "recording download", err)
	}
	return nil
}

// RollUpDownloads implements downloads.Aggregator: the update_downloads
// job body, folding outstanding version_downloads rows into the
// cumulative crates.downloads counter in one statement. No per-version
// counter is updated.
func (s *Store) RollUpDownloads(ctx context.Context) error {
	q := newQuery("roll_up_downloads")
	var err error
	done := q.start(&err)
	defer done()

	if _, err = s.pool.Exec(ctx, q.SQL); err != nil {
		return apperror.Wrap(apperror.Internal, op+".RollUpDownloads", "rolling up downloads", err)
	}
	return nil
}
