package registry

import "time"

// Category is a normalized catalog grouping.
type Category struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Label       string `json:"category"`
	Description string `json:"description,omitempty"`
	CrateCount  int64  `json:"crates_cnt"`
}

// Keyword is a free-form catalog tag.
type Keyword struct {
	ID         int64  `json:"id"`
	Slug       string `json:"keyword"`
	CrateCount int64  `json:"crates_cnt"`
}

// MaxKeywords and MaxCategories bound the per-version lists, per §4.1.
const (
	MaxKeywords      = 5
	MaxCategories    = 5
	MaxKeywordLength = 20
)

// DownloadCount is a per-version, per-day download tally.
type DownloadCount struct {
	VersionID int64     `json:"version_id"`
	Date      time.Time `json:"date"`
	Downloads int64     `json:"downloads"`
}

// CrateDownloadCount is the per-crate, per-day rollup.
type CrateDownloadCount struct {
	CrateID   int64     `json:"crate_id"`
	Date      time.Time `json:"date"`
	Downloads int64     `json:"downloads"`
}

// BackgroundJob is one row of the durable job queue (§4.5).
type BackgroundJob struct {
	ID         int64     `json:"id"`
	JobType    string    `json:"job_type"`
	Payload    []byte    `json:"payload"`
	Priority   int       `json:"priority"`
	Queue      string    `json:"queue"`
	Retries    int       `json:"retries"`
	LastRetry  time.Time `json:"last_retry"`
	CreatedAt  time.Time `json:"created_at"`
}

// CloudFrontInvalidationQueueEntry buffers a path between batched CDN
// invalidation flushes (§4.4).
type CloudFrontInvalidationQueueEntry struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// UsedJTI records a consumed OIDC JWT ID to prevent trusted-publishing
// token replay (§5).
type UsedJTI struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}
