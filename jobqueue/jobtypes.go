package jobqueue

// Job type names, matching the registered contracts in §4.5. Handlers for
// these are registered by the packages that own the corresponding
// behavior (gitindex, cdn, downloads, typosquat, readme, and so on); this
// package only knows the names and priorities.
const (
	TypeSyncToGitIndex              = "sync_to_git_index"
	TypeSyncToSparseIndex           = "sync_to_sparse_index"
	TypeRenderAndUploadReadme       = "render_and_upload_readme"
	TypeInvalidateCDNs              = "invalidate_cdns"
	TypeUpdateDownloads             = "update_downloads"
	TypeDailyDBMaintenance          = "daily_db_maintenance"
	TypeSquashIndex                 = "squash_index"
	TypeNormalizeIndex              = "normalize_index"
	TypeDumpDB                      = "dump_db"
	TypeDeleteCrateFromStorage      = "delete_crate_from_storage"
	TypeSyncAdmins                  = "sync_admins"
	TypeProcessCDNLog               = "process_cdn_log"
	TypeTrustpubDeleteExpiredTokens = "trustpub::delete_expired_tokens"
	TypeTrustpubDeleteExpiredJTIs   = "trustpub::delete_expired_jtis"
	TypeRSSSyncUpdatesFeed          = "rss::sync_updates_feed"
	TypeRSSSyncCratesFeed           = "rss::sync_crates_feed"
	TypeRSSSyncCrateFeed            = "rss::sync_crate_feed"
	TypeCheckTyposquat              = "check_typosquat"
	TypeDocsRsQueueRebuild          = "docs_rs_queue_rebuild"
	TypeGenerateOGImage             = "generate_og_image"
	TypeExpiryNotification          = "expiry_notification"
)

// DefaultPriority is used for job types the contract list doesn't call
// out a priority for.
const DefaultPriority = 0

// Priority returns the priority §4.5 assigns jobType, or DefaultPriority.
func Priority(jobType string) int {
	switch jobType {
	case TypeSyncToGitIndex, TypeSyncToSparseIndex, TypeRenderAndUploadReadme:
		return 50
	default:
		return DefaultPriority
	}
}

// singletonJobTypes guard via an advisory lock rather than row-level
// locking, because only one instance should ever run across all worker
// processes at once.
var singletonJobTypes = map[string]struct{}{
	TypeUpdateDownloads: {},
	TypeSquashIndex:     {},
	TypeNormalizeIndex:  {},
}

// IsSingleton reports whether jobType must be guarded by an advisory lock.
func IsSingleton(jobType string) bool {
	_, ok := singletonJobTypes[jobType]
	return ok
}

// dedupedJobTypes are coalesced with any pending job of the same type and
// payload via the enqueue-time ON CONFLICT DO NOTHING.
var dedupedJobTypes = map[string]struct{}{
	TypeSyncToGitIndex:    {},
	TypeSyncToSparseIndex: {},
}

// IsDeduped reports whether jobType should be enqueued with dedup-on-conflict.
func IsDeduped(jobType string) bool {
	_, ok := dedupedJobTypes[jobType]
	return ok
}

// AdvisoryLockKey derives the pg_try_advisory_lock key for a singleton job
// type using FNV-1a, so every worker process agrees on the same key
// without needing shared configuration beyond the job type name.
func AdvisoryLockKey(jobType string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(jobType); i++ {
		h ^= uint64(jobType[i])
		h *= 1099511628211
	}
	return int64(h)
}
