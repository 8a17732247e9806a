// Package config loads the registry's process configuration from the
// environment variables §6 treats as contract, following the teacher's
// convention of a single struct of already-resolved values passed by
// handle into every constructor (libindex.Options, libvuln.Options)
// rather than components reading the environment themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL        string
	ReadOnlyReplicaURL string
	ReadOnly           bool

	S3Bucket  string
	S3CDN     string
	AWSAccessKey string
	AWSSecretKey string

	CloudFrontDistribution string
	FastlyAPIToken         string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubAdminUsers   []string

	SessionKey string

	PagerDutyAPIToken       string
	PagerDutyIntegrationKey string

	HerokuBuildCommit string

	WebCDNUserAgent string

	MetricsAuthorizationToken string

	GitRepoURL        string
	GitArchiveRepoURL string

	MaxUploadSize   int64
	MaxUnpackSize   int64
	MetadataCeiling int64

	JobPollInterval time.Duration
}

const (
	DefaultMaxUploadSize   int64 = 10 * 1024 * 1024  // 10MiB, crates.io's historical default
	DefaultMaxUnpackSize   int64 = 512 * 1024 * 1024 // generous multiple of MaxUploadSize
	DefaultMetadataCeiling int64 = 64 * 1024

	DefaultJobPollInterval = 1 * time.Second
)

// FromEnv resolves a Config from the process environment, applying the
// same defaults the teacher's Options constructors apply for optional
// fields (libvuln.Options.UpdateInterval, and similar).
func FromEnv(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c := &Config{
		DatabaseURL:             getenv("DATABASE_URL"),
		ReadOnlyReplicaURL:      getenv("READ_ONLY_REPLICA_URL"),
		S3Bucket:                getenv("S3_BUCKET"),
		S3CDN:                   getenv("S3_CDN"),
		AWSAccessKey:            getenv("AWS_ACCESS_KEY"),
		AWSSecretKey:            getenv("AWS_SECRET_KEY"),
		CloudFrontDistribution:  getenv("CLOUDFRONT_DISTRIBUTION"),
		FastlyAPIToken:          getenv("FASTLY_API_TOKEN"),
		GitHubClientID:          getenv("GH_CLIENT_ID"),
		GitHubClientSecret:      getenv("GH_CLIENT_SECRET"),
		SessionKey:              getenv("SESSION_KEY"),
		PagerDutyAPIToken:       getenv("PAGERDUTY_API_TOKEN"),
		PagerDutyIntegrationKey: getenv("PAGERDUTY_INTEGRATION_KEY"),
		HerokuBuildCommit:       firstNonEmpty(getenv("HEROKU_BUILD_COMMIT"), getenv("HEROKU_SLUG_COMMIT")),
		WebCDNUserAgent:         getenv("WEB_CDN_USER_AGENT"),
		MetricsAuthorizationToken: getenv("METRICS_AUTHORIZATION_TOKEN"),
		GitRepoURL:              getenv("GIT_REPO_URL"),
		GitArchiveRepoURL:       getenv("GIT_ARCHIVE_REPO_URL"),

		MaxUploadSize:   DefaultMaxUploadSize,
		MaxUnpackSize:   DefaultMaxUnpackSize,
		MetadataCeiling: DefaultMetadataCeiling,
		JobPollInterval: DefaultJobPollInterval,
	}

	if v := getenv("GH_ADMIN_USERS"); v != "" {
		c.GitHubAdminUsers = splitCSV(v)
	}
	if v := getenv("READ_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: parsing READ_ONLY: %w", err)
		}
		c.ReadOnly = b
	}
	if v := getenv("MAX_UPLOAD_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: parsing MAX_UPLOAD_SIZE: %w", err)
		}
		c.MaxUploadSize = n
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	return c, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
