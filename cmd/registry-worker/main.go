// Command registry-worker drains the job queue (§4.5): it registers one
// handler per job type this deployment supports and polls forever, the
// same loop-and-dispatch shape the teacher's libindex update manager runs
// for scheduled vulnerability updates.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quay/zlog"
	"github.com/rs/zerolog"

	"github.com/crates-registry/core/blobstore"
	"github.com/crates-registry/core/cdn"
	"github.com/crates-registry/core/downloads"
	"github.com/crates-registry/core/gitindex"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/internal/config"
	"github.com/crates-registry/core/internal/postgres"
	"github.com/crates-registry/core/jobqueue"
	"github.com/crates-registry/core/readme"
	"github.com/crates-registry/core/trustpub"
	"github.com/crates-registry/core/typosquat"
)

const op = "registry-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().Logger()
	zlog.Set(&log)

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("registry-worker exited")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv(nil)
	if err != nil {
		return err
	}

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := openBlobs(cfg)
	if err != nil {
		return err
	}

	var providers []cdn.Provider
	if cfg.CloudFrontDistribution != "" {
		providers = append(providers, cdn.NewCloudFront(cfg.CloudFrontDistribution, cfg.AWSAccessKey, cfg.AWSSecretKey))
	}
	if cfg.FastlyAPIToken != "" {
		providers = append(providers, cdn.NewFastly(cfg.FastlyAPIToken, cfg.S3CDN))
	}
	invalidator := cdn.New(4, providers...)
	cdnQueue := postgres.CDNQueue{Store: store}

	sparse := sparseUploader{blobs: blobs, invalidator: invalidator}
	var gitRepo *gitindex.Repo
	if cfg.GitRepoURL != "" {
		gitRepo, err = gitindex.Open(ctx, gitindex.Options{
			Path:             os.TempDir() + "/registry-index",
			RemoteURL:        cfg.GitRepoURL,
			AuthorName:       "registry",
			AuthorEmail:      "registry@localhost",
			Sparse:           sparse,
			ArchiveRemoteURL: cfg.GitArchiveRepoURL,
		})
		if err != nil {
			return err
		}
	}

	typo := typosquat.New(store, pagerDutySink{apiToken: cfg.PagerDutyAPIToken, integrationKey: cfg.PagerDutyIntegrationKey})
	tp := trustpub.Expirer(store)

	registry := jobqueue.NewRegistry()
	registry.Register(jobqueue.TypeRenderAndUploadReadme, readme.Handler(blobs))
	registry.Register(jobqueue.TypeCheckTyposquat, typo.Handler)
	registry.Register(jobqueue.TypeUpdateDownloads, downloads.UpdateDownloadsHandler(store))
	registry.Register(jobqueue.TypeTrustpubDeleteExpiredTokens, trustpub.DeleteExpiredTokensHandler(tp))
	registry.Register(jobqueue.TypeTrustpubDeleteExpiredJTIs, trustpub.DeleteExpiredJTIsHandler(tp))
	registry.Register(jobqueue.TypeInvalidateCDNs, invalidateCDNsHandler(invalidator))
	registry.Register(jobqueue.TypeSyncToSparseIndex, syncToSparseHandler(store, sparse))
	if gitRepo != nil {
		registry.Register(jobqueue.TypeSyncToGitIndex, syncToGitIndexHandler(store, gitRepo))
	}

	go runCDNFlushLoop(ctx, cdnQueue, invalidator, cfg.JobPollInterval)

	runner := jobqueue.NewRunner(store.Pool(), registry, cfg.JobPollInterval)
	zlog.Info(ctx).Strs("job_types", registry.Types()).Msg("starting job runner")
	return runner.Run(ctx)
}

// runCDNFlushLoop drains the durable CloudFront invalidation queue on a
// fixed interval, the batched counterpart to invalidate_cdns' immediate,
// explicit-path invalidations.
func runCDNFlushLoop(ctx context.Context, q postgres.CDNQueue, inv *cdn.Invalidator, interval time.Duration) {
	ticker := time.NewTicker(interval * 30)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := cdn.Flush(ctx, q, inv, 3000); err != nil {
				zlog.Warn(ctx).Err(err).Msg("cdn flush failed")
			} else if n > 0 {
				zlog.Info(ctx).Int("count", n).Msg("flushed cloudfront invalidation queue")
			}
		}
	}
}

func openBlobs(cfg *config.Config) (blobstore.Store, error) {
	if cfg.S3Bucket == "" {
		return blobstore.NewFS(os.TempDir() + "/registry-blobs")
	}
	return blobstore.NewS3(cfg.S3Bucket, "us-east-1", cfg.AWSAccessKey, cfg.AWSSecretKey, "https"), nil
}

// sparseUploader adapts the Blob Store Facade and CDN Invalidator into the
// narrow interface gitindex.Repo needs for its sparse-index side effect,
// per that package's own SparseUploader doc comment.
type sparseUploader struct {
	blobs       blobstore.Store
	invalidator *cdn.Invalidator
}

func (s sparseUploader) PutIndex(ctx context.Context, key string, body []byte) error {
	return s.blobs.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json")
}

func (s sparseUploader) Invalidate(ctx context.Context, paths []string) error {
	return s.invalidator.Submit(ctx, paths)
}

type namePayload struct {
	Name string `json:"name"`
}

func syncToSparseHandler(store *postgres.Store, sparse sparseUploader) jobqueue.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p namePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return apperror.Wrap(apperror.Internal, op+".syncToSparse", "decoding payload", err)
		}
		entries, err := store.CrateIndexEntries(ctx, p.Name)
		if err != nil {
			return err
		}
		key := blobstore.IndexKey(gitindex.ShardDir(p.Name), p.Name)
		data, err := gitindex.EncodeFile(entries)
		if err != nil {
			return apperror.Wrap(apperror.Internal, op+".syncToSparse", "encoding index entries", err)
		}
		if err := sparse.PutIndex(ctx, key, data); err != nil {
			return apperror.Wrap(apperror.Upstream, op+".syncToSparse", "uploading sparse index", err)
		}
		return sparse.Invalidate(ctx, []string{"/" + key})
	}
}

// syncToGitIndexHandler reconciles the git-backed index against the
// database's current view of name, appending any version not yet present
// and flipping the yanked flag of any that drifted, since the job payload
// itself carries only the crate name (§4.5's job contract).
func syncToGitIndexHandler(store *postgres.Store, repo *gitindex.Repo) jobqueue.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p namePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return apperror.Wrap(apperror.Internal, op+".syncToGitIndex", "decoding payload", err)
		}
		want, err := store.CrateIndexEntries(ctx, p.Name)
		if err != nil {
			return err
		}
		have, err := repo.CurrentEntries(p.Name)
		if err != nil {
			return err
		}
		haveByVers := make(map[string]gitindex.Entry, len(have))
		for _, e := range have {
			haveByVers[e.Vers] = e
		}
		for _, w := range want {
			existing, ok := haveByVers[w.Vers]
			switch {
			case !ok:
				if err := repo.Append(ctx, p.Name, w); err != nil {
					return err
				}
			case existing.Yanked != w.Yanked:
				if err := repo.Yank(ctx, p.Name, w.Vers, w.Yanked); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func invalidateCDNsHandler(inv *cdn.Invalidator) jobqueue.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			Paths []string `json:"paths"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return apperror.Wrap(apperror.Internal, op+".invalidateCDNs", "decoding payload", err)
		}
		return inv.Submit(ctx, p.Paths)
	}
}
