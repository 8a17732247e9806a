// Package publish implements the Publish Pipeline (spec §4.7): the
// orchestration root tying authentication, tarball inspection, the
// relational store, blob storage and the job queue into one operation.
package publish

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/blobstore"
	"github.com/crates-registry/core/gitindex"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/jobqueue"
	"github.com/crates-registry/core/registry"
	"github.com/crates-registry/core/tarball"
)

const op = "publish"

// normalizeVersion drops build metadata (everything from a "+" onward),
// the form §3 requires for the (crate_id, normalized_version) uniqueness
// constraint while still letting two builds of the same release collide.
func normalizeVersion(vers string) string {
	if i := strings.IndexByte(vers, '+'); i >= 0 {
		return vers[:i]
	}
	return vers
}

// Tx is the transactional handle the pipeline runs steps 4 through 8
// against: load-or-create the crate, check version uniqueness, insert the
// version and its dependencies. It also satisfies jobqueue.Execer, but
// Publish does not enqueue through it: follow-up jobs go through
// Options.Jobs after the transaction commits (see enqueueFollowUpJobs).
type Tx interface {
	jobqueue.Execer

	CrateByCanonicalName(ctx context.Context, canonical string) (*registry.Crate, bool, error)
	SimilarCrateName(ctx context.Context, canonical string) (string, bool, error)
	DeletedCrateCooldown(ctx context.Context, canonical string) (bool, error)
	CreateCrate(ctx context.Context, c *registry.Crate, ownerUserID int64) (*registry.Crate, error)
	CrateOwners(ctx context.Context, crateID int64) ([]auth.Owner, error)
	ApiTokenByID(ctx context.Context, id int64) (*registry.ApiToken, error)
	VersionExists(ctx context.Context, crateID int64, normalizedVersion string) (bool, error)
	InsertVersion(ctx context.Context, v *registry.Version) (*registry.Version, error)
	OwnersWithEmailNotifications(ctx context.Context, crateID int64) ([]registry.User, error)
}

// Store is the pipeline's top-level dependency: it opens a Tx spanning
// steps 4 through 8 and commits or rolls it back around the caller's fn.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Notifier sends the publish-notification email from step 10. Email
// templating and delivery are an external collaborator per §1; only the
// interface is specified here.
type Notifier interface {
	SendPublishNotification(ctx context.Context, to registry.User, crateName, version string) error
}

// GitIndexEnabled reports whether the deployment maintains a git index
// alongside the sparse index, gating the conditional sync_to_git_index
// enqueue in step 9.
type GitIndexEnabled func() bool

// Options configures a Pipeline.
type Options struct {
	Store      Store
	Blobs      blobstore.Store
	Jobs       jobqueue.Execer
	Notifier   Notifier
	Categories CategoryValidator
	GitIndex   GitIndexEnabled
	Limits     tarball.Limits
	MetadataCeiling int64
}

// Pipeline implements the Publish Pipeline.
type Pipeline struct {
	*Options
}

// New constructs a Pipeline from opts.
func New(opts *Options) *Pipeline {
	return &Pipeline{Options: opts}
}

// Result is what a successful Publish returns: the stored crate and
// version, plus any non-fatal warnings collected along the way.
type Result struct {
	Crate    registry.Crate
	Version  registry.Version
	Warnings Warnings
}

// Publish runs the full §4.7 pipeline: authenticate, parse, inspect,
// load-or-create, check uniqueness, insert, upload, commit, enqueue,
// notify. Any failure at any step leaves no partial state: the tarball is
// only uploaded while the DB transaction is still open, so a failed
// upload rolls the insert back with it.
func (p *Pipeline) Publish(ctx context.Context, au *auth.AuthorizedUser, isAdmin bool, metadataJSON []byte, tarballReader io.Reader, now time.Time) (*Result, error) {
	meta, warnings, err := ParseMetadata(metadataJSON, p.Categories)
	if err != nil {
		return nil, err
	}

	// Buffer the tarball once: Inspect consumes it streaming to build the
	// manifest, and the blob upload needs the same bytes again afterward.
	// It is already bounded upstream by DecodeRequest's tarLen check and
	// by p.Limits.MaxUploadSize inside Inspect itself.
	raw, err := io.ReadAll(io.LimitReader(tarballReader, p.Limits.MaxUploadSize+1))
	if err != nil {
		return nil, apperror.Wrap(apperror.Validation, op+".Publish", "reading tarball body", err)
	}
	if int64(len(raw)) > p.Limits.MaxUploadSize {
		return nil, apperror.New(apperror.Validation, op+".Publish", "tarball exceeds max upload size")
	}

	manifest, err := tarball.Inspect(ctx, bytes.NewReader(raw), meta.Name, meta.Vers, p.Limits)
	if err != nil {
		return nil, err
	}
	if manifest.DeclaredName != meta.Name || manifest.DeclaredVersion != meta.Vers {
		return nil, apperror.New(apperror.Validation, op+".Publish", "tarball manifest does not agree with request metadata")
	}

	canonical := registry.CanonicalName(meta.Name)
	normalizedVersion := normalizeVersion(meta.Vers)

	checksum := manifest.TarballSHA256

	var (
		result   Result
		isNewCrate bool
		ownerRows  []registry.User
	)

	err = p.Store.WithTx(ctx, func(tx Tx) error {
		crate, exists, err := tx.CrateByCanonicalName(ctx, canonical)
		if err != nil {
			return err
		}

		if au.Provenance == auth.CredentialApiToken {
			scope := registry.ScopePublishUpdate
			if !exists {
				scope = registry.ScopePublishNew
			}
			tok, err := tx.ApiTokenByID(ctx, au.TokenID)
			if err != nil {
				return err
			}
			if err := auth.VerifyToken(tok, now, scope, meta.Name); err != nil {
				return err
			}
		}

		if exists {
			owners, err := tx.CrateOwners(ctx, crate.ID)
			if err != nil {
				return err
			}
			rights, err := auth.ResolveRights(ctx, au.UserID, au.GitHubID, owners, nil)
			if err != nil {
				return err
			}
			if err := auth.Authorize(au, auth.Permission{Kind: auth.PublishUpdate, Crate: meta.Name}, crate.ID, rights, isAdmin); err != nil {
				return err
			}
		} else {
			if err := auth.Authorize(au, auth.Permission{Kind: auth.PublishNew, Crate: meta.Name}, 0, auth.Full, isAdmin); err != nil {
				return err
			}
			if similar, found, err := tx.SimilarCrateName(ctx, canonical); err != nil {
				return err
			} else if found {
				return apperror.New(apperror.Conflict, op+".Publish", "a crate already exists under the similar name `"+similar+"`")
			}
			if cooling, err := tx.DeletedCrateCooldown(ctx, canonical); err != nil {
				return err
			} else if cooling {
				return apperror.New(apperror.Conflict, op+".Publish", "crate name `"+meta.Name+"` was recently deleted and is not yet available for reuse")
			}

			crate, err = tx.CreateCrate(ctx, &registry.Crate{
				Name:          meta.Name,
				CanonicalName: canonical,
				Description:   manifest.Description,
				Homepage:      manifest.Homepage,
				Documentation: manifest.Documentation,
				Repository:    manifest.Repository,
			}, au.UserID)
			if err != nil {
				return err
			}
			isNewCrate = true
		}

		dup, err := tx.VersionExists(ctx, crate.ID, normalizedVersion)
		if err != nil {
			return err
		}
		if dup {
			return apperror.New(apperror.Conflict, op+".Publish", "crate version `"+meta.Vers+"` is already uploaded")
		}

		userID := au.UserID
		version := &registry.Version{
			CrateID:       crate.ID,
			Num:           meta.Vers,
			NormalizedNum: normalizedVersion,
			Checksum:      checksum,
			CrateSize:     int64(len(raw)),
			License:       manifest.License,
			Features:      manifest.Features,
			Links:         manifest.Links,
			RustVersion:   manifest.RustVersion,
			CreatedAt:     now,
			PublishedBy:   &userID,
			Dependencies:  toRegistryDeps(manifest.Dependencies),
		}
		inserted, err := tx.InsertVersion(ctx, version)
		if err != nil {
			return err
		}

		if err := p.Blobs.Put(ctx, blobstore.CrateKey(meta.Name, meta.Vers), bytes.NewReader(raw), int64(len(raw)), "application/gzip"); err != nil {
			return apperror.Wrap(apperror.Internal, op+".Publish", "uploading tarball", err)
		}

		owners, err := tx.OwnersWithEmailNotifications(ctx, crate.ID)
		if err != nil {
			return err
		}
		ownerRows = owners

		result.Crate = *crate
		result.Version = *inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.enqueueFollowUpJobs(ctx, meta.Name, meta.Vers, manifest, isNewCrate)

	for _, owner := range ownerRows {
		if err := p.Notifier.SendPublishNotification(ctx, owner, meta.Name, meta.Vers); err != nil {
			zlog.Warn(ctx).Err(err).Str("crate", meta.Name).Int64("user_id", owner.ID).Msg("failed to send publish notification")
		}
	}

	result.Warnings = *warnings
	return &result, nil
}

func toRegistryDeps(deps []tarball.Dependency) []registry.Dependency {
	out := make([]registry.Dependency, 0, len(deps))
	for _, d := range deps {
		out = append(out, registry.Dependency{
			CrateName:          d.Name,
			Requirement:        d.Requirement,
			Kind:               registry.DependencyKind(d.Kind),
			Optional:           d.Optional,
			DefaultFeatures:    d.DefaultFeatures,
			Features:           d.Features,
			Target:             d.Target,
			ExplicitNameInToml: d.ExplicitName,
			Registry:           d.Registry,
		})
	}
	return out
}

// enqueueFollowUpJobs performs §4.7 step 9: every job is enqueued through
// p.Jobs once the publish transaction has committed, not on the
// transaction's own connection, and
// deduplicated index-sync jobs coalesce repeated publishes of one crate
// into a single rebuild.
func (p *Pipeline) enqueueFollowUpJobs(ctx context.Context, name, version string, manifest *tarball.Manifest, isNewCrate bool) {
	type job struct {
		jobType string
		payload any
	}
	jobs := []job{
		{jobqueue.TypeSyncToSparseIndex, map[string]string{"name": name}},
		{jobqueue.TypeDocsRsQueueRebuild, map[string]string{"name": name, "version": version}},
		{jobqueue.TypeInvalidateCDNs, map[string][]string{"paths": {
			blobstore.IndexKey(gitindex.ShardDir(name), name), blobstore.OGImageKey(name),
		}}},
		{jobqueue.TypeRSSSyncCrateFeed, map[string]string{"name": name}},
		{jobqueue.TypeRSSSyncUpdatesFeed, nil},
		{jobqueue.TypeGenerateOGImage, map[string]string{"name": name}},
	}
	if p.GitIndex != nil && p.GitIndex() {
		jobs = append(jobs, job{jobqueue.TypeSyncToGitIndex, map[string]string{"name": name}})
	}
	if manifest.ReadmeBytes != nil {
		pkgPath := ""
		if manifest.VCSInfo != nil {
			pkgPath = manifest.VCSInfo.PathInVCS
		}
		jobs = append(jobs, job{jobqueue.TypeRenderAndUploadReadme, map[string]string{
			"name": name, "version": version, "text": string(manifest.ReadmeBytes),
			"path": manifest.ReadmePath, "base_url": manifest.Repository, "pkg_path": pkgPath,
		}})
	}
	if isNewCrate {
		jobs = append(jobs, job{jobqueue.TypeRSSSyncCratesFeed, nil})
		jobs = append(jobs, job{jobqueue.TypeCheckTyposquat, map[string]string{"name": name}})
	}

	for _, j := range jobs {
		if err := jobqueue.Enqueue(ctx, p.Jobs, j.jobType, j.payload, "default"); err != nil {
			zlog.Error(ctx).Err(err).Str("job_type", j.jobType).Str("crate", name).Msg("failed to enqueue follow-up job")
		}
	}
}
