// Package cdn implements the CDN Invalidator (spec §4.4): a
// provider-agnostic facade over Fastly purge-by-URL and CloudFront batch
// invalidation, plus a durable queue model for CloudFront paths that
// accumulate between batched flushes.
package cdn

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/crates-registry/core/internal/apperror"
)

const op = "cdn.Invalidate"

// Provider purges a set of paths from one CDN. Implementations must treat
// paths as already normalized (leading slash, deduplicated).
type Provider interface {
	Name() string
	Invalidate(ctx context.Context, paths []string) error
}

// Invalidator submits to every configured Provider concurrently, bounded,
// and returns only after all of them acknowledge (or one fails).
type Invalidator struct {
	providers   []Provider
	concurrency int
}

// New builds an Invalidator over providers. concurrency bounds how many
// providers are contacted at once; 0 means unbounded.
func New(concurrency int, providers ...Provider) *Invalidator {
	return &Invalidator{providers: providers, concurrency: concurrency}
}

// Submit normalizes and deduplicates paths, then invalidates them on every
// configured provider. A failure from any provider is a retryable job
// error per §4.4.
func (inv *Invalidator) Submit(ctx context.Context, paths []string) error {
	norm := normalize(paths)
	if len(norm) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if inv.concurrency > 0 {
		g.SetLimit(inv.concurrency)
	}
	for _, p := range inv.providers {
		p := p
		g.Go(func() error {
			if err := p.Invalidate(ctx, norm); err != nil {
				return apperror.Wrap(apperror.Upstream, op, "provider "+p.Name()+" failed", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// normalize enforces leading-slash paths and deduplicates, preserving
// first-seen order.
func normalize(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
