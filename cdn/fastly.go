package cdn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

// Fastly purges by URL against the two domains associated with a crates.io
// style static distribution: the CDN-facing domain and its "fastly-"
// prefixed counterpart. Wildcard invalidations aren't supported by
// Fastly's purge API, matching the original's own restriction.
type Fastly struct {
	apiToken   string
	staticHost string
	client     *http.Client
}

var _ Provider = (*Fastly)(nil)

// NewFastly builds a Fastly provider purging paths under staticHost.
func NewFastly(apiToken, staticHost string) *Fastly {
	return &Fastly{
		apiToken:   apiToken,
		staticHost: staticHost,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *Fastly) Name() string { return "fastly" }

func (f *Fastly) Invalidate(ctx context.Context, paths []string) error {
	domains := []string{f.staticHost, "fastly-" + f.staticHost}
	for _, path := range paths {
		if strings.Contains(path, "*") {
			return apperror.New(apperror.Validation, "cdn.Fastly.Invalidate", "wildcard invalidations are not supported for Fastly")
		}
		trimmed := strings.TrimPrefix(path, "/")
		for _, domain := range domains {
			if err := f.purge(ctx, domain, trimmed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Fastly) purge(ctx context.Context, domain, path string) error {
	url := fmt.Sprintf("https://api.fastly.com/purge/%s/%s", domain, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "cdn.Fastly.purge", "building purge request", err)
	}
	req.Header.Set("Fastly-Key", f.apiToken)

	zlog.Debug(ctx).Str("url", url).Msg("sending invalidation request to fastly")
	resp, err := f.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.Upstream, "cdn.Fastly.purge", "purge request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apperror.New(apperror.Upstream, "cdn.Fastly.purge", fmt.Sprintf("purge of %s returned status %d", url, resp.StatusCode))
	}
	return nil
}
