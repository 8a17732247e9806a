// Command registry-api serves the registry's HTTP surface: the same
// "load config, open the store, build the domain handle, hand it to an
// http.Server" shape the teacher's cmd/libindexhttp/main.go uses for
// libindex, adapted to this module's env-driven internal/config instead
// of goconfig since the registry has no per-flag help text to generate.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/blobstore"
	"github.com/crates-registry/core/downloads"
	"github.com/crates-registry/core/httpapi"
	"github.com/crates-registry/core/internal/config"
	"github.com/crates-registry/core/internal/postgres"
	"github.com/crates-registry/core/lifecycle"
	"github.com/crates-registry/core/publish"
	"github.com/crates-registry/core/search"
	"github.com/crates-registry/core/tarball"
	"github.com/crates-registry/core/trustpub"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().Logger()
	zlog.Set(&log)

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("registry-api exited")
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

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	blobs, err := openBlobs(cfg)
	if err != nil {
		return err
	}

	authenticator := auth.New(&auth.Options{
		Users:          store,
		ApiTokens:      store,
		TrustPubTokens: store,
		CookieSecret:   []byte(cfg.SessionKey),
	})

	pub := publish.New(&publish.Options{
		Store:           postgres.PublishStore{Store: store},
		Blobs:           blobs,
		Jobs:            store.Pool(),
		MetadataCeiling: cfg.MetadataCeiling,
		Limits: tarball.Limits{
			MaxUploadSize: cfg.MaxUploadSize,
			MaxUnpackSize: cfg.MaxUnpackSize,
		},
	})

	lc := lifecycle.New(&lifecycle.Options{
		Store: postgres.LifecycleStore{Store: store},
		Jobs:  store.Pool(),
		Blobs: blobs,
	})

	dl := downloads.New(&downloads.Options{
		Store:      store,
		ReadOnly:   func() bool { return cfg.ReadOnly },
		CDNBaseURL: cfg.S3CDN,
	})

	tp := trustpub.New(&trustpub.Options{
		Provider: "github",
		Keys:     githubActionsKeyfunc(),
		Configs:  store,
		Tokens:   store,
		JTIs:     store,
	})

	srv := httpapi.New(&httpapi.Options{
		Auth:                authenticator,
		Users:               store,
		EmailVerified:       store.PrimaryEmailVerified,
		Publish:             pub,
		Lifecycle:           lc,
		Downloads:           dl,
		Search:              store,
		TrustPub:            tp,
		ReadOnly:            func() bool { return cfg.ReadOnly },
		MaxSearchPageOffset: 10000 / search.DefaultPerPage,
		RateLimit:           rate.Limit(10),
		RateBurst:           20,
	})

	addr := os.Getenv("HTTP_LISTEN_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8080"
	}
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     srv,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info(ctx).Str("addr", addr).Msg("starting http server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openBlobs(cfg *config.Config) (blobstore.Store, error) {
	if cfg.S3Bucket == "" {
		return blobstore.NewFS(os.TempDir() + "/registry-blobs")
	}
	return blobstore.NewS3(cfg.S3Bucket, "us-east-1", cfg.AWSAccessKey, cfg.AWSSecretKey, "https"), nil
}

// githubActionsKeyfunc returns the jwt.Keyfunc used to verify GitHub
// Actions OIDC id tokens. GitHub publishes its signing keys at
// https://token.actions.githubusercontent.com/.well-known/jwks; fetching
// and caching that JWKS document needs a client no example repo in the
// corpus pulls in, so the key material is left as an operator-supplied
// injection point here rather than a hand-rolled HTTP+JSON fetcher.
func githubActionsKeyfunc() jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		return nil, errors.New("registry-api: no OIDC signing keys configured")
	}
}
