// Package httpapi is the HTTP handler layer (spec §6's External
// Interfaces): thin, JSON-in/JSON-out handlers that decode a request,
// delegate to the auth/publish/lifecycle/downloads/search/trustpub
// packages for every decision, and render the result. It never reaches
// into internal/postgres directly, mirroring the way the teacher's
// libindex.HTTP and libvuln.HTTP wrap a *http.ServeMux around a single
// domain handle.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/downloads"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/lifecycle"
	"github.com/crates-registry/core/publish"
	"github.com/crates-registry/core/search"
	"github.com/crates-registry/core/trustpub"
)

var tracer = otel.Tracer("github.com/crates-registry/core/httpapi")

// EmailVerified checks whether the given user's primary email is
// verified, the gate §4.6 item 1 places in front of Authenticate. Pass
// nil to skip the check entirely (e.g. in a deployment with no email
// verification configured).
type EmailVerified func(ctx context.Context, userID int64) (bool, error)

// ReadOnly reports whether the deployment is currently configured
// read-only: a Heroku-style maintenance mode that rejects writes with 503
// while reads keep serving.
type ReadOnly func() bool

// Options configures a Server.
type Options struct {
	Auth          *auth.Authenticator
	Users         auth.UserStore
	EmailVerified EmailVerified
	Publish       *publish.Pipeline
	Lifecycle     *lifecycle.Manager
	Downloads     *downloads.Redirector
	Search        search.Runner

	TrustPub *trustpub.Exchanger

	ReadOnly            ReadOnly
	MaxSearchPageOffset int
	RateLimit           rate.Limit // publish requests per second, process-wide
	RateBurst           int

	Clock func() time.Time
}

// Server implements http.Handler, routing every endpoint §6 names to its
// handler.
type Server struct {
	*http.ServeMux
	opts    *Options
	limiter *rate.Limiter
}

// New builds a Server from opts, registering every route.
func New(opts *Options) *Server {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	m := http.NewServeMux()
	m.HandleFunc("PUT /api/v1/crates/new", s.traced("publish", s.handlePublish))
	m.HandleFunc("GET /api/v1/crates/{name}/{version}/download", s.traced("download", s.handleDownload))
	m.HandleFunc("DELETE /api/v1/crates/{name}/{version}/yank", s.traced("yank", s.handleYank))
	m.HandleFunc("PUT /api/v1/crates/{name}/{version}/unyank", s.traced("unyank", s.handleUnyank))
	m.HandleFunc("DELETE /api/v1/crates/{name}/{version}", s.traced("delete_version", s.handleDeleteVersion))
	m.HandleFunc("GET /api/v1/crates", s.traced("search", s.handleSearch))
	m.HandleFunc("POST /api/v1/trusted_publishing/tokens", s.traced("trustpub_exchange", s.handleTrustPubExchange))
	s.ServeMux = m
	return s
}

func (s *Server) now() time.Time { return s.opts.Clock() }

// traced wraps h in a span named name and, when the request carries no
// prior span, effectively makes each request span-per-request the way
// §1's ambient stack calls for.
func (s *Server) traced(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()
		h(w, r.WithContext(ctx))
	}
}

// authenticate resolves the caller and its admin flag in one round trip,
// since every write handler needs both the AuthorizedUser auth.Authorize
// consumes and the raw IsAdmin bit Authorize itself doesn't carry.
func (s *Server) authenticate(r *http.Request, requireVerifiedEmail bool) (*auth.AuthorizedUser, bool, error) {
	var verify func(ctx context.Context, userID int64) (bool, error)
	if requireVerifiedEmail && s.opts.EmailVerified != nil {
		verify = s.opts.EmailVerified
	}
	au, err := s.opts.Auth.Authenticate(r.Context(), r, s.now(), verify)
	if err != nil {
		return nil, false, err
	}
	user, err := s.opts.Users.UserByID(r.Context(), au.UserID)
	if err != nil {
		return nil, false, err
	}
	return au, user.IsAdmin, nil
}

func (s *Server) checkReadOnly(w http.ResponseWriter) bool {
	if s.opts.ReadOnly != nil && s.opts.ReadOnly() {
		writeError(w, apperror.New(apperror.ReadOnly, "httpapi", apperror.MsgReadOnlyMode))
		return true
	}
	return false
}

func (s *Server) checkRateLimit(w http.ResponseWriter) bool {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, apperror.New(apperror.RateLimited, "httpapi", "too many publish requests, slow down"))
		return true
	}
	return false
}
