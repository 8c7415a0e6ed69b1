// Package server is the gateway's HTTP entrypoint: it mounts one POST route
// per registered adapter's BasePath (§4.2/§4.3), a liveness probe, and a
// Prometheus scrape endpoint, then dispatches each request through the
// plugin pipeline and the resolved provider (§4.5/§4.4).
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/metrics"
	"github.com/howard-nolan/llmrouter/internal/pipeline"
	"github.com/howard-nolan/llmrouter/internal/registry"
	"github.com/howard-nolan/llmrouter/internal/reqid"
)

// Deps bundles every dependency the dispatcher needs to serve a request.
// main.go builds one after wiring the registries and hands it to New.
type Deps struct {
	Adapters  *registry.Adapters
	Providers *registry.Providers
	Models    *registry.Models
	Engine    *pipeline.Engine
	Metrics   *metrics.Registry
	Log       zerolog.Logger
	CORS      config.CORSConfig
}

// Server holds the HTTP router and all dependencies handlers need. As the
// teacher's own comment put it, this is the thing main.go hands to
// http.Server{Handler: srv}.
type Server struct {
	router chi.Router
	deps   Deps
}

// New wires up routes and middleware and returns a Server ready to serve.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.routes()
	return s
}

// routes builds the chi router: one POST route per mounted adapter, plus
// /health and /metrics. Route registration order follows
// deps.Adapters.Names(), which is sorted, so restarts produce an identical
// router table for the same config.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	for _, name := range s.deps.Adapters.Names() {
		in, ok := s.deps.Adapters.Input(name)
		if !ok {
			continue
		}
		out, ok := s.deps.Adapters.Output(name)
		if !ok {
			s.deps.Log.Warn().Str("adapter", name).Msg("input adapter registered without a matching output adapter, skipping")
			continue
		}
		// Each adapter is mounted under its own name, at both the versioned
		// base path and a version-less alias, so callers pointing an existing
		// SDK at the gateway only have to change the host.
		mount := "/" + name
		r.Post(mount+in.BasePath(), s.handleChat(in, out))
		if alias := strings.TrimPrefix(in.BasePath(), "/v1"); alias != in.BasePath() && alias != "" {
			r.Post(mount+alias, s.handleChat(in, out))
		}
		if adv, ok := in.(adapter.NativeRouteAdvertiser); ok {
			for _, nr := range adv.NativeRoutes() {
				r.Method(nr.Method, mount+nr.Path, nr.Handler)
			}
		}
	}

	s.router = r
}

// requestID stamps every response with x-request-id — echoing the caller's
// own id when provided, minting a fresh UUIDv4 otherwise — and writes the
// resolved id back onto the inbound header so downstream handlers see the
// same value reqid.FromRequest resolves.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := reqid.FromRequest(r)
		r.Header.Set(reqid.Header, id)
		w.Header().Set(reqid.Header, id)
		next.ServeHTTP(w, r)
	})
}

// cors applies the configured CORS origin allowlist (§9's ambient-stack
// CORS setting). An empty allowlist means no Access-Control-* headers are
// sent at all — same-origin and server-to-server callers are unaffected
// either way.
func (s *Server) cors(next http.Handler) http.Handler {
	origins := s.deps.CORS.Origins
	if len(origins) == 0 {
		return next
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed["*"] || allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP makes Server satisfy http.Handler by delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
