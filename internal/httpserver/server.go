package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/contentgate/internal/host"
	"github.com/keithlinneman/contentgate/internal/httpmw"
	"github.com/keithlinneman/contentgate/internal/probe"
	"github.com/keithlinneman/contentgate/internal/xerrors"
)

// Content saves arrive as base64 inside a JSON envelope; the API caps the
// decoded payload at 50 MB, so leave headroom for encoding overhead.
const maxBodyBytes = 80 << 20

// NewHandler wraps the host router with the full middleware stack.
// main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	rt := opts.Router
	if rt == nil {
		rt = host.NewRouter()
	}

	// Health routes are native routes; overrides are consulted first but no
	// override pattern touches /-/.
	if opts.Health != nil {
		rt.Mux().Get("/-/healthy", probeHandler(opts.Health, "ok\n"))
	}
	if opts.Readiness != nil {
		rt.Mux().Get("/-/ready", probeHandler(opts.Readiness, "ready\n"))
	}

	// Middleware (innermost first in wrapping order)
	var h http.Handler = rt

	h = httpmw.MaxBody(maxBodyBytes)(h)

	// Access log middleware
	h = httpmw.AccessLog()(h)

	// Annotate logger and tracer with http.route once the route pattern is known
	h = httpmw.AnnotateHTTPRoute(h)

	// Compress text responses (HTML/CSS/JS/JSON/SVG)
	h = middleware.Compress(5,
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"application/json",
		"image/svg+xml",
		"image/x-icon",
	)(h)

	// Request-scoped logging (inner so it sees trace_id, etc)
	h = httpmw.WithLogger(opts.Logger)(h)

	// Metrics middleware for prometheus instrumentation
	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	// add trace-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute will rename the span later to the final route pattern
			return r.Method + " " + r.URL.Path
		}),
		// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// CORS (handles preflight before tracing so OPTIONS noise stays out of spans)
	if opts.CORS != nil {
		h = opts.CORS.Handler(h)
	}

	// Rate limiting (after client IP mw so it uses resolved IP)
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}

	// Client IP resolution (must be before rate limiter and logging in middleware chain)
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h)

	// Recovery middleware to log panics and serve 500 response
	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}

	// Security headers outermost to ensure they are served on every response
	h = httpmw.SecurityHeaders(h)

	return h
}

// Decide which requests get traced.
func shouldTrace(p string) bool {
	// dont trace favicon/robots.txt
	if p == "/favicon.ico" || p == "/favicon.svg" || p == "/robots.txt" {
		return false
	}
	// dont trace health checks (may re-visit in the future to sample at a really low rate)
	if p == "/-/healthy" || p == "/-/ready" {
		return false
	}

	// dont trace static asset extensions
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".css", ".js", ".ico", ".map":
		return false
	}

	return true
}

func probeHandler(p probe.Probe, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.Check(r.Context()); err != nil {
			http.Error(w, err.Error()+"\n", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)

	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
