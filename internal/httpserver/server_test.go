package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/cors"

	"github.com/keithlinneman/contentgate/internal/host"
	"github.com/keithlinneman/contentgate/internal/log"
	"github.com/keithlinneman/contentgate/internal/probe"
)

// test helpers

// defaultOpts returns minimal valid Options for testing.
func defaultOpts() *Options {
	return &Options{
		Logger: log.Nop(),
	}
}

// doRequest is a helper to send a request through a handler and return the recorder.
func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	h.ServeHTTP(rec, req)
	return rec
}

// getFreePort finds a free TCP port.
func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// NewHandler - middleware stack

func TestNewHandler_SecurityHeaders(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, "GET", "/anything")

	required := []string{
		"Content-Security-Policy",
		"X-Download-Options",
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Referrer-Policy",
		"X-Permitted-Cross-Domain-Policies",
	}
	for _, hdr := range required {
		if rec.Header().Get(hdr) == "" {
			t.Errorf("missing security header: %s", hdr)
		}
	}
}

func TestNewHandler_SecurityHeaders_On404(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, "GET", "/nonexistent-path-12345")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("Content-Security-Policy missing on 404 response")
	}
	if rec.Header().Get("X-Content-Type-Options") == "" {
		t.Fatal("X-Content-Type-Options missing on 404 response")
	}
}

func TestNewHandler_SecurityHeaders_AllMethods(t *testing.T) {
	opts := defaultOpts()
	opts.Router = host.NewRouter()
	opts.Router.Mux().Post("/api/submit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := NewHandler(opts)
	rec := doRequest(t, h, "POST", "/api/submit")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Download-Options") == "" {
		t.Fatal("X-Download-Options missing on POST response")
	}
}

func TestNewHandler_RequestID_Generated(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, "GET", "/anything")

	id := rec.Header().Get("X-Request-Id")
	if id == "" {
		t.Fatal("X-Request-Id not generated")
	}
	if len(id) != 32 {
		t.Fatalf("X-Request-Id length = %d, want 32 hex chars", len(id))
	}
}

func TestNewHandler_RequestID_Propagated(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/anything", nil)
	req.Header.Set("X-Request-Id", "client-supplied-id")
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Fatalf("X-Request-Id = %q, want client-supplied-id", got)
	}
}

// health routes

func TestNewHandler_HealthRoute(t *testing.T) {
	opts := defaultOpts()
	opts.Health = probe.Static(true, "")
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/-/healthy")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "ok") {
		t.Fatalf("body = %q, want ok", body)
	}
}

func TestNewHandler_ReadyRoute_Failing(t *testing.T) {
	opts := defaultOpts()
	opts.Readiness = probe.Static(false, "warming up")
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/-/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "warming up") {
		t.Fatalf("body = %q, want reason", body)
	}
}

func TestNewHandler_HealthRoutes_AbsentWhenNoProbes(t *testing.T) {
	h := NewHandler(defaultOpts())

	if rec := doRequest(t, h, "GET", "/-/healthy"); rec.Code != http.StatusNotFound {
		t.Fatalf("/-/healthy status = %d, want 404 when no probe configured", rec.Code)
	}
}

// router wiring

func TestNewHandler_RouterNativeRoute(t *testing.T) {
	rt := host.NewRouter()
	rt.Mux().Get("/hello", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("world"))
	})

	opts := defaultOpts()
	opts.Router = rt
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/hello")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "world" {
		t.Fatalf("body = %q, want world", rec.Body.String())
	}
}

func TestNewHandler_RouterOverrideWins(t *testing.T) {
	rt := host.NewRouter()
	rt.Mux().Get("/hello", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("native"))
	})
	err := rt.HandleFirst("test-override", `^/hello$`, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	if err != nil {
		t.Fatalf("HandleFirst: %v", err)
	}

	opts := defaultOpts()
	opts.Router = rt
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/hello")
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want override status 418", rec.Code)
	}
}

// optional middleware

func TestNewHandler_MetricsMW_Invoked(t *testing.T) {
	var calls atomic.Int64
	opts := defaultOpts()
	opts.MetricsMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			next.ServeHTTP(w, r)
		})
	}
	h := NewHandler(opts)

	doRequest(t, h, "GET", "/anything")
	if calls.Load() != 1 {
		t.Fatalf("metrics middleware calls = %d, want 1", calls.Load())
	}
}

func TestNewHandler_RateLimitMW_Invoked(t *testing.T) {
	opts := defaultOpts()
	opts.RateLimitMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		})
	}
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/anything")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestNewHandler_Recover(t *testing.T) {
	rt := host.NewRouter()
	rt.Mux().Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	var panics atomic.Int64
	opts := defaultOpts()
	opts.Router = rt
	opts.UseRecoverMW = true
	opts.OnPanic = func() { panics.Add(1) }
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if panics.Load() != 1 {
		t.Fatalf("OnPanic calls = %d, want 1", panics.Load())
	}
}

func TestNewHandler_CORS_Preflight(t *testing.T) {
	opts := defaultOpts()
	opts.CORS = cors.New(cors.Options{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "PUT", "POST", "DELETE"},
	})
	h := NewHandler(opts)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/api/contents", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want allowed origin", got)
	}
}

// Start / stop lifecycle

func TestStart_ServesAndStops(t *testing.T) {
	port := getFreePort(t)
	opts := defaultOpts()
	opts.Port = port
	opts.Health = probe.Static(true, "")

	ctx := context.Background()
	stop, err := Start(ctx, opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop(ctx)

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("body = %q, want ok", body)
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// stop is idempotent
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	opts := defaultOpts()
	opts.Port = port
	if _, err := Start(context.Background(), opts); err == nil {
		t.Fatal("Start on occupied port succeeded, want error")
	}
}

// tracing filter

func TestShouldTrace(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/api/contents/report.csv", true},
		{"/files/report.csv", true},
		{"/lab/tree", true},
		{"/favicon.ico", false},
		{"/robots.txt", false},
		{"/-/healthy", false},
		{"/-/ready", false},
		{"/static/app.js", false},
		{"/static/style.css", false},
		{"/bundle.js.map", false},
	}
	for _, tc := range cases {
		if got := shouldTrace(tc.path); got != tc.want {
			t.Errorf("shouldTrace(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
