package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gorilla/securecookie"
	"github.com/rs/cors"

	"github.com/keithlinneman/contentgate/internal/cfg"
	"github.com/keithlinneman/contentgate/internal/contenthttp"
	"github.com/keithlinneman/contentgate/internal/contents"
	"github.com/keithlinneman/contentgate/internal/guard"
	"github.com/keithlinneman/contentgate/internal/host"
	"github.com/keithlinneman/contentgate/internal/httpmw"
	"github.com/keithlinneman/contentgate/internal/httpserver"
	"github.com/keithlinneman/contentgate/internal/log"
	"github.com/keithlinneman/contentgate/internal/metrics"
	"github.com/keithlinneman/contentgate/internal/opshttp"
	"github.com/keithlinneman/contentgate/internal/otelx"
	"github.com/keithlinneman/contentgate/internal/probe"
	"github.com/keithlinneman/contentgate/internal/prof"
	"github.com/keithlinneman/contentgate/internal/ratelimit"
	v "github.com/keithlinneman/contentgate/internal/version"
)

const appName = "contentgate"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix CONTENTGATE_ and validate
	cfg.FillFromEnv(flag.CommandLine, "CONTENTGATE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// validate config
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		BuildId:         vi.BuildId,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_guard", conf.EnableGuard,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"contents_backend", conf.ContentsBackend,
		"contents_root", conf.ContentsRoot,
		"contents_s3_bucket", conf.ContentsS3Bucket,
		"contents_s3_prefix", conf.ContentsS3Prefix,
		"contents_ssm_param", conf.ContentsSSMParam,
	)

	// Setup pyroscope profiling
	stopProf, profErr := startProfiling(ctx, conf, vi)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)
	m.SetContentBackend(conf.ContentsBackend)

	// setup the content backend the extension will expose
	backend, err := newBackend(ctx, L, conf)
	if err != nil {
		L.Error(ctx, err, "failed to create content backend", "backend", conf.ContentsBackend)
		os.Exit(1)
	}

	// xsrf double-submit protection for the mutating contents API
	var csrf *httpmw.CSRF
	if !conf.DisableCSRF {
		hashKey := securecookie.GenerateRandomKey(32)
		if conf.CSRFSecret != "" {
			sum := sha256.Sum256([]byte(conf.CSRFSecret))
			hashKey = sum[:]
		}
		if hashKey == nil {
			L.Error(ctx, fmt.Errorf("no entropy for xsrf key"), "csrf init failed")
			os.Exit(1)
		}
		csrf = httpmw.NewCSRF(hashKey, nil)
	} else {
		L.Warn(ctx, "xsrf protection disabled by config")
	}

	// the host application the extension (and the guard) bootstrap into
	app := host.NewApp(L)

	ext := &contenthttp.Extension{
		Manager: backend,
		Logger:  L,
		CSRF:    csrf,
	}

	var boot host.Bootstrapper = ext
	if conf.EnableGuard {
		boot = guard.Intercept(ext, guard.InterceptorOptions{
			Logger:      L,
			OnBlocked:   m.IncDownloadBlocked,
			OnRefused:   m.IncURLRefusal,
			OnInstalled: m.SetGuardActive,
		})
	} else {
		// loud on purpose: running without the guard serves downloads
		L.Warn(ctx, "download guard DISABLED, file downloads are fully served")
		m.SetGuardActive(false)
	}

	if _, err := boot.Bootstrap(ctx, app); err != nil {
		L.Error(ctx, err, "extension bootstrap failed")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate probe.ShutdownGate
	readiness := probe.Multi(gate.Probe())

	// Setup rate limiter middleware
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	corsMW := cors.New(cors.Options{
		AllowedOrigins:   []string{conf.CORSAllowOrigin},
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id", "X-XSRFToken"},
		AllowCredentials: conf.CORSAllowCredentials,
	})

	// start public http server
	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Router:       app.Router(),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		CORS:         corsMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       probe.Static(true, ""),
		Readiness:    readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = httpStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof and any future admin APIs
	// sg restricts inbound to internal monitoring infrastructure
	// we also reject connections from public ips in middleware to prevent
	// accidental exposure if sg is misconfigured
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       probe.Static(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until ctrl+c / sigterm
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness to drain connections before closing listeners
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := httpStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func startProfiling(ctx context.Context, conf cfg.App, vi v.Info) (func(), error) {
	return prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
}

// newBackend builds the configured content manager: a directory on disk or
// an S3 bucket (optionally resolved through an SSM parameter).
func newBackend(ctx context.Context, L log.Logger, conf cfg.App) (contents.Manager, error) {
	switch conf.ContentsBackend {
	case cfg.BackendLocal:
		return contents.NewLocal(contents.LocalOptions{
			Root:        conf.ContentsRoot,
			AllowHidden: conf.AllowHidden,
		})

	case cfg.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)

		bucket := conf.ContentsS3Bucket
		if conf.ContentsSSMParam != "" {
			ssmClient := ssm.NewFromConfig(awsCfg)
			res, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
				Name: &conf.ContentsSSMParam,
			})
			if err != nil {
				return nil, fmt.Errorf("resolve bucket from ssm param %q: %w", conf.ContentsSSMParam, err)
			}
			if res.Parameter == nil || res.Parameter.Value == nil || *res.Parameter.Value == "" {
				return nil, fmt.Errorf("ssm param %q is empty", conf.ContentsSSMParam)
			}
			bucket = *res.Parameter.Value
			L.Info(ctx, "resolved content bucket from ssm", "param", conf.ContentsSSMParam, "bucket", bucket)
		}

		return contents.NewS3(contents.S3Options{
			Logger:    L,
			Bucket:    bucket,
			Prefix:    conf.ContentsS3Prefix,
			Client:    s3Client,
			Presigner: s3.NewPresignClient(s3Client),
		})

	default:
		return nil, fmt.Errorf("unknown contents backend %q", conf.ContentsBackend)
	}
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
