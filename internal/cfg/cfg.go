package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/keithlinneman/contentgate/internal/log"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	// EnableGuard installs the download blocking rules and wraps the
	// content manager. Disabling it leaves the service fully open.
	EnableGuard bool

	ContentsBackend  string
	ContentsRoot     string
	ContentsS3Bucket string
	ContentsS3Prefix string
	ContentsSSMParam string
	AllowHidden      bool

	CORSAllowOrigin      string
	CORSAllowCredentials bool
	DisableCSRF          bool
	CSRFSecret           string

	RateLimitPerSecond float64
	RateLimitBurst     int
	TrustedHops        int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.EnableGuard, "enable-guard", true, "Install download blocking rules and guard the content manager")
	fs.StringVar(&c.ContentsBackend, "contents-backend", BackendLocal, "content backend: local|s3")
	fs.StringVar(&c.ContentsRoot, "contents-root", ".", "root directory for the local backend")
	fs.StringVar(&c.ContentsS3Bucket, "contents-s3-bucket", "", "s3 bucket name for the s3 backend")
	fs.StringVar(&c.ContentsS3Prefix, "contents-s3-prefix", "", "s3 key prefix for the s3 backend")
	fs.StringVar(&c.ContentsSSMParam, "contents-ssm-param", "", "ssm parameter holding the s3 bucket name (overrides -contents-s3-bucket)")
	fs.BoolVar(&c.AllowHidden, "allow-hidden", false, "expose dotfiles through the contents API")
	fs.StringVar(&c.CORSAllowOrigin, "cors-allow-origin", "*", "CORS Access-Control-Allow-Origin value")
	fs.BoolVar(&c.CORSAllowCredentials, "cors-allow-credentials", false, "CORS Access-Control-Allow-Credentials")
	fs.BoolVar(&c.DisableCSRF, "disable-csrf", false, "disable xsrf double-submit checks on the contents API")
	fs.StringVar(&c.CSRFSecret, "csrf-secret", "", "hmac secret for xsrf cookies (random per process when empty)")
	fs.Float64Var(&c.RateLimitPerSecond, "ratelimit-per-second", 10, "per-IP sustained request rate")
	fs.IntVar(&c.RateLimitBurst, "ratelimit-burst", 50, "per-IP burst bucket size")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies for X-Forwarded-For")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Content backend
	switch c.ContentsBackend {
	case BackendLocal:
		if c.ContentsRoot == "" {
			errs = append(errs, fmt.Errorf("CONTENTS_ROOT is required for the local backend"))
		}
	case BackendS3:
		if c.ContentsS3Bucket == "" && c.ContentsSSMParam == "" {
			errs = append(errs, fmt.Errorf("CONTENTS_S3_BUCKET or CONTENTS_SSM_PARAM is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid CONTENTS_BACKEND %q (must be local|s3)", c.ContentsBackend))
	}

	// Rate limiting
	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_PER_SECOND must be > 0 (got %g)", c.RateLimitPerSecond))
	}
	if c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
	}

	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
