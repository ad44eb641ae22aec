package guard

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/contentgate/internal/host"
	"github.com/keithlinneman/contentgate/internal/log"
)

// Interceptor wraps the service extension's bootstrap entry point. On every
// invocation it runs the original bootstrap first, installs the blocking
// rules into the host router exactly once per Interceptor, and wraps
// whatever content manager the extension exposed.
//
// The composition replaces the usual "swap the global bootstrap symbol"
// trick: the Interceptor holds a reference to the original Bootstrapper and
// is itself a Bootstrapper, so the host wires it in explicitly and isolated
// tests can construct independent instances.
type Interceptor struct {
	next    host.Bootstrapper
	rules   []Rule
	blocker *Blocker
	logger  log.Logger

	// OnInstalled reports whether route protection is active, for the
	// download_guard_active gauge.
	onInstalled func(active bool)
	onRefused   func(method string)

	installed atomic.Bool
}

type InterceptorOptions struct {
	Logger log.Logger

	// Rules defaults to DefaultRules().
	Rules []Rule

	// OnBlocked / OnRefused / OnInstalled feed metrics; all optional.
	OnBlocked   func(rule string)
	OnRefused   func(method string)
	OnInstalled func(active bool)
}

// Intercept wraps next. next must not be nil.
func Intercept(next host.Bootstrapper, opts InterceptorOptions) *Interceptor {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	return &Interceptor{
		next:  next,
		rules: rules,
		blocker: NewBlocker(BlockerOptions{
			Logger:    opts.Logger,
			OnBlocked: opts.OnBlocked,
		}),
		logger:      opts.Logger,
		onInstalled: opts.OnInstalled,
		onRefused:   opts.OnRefused,
	}
}

// Bootstrap implements host.Bootstrapper.
//
// A failed original bootstrap is logged and treated as an absent result,
// never re-raised, because protection must still be installed even when the
// underlying service only partially initialized. The host startup sequence
// observes the same contract as if no wrapping occurred.
func (i *Interceptor) Bootstrap(ctx context.Context, app *host.App) (*host.BootstrapResult, error) {
	res, err := i.next.Bootstrap(ctx, app)
	if err != nil {
		i.logger.Warn(ctx, "service extension bootstrap failed, installing download protection anyway",
			"error", err,
		)
		res = nil
	} else if res != nil {
		i.logger.Info(ctx, "service extension loaded",
			"extension", res.Extension,
			"routes", len(res.Routes),
		)
	}

	// single-shot transition; repeat invocations must not re-install rules
	if i.installed.CompareAndSwap(false, true) {
		if err := InstallRules(ctx, app.Router(), i.rules, i.blocker, i.logger); err != nil {
			// the refusal guarantee is void for the failed shapes; the host
			// may keep running but operators must know it is unprotected
			i.logger.Error(ctx, err, "download route protection is NOT fully active")
			if i.onInstalled != nil {
				i.onInstalled(false)
			}
		} else {
			i.logger.Info(ctx, "download blocking rules active", "rules", len(i.rules))
			if i.onInstalled != nil {
				i.onInstalled(true)
			}
		}
	} else {
		i.logger.Debug(ctx, "download blocking rules already installed, skipping")
	}

	// re-wrap every time: a repeated bootstrap re-publishes the extension's
	// bare manager, and the programmatic channel must never surface unguarded.
	// WrapManager returns an already-wrapped manager unchanged.
	if m := app.Manager(); m != nil {
		app.SetManager(WrapManager(m, i.logger, i.onRefused))
	} else {
		// degraded: the programmatic channel stays unguarded, routes
		// still refuse
		i.logger.Warn(ctx, "no content manager exposed by extension, programmatic download channel unguarded")
	}

	return res, nil
}

// Installed reports whether the Unwrapped -> Wrapped transition happened.
func (i *Interceptor) Installed() bool { return i.installed.Load() }
