package host

import "context"

// BootstrapResult is what an extension's bootstrap entry point reports back
// to the host startup sequence.
type BootstrapResult struct {
	// Extension is the extension's name for logging.
	Extension string

	// Routes lists the native route patterns the extension registered.
	Routes []string
}

// Bootstrapper is the extension bootstrap entry point. The host invokes it
// once at process start, after the router exists but before the listener
// accepts requests. Wrappers (see internal/guard) compose around it.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, app *App) (*BootstrapResult, error)
}

// BootstrapFunc adapts a function into a Bootstrapper.
type BootstrapFunc func(ctx context.Context, app *App) (*BootstrapResult, error)

func (f BootstrapFunc) Bootstrap(ctx context.Context, app *App) (*BootstrapResult, error) {
	return f(ctx, app)
}
