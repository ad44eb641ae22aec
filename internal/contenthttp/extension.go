// Package contenthttp is the content-serving service extension: it exposes
// the backend manager over HTTP (raw files, contents API, tree viewer) and
// registers its routes through the host's bootstrap sequence.
package contenthttp

import (
	"context"
	"net/http"

	"github.com/keithlinneman/contentgate/internal/contents"
	"github.com/keithlinneman/contentgate/internal/host"
	"github.com/keithlinneman/contentgate/internal/httpmw"
	"github.com/keithlinneman/contentgate/internal/log"
	"github.com/keithlinneman/contentgate/internal/xerrors"
)

const extensionName = "contenthttp"

// Extension wires a content backend into the host.
type Extension struct {
	// Manager is the backend this extension exposes.
	Manager contents.Manager
	Logger  log.Logger

	// CSRF protects the mutating contents API when set. It wraps route
	// handlers rather than the server, so refusal overrides installed ahead
	// of these routes keep their own response shape.
	CSRF *httpmw.CSRF

	app *host.App
}

// Bootstrap implements host.Bootstrapper: it publishes the manager on the
// host and registers the native routes. Handlers always re-read the manager
// from the host per request, so a wrapper installed after bootstrap takes
// effect everywhere.
func (e *Extension) Bootstrap(ctx context.Context, app *host.App) (*host.BootstrapResult, error) {
	if e.Logger == nil {
		e.Logger = log.Nop()
	}
	if e.Manager == nil {
		return nil, xerrors.New("contenthttp: Manager is required")
	}
	e.app = app
	app.SetManager(e.Manager)

	routes := []string{
		"/files/*",
		"/api/contents",
		"/api/contents/*",
		"/lab/tree",
		"/lab/tree/*",
	}

	mux := app.Router().Mux()
	mux.Handle("/files/*", e.withManager(e.handleFiles))
	mux.Handle("/api/contents", e.protect(e.withManager(e.handleContentsRoot)))
	mux.Handle("/api/contents/*", e.protect(e.withManager(e.handleContentsPath)))
	mux.Get("/lab/tree", e.treeHandler())
	mux.Get("/lab/tree/*", e.treeHandler())

	e.Logger.Info(ctx, "content extension routes registered",
		"extension", extensionName,
		"routes", len(routes),
	)

	return &host.BootstrapResult{
		Extension: extensionName,
		Routes:    routes,
	}, nil
}

func (e *Extension) protect(h http.Handler) http.Handler {
	if e.CSRF == nil {
		return h
	}
	return e.CSRF.Protect(h)
}

// manager returns the host's current (possibly wrapped) manager.
func (e *Extension) manager() contents.Manager {
	if e.app != nil {
		if m := e.app.Manager(); m != nil {
			return m
		}
	}
	return e.Manager
}
