// Package host models the content-serving host process: the request router,
// the slot holding the active content manager, and the bootstrap contract
// service extensions implement.
package host

import (
	"sync"

	"github.com/keithlinneman/contentgate/internal/contents"
	"github.com/keithlinneman/contentgate/internal/log"
)

// App is the host-side view a service extension (and the guard overlay)
// works against.
type App struct {
	router *Router
	logger log.Logger

	mu      sync.RWMutex
	manager contents.Manager
}

func NewApp(logger log.Logger) *App {
	if logger == nil {
		logger = log.Nop()
	}
	return &App{
		router: NewRouter(),
		logger: logger,
	}
}

func (a *App) Router() *Router    { return a.router }
func (a *App) Logger() log.Logger { return a.logger }

// Manager returns the active content manager, or nil before bootstrap.
func (a *App) Manager() contents.Manager {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manager
}

// SetManager swaps the active content manager. Called by the extension
// during bootstrap and again by the overlay when it wraps the instance.
func (a *App) SetManager(m contents.Manager) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manager = m
}
