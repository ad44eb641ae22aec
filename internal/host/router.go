package host

import (
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/contentgate/internal/xerrors"
)

type override struct {
	name string
	re   *regexp.Regexp
	h    http.Handler
}

// Router is the host's request router. Native routes are registered on the
// embedded chi mux; overrides installed with HandleFirst are consulted
// before the mux, so an override always wins over a native route for the
// same path shape.
//
// Overrides live behind an atomic pointer: they are written only during
// extension installation and read lock-free on every request afterwards.
type Router struct {
	mu        sync.Mutex // serializes installs
	overrides atomic.Pointer[[]override]
	mux       *chi.Mux
}

func NewRouter() *Router {
	return &Router{mux: chi.NewRouter()}
}

// Mux exposes the native registration surface for service extensions.
func (rt *Router) Mux() *chi.Mux { return rt.mux }

// HandleFirst installs pattern (an anchored-or-not regexp over the request
// path) ahead of every native route and every previously installed override.
// Returns an error when the pattern does not compile or the handler is nil;
// callers treat that as a fatal configuration failure for their guarantee.
func (rt *Router) HandleFirst(name, pattern string, h http.Handler) error {
	if h == nil {
		return xerrors.Newf("router: nil handler for pattern %q", pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return xerrors.Wrapf(err, "router: compile pattern %q", pattern)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	var cur []override
	if p := rt.overrides.Load(); p != nil {
		cur = *p
	}
	next := make([]override, 0, len(cur)+1)
	next = append(next, override{name: name, re: re, h: h})
	next = append(next, cur...)
	rt.overrides.Store(&next)
	return nil
}

// Overrides returns the names of installed overrides in match order.
func (rt *Router) Overrides() []string {
	p := rt.overrides.Load()
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(*p))
	for _, o := range *p {
		names = append(names, o.name)
	}
	return names
}

// ServeHTTP dispatches to the first matching override, falling through to
// the native mux when none match.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p := rt.overrides.Load(); p != nil {
		for _, o := range *p {
			if o.re.MatchString(r.URL.Path) {
				o.h.ServeHTTP(w, r)
				return
			}
		}
	}
	rt.mux.ServeHTTP(w, r)
}
