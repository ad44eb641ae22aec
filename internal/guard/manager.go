package guard

import (
	"context"
	"fmt"

	"github.com/keithlinneman/contentgate/internal/contents"
	"github.com/keithlinneman/contentgate/internal/log"
)

// ErrDownloadDisabled is the access-denied outcome every guarded
// download-URL variant returns. It wraps contents.ErrAccessDenied so HTTP
// handlers map it to 403 without importing this package.
var ErrDownloadDisabled = fmt.Errorf("file downloads are disabled: %w", contents.ErrAccessDenied)

// guardedManager forwards all core operations to the wrapped manager and
// refuses every download-URL capability variant. A wrapping adapter instead
// of runtime method replacement: it preserves type safety and works on any
// backend.
type guardedManager struct {
	contents.Manager
	logger    log.Logger
	onRefused func(method string)
}

// WrapManager returns a manager identical to m except that DownloadURL and
// the legacy FileURL always yield ErrDownloadDisabled. This closes the
// server-internal channel (template rendering, other extensions) that calls
// the manager directly instead of going through the router.
//
// Variants m does not implement are logged as skipped; the wrapper still
// exposes a refusing implementation for them, which is strictly safer than
// absent. Wrapping an already-wrapped manager returns it unchanged.
func WrapManager(m contents.Manager, logger log.Logger, onRefused func(method string)) contents.Manager {
	if logger == nil {
		logger = log.Nop()
	}
	if g, ok := m.(*guardedManager); ok {
		return g
	}

	ctx := context.Background()
	for _, v := range []struct {
		method  string
		present bool
	}{
		{"DownloadURL", implements[contents.DownloadURLer](m)},
		{"FileURL", implements[contents.FileURLer](m)},
	} {
		if v.present {
			logger.Info(ctx, "download capability guarded", "method", v.method)
		} else {
			logger.Debug(ctx, "download capability absent on backend, skipped", "method", v.method)
		}
	}

	return &guardedManager{
		Manager:   m,
		logger:    logger,
		onRefused: onRefused,
	}
}

func implements[T any](m contents.Manager) bool {
	_, ok := m.(T)
	return ok
}

func (g *guardedManager) refuse(ctx context.Context, method, path string) error {
	g.logger.Warn(ctx, "download URL request refused",
		"method", method,
		"path", path,
	)
	if g.onRefused != nil {
		g.onRefused(method)
	}
	return ErrDownloadDisabled
}

func (g *guardedManager) DownloadURL(ctx context.Context, path string) (string, error) {
	return "", g.refuse(ctx, "DownloadURL", path)
}

func (g *guardedManager) FileURL(path string) (string, error) {
	return "", g.refuse(context.Background(), "FileURL", path)
}
