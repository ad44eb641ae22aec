package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/keithlinneman/contentgate/internal/log"
)

// Rule maps a request-path pattern to the blocking handler. Patterns are
// regular expressions over the URL path. Every rule resolves to the same
// refusal, so only match/no-match matters, not relative order.
type Rule struct {
	Name    string
	Pattern string
}

// DefaultRules covers every URL shape the underlying service uses to hand
// out downloadable artifacts. The patterns deliberately overlap: the service
// exposes the same capability through a legacy file-serving path and a
// structured API path, and handler variants may appear under other prefixes.
func DefaultRules() []Rule {
	return []Rule{
		// direct file-content retrieval (legacy raw-file channel)
		{Name: "files", Pattern: `^/files/.*`},

		// structured API download representation
		{Name: "contents-api-download", Pattern: `^/api/contents/.+/download/?$`},

		// catch-all: a literal "download" segment anywhere in the path
		{Name: "download-segment", Pattern: `(^|/)download(/|$)`},
	}
}

// RouteTable is the host router registration surface the overlay needs:
// first-priority installation of a pattern ahead of native routes.
// *host.Router satisfies it.
type RouteTable interface {
	HandleFirst(name, pattern string, h http.Handler) error
}

// InstallRules registers every rule against the blocker. A failed
// registration voids the refusal guarantee for that shape, so each failure
// is logged at error severity; the joined error is returned for the caller
// to surface. Partial installs stand: a rule that did register keeps
// refusing.
func InstallRules(ctx context.Context, rt RouteTable, rules []Rule, b *Blocker, logger log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}

	var errs []error
	for _, rule := range rules {
		if err := rt.HandleFirst(rule.Name, rule.Pattern, b.Handler(rule.Name)); err != nil {
			logger.Error(ctx, err, "failed to install blocking rule, downloads matching this pattern are NOT protected",
				"rule", rule.Name,
				"pattern", rule.Pattern,
			)
			errs = append(errs, err)
			continue
		}
		logger.Debug(ctx, "installed blocking rule",
			"rule", rule.Name,
			"pattern", rule.Pattern,
		)
	}
	return errors.Join(errs...)
}
