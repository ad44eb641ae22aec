package guard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/keithlinneman/contentgate/internal/log"
)

const timestampLayout = "2006-01-02 15:04:05"

// Blocker writes the refusal response for matched requests. It is
// method-agnostic: GET, POST, PUT, DELETE, and HEAD all produce the same
// 403 (HEAD gets status and headers without a body). It cannot fail in a
// way that propagates: it always completes by writing the refusal.
type Blocker struct {
	logger    log.Logger
	onBlocked func(rule string)
	now       func() time.Time
}

type BlockerOptions struct {
	Logger log.Logger

	// OnBlocked is called once per refusal with the matching rule name,
	// used to increment prometheus counters.
	OnBlocked func(rule string)

	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewBlocker(opts BlockerOptions) *Blocker {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Blocker{
		logger:    opts.Logger,
		onBlocked: opts.OnBlocked,
		now:       opts.Now,
	}
}

// blockedResponse is the wire contract for a refusal body.
type blockedResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	BlockedPath string `json:"blocked_path"`
}

// Handler returns the refusing handler for one rule.
func (b *Blocker) Handler(rule string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.logger.Warn(r.Context(), "download blocked",
			"rule", rule,
			"path", r.URL.Path,
			"method", r.Method,
		)
		if b.onBlocked != nil {
			b.onBlocked(rule)
		}

		h := w.Header()
		for k, v := range Headers() {
			h.Set(k, v)
		}
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)

		if r.Method == http.MethodHead {
			return
		}

		// encoding a flat struct of strings can't fail; ignore write
		// errors, the client may have gone away
		_ = json.NewEncoder(w).Encode(blockedResponse{
			Error:       "File downloads are disabled",
			Message:     "This server does not permit file downloads",
			Timestamp:   b.now().UTC().Format(timestampLayout),
			BlockedPath: r.URL.Path,
		})
	})
}
