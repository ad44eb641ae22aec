package httpmw

import (
	"net/http"

	"github.com/keithlinneman/contentgate/internal/log"
	"github.com/keithlinneman/contentgate/internal/xerrors"
)

// Recover converts handler panics into 500 responses so one bad request
// cannot take the listener down. onPanic feeds the panic counter; nil is
// allowed.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					// the server uses this sentinel to abort the reply
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}

				err, ok := v.(error)
				if !ok {
					err = xerrors.Newf("panic: %v", v)
				} else {
					err = xerrors.EnsureTrace(err)
				}

				logger.With(
					"method", r.Method,
					"path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
