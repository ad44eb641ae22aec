package httpmw

import (
	"crypto/hmac"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/securecookie"
)

const (
	csrfCookieName = "_contentgate_xsrf"
	csrfHeaderName = "X-XSRFToken"
	csrfTokenBytes = 32
)

// CSRF implements double-submit protection for state-changing requests.
// Safe methods receive a signed token cookie; unsafe methods must echo the
// token back in the X-XSRFToken header. The cookie value is authenticated
// with securecookie so clients cannot mint their own.
type CSRF struct {
	sc *securecookie.SecureCookie
}

// NewCSRF builds a protector from a hash key (HMAC) and an optional block
// key (encryption). Keys should come from config so tokens survive restarts
// across replicas.
func NewCSRF(hashKey, blockKey []byte) *CSRF {
	return &CSRF{sc: securecookie.New(hashKey, blockKey)}
}

// Protect enforces the token on PUT/POST/PATCH/DELETE and issues it on
// everything else.
func (c *CSRF) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if !c.check(r) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"xsrf cookie does not match token"}` + "\n"))
				return
			}
		default:
			c.issue(w, r)
		}
		next.ServeHTTP(w, r)
	})
}

// issue sets the token cookie if the request does not already carry a valid
// one, and exposes the raw token in a response header for API clients.
func (c *CSRF) issue(w http.ResponseWriter, r *http.Request) {
	if tok, ok := c.tokenFromCookie(r); ok {
		w.Header().Set(csrfHeaderName, tok)
		return
	}

	tok := hex.EncodeToString(securecookie.GenerateRandomKey(csrfTokenBytes))
	encoded, err := c.sc.Encode(csrfCookieName, tok)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    encoded,
		Path:     "/",
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(csrfHeaderName, tok)
}

func (c *CSRF) check(r *http.Request) bool {
	tok, ok := c.tokenFromCookie(r)
	if !ok {
		return false
	}
	given := r.Header.Get(csrfHeaderName)
	if given == "" {
		given = r.URL.Query().Get("_xsrf")
	}
	return given != "" && hmac.Equal([]byte(tok), []byte(given))
}

func (c *CSRF) tokenFromCookie(r *http.Request) (string, bool) {
	ck, err := r.Cookie(csrfCookieName)
	if err != nil {
		return "", false
	}
	var tok string
	if err := c.sc.Decode(csrfCookieName, ck.Value, &tok); err != nil {
		return "", false
	}
	return tok, true
}
