package guard

// Response header policy. Applied to every refusal the blocker writes, and
// independently installed server-wide by httpmw.SecurityHeaders so that
// responses which never touch the blocker are hardened too.
const (
	// HeaderCSP restricts resource loading to same origin.
	HeaderCSP = "Content-Security-Policy"

	// HeaderDownloadOptions stops browsers from auto-opening served content.
	HeaderDownloadOptions = "X-Download-Options"

	// HeaderContentTypeOptions disables MIME sniffing that could bypass
	// content-type based restrictions.
	HeaderContentTypeOptions = "X-Content-Type-Options"
)

const cspValue = "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval'; style-src 'self' 'unsafe-inline'; object-src 'none';"

// Headers returns the fixed defensive header set. A fresh map is returned
// on each call so callers can't mutate shared state.
func Headers() map[string]string {
	return map[string]string{
		HeaderCSP:                cspValue,
		HeaderDownloadOptions:    "noopen",
		HeaderContentTypeOptions: "nosniff",
	}
}
