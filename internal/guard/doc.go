// Package guard is the download-blocking overlay placed in front of the
// content-serving service.
//
// It does not own storage, authentication, or session state. It installs an
// ordered set of path rules ahead of the host router (every match resolves
// to a 403 refusal), and wraps the live content manager so that the
// download-URL capability refuses regardless of call path, including calls
// made by server-internal code that never touch the router.
//
// Installation happens inside a wrapper around the service extension's
// bootstrap entry point, because the host controls when the service
// initializes and the overlay has no earlier hook point.
package guard
