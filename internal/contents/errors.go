package contents

import "errors"

var (
	// ErrNotFound is returned when the named item does not exist
	// (or is hidden and hidden files are not allowed).
	ErrNotFound = errors.New("content item not found")

	// ErrInvalidPath is returned for paths with dot segments or other
	// shapes a backend refuses to resolve.
	ErrInvalidPath = errors.New("invalid content path")

	// ErrAccessDenied is returned when a capability exists but policy
	// forbids using it. HTTP handlers map this to 403.
	ErrAccessDenied = errors.New("access denied by policy")

	// ErrNotSupported is returned when a backend does not implement an
	// optional capability.
	ErrNotSupported = errors.New("capability not supported by this backend")
)
