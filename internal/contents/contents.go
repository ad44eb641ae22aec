// Package contents defines the content-manager contract for the pluggable
// content-serving service and provides its storage backends.
//
// A Manager owns listing, viewing, editing, and deleting of content items.
// Producing a client-usable download reference is deliberately modeled as an
// optional capability (DownloadURLer / FileURLer) rather than part of the
// core interface: backends may implement one, both, or neither variant, and
// the overlay in internal/guard refuses whichever variants are present.
package contents

import (
	"context"
	"time"
)

// Entry is one row in a directory listing.
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Dir      bool      `json:"dir"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"last_modified"`
	Mimetype string    `json:"mimetype,omitempty"`
}

// Item is a single content item with its data.
type Item struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"last_modified"`
	Mimetype string    `json:"mimetype,omitempty"`
	Content  []byte    `json:"content,omitempty"`
}

// Manager is the core contract every content backend implements.
type Manager interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	Get(ctx context.Context, path string) (*Item, error)
	Save(ctx context.Context, path string, data []byte) (*Item, error)
	Delete(ctx context.Context, path string) error
}

// DownloadURLer is the current download-reference capability: it returns a
// URL a client can use to fetch the raw item.
type DownloadURLer interface {
	DownloadURL(ctx context.Context, path string) (string, error)
}

// FileURLer is the legacy variant of the same capability, kept for older
// clients that expect a server-relative /files path.
type FileURLer interface {
	FileURL(path string) (string, error)
}
