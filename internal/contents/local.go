package contents

import (
	"context"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/contentgate/internal/pathutil"
	"github.com/keithlinneman/contentgate/internal/xerrors"
)

// LocalOptions configures the filesystem-backed content manager.
type LocalOptions struct {
	// Root is the directory all content paths resolve under.
	Root string

	// AllowHidden controls whether dotfiles are visible. When false
	// (the default), hidden entries are skipped in listings and direct
	// access to them reports ErrNotFound.
	AllowHidden bool
}

// Local serves content from a directory on disk. It implements Manager
// plus both download-URL capability variants.
type Local struct {
	opts LocalOptions
}

// NewLocal creates a filesystem content manager rooted at opts.Root.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.Root == "" {
		return nil, xerrors.New("contents: Root is required")
	}
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, xerrors.Wrapf(err, "contents: stat root %q", opts.Root)
	}
	if !info.IsDir() {
		return nil, xerrors.Newf("contents: root %q is not a directory", opts.Root)
	}
	return &Local{opts: opts}, nil
}

// resolve maps a request path to an absolute path under the root.
// Fails closed on dot segments and hidden components.
func (l *Local) resolve(p string) (abs, rel string, err error) {
	// check the raw path: Clean would silently fold dot segments into the
	// root, which must be an error rather than a different file
	if pathutil.HasDotSegments(p) {
		return "", "", xerrors.Wrapf(ErrInvalidPath, "%q", p)
	}
	rel = strings.Trim(path.Clean("/"+p), "/")
	if !l.opts.AllowHidden && hasHiddenSegment(rel) {
		// hidden entries are indistinguishable from missing ones
		return "", "", xerrors.Wrapf(ErrNotFound, "%q", p)
	}
	return filepath.Join(l.opts.Root, filepath.FromSlash(rel)), rel, nil
}

func hasHiddenSegment(rel string) bool {
	if rel == "" {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (l *Local) List(ctx context.Context, dir string) ([]Entry, error) {
	abs, rel, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "%q", dir)
		}
		return nil, xerrors.Wrapf(err, "contents: list %q", dir)
	}

	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if !l.opts.AllowHidden && strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// entry vanished between ReadDir and Info, skip it
			continue
		}
		e := Entry{
			Name:    de.Name(),
			Path:    path.Join(rel, de.Name()),
			Dir:     de.IsDir(),
			ModTime: info.ModTime().UTC(),
		}
		if !de.IsDir() {
			e.Size = info.Size()
			e.Mimetype = mimeByName(de.Name())
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *Local) Get(ctx context.Context, p string) (*Item, error) {
	abs, rel, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "%q", p)
		}
		return nil, xerrors.Wrapf(err, "contents: stat %q", p)
	}
	if info.IsDir() {
		return nil, xerrors.Wrapf(ErrInvalidPath, "%q is a directory", p)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, xerrors.Wrapf(err, "contents: read %q", p)
	}
	return &Item{
		Name:     path.Base(rel),
		Path:     rel,
		Size:     int64(len(data)),
		ModTime:  info.ModTime().UTC(),
		Mimetype: mimeByName(rel),
		Content:  data,
	}, nil
}

func (l *Local) Save(ctx context.Context, p string, data []byte) (*Item, error) {
	abs, rel, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "contents: mkdir for %q", p)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return nil, xerrors.Wrapf(err, "contents: write %q", p)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, xerrors.Wrapf(err, "contents: stat after write %q", p)
	}
	return &Item{
		Name:     path.Base(rel),
		Path:     rel,
		Size:     info.Size(),
		ModTime:  info.ModTime().UTC(),
		Mimetype: mimeByName(rel),
	}, nil
}

func (l *Local) Delete(ctx context.Context, p string) error {
	abs, _, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return xerrors.Wrapf(ErrNotFound, "%q", p)
		}
		return xerrors.Wrapf(err, "contents: delete %q", p)
	}
	return nil
}

// DownloadURL returns the server-relative raw-file URL for an item.
func (l *Local) DownloadURL(ctx context.Context, p string) (string, error) {
	_, rel, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	return "/files/" + escapePath(rel), nil
}

// FileURL is the legacy spelling of DownloadURL kept for older clients.
func (l *Local) FileURL(p string) (string, error) {
	return l.DownloadURL(context.Background(), p)
}

func escapePath(rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func mimeByName(name string) string {
	if mt := mime.TypeByExtension(path.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
