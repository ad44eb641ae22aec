package contenthttp

import (
	"errors"
	"html/template"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/contentgate/internal/contents"
)

// The tree viewer renders items and listings as HTML. While rendering a
// file it asks the manager for a download URL to offer a download link.
// This is a server-internal call that never passes through the router, so
// only the wrapped manager can refuse it. When the manager refuses (or the
// backend has no download capability) the link is simply omitted and
// viewing continues to work.

var treeTmpl = template.Must(template.New("tree").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Dir}}
<ul>
{{range .Entries}}<li><a href="/lab/tree/{{.Path}}">{{.Name}}{{if .Dir}}/{{end}}</a></li>
{{end}}</ul>
{{else}}
<pre>{{.Text}}</pre>
{{if .DownloadURL}}<p><a href="{{.DownloadURL}}" download>Download</a></p>{{end}}
{{end}}
</body>
</html>
`))

type treeView struct {
	Title       string
	Dir         bool
	Entries     []contents.Entry
	Text        string
	DownloadURL string
}

func (e *Extension) treeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e.handleTree(w, r, e.manager())
	}
}

func (e *Extension) handleTree(w http.ResponseWriter, r *http.Request, m contents.Manager) {
	ctx := r.Context()
	p := strings.Trim(chi.URLParam(r, "*"), "/")

	view := treeView{Title: "/" + p}

	item, err := m.Get(ctx, p)
	switch {
	case err == nil:
		view.Text = renderText(item)
		if d, ok := m.(contents.DownloadURLer); ok {
			u, derr := d.DownloadURL(ctx, p)
			if derr == nil {
				view.DownloadURL = u
			} else if !errors.Is(derr, contents.ErrAccessDenied) {
				e.Logger.Warn(ctx, "viewer could not resolve download URL",
					"path", p, "error", derr)
			}
		}
	case errors.Is(err, contents.ErrInvalidPath), errors.Is(err, contents.ErrNotFound):
		entries, lerr := m.List(ctx, p)
		if lerr != nil {
			writeManagerError(ctx, e.Logger, w, err)
			return
		}
		view.Dir = true
		view.Entries = entries
	default:
		writeManagerError(ctx, e.Logger, w, err)
		return
	}

	if view.Title == "/" && p == "" {
		view.Title = "/ (root)"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := treeTmpl.Execute(w, view); err != nil {
		e.Logger.Warn(ctx, "viewer render failed", "path", p, "error", err)
	}
}

// renderText shows file contents when they look like text.
func renderText(item *contents.Item) string {
	if utf8.Valid(item.Content) {
		return string(item.Content)
	}
	return "(binary content: " + path.Ext(item.Name) + " file, " +
		item.Mimetype + ")"
}
