package contenthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/contentgate/internal/contents"
	"github.com/keithlinneman/contentgate/internal/log"
)

// maxSaveBytes bounds PUT bodies on the contents API.
const maxSaveBytes int64 = 50 * 1024 * 1024 // 50MB

type managerHandler func(w http.ResponseWriter, r *http.Request, m contents.Manager)

func (e *Extension) withManager(h managerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r, e.manager())
	})
}

// handleFiles serves raw item bytes: the legacy download channel.
func (e *Extension) handleFiles(w http.ResponseWriter, r *http.Request, m contents.Manager) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	item, err := m.Get(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeManagerError(r.Context(), e.Logger, w, err)
		return
	}

	w.Header().Set("Content-Type", item.Mimetype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.Name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", item.Size))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(item.Content)
}

// handleContentsRoot lists the content root.
func (e *Extension) handleContentsRoot(w http.ResponseWriter, r *http.Request, m contents.Manager) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries, err := m.List(r.Context(), "")
	if err != nil {
		writeManagerError(r.Context(), e.Logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": "", "content": entries})
}

// handleContentsPath is the structured contents API. A trailing /download
// segment selects the download representation of the item; anything else is
// view/edit/delete on the item itself.
func (e *Extension) handleContentsPath(w http.ResponseWriter, r *http.Request, m contents.Manager) {
	p := strings.Trim(chi.URLParam(r, "*"), "/")

	if item, ok := strings.CutSuffix(p, "/download"); ok {
		e.handleDownload(w, r, m, item)
		return
	}

	switch r.Method {
	case http.MethodGet:
		e.handleView(w, r, m, p)
	case http.MethodPut, http.MethodPost:
		e.handleSave(w, r, m, p)
	case http.MethodDelete:
		if err := m.Delete(r.Context(), p); err != nil {
			writeManagerError(r.Context(), e.Logger, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleDownload resolves the item to a client-usable URL and redirects.
func (e *Extension) handleDownload(w http.ResponseWriter, r *http.Request, m contents.Manager, p string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, ok := m.(contents.DownloadURLer)
	if !ok {
		writeError(w, http.StatusNotImplemented, "downloads not supported by this backend")
		return
	}
	u, err := d.DownloadURL(r.Context(), p)
	if err != nil {
		writeManagerError(r.Context(), e.Logger, w, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (e *Extension) handleView(w http.ResponseWriter, r *http.Request, m contents.Manager, p string) {
	item, err := m.Get(r.Context(), p)
	if err == nil {
		writeJSON(w, http.StatusOK, item)
		return
	}
	// a directory path is invalid for Get; try a listing before failing
	if errors.Is(err, contents.ErrInvalidPath) || errors.Is(err, contents.ErrNotFound) {
		if entries, lerr := m.List(r.Context(), p); lerr == nil {
			writeJSON(w, http.StatusOK, map[string]any{"path": p, "content": entries})
			return
		}
	}
	writeManagerError(r.Context(), e.Logger, w, err)
}

func (e *Extension) handleSave(w http.ResponseWriter, r *http.Request, m contents.Manager, p string) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxSaveBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(data)) > maxSaveBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "content too large")
		return
	}
	item, err := m.Save(r.Context(), p, data)
	if err != nil {
		writeManagerError(r.Context(), e.Logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeManagerError(ctx context.Context, logger log.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contents.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, contents.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, contents.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, contents.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, "not supported")
	default:
		if logger != nil {
			logger.Error(ctx, err, "content manager operation failed")
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
