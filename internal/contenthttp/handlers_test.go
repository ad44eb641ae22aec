package contenthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/contentgate/internal/contents"
	"github.com/keithlinneman/contentgate/internal/xerrors"
)

func TestHandleFiles_Get(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/files/report.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "id,amount\n1,100\n" {
		t.Fatalf("body = %q", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `attachment; filename="report.csv"`) {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "csv") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestHandleFiles_HeadOmitsBody(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodHead, "/files/report.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD body = %q, want empty", rec.Body.String())
	}
	if cl := rec.Header().Get("Content-Length"); cl == "" || cl == "0" {
		t.Fatalf("Content-Length = %q, want item size", cl)
	}
}

func TestHandleFiles_MethodNotAllowed(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodPost, "/files/report.csv", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, HEAD" {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestHandleFiles_NotFound(t *testing.T) {
	app, _ := newStack(t, nil)
	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/files/missing.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestContentsRoot_Listing(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Path    string           `json:"path"`
		Content []contents.Entry `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Content) != 3 {
		t.Fatalf("entries = %d, want 3", len(body.Content))
	}
}

func TestContentsPath_ViewItem(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents/notes.txt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var item contents.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Path != "notes.txt" || string(item.Content) != "hello\n" {
		t.Fatalf("item = %+v", item)
	}
}

func TestContentsPath_ViewDirectoryFallsBackToListing(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents/data", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Path    string           `json:"path"`
		Content []contents.Entry `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Path != "data" || len(body.Content) != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestContentsPath_SaveThenDelete(t *testing.T) {
	app, _ := newStack(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/contents/made/it.txt", strings.NewReader("payload"))
	rec := do(t, app, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, app, httptest.NewRequest(http.MethodGet, "/files/made/it.txt", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "payload" {
		t.Fatalf("GET after save = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, app, httptest.NewRequest(http.MethodDelete, "/api/contents/made/it.txt", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}

	rec = do(t, app, httptest.NewRequest(http.MethodGet, "/files/made/it.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET after delete = %d, want 404", rec.Code)
	}
}

func TestContentsPath_BadMethod(t *testing.T) {
	app, _ := newStack(t, nil)
	rec := do(t, app, httptest.NewRequest(http.MethodPatch, "/api/contents/notes.txt", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDownloadSuffix_RedirectsToRawURL(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents/report.csv/download", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/files/report.csv" {
		t.Fatalf("Location = %q", loc)
	}
}

// refusesURLs stands in for the guarded manager: core operations pass
// through, download references are denied.
type refusesURLs struct {
	contents.Manager
}

func (refusesURLs) DownloadURL(ctx context.Context, path string) (string, error) {
	return "", xerrors.Wrapf(contents.ErrAccessDenied, "%q", path)
}

func TestDownloadSuffix_DeniedManagerMapsTo403(t *testing.T) {
	app, _ := newStack(t, nil)
	app.SetManager(refusesURLs{Manager: app.Manager()})

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents/report.csv/download", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	// the item itself stays viewable
	rec = do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents/report.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("view status = %d, want 200", rec.Code)
	}
}

func TestDownloadSuffix_NoCapability(t *testing.T) {
	app, _ := newStack(t, nil)
	// hide the backend's URL capabilities behind the core interface
	app.SetManager(struct{ contents.Manager }{app.Manager()})

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/api/contents/report.csv/download", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestWriteManagerError_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{contents.ErrNotFound, http.StatusNotFound},
		{contents.ErrInvalidPath, http.StatusBadRequest},
		{contents.ErrAccessDenied, http.StatusForbidden},
		{contents.ErrNotSupported, http.StatusNotImplemented},
		{xerrors.New("backend exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeManagerError(context.Background(), nil, rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("writeManagerError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
			t.Errorf("Content-Type = %q", ct)
		}
	}
}
