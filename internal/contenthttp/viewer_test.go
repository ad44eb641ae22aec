package contenthttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/contentgate/internal/contents"
)

func TestTree_RootListing(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/lab/tree", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"report.csv", "notes.txt", "data/"} {
		if !strings.Contains(body, want) {
			t.Errorf("listing missing %q", want)
		}
	}
}

func TestTree_FileWithDownloadLink(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/lab/tree/notes.txt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "hello") {
		t.Fatal("file text not rendered")
	}
	if !strings.Contains(body, `href="/files/notes.txt"`) || !strings.Contains(body, ">Download<") {
		t.Fatalf("download link missing: %s", body)
	}
}

func TestTree_DeniedManagerOmitsDownloadLink(t *testing.T) {
	app, _ := newStack(t, nil)
	app.SetManager(refusesURLs{Manager: app.Manager()})

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/lab/tree/notes.txt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, viewing must survive refusal", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "hello") {
		t.Fatal("file text not rendered")
	}
	if strings.Contains(body, "Download") {
		t.Fatal("download link offered by a refusing manager")
	}
}

func TestTree_Subdirectory(t *testing.T) {
	app, _ := newStack(t, nil)

	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/lab/tree/data", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nested.json") {
		t.Fatal("subdirectory entry not rendered")
	}
}

func TestTree_Missing(t *testing.T) {
	app, _ := newStack(t, nil)
	rec := do(t, app, httptest.NewRequest(http.MethodGet, "/lab/tree/nope.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRenderText(t *testing.T) {
	text := renderText(&contents.Item{Name: "a.txt", Content: []byte("plain")})
	if text != "plain" {
		t.Fatalf("text = %q", text)
	}

	bin := renderText(&contents.Item{
		Name:     "a.bin",
		Mimetype: "application/octet-stream",
		Content:  []byte{0xff, 0xfe, 0x00, 0x80},
	})
	if !strings.Contains(bin, "binary content") {
		t.Fatalf("binary rendering = %q", bin)
	}
}
