package sound

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileIsUnavailable(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.ogg"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Available() || c.URL() != "" {
		t.Fatalf("missing file should be unavailable, url=%q", c.URL())
	}
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sounds/nope.ogg", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestServeCue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonar.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.HasPrefix(c.URL(), "/sounds/sonar.ogg?v=") {
		t.Fatalf("url=%q", c.URL())
	}

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.URL(), nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OggS" {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "immutable") {
		t.Fatalf("cache-control=%q", rec.Header().Get("Cache-Control"))
	}

	rec = httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sounds/other.ogg", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other file code=%d", rec.Code)
	}
}
