package sound

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Cue is the audio file a client plays when new alerts arrive. A Cue whose
// file is missing is valid but unavailable; clients fall back to silence.
type Cue struct {
	path      string
	name      string
	url       string
	available bool
}

// Load hashes the file at path for a cache-busting URL.
func Load(path string) (*Cue, error) {
	c := &Cue{path: path}
	if path == "" {
		return c, nil
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return c, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return c, err
	}
	c.name = filepath.Base(path)
	c.url = fmt.Sprintf("/sounds/%s?v=%s", c.name, hex.EncodeToString(h.Sum(nil))[:16])
	c.available = true
	return c, nil
}

func (c *Cue) Available() bool { return c != nil && c.available }

func (c *Cue) URL() string {
	if !c.Available() {
		return ""
	}
	return c.url
}

// ServeHTTP serves the cue under /sounds/<name>. The URL carries the content
// hash, so responses are cached as immutable.
func (c *Cue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !c.Available() || r.URL.Path != "/sounds/"+c.name {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, c.path)
}
