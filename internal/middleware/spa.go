package middleware

import (
	"io/fs"
	"net/http"
	"strings"
)

// SPAHandler serves the built viewer frontend and falls back to index.html
// for client-side routes. Paths under a reserved prefix are never served.
type SPAHandler struct {
	fs        http.FileSystem
	indexHTML []byte
	reserved  []string
}

// NewSPAHandler serves fsys. reserved lists path prefixes owned by the API.
func NewSPAHandler(fsys fs.FS, reserved ...string) *SPAHandler {
	index, _ := fs.ReadFile(fsys, "index.html")
	return &SPAHandler{
		fs:        http.FS(fsys),
		indexHTML: index,
		reserved:  reserved,
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	for _, prefix := range h.reserved {
		if r.URL.Path == prefix || strings.HasPrefix(r.URL.Path, strings.TrimSuffix(prefix, "/")+"/") {
			http.NotFound(w, r)
			return
		}
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "."
	}
	if f, err := h.fs.Open(name); err == nil {
		stat, err := f.Stat()
		f.Close()
		if err == nil && !stat.IsDir() {
			http.FileServer(h.fs).ServeHTTP(w, r)
			return
		}
	}

	if h.indexHTML != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(h.indexHTML)
		return
	}

	http.NotFound(w, r)
}
