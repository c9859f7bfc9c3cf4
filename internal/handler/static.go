package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// ClientHandler serves a prebuilt browser client for the pairing flow. Paths
// that do not name a file fall back to the client's index page.
type ClientHandler struct {
	staticDir string
	indexFile string
}

func NewClientHandler(staticDir string) *ClientHandler {
	return &ClientHandler{
		staticDir: staticDir,
		indexFile: "index.html",
	}
}

func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	filePath := filepath.Join(h.staticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))

	info, err := os.Stat(filePath)
	if err == nil && !info.IsDir() {
		http.ServeFile(w, r, filePath)
		return
	}

	indexPath := filepath.Join(h.staticDir, h.indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, indexPath)
}
