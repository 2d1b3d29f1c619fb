package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/http/response"
)

// SPAHandler serves the built storefront. Paths that name no file get
// index.html so client-side routes load the app.
type SPAHandler struct {
	root string
}

func NewSPAHandler(root string) *SPAHandler {
	return &SPAHandler{root: root}
}

func (h *SPAHandler) Serve(c *gin.Context) {
	path := c.Request.URL.Path
	if h.root == "" || strings.HasPrefix(path, "/api/") || path == "/api" {
		response.RespondError(c, http.StatusNotFound, "not_found", errNotFound)
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		response.RespondError(c, http.StatusMethodNotAllowed, "method_not_allowed", errMethodNotAllowed)
		return
	}

	rel := filepath.FromSlash(filepath.Clean("/" + path))
	if h.serveFile(c, filepath.Join(h.root, rel)) {
		return
	}
	if !h.serveFile(c, filepath.Join(h.root, "index.html")) {
		response.RespondError(c, http.StatusNotFound, "not_found", errNotFound)
	}
}

func (h *SPAHandler) serveFile(c *gin.Context, name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
	return true
}
