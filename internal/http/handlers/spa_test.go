package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSPADoesNotEscapeRoot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	parent := t.TempDir()
	root := filepath.Join(parent, "dist")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("index"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewSPAHandler(root)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.URL.Path = "/../secret.txt"
	h.Serve(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if got := rec.Body.String(); got != "index" {
		t.Fatalf("unexpected body: got=%q want=%q", got, "index")
	}
}

func TestSPADisabledWithoutRoot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/anything", nil)
	NewSPAHandler("").Serve(c)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}
