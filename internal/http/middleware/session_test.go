package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeSigner struct{}

func (fakeSigner) Issue(id string) (string, error) { return "signed." + id, nil }

func (fakeSigner) Parse(v string) (string, error) {
	if !strings.HasPrefix(v, "signed.") {
		return "", errors.New("bad signature")
	}
	return strings.TrimPrefix(v, "signed."), nil
}

func newSessionRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	mw := NewSessionMiddleware(nil, fakeSigner{}, SessionOptions{
		CookieName: "sf_session",
		MaxAge:     time.Hour,
		NewID:      func() string { return "fresh" },
	})
	r := gin.New()
	r.Use(mw.Attach())
	r.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, SessionID(c)) })
	return r
}

func TestSessionIssuesCookieWhenMissing(t *testing.T) {
	t.Parallel()
	r := newSessionRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	if rec.Body.String() != "fresh" {
		t.Fatalf("unexpected session: got=%q", rec.Body.String())
	}
	cookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "sf_session=signed.fresh") || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("unexpected cookie: got=%q", cookie)
	}
	if !strings.Contains(cookie, "SameSite=Lax") {
		t.Fatalf("cookie missing SameSite: got=%q", cookie)
	}
}

func TestSessionReusesValidCookie(t *testing.T) {
	t.Parallel()
	r := newSessionRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "sf_session", Value: "signed.abc"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Body.String() != "abc" {
		t.Fatalf("unexpected session: got=%q want=%q", rec.Body.String(), "abc")
	}
	if got := rec.Header().Get("Set-Cookie"); got != "" {
		t.Fatalf("unexpected Set-Cookie: got=%q", got)
	}
}

func TestSessionReplacesTamperedCookie(t *testing.T) {
	t.Parallel()
	r := newSessionRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "sf_session", Value: "forged.abc"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Body.String() != "fresh" {
		t.Fatalf("unexpected session: got=%q want=%q", rec.Body.String(), "fresh")
	}
}
