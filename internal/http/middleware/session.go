package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/http/response"
	"github.com/yungbote/storefront-backend/internal/platform/ctxutil"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

const sessionContextKey = "session_id"

type SessionSigner interface {
	Issue(sessionID string) (string, error)
	Parse(value string) (string, error)
}

type SessionOptions struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
	NewID      func() string
}

type SessionMiddleware struct {
	log    *logger.Logger
	signer SessionSigner
	opts   SessionOptions
}

func NewSessionMiddleware(log *logger.Logger, signer SessionSigner, opts SessionOptions) *SessionMiddleware {
	if opts.CookieName == "" {
		opts.CookieName = "sf_session"
	}
	return &SessionMiddleware{log: log, signer: signer, opts: opts}
}

// Attach resolves the shopper session from the signed cookie. A missing or
// invalid cookie starts a new session and sets a fresh cookie.
func (m *SessionMiddleware) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sid string
		if raw, err := c.Cookie(m.opts.CookieName); err == nil {
			if parsed, perr := m.signer.Parse(raw); perr == nil {
				sid = parsed
			} else if m.log != nil {
				m.log.Debug("discarding session cookie", "error", perr)
			}
		}
		if sid == "" {
			sid = m.opts.NewID()
			value, err := m.signer.Issue(sid)
			if err != nil {
				response.RespondError(c, http.StatusInternalServerError, "session_issue_failed", err)
				return
			}
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     m.opts.CookieName,
				Value:    value,
				Path:     "/",
				MaxAge:   int(m.opts.MaxAge / time.Second),
				HttpOnly: true,
				Secure:   m.opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(sessionContextKey, sid)
		c.Request = c.Request.WithContext(ctxutil.WithSessionID(c.Request.Context(), sid))
		c.Next()
	}
}

// SessionID returns the session resolved by Attach, or "".
func SessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
