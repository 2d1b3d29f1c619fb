package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/http/response"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

// Recover turns a handler panic into a 500 envelope and logs the stack.
func Recover(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			if log != nil {
				log.Error("panic recovered",
					"path", c.Request.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
			}
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal server error"))
		}()
		c.Next()
	}
}
