package middleware

import (
	"net/http"
	"runtime/debug"

	"taskstream/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery catches handler panics, logs the stack and answers 500.
// A panic in one request must not take the status API down.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				logger.ErrorCtx(c.Request.Context(),
					"panic recovered: %v\nstack:\n%s", err, string(stack))

				resp := gin.H{"error": "internal server error"}
				// Stack traces leave the process only in debug mode.
				if gin.Mode() == gin.DebugMode {
					resp["panic"] = err
					resp["stack"] = string(stack)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()
	}
}
