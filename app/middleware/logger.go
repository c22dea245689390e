package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"taskstream/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

// Logger logs one line per request through the application logger.
// Bodies of mutating requests are compacted and truncated so a large
// dead-letter payload cannot flood the log.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var body string
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			body = requestBody(c)
		}

		c.Next()

		// Probes against unknown paths are noise.
		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		msg := "request completed, method: %s, path: %s, status: %d, latency: %s, client: %s"
		args := []interface{}{
			c.Request.Method,
			c.Request.RequestURI,
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
		}
		if body != "" {
			msg += ", body: %s"
			args = append(args, body)
		}
		logger.InfoCtx(c.Request.Context(), msg, args...)
	}
}

// requestBody reads and restores the request body for logging.
func requestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	raw, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
	return CompressBody(string(raw))
}

// CompressBody strips whitespace from a JSON body and truncates it.
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}

	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > 1000 {
		return string(compressed[:1000]) + "..."
	}
	return string(compressed)
}
