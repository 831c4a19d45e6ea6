package server

import (
	"bidding-core/utils"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing. Server errors are
// logged at error level and client errors at warning level.
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"route":   c.FullPath(),
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}

	switch status := c.Writer.Status(); {
	case status >= http.StatusInternalServerError:
		utils.Error("HTTP Request", fields)
	case status >= http.StatusBadRequest:
		utils.Warn("HTTP Request", fields)
	default:
		utils.Info("HTTP Request", fields)
	}
}
