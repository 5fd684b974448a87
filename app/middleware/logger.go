package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/pretty"

	"exportestimator/pkg/logger"
)

// TraceHeader carries the trace id of a request in both directions
const TraceHeader = "X-Trace-ID"

const maxLoggedBody = 1000

// Logger tags each request with a trace id and logs it once it completes.
// POST bodies are logged compacted.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, traceID)

		start := time.Now()

		var body string
		if c.Request.Method == http.MethodPost {
			body = getRequestBody(c)
		}

		c.Next()

		// Health probes are noise
		if c.FullPath() == "/health" {
			return
		}

		if body != "" {
			logger.InfoCtx(ctx, "[GIN] %3d | %13v | %15s | %s %s | body: %s",
				c.Writer.Status(), time.Since(start), c.ClientIP(), c.Request.Method, c.Request.RequestURI, body)
			return
		}
		logger.InfoCtx(ctx, "[GIN] %3d | %13v | %15s | %s %s",
			c.Writer.Status(), time.Since(start), c.ClientIP(), c.Request.Method, c.Request.RequestURI)
	}
}

// getRequestBody reads the body and puts it back for the handler
func getRequestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(data))
	return CompressBody(data)
}

// CompressBody strips the whitespace of a JSON body and truncates it
func CompressBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	compressed := pretty.Ugly(body)
	if len(compressed) > maxLoggedBody {
		return string(compressed[:maxLoggedBody]) + "..."
	}
	return string(compressed)
}
