package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"cleanhub/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID keeps the caller's X-Request-ID or assigns a new one, and echoes
// it on the response. Processor retries of one event each get their own id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ErrorLogger recovers panics and writes one line per failed request:
// panics, 5xx statuses and anything attached with c.Error. The client only
// sees a generic envelope.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				logFailure(c, start, "panic", fmt.Sprint(recovered), debug.Stack())
				response.Abort(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal Server Error")
				return
			}

			for _, e := range c.Errors {
				logFailure(c, start, fmt.Sprint(e.Type), e.Error(), nil)
			}
			if len(c.Errors) == 0 && c.Writer.Status() >= http.StatusInternalServerError {
				logFailure(c, start, "http_error", http.StatusText(c.Writer.Status()), nil)
			}
		}()

		c.Next()
	}
}

func logFailure(c *gin.Context, start time.Time, kind, message string, stack []byte) {
	line := fmt.Sprintf(
		"level=error msg=request failed kind=%s status=%d method=%s path=%s client_ip=%s user_id=%d request_id=%s latency=%s err=%q",
		kind,
		c.Writer.Status(),
		c.Request.Method,
		c.Request.URL.Path,
		c.ClientIP(),
		c.GetInt64("user_id"),
		c.GetString("request_id"),
		time.Since(start),
		message,
	)
	if len(stack) > 0 {
		line += fmt.Sprintf(" stack=%q", stack)
	}
	log.Print(line)
}
