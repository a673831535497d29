package proxy

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrorigo/stream-healer/internal/log"
	"github.com/mrorigo/stream-healer/internal/tracing"
)

// Recovery turns a panic inside a downstream handler into a 500 JSON
// response instead of letting it crash the process, the way the
// teacher's middleware.Recovery does.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = errRecovered{r}
				}

				log.Error(c.Request.Context(), "recovered from panic", log.Any("panic", r))
				abortWithError(c, http.StatusInternalServerError, err)
			}
		}()

		c.Next()
	}
}

type errRecovered struct{ v any }

func (e errRecovered) Error() string {
	if e.v == nil {
		return "panic: <nil>"
	}

	if s, ok := e.v.(string); ok {
		return "panic: " + s
	}

	return "panic: unexpected value"
}

// WithTracing extracts the inbound trace ID (or generates one) and
// sets it, plus the request's operation name, on the request context
// so both access logging and the structured logger can correlate every
// line emitted while handling this request.
func WithTracing(cfg tracing.Config) gin.HandlerFunc {
	header := cfg.HeaderName()

	return func(c *gin.Context) {
		traceID := c.GetHeader(header)
		if traceID == "" {
			for _, extra := range cfg.ExtraTraceHeaders {
				if traceID = c.GetHeader(extra); traceID != "" {
					break
				}
			}
		}

		if traceID == "" {
			traceID = tracing.GenerateTraceID()
		}

		ctx := tracing.WithTraceID(c.Request.Context(), traceID)
		ctx = tracing.WithOperationName(ctx, c.Request.Method+" "+c.FullPath())
		c.Request = c.Request.WithContext(ctx)

		c.Header(header, traceID)
		c.Next()
	}
}

// AccessLog logs one structured line per request that either failed
// or produced a non-2xx/3xx status, mirroring the teacher's
// middleware.AccessLog (successful requests are not worth a log line
// at steady-state traffic volume).
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()

		var errMsgs []string
		for _, e := range c.Errors {
			errMsgs = append(errMsgs, e.Error())
		}

		if status < 400 && len(errMsgs) == 0 {
			return
		}

		ctx := c.Request.Context()
		fields := []log.Field{
			log.Int("status", status),
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Duration("latency", time.Since(start)),
			log.String("client_ip", c.ClientIP()),
		}

		if opName, ok := tracing.GetOperationName(ctx); ok {
			fields = append(fields, log.String("operation", opName))
		}

		if len(errMsgs) > 0 {
			fields = append(fields, log.Strings("errors", errMsgs))
		}

		log.Error(ctx, "[ACCESS]", fields...)
	}
}
