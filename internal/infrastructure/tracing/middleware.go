package tracing

import (
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing. The span is named
// after the route pattern so object ids do not explode the operation set.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := Extract(c.Request.Context(), c.Request.Header)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		c.Request = c.Request.WithContext(ctx)

		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}

// RestyMiddleware propagates the trace context of each request's context
// to the server it calls
func RestyMiddleware(_ *resty.Client, r *resty.Request) error {
	Inject(r.Context(), r.Header)
	return nil
}
