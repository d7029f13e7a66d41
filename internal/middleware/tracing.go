package middleware

import (
	"fmt"
	"strings"

	"meshi/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts a server span per request. The span is named after
// the matched route pattern once routing is done, so /api/posts/17 and
// /api/posts/18 share "DELETE /api/posts/:id". The query string is never
// recorded because live upgrades carry their ticket there.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		method := c.Method()
		ctx, span := observability.Tracer.Start(ctx, method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", method),
				attribute.String("url.path", c.Path()),
				attribute.String("client.address", c.IP()),
				attribute.String("user_agent.original", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Locals("spanID", span.SpanContext().SpanID().String())
		if requestID := c.Locals("requestid"); requestID != nil {
			span.SetAttributes(attribute.String("request.id", fmt.Sprintf("%v", requestID)))
		}
		c.Set("X-Trace-ID", traceID)
		c.SetUserContext(ctx)

		err := c.Next()

		// c.Route() now reports the handler's route rather than this Use.
		if route := c.Route().Path; route != "" && route != "/" {
			span.SetName(method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
			span.SetAttributes(routeAttributes(c, route)...)
		}

		status := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}

		if userID := c.Locals("userID"); userID != nil {
			span.SetAttributes(attribute.String("user.id", fmt.Sprintf("%v", userID)))
		}

		return err
	}
}

// routeAttributes names the post, upload, or blob a request touched.
func routeAttributes(c *fiber.Ctx, route string) []attribute.KeyValue {
	switch {
	case strings.HasPrefix(route, "/api/posts/:id"):
		return []attribute.KeyValue{attribute.String("meshi.post.id", c.Params("id"))}
	case strings.HasPrefix(route, "/api/blobs/uploads/:id"):
		return []attribute.KeyValue{attribute.String("meshi.upload.id", c.Params("id"))}
	case route == "/storage/*":
		return []attribute.KeyValue{attribute.String("meshi.blob.path", c.Params("*"))}
	case route == "/api/live":
		return []attribute.KeyValue{attribute.Bool("meshi.live.upgrade", true)}
	}
	return nil
}
