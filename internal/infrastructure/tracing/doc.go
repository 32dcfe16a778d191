/*
Package tracing provides lightweight request tracing for the fragment host.

# Overview

Every HTTP request gets a span; sandbox executions and tool calls started
from that request inherit its trace id through the context. Spans drain to
structured logs on a buffered channel, so the request path never blocks on
trace output.

# Usage

	tracer := tracing.New("vitrine", logger)

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "fragment.spawn")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Propagation

Traces propagate over standard headers:
  - X-Trace-ID: identifier for the whole request flow
  - X-Span-ID: identifier for the current operation

The renderer echoes both on its log batches, so renderer-side events can be
joined with the host-side spans that produced them.
*/
package tracing
