/*
Package tracing attaches trace and span ids to requests on the HTTP surface.

Incoming X-Trace-ID and X-Span-ID headers are honored so a caller can stitch
its own trace together with ours; otherwise a new trace id is minted. Both ids
are echoed in the response headers. Finished spans are handed to a buffered
collector that writes them through zap; when the buffer is full spans are
dropped rather than blocking the request.

# Usage

	tracer := tracing.New("bastion", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "ws.session")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
