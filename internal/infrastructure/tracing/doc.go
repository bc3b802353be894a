/*
Package tracing provides lightweight request tracing across inspector
services.

A trace follows one user action from the inspector API through the
resolver protocol to a remote backend. The trace and parent span ids
travel in the X-Trace-ID and X-Span-ID headers: HTTPMiddleware reads them
on the way in and RestyMiddleware writes them on the way out. Finished
spans are logged by a background collector.

Usage:

	tracer := tracing.New("inspector", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	client.OnBeforeRequest(tracing.RestyMiddleware)
*/
package tracing
