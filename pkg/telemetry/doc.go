// Package telemetry provides logging, tracing and metrics for manifold.
//
// Logging is zerolog, wrapped so that components get child loggers and the
// logger travels in the context:
//
//	logger := tel.Logger.WithInvocationID(id).NewComponentLogger("runner")
//	logger.Zerolog().Debug().Int("selected", 3).Msg("Selection complete")
//
// Each CLI invocation opens a root span with Tracer.StartInvocationSpan; the
// spans of StartOperation below it share its trace id.
//
// Tracing uses the OpenTelemetry SDK. The exporter is "stdout" or "none";
// spans are written to stderr so they never mix with command output.
//
// Metrics live on a private Prometheus registry. manifold is a short-lived
// CLI, so nothing is served: on shutdown the registry is written to
// Metrics.TextfilePath in the node-exporter textfile format when a path is
// configured. Every recorder is safe to call on a nil *Metrics.
//
// Operations are instrumented with StartOperation:
//
//	op := telemetry.StartOperation(ctx, "select")
//	resources, err := selector.Select(op.Ctx, graph, expr, env, nil)
//	op.End(err)
package telemetry
