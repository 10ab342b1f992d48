// Package tracing provides OpenTelemetry tracing support for the resilience core.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the gramflow backend.
var tracer = otel.Tracer("gramflow")

// GetTracer returns the global tracer for creating spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "db.with_tx")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}
