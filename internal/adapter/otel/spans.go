package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dealflow"

// StartPhaseSpan opens a span covering one phase execution.
func StartPhaseSpan(ctx context.Context, workflowID, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "phase."+phase,
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.phase", phase),
		),
	)
}
