package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hivemind"

// StartDecideSpan starts a span for a consensus round on a work item.
func StartDecideSpan(ctx context.Context, workItemID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decide",
		trace.WithAttributes(
			attribute.String("workitem.id", workItemID),
			attribute.String("workitem.kind", kind),
		),
	)
}

// StartDispatchSpan starts a span for a single participant dispatch.
func StartDispatchSpan(ctx context.Context, participantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("participant.id", participantID),
		),
	)
}

// StartRouteSpan starts a span for a capability routing evaluation.
func StartRouteSpan(ctx context.Context, workItemID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("workitem.id", workItemID),
		),
	)
}
