package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithDBSpan runs fn inside a client span describing one gateway operation.
// system is the backend ("postgresql", "mongodb", "memory"), collection the
// table or collection touched.
func WithDBSpan(ctx context.Context, system, collection, operation string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation.name", operation),
			attribute.String("db.collection.name", collection),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
