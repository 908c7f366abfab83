package repository

import (
	"github.com/rcn123/rpg-lobby/internal/domain"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// finishSpan sets the span status from err. Domain errors are expected
// outcomes and are not recorded as exceptions.
func finishSpan(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case domain.IsStoreError(err) || !(domain.IsNotFoundError(err) || domain.IsConflictError(err) || domain.IsValidationError(err)):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetStatus(codes.Error, err.Error())
	}
}
