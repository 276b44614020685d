package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"provider-dispatch/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// candidateResolver resolves a category/location pair to the providers
// registered for that service in that area.
type candidateResolver struct {
	db     *DB
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCandidateResolver creates a resolver backed by the provider catalog
// tables.
func NewCandidateResolver(db *DB, logger *slog.Logger) domain.CandidateResolver {
	return &candidateResolver{
		db:     db,
		logger: logger.With("component", "candidate-resolver"),
		tracer: otel.Tracer("provider-dispatch-postgres-resolver"),
	}
}

// Resolve returns every provider serving the category in the area. An empty
// result is a valid outcome, not an error.
func (r *candidateResolver) Resolve(ctx context.Context, categoryID, locationID int64) ([]domain.Provider, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.postgres.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("category.id", categoryID),
		attribute.Int64("location.id", locationID),
	)

	query := `
		SELECT p.name, p.address
		FROM providers p
		WHERE p.category_id = $1 AND p.area_id = $2
		ORDER BY p.name
	`
	rows, err := r.db.Conn().QueryContext(ctx, query, categoryID, locationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider query failed")
		return nil, fmt.Errorf("failed to resolve providers for category %d in area %d: %w",
			categoryID, locationID, err)
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		var p domain.Provider
		if err := rows.Scan(&p.Name, &p.Address); err != nil {
			r.logger.Warn("failed to scan provider row", "error", err)
			continue
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider rows: %w", err)
	}

	span.SetAttributes(attribute.Int("providers", len(providers)))
	return providers, nil
}
