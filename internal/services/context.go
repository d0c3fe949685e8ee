package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	artifactKey
	stageKey
	ownerKey
	requestIDKey
)

// withValue stores v under key unless v is the zero value.
func withValue[T comparable](ctx context.Context, key contextKey, v T) context.Context {
	var zero T
	if v == zero {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOf[T comparable](ctx context.Context, key contextKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok && v != zero
}

// WithJobID tags ctx with the job being processed.
func WithJobID(ctx context.Context, id string) context.Context { return withValue(ctx, jobIDKey, id) }

// JobIDFromContext returns the job tagged by WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) { return valueOf[string](ctx, jobIDKey) }

// WithArtifact tags ctx with a 1-based artifact index. Non-positive indexes are ignored.
func WithArtifact(ctx context.Context, index int) context.Context {
	if index < 1 {
		return ctx
	}
	return withValue(ctx, artifactKey, index)
}

// ArtifactFromContext returns the artifact index tagged by WithArtifact.
func ArtifactFromContext(ctx context.Context) (int, bool) { return valueOf[int](ctx, artifactKey) }

// WithStage tags ctx with the pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage tagged by WithStage.
func StageFromContext(ctx context.Context) (string, bool) { return valueOf[string](ctx, stageKey) }

// WithOwner tags ctx with the name of the API key that made the request.
func WithOwner(ctx context.Context, owner string) context.Context {
	return withValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the owner tagged by WithOwner.
func OwnerFromContext(ctx context.Context) (string, bool) { return valueOf[string](ctx, ownerKey) }

// WithRequestID tags ctx with an HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id tagged by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, requestIDKey)
}
