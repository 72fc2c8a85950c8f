package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	rankKey      contextKey = "rank"
	phaseKey     contextKey = "phase"
	operatorKey  contextKey = "operator"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRank annotates context with the group rank of the local process.
func WithRank(ctx context.Context, rank int) context.Context {
	return context.WithValue(ctx, rankKey, rank)
}

// RankFromContext extracts the rank if present.
func RankFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(rankKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithPhase annotates context with the lifecycle phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(phaseKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithOperator annotates context with the operator name.
func WithOperator(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey, name)
}

// OperatorFromContext returns the operator name if present.
func OperatorFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(operatorKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
