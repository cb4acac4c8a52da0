package service

import "context"

type operatorKey struct{}

// WithOperator returns a context acting for operatorID. Operations that
// read or write on behalf of an operator use it over the configured one.
func WithOperator(ctx context.Context, operatorID int64) context.Context {
	return context.WithValue(ctx, operatorKey{}, operatorID)
}

// OperatorFrom returns the operator carried by ctx, or fallback.
func OperatorFrom(ctx context.Context, fallback int64) int64 {
	if id, ok := ctx.Value(operatorKey{}).(int64); ok && id > 0 {
		return id
	}
	return fallback
}
