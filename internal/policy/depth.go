package policy

import (
	"context"
	"fmt"
)

// DefaultMaxDepth is the default limit on nested dispatch.
const DefaultMaxDepth = 64

// DepthGuard limits how deeply dispatch may nest. Behaviours that call back
// into the mutation API dispatch again with the context they were given, so
// the depth travels in the context.
//
// This stops runaway chains where behaviours keep triggering each other, as
// opposed to the bounded recursion of a cascade delete, which nests only as
// deep as the primary tree.
type DepthGuard struct {
	max int
}

// NewDepthGuard creates a guard with the given limit.
func NewDepthGuard(limit int) DepthGuard {
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	return DepthGuard{max: limit}
}

type depthKey struct{}

// Depth returns the dispatch depth carried by ctx. Zero means not inside a
// behaviour.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Enter returns a context one level deeper, or DispatchDepthError when the
// limit would be exceeded.
func (g DepthGuard) Enter(ctx context.Context, p Name) (context.Context, error) {
	depth := Depth(ctx) + 1
	if depth > g.max {
		return ctx, &DispatchDepthError{Policy: p, Depth: depth, Limit: g.max}
	}
	return context.WithValue(ctx, depthKey{}, depth), nil
}

// Max returns the limit.
func (g DepthGuard) Max() int {
	return g.max
}

// DispatchDepthError is returned when nested dispatch exceeds the limit.
// It aborts the operation that triggered the outermost dispatch.
type DispatchDepthError struct {
	Policy Name // The policy whose dispatch was refused
	Depth  int  // Depth the dispatch would have run at
	Limit  int  // Maximum allowed depth
}

// Error implements the error interface.
func (e *DispatchDepthError) Error() string {
	return fmt.Sprintf("dispatch of %s exceeded max depth: %d > %d limit",
		e.Policy, e.Depth, e.Limit)
}

// RuntimeError returns the equivalent RuntimeError.
func (e *DispatchDepthError) RuntimeError() *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDepthExceeded,
		Message: e.Error(),
		Policy:  e.Policy,
	}
}
