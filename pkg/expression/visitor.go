package expression

import "fmt"

// MaxDepth is the hard limit on the height of a tree that Accept will
// dispatch. Deeper trees fail with *DepthExceededError rather than being
// truncated.
const MaxDepth = 256

// Visitor computes an output of type O for each expression variant, given a
// context of type C. Recursion into nested expressions is the visitor's own
// responsibility; it descends by calling Accept on the children it cares
// about.
type Visitor[C, O any] interface {
	VisitSearchParameter(e *SearchParameterExpression, ctx C) (O, error)
	VisitBinary(e *BinaryExpression, ctx C) (O, error)
	VisitChained(e *ChainedExpression, ctx C) (O, error)
	VisitMissingField(e *MissingFieldExpression, ctx C) (O, error)
	VisitMissingSearchParameter(e *MissingSearchParameterExpression, ctx C) (O, error)
	VisitMultiary(e *MultiaryExpression, ctx C) (O, error)
	VisitString(e *StringExpression, ctx C) (O, error)
	VisitCompartment(e *CompartmentSearchExpression, ctx C) (O, error)
}

// Accept routes e to the visitor method matching its runtime variant and
// returns that method's result unchanged.
func Accept[C, O any](e Expression, v Visitor[C, O], ctx C) (O, error) {
	var zero O
	if e == nil {
		return zero, &UnhandledVariantError{Type: "<nil>"}
	}
	if isNil(e) {
		return zero, &UnhandledVariantError{Type: typeName(e) + "(nil)"}
	}
	if d := e.Depth(); d > MaxDepth {
		return zero, &DepthExceededError{Depth: d, Limit: MaxDepth}
	}

	switch n := e.(type) {
	case *SearchParameterExpression:
		return v.VisitSearchParameter(n, ctx)
	case *BinaryExpression:
		return v.VisitBinary(n, ctx)
	case *ChainedExpression:
		return v.VisitChained(n, ctx)
	case *MissingFieldExpression:
		return v.VisitMissingField(n, ctx)
	case *MissingSearchParameterExpression:
		return v.VisitMissingSearchParameter(n, ctx)
	case *MultiaryExpression:
		return v.VisitMultiary(n, ctx)
	case *StringExpression:
		return v.VisitString(n, ctx)
	case *CompartmentSearchExpression:
		return v.VisitCompartment(n, ctx)
	default:
		return zero, &UnhandledVariantError{Type: typeName(e)}
	}
}

// CheckDepth returns a *DepthExceededError when e is taller than limit.
func CheckDepth(e Expression, limit int) error {
	if isNil(e) {
		return nil
	}
	if d := e.Depth(); d > limit {
		return &DepthExceededError{Depth: d, Limit: limit}
	}
	return nil
}

func typeName(e Expression) string {
	return fmt.Sprintf("%T", e)
}
