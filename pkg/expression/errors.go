package expression

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrUnhandledVariant  = errors.New("unhandled expression variant")
	ErrTraversal         = errors.New("expression traversal failed")
	ErrDepthExceeded     = errors.New("expression depth exceeded")
)

// InvalidExpressionError reports a constructor invariant violation.
type InvalidExpressionError struct {
	Kind   Kind
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid %s expression: %s", e.Kind, e.Reason)
}

func (e *InvalidExpressionError) Is(target error) bool { return target == ErrInvalidExpression }

func invalid(kind Kind, reason string) *InvalidExpressionError {
	return &InvalidExpressionError{Kind: kind, Reason: reason}
}

// UnhandledVariantError is returned when dispatch meets an Expression that is
// not one of the known variants. It indicates a programming defect.
type UnhandledVariantError struct {
	Type string
}

func (e *UnhandledVariantError) Error() string {
	return fmt.Sprintf("unhandled expression variant %s", e.Type)
}

func (e *UnhandledVariantError) Is(target error) bool { return target == ErrUnhandledVariant }

// TraversalError is returned by a visitor method that cannot process the node
// it was given, e.g. an operator the target dialect cannot express.
type TraversalError struct {
	Kind Kind
	// Node is the canonical form of the offending node.
	Node   string
	Reason string
	Err    error
}

// NewTraversalError builds a TraversalError identifying node.
func NewTraversalError(node Expression, reason string) *TraversalError {
	te := &TraversalError{Reason: reason}
	if node != nil {
		te.Kind = node.Kind()
		te.Node = node.String()
	}
	return te
}

// Wrap attaches an underlying cause and returns the receiver.
func (e *TraversalError) Wrap(err error) *TraversalError {
	e.Err = err
	return e
}

func (e *TraversalError) Error() string {
	msg := fmt.Sprintf("cannot process %s expression %s: %s", e.Kind, e.Node, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TraversalError) Is(target error) bool { return target == ErrTraversal }

func (e *TraversalError) Unwrap() error { return e.Err }

// DepthExceededError is returned instead of traversing a tree deeper than the
// allowed limit.
type DepthExceededError struct {
	Depth int
	Limit int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("expression depth %d exceeds maximum of %d", e.Depth, e.Limit)
}

func (e *DepthExceededError) Is(target error) bool { return target == ErrDepthExceeded }
