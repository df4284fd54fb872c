// Package memory evaluates search expression trees against in-memory
// resources. Its results define what a tree means; other backends are tested
// for agreement with it.
package memory

import (
	"strings"

	"github.com/ehr/fhirsearch/pkg/expression"
)

// Frame is the evaluation context handed down the tree: the resource being
// tested and, inside a search parameter, the extracted value scope that leaf
// predicates read from.
type Frame struct {
	store    Store
	resource *Resource
	scope    Scope
}

// values returns the values of field in the current scope.
func (f *Frame) values(field expression.FieldName) []expression.Value {
	if f.scope != nil {
		return f.scope[field]
	}
	return f.resource.Fields[field]
}

func (f *Frame) with(r *Resource) *Frame {
	return &Frame{store: f.store, resource: r}
}

// Evaluator is the reducing visitor that decides whether a resource matches.
type Evaluator struct{}

// Matches reports whether res satisfies e. Referenced resources needed by
// chained expressions are resolved through store, which may be nil when e
// contains no chains.
func Matches(store Store, res *Resource, e expression.Expression) (bool, error) {
	return expression.Accept[*Frame, bool](e, Evaluator{}, &Frame{store: store, resource: res})
}

// Filter returns the resources that satisfy e, preserving input order.
func Filter(store Store, resources []*Resource, e expression.Expression) ([]*Resource, error) {
	var out []*Resource
	for _, r := range resources {
		ok, err := Matches(store, r, e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v Evaluator) eval(e expression.Expression, f *Frame) (bool, error) {
	return expression.Accept[*Frame, bool](e, v, f)
}

// ---------------------------------------------------------------------------
// Leaves
// ---------------------------------------------------------------------------

func (Evaluator) VisitBinary(e *expression.BinaryExpression, f *Frame) (bool, error) {
	for _, stored := range f.values(e.Field()) {
		if compare(stored, e.Operator(), e.Value()) {
			return true, nil
		}
	}
	return false, nil
}

// compare applies op to a stored value and the operand. Values of a different
// kind never match.
func compare(stored expression.Value, op expression.BinaryOperator, operand expression.Value) bool {
	if stored.Kind() != operand.Kind() {
		return false
	}
	if operand.Kind() == expression.ValueReference {
		eq := referenceEqual(stored.Reference(), operand.Reference())
		return (op == expression.OpEqual && eq) || (op == expression.OpNotEqual && !eq)
	}
	if !operand.Kind().Orderable() {
		eq := stored.Equal(operand)
		return (op == expression.OpEqual && eq) || (op == expression.OpNotEqual && !eq)
	}

	c, ok := stored.Compare(operand)
	if !ok {
		return false
	}
	switch op {
	case expression.OpEqual:
		return c == 0
	case expression.OpNotEqual:
		return c != 0
	case expression.OpGreaterThan:
		return c > 0
	case expression.OpGreaterOrEqual:
		return c >= 0
	case expression.OpLessThan:
		return c < 0
	case expression.OpLessOrEqual:
		return c <= 0
	}
	return false
}

// referenceEqual compares references; an operand without a resource type
// matches on id alone.
func referenceEqual(stored, operand expression.Reference) bool {
	if stored.ID != operand.ID {
		return false
	}
	return operand.ResourceType == "" || stored.ResourceType == operand.ResourceType
}

func (Evaluator) VisitString(e *expression.StringExpression, f *Frame) (bool, error) {
	want := e.Comparand()
	if e.IgnoreCase() {
		want = strings.ToLower(want)
	}
	for _, stored := range f.values(e.Field()) {
		if stored.Kind() != expression.ValueString {
			continue
		}
		got := stored.Str()
		if e.IgnoreCase() {
			got = strings.ToLower(got)
		}
		var ok bool
		switch e.Mode() {
		case expression.StringExact:
			ok = got == want
		case expression.StringStartsWith:
			ok = strings.HasPrefix(got, want)
		case expression.StringContains:
			ok = strings.Contains(got, want)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (Evaluator) VisitMissingField(e *expression.MissingFieldExpression, f *Frame) (bool, error) {
	absent := len(f.values(e.Field())) == 0
	return absent == e.IsMissing(), nil
}

func (Evaluator) VisitMissingSearchParameter(e *expression.MissingSearchParameterExpression, f *Frame) (bool, error) {
	absent := len(f.resource.Params[e.Name()]) == 0
	return absent == e.IsMissing(), nil
}

// ---------------------------------------------------------------------------
// Composites
// ---------------------------------------------------------------------------

func (v Evaluator) VisitSearchParameter(e *expression.SearchParameterExpression, f *Frame) (bool, error) {
	for _, scope := range f.resource.Params[e.Name()] {
		ok, err := v.eval(e.Nested(), &Frame{store: f.store, resource: f.resource, scope: scope})
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (v Evaluator) VisitMultiary(e *expression.MultiaryExpression, f *Frame) (bool, error) {
	and := e.Operator() == expression.OpAnd
	for i := 0; i < e.Len(); i++ {
		ok, err := v.eval(e.Child(i), f)
		if err != nil {
			return false, err
		}
		if and && !ok {
			return false, nil
		}
		if !and && ok {
			return true, nil
		}
	}
	return and, nil
}

func (v Evaluator) VisitChained(e *expression.ChainedExpression, f *Frame) (bool, error) {
	if f.store == nil {
		return false, expression.NewTraversalError(e, "no resource store available for chained search")
	}
	if e.Reversed() {
		return v.reverseChain(e, f)
	}

	targets := e.TargetKinds()
	for _, ref := range f.resource.references(e.SourceField()) {
		for _, kind := range targets {
			if ref.ResourceType != "" && ref.ResourceType != kind {
				continue
			}
			target, found := f.store.Get(kind, ref.ID)
			if !found {
				continue
			}
			ok, err := v.eval(e.Nested(), f.with(target))
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// reverseChain matches when some resource of a target kind references the
// current resource through the source field and satisfies the nested tree.
func (v Evaluator) reverseChain(e *expression.ChainedExpression, f *Frame) (bool, error) {
	self := f.resource.Reference()
	for _, kind := range e.TargetKinds() {
		for _, referrer := range f.store.ReferencedBy(kind, e.SourceField(), self) {
			ok, err := v.eval(e.Nested(), f.with(referrer))
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (v Evaluator) VisitCompartment(e *expression.CompartmentSearchExpression, f *Frame) (bool, error) {
	if !f.resource.InCompartment(e.CompartmentType(), e.CompartmentID()) {
		return false, nil
	}
	if e.Nested() == nil {
		return true, nil
	}
	return v.eval(e.Nested(), f)
}
