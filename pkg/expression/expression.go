package expression

import (
	"fmt"
	"strings"
)

// Expression is a node of a search expression tree. The set of
// implementations is closed: only the variants in this package satisfy it.
type Expression interface {
	// Kind identifies the variant.
	Kind() Kind
	// Depth is the height of the subtree rooted at this node; leaves are 1.
	Depth() int
	// String returns the canonical printed form.
	String() string

	sealed()
}

// isNil reports whether e is nil or a nil pointer to one of the variants.
func isNil(e Expression) bool {
	switch v := e.(type) {
	case nil:
		return true
	case *SearchParameterExpression:
		return v == nil
	case *BinaryExpression:
		return v == nil
	case *StringExpression:
		return v == nil
	case *ChainedExpression:
		return v == nil
	case *MissingFieldExpression:
		return v == nil
	case *MissingSearchParameterExpression:
		return v == nil
	case *MultiaryExpression:
		return v == nil
	case *CompartmentSearchExpression:
		return v == nil
	}
	return false
}

// BinaryOperator is the comparison applied by a BinaryExpression.
type BinaryOperator string

const (
	OpEqual          BinaryOperator = "eq"
	OpNotEqual       BinaryOperator = "ne"
	OpGreaterThan    BinaryOperator = "gt"
	OpGreaterOrEqual BinaryOperator = "ge"
	OpLessThan       BinaryOperator = "lt"
	OpLessOrEqual    BinaryOperator = "le"
)

// Valid reports whether op is one of the enumerated operators.
func (op BinaryOperator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return true
	}
	return false
}

// Ordering reports whether op requires an orderable operand.
func (op BinaryOperator) Ordering() bool {
	switch op {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return true
	}
	return false
}

// StringMode is the match mode of a StringExpression.
type StringMode string

const (
	StringExact      StringMode = "exact"
	StringStartsWith StringMode = "starts-with"
	StringContains   StringMode = "contains"
)

// Valid reports whether m is one of the enumerated modes.
func (m StringMode) Valid() bool {
	switch m {
	case StringExact, StringStartsWith, StringContains:
		return true
	}
	return false
}

// MultiaryOperator is the logical connective of a MultiaryExpression.
type MultiaryOperator string

const (
	OpAnd MultiaryOperator = "AND"
	OpOr  MultiaryOperator = "OR"
)

// Valid reports whether op is AND or OR.
func (op MultiaryOperator) Valid() bool {
	return op == OpAnd || op == OpOr
}

// ---------------------------------------------------------------------------
// SearchParameterExpression
// ---------------------------------------------------------------------------

// SearchParameterExpression applies a nested predicate to the values
// extracted for one declared search parameter.
type SearchParameterExpression struct {
	param  SearchParameterInfo
	nested Expression
	depth  int
}

// SearchParameter builds a SearchParameterExpression.
func SearchParameter(param *SearchParameterInfo, nested Expression) (*SearchParameterExpression, error) {
	if param == nil || param.Name == "" {
		return nil, invalid(KindSearchParameter, "search parameter is required")
	}
	if isNil(nested) {
		return nil, invalid(KindSearchParameter, "nested expression is required")
	}
	return &SearchParameterExpression{param: param.clone(), nested: nested, depth: nested.Depth() + 1}, nil
}

// Parameter returns a copy of the declared parameter.
func (e *SearchParameterExpression) Parameter() SearchParameterInfo { return e.param.clone() }

// Name is shorthand for Parameter().Name.
func (e *SearchParameterExpression) Name() string { return e.param.Name }
func (e *SearchParameterExpression) Nested() Expression { return e.nested }
func (e *SearchParameterExpression) Kind() Kind { return KindSearchParameter }
func (e *SearchParameterExpression) Depth() int { return e.depth }
func (e *SearchParameterExpression) String() string { return mustFormat(e) }
func (*SearchParameterExpression) sealed() {}

// ---------------------------------------------------------------------------
// BinaryExpression
// ---------------------------------------------------------------------------

// BinaryExpression compares a scalar field against an operand.
type BinaryExpression struct {
	field FieldName
	op    BinaryOperator
	value Value
}

// Binary builds a BinaryExpression. Ordering operators are only accepted for
// orderable value kinds.
func Binary(field FieldName, op BinaryOperator, value Value) (*BinaryExpression, error) {
	if !field.Valid() {
		return nil, invalid(KindBinary, fmt.Sprintf("invalid field identifier %q", field))
	}
	if !op.Valid() {
		return nil, invalid(KindBinary, fmt.Sprintf("unknown operator %q", op))
	}
	if !value.Kind().Valid() {
		return nil, invalid(KindBinary, "operand value kind is required")
	}
	if op.Ordering() && !value.Kind().Orderable() {
		return nil, invalid(KindBinary,
			fmt.Sprintf("operator %q is not supported for %s values", op, value.Kind()))
	}
	return &BinaryExpression{field: field, op: op, value: value}, nil
}

func (e *BinaryExpression) Field() FieldName { return e.field }
func (e *BinaryExpression) Operator() BinaryOperator { return e.op }
func (e *BinaryExpression) Value() Value { return e.value }
func (e *BinaryExpression) Kind() Kind { return KindBinary }
func (e *BinaryExpression) Depth() int { return 1 }
func (e *BinaryExpression) String() string { return mustFormat(e) }
func (*BinaryExpression) sealed() {}

// ---------------------------------------------------------------------------
// StringExpression
// ---------------------------------------------------------------------------

// StringExpression matches a string field against a comparand.
type StringExpression struct {
	field      FieldName
	mode       StringMode
	comparand  string
	ignoreCase bool
}

// String builds a StringExpression.
func String(field FieldName, mode StringMode, comparand string, ignoreCase bool) (*StringExpression, error) {
	if !field.Valid() {
		return nil, invalid(KindString, fmt.Sprintf("invalid field identifier %q", field))
	}
	if !mode.Valid() {
		return nil, invalid(KindString, fmt.Sprintf("unknown match mode %q", mode))
	}
	return &StringExpression{field: field, mode: mode, comparand: comparand, ignoreCase: ignoreCase}, nil
}

func (e *StringExpression) Field() FieldName { return e.field }
func (e *StringExpression) Mode() StringMode { return e.mode }
func (e *StringExpression) Comparand() string { return e.comparand }
func (e *StringExpression) IgnoreCase() bool { return e.ignoreCase }
func (e *StringExpression) Kind() Kind { return KindString }
func (e *StringExpression) Depth() int { return 1 }
func (e *StringExpression) String() string { return mustFormat(e) }
func (*StringExpression) sealed() {}

// ---------------------------------------------------------------------------
// ChainedExpression
// ---------------------------------------------------------------------------

// ChainedExpression applies a nested predicate to the resources reached by
// following a reference field, or, when reversed, to the resources whose
// reference field points back at the current one.
type ChainedExpression struct {
	sourceField string
	targetKinds []string
	nested      Expression
	reversed    bool
	depth       int
}

// Chained builds a ChainedExpression. The nested expression must be valid for
// every listed target kind.
func Chained(sourceField string, targetKinds []string, nested Expression, reversed bool) (*ChainedExpression, error) {
	if sourceField == "" {
		return nil, invalid(KindChained, "source reference field is required")
	}
	if len(targetKinds) == 0 {
		return nil, invalid(KindChained, "at least one target resource type is required")
	}
	seen := make(map[string]bool, len(targetKinds))
	for _, kind := range targetKinds {
		if kind == "" {
			return nil, invalid(KindChained, "target resource type must not be empty")
		}
		if seen[kind] {
			return nil, invalid(KindChained, fmt.Sprintf("duplicate target resource type %q", kind))
		}
		seen[kind] = true
	}
	if isNil(nested) {
		return nil, invalid(KindChained, "nested expression is required")
	}
	if err := checkTargets(nested, targetKinds); err != nil {
		return nil, err
	}
	return &ChainedExpression{
		sourceField: sourceField,
		targetKinds: append([]string(nil), targetKinds...),
		nested:      nested,
		reversed:    reversed,
		depth:       nested.Depth() + 1,
	}, nil
}

// checkTargets verifies that every parameter referenced in the scope of a
// chain's target is declared on each target kind. Nested chains start a new
// scope and are not inspected.
func checkTargets(nested Expression, targetKinds []string) error {
	var err error
	Walk(nested, func(e Expression) bool {
		if err != nil {
			return false
		}
		var param SearchParameterInfo
		switch n := e.(type) {
		case *ChainedExpression:
			return false
		case *SearchParameterExpression:
			param = n.param
		case *MissingSearchParameterExpression:
			param = n.param
		default:
			return true
		}
		for _, kind := range targetKinds {
			if !param.AppliesTo(kind) {
				err = invalid(KindChained, fmt.Sprintf(
					"search parameter %q is not declared on target resource type %q", param.Name, kind))
				return false
			}
		}
		return true
	})
	return err
}

func (e *ChainedExpression) SourceField() string { return e.sourceField }

// TargetKinds returns a copy of the candidate target resource types.
func (e *ChainedExpression) TargetKinds() []string {
	return append([]string(nil), e.targetKinds...)
}
func (e *ChainedExpression) Nested() Expression { return e.nested }
func (e *ChainedExpression) Reversed() bool { return e.reversed }
func (e *ChainedExpression) Kind() Kind { return KindChained }
func (e *ChainedExpression) Depth() int { return e.depth }
func (e *ChainedExpression) String() string { return mustFormat(e) }
func (*ChainedExpression) sealed() {}

// ---------------------------------------------------------------------------
// MissingFieldExpression
// ---------------------------------------------------------------------------

// MissingFieldExpression tests the presence of a field. When missing is true
// the field must have no value; when false it must have at least one.
type MissingFieldExpression struct {
	field   FieldName
	missing bool
}

// MissingField builds a MissingFieldExpression.
func MissingField(field FieldName, missing bool) (*MissingFieldExpression, error) {
	if !field.Valid() {
		return nil, invalid(KindMissingField, fmt.Sprintf("invalid field identifier %q", field))
	}
	return &MissingFieldExpression{field: field, missing: missing}, nil
}

func (e *MissingFieldExpression) Field() FieldName { return e.field }
func (e *MissingFieldExpression) IsMissing() bool { return e.missing }
func (e *MissingFieldExpression) Kind() Kind { return KindMissingField }
func (e *MissingFieldExpression) Depth() int { return 1 }
func (e *MissingFieldExpression) String() string { return mustFormat(e) }
func (*MissingFieldExpression) sealed() {}

// ---------------------------------------------------------------------------
// MissingSearchParameterExpression
// ---------------------------------------------------------------------------

// MissingSearchParameterExpression tests whether a declared search parameter
// has any extracted value.
type MissingSearchParameterExpression struct {
	param   SearchParameterInfo
	missing bool
}

// MissingSearchParameter builds a MissingSearchParameterExpression.
func MissingSearchParameter(param *SearchParameterInfo, missing bool) (*MissingSearchParameterExpression, error) {
	if param == nil || param.Name == "" {
		return nil, invalid(KindMissingSearchParameter, "search parameter is required")
	}
	return &MissingSearchParameterExpression{param: param.clone(), missing: missing}, nil
}

func (e *MissingSearchParameterExpression) Parameter() SearchParameterInfo { return e.param.clone() }
func (e *MissingSearchParameterExpression) Name() string { return e.param.Name }
func (e *MissingSearchParameterExpression) IsMissing() bool { return e.missing }
func (e *MissingSearchParameterExpression) Kind() Kind { return KindMissingSearchParameter }
func (e *MissingSearchParameterExpression) Depth() int { return 1 }
func (e *MissingSearchParameterExpression) String() string { return mustFormat(e) }
func (*MissingSearchParameterExpression) sealed() {}

// ---------------------------------------------------------------------------
// MultiaryExpression
// ---------------------------------------------------------------------------

// MultiaryExpression combines two or more children with AND or OR. Child
// order carries no meaning for evaluation but is kept for deterministic
// printing and translation.
type MultiaryExpression struct {
	op       MultiaryOperator
	children []Expression
	depth    int
}

// Multiary builds a MultiaryExpression.
func Multiary(op MultiaryOperator, children ...Expression) (*MultiaryExpression, error) {
	if !op.Valid() {
		return nil, invalid(KindMultiary, fmt.Sprintf("unknown logical operator %q", op))
	}
	if len(children) < 2 {
		return nil, invalid(KindMultiary, fmt.Sprintf("at least two children are required, got %d", len(children)))
	}
	depth := 0
	for i, child := range children {
		if isNil(child) {
			return nil, invalid(KindMultiary, fmt.Sprintf("child %d is nil", i))
		}
		if d := child.Depth(); d > depth {
			depth = d
		}
	}
	return &MultiaryExpression{
		op:       op,
		children: append([]Expression(nil), children...),
		depth:    depth + 1,
	}, nil
}

// And is shorthand for Multiary(OpAnd, children...).
func And(children ...Expression) (*MultiaryExpression, error) {
	return Multiary(OpAnd, children...)
}

// Or is shorthand for Multiary(OpOr, children...).
func Or(children ...Expression) (*MultiaryExpression, error) {
	return Multiary(OpOr, children...)
}

func (e *MultiaryExpression) Operator() MultiaryOperator { return e.op }

// Children returns a copy of the ordered child list.
func (e *MultiaryExpression) Children() []Expression {
	return append([]Expression(nil), e.children...)
}
func (e *MultiaryExpression) Len() int { return len(e.children) }
func (e *MultiaryExpression) Child(i int) Expression { return e.children[i] }
func (e *MultiaryExpression) Kind() Kind { return KindMultiary }
func (e *MultiaryExpression) Depth() int { return e.depth }
func (e *MultiaryExpression) String() string { return mustFormat(e) }
func (*MultiaryExpression) sealed() {}

// ---------------------------------------------------------------------------
// CompartmentSearchExpression
// ---------------------------------------------------------------------------

// CompartmentSearchExpression restricts matches to members of one compartment
// instance, optionally further filtered by a nested expression.
type CompartmentSearchExpression struct {
	compartmentType string
	compartmentID   string
	nested          Expression
	depth           int
}

// Compartment builds a CompartmentSearchExpression. nested may be nil.
func Compartment(compartmentType, compartmentID string, nested Expression) (*CompartmentSearchExpression, error) {
	if strings.TrimSpace(compartmentType) == "" {
		return nil, invalid(KindCompartment, "compartment type is required")
	}
	if strings.TrimSpace(compartmentID) == "" {
		return nil, invalid(KindCompartment, "compartment id is required")
	}
	depth := 1
	if nested != nil {
		if isNil(nested) {
			return nil, invalid(KindCompartment, "nested expression is a nil pointer")
		}
		depth = nested.Depth() + 1
	}
	return &CompartmentSearchExpression{
		compartmentType: compartmentType,
		compartmentID:   compartmentID,
		nested:          nested,
		depth:           depth,
	}, nil
}

func (e *CompartmentSearchExpression) CompartmentType() string { return e.compartmentType }
func (e *CompartmentSearchExpression) CompartmentID() string { return e.compartmentID }

// Nested returns the additional restriction, or nil.
func (e *CompartmentSearchExpression) Nested() Expression { return e.nested }
func (e *CompartmentSearchExpression) Kind() Kind { return KindCompartment }
func (e *CompartmentSearchExpression) Depth() int { return e.depth }
func (e *CompartmentSearchExpression) String() string { return mustFormat(e) }
func (*CompartmentSearchExpression) sealed() {}
