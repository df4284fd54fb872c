package expression

import (
	"strconv"
	"strings"
)

// Format renders e in its canonical s-expression form, for example
//
//	(And (Param "status" (StringEquals status "active")) (MissingField deceasedDate))
//
// Free-form identifiers and operands are quoted; field names are restricted
// by FieldName.Valid and are not. Two trees format identically iff they are
// structurally equal, so the output is usable as a cache key.
func Format(e Expression) (string, error) {
	return Accept[struct{}, string](e, printer{}, struct{}{})
}

func mustFormat(e Expression) string {
	s, err := Format(e)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}

var binaryOpNames = map[BinaryOperator]string{
	OpEqual:          "Equal",
	OpNotEqual:       "NotEqual",
	OpGreaterThan:    "GreaterThan",
	OpGreaterOrEqual: "GreaterThanOrEqual",
	OpLessThan:       "LessThan",
	OpLessOrEqual:    "LessThanOrEqual",
}

var stringModeNames = map[StringMode]string{
	StringExact:      "Equals",
	StringStartsWith: "StartsWith",
	StringContains:   "Contains",
}

// printer is the reducing visitor behind Format.
type printer struct{}

func (p printer) nested(e Expression) (string, error) {
	return Accept[struct{}, string](e, p, struct{}{})
}

func (p printer) VisitSearchParameter(e *SearchParameterExpression, _ struct{}) (string, error) {
	inner, err := p.nested(e.nested)
	if err != nil {
		return "", err
	}
	return "(Param " + strconv.Quote(e.param.Name) + " " + inner + ")", nil
}

func (printer) VisitBinary(e *BinaryExpression, _ struct{}) (string, error) {
	return "(Field" + binaryOpNames[e.op] + " " + string(e.field) + " " + e.value.String() + ")", nil
}

func (printer) VisitString(e *StringExpression, _ struct{}) (string, error) {
	var b strings.Builder
	b.WriteString("(String")
	b.WriteString(stringModeNames[e.mode])
	b.WriteByte(' ')
	b.WriteString(string(e.field))
	b.WriteByte(' ')
	b.WriteString(strconv.Quote(e.comparand))
	if e.ignoreCase {
		b.WriteString(" IgnoreCase")
	}
	b.WriteByte(')')
	return b.String(), nil
}

func (p printer) VisitChained(e *ChainedExpression, _ struct{}) (string, error) {
	inner, err := p.nested(e.nested)
	if err != nil {
		return "", err
	}
	prefix := "(Chain "
	if e.reversed {
		prefix = "(Reverse Chain "
	}
	targets := make([]string, len(e.targetKinds))
	for i, kind := range e.targetKinds {
		targets[i] = strconv.Quote(kind)
	}
	return prefix + strconv.Quote(e.sourceField) + ":" + strings.Join(targets, ",") + " " + inner + ")", nil
}

func (printer) VisitMissingField(e *MissingFieldExpression, _ struct{}) (string, error) {
	if e.missing {
		return "(MissingField " + string(e.field) + ")", nil
	}
	return "(NotMissingField " + string(e.field) + ")", nil
}

func (printer) VisitMissingSearchParameter(e *MissingSearchParameterExpression, _ struct{}) (string, error) {
	if e.missing {
		return "(MissingParam " + strconv.Quote(e.param.Name) + ")", nil
	}
	return "(NotMissingParam " + strconv.Quote(e.param.Name) + ")", nil
}

func (p printer) VisitMultiary(e *MultiaryExpression, _ struct{}) (string, error) {
	var b strings.Builder
	if e.op == OpAnd {
		b.WriteString("(And")
	} else {
		b.WriteString("(Or")
	}
	for _, child := range e.children {
		s, err := p.nested(child)
		if err != nil {
			return "", err
		}
		b.WriteByte(' ')
		b.WriteString(s)
	}
	b.WriteByte(')')
	return b.String(), nil
}

func (p printer) VisitCompartment(e *CompartmentSearchExpression, _ struct{}) (string, error) {
	head := "(Compartment " + strconv.Quote(e.compartmentType) + "/" + strconv.Quote(e.compartmentID)
	if e.nested == nil {
		return head + ")", nil
	}
	inner, err := p.nested(e.nested)
	if err != nil {
		return "", err
	}
	return head + " " + inner + ")", nil
}
