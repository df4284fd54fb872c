// Package sqlgen translates search expression trees into parameterized
// Postgres WHERE clauses over the resource tables.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/pkg/expression"
)

var sqlOperators = map[expression.BinaryOperator]string{
	expression.OpEqual:          "=",
	expression.OpNotEqual:       "!=",
	expression.OpGreaterThan:    ">",
	expression.OpGreaterOrEqual: ">=",
	expression.OpLessThan:       "<",
	expression.OpLessOrEqual:    "<=",
}

// Frame is the translation context: the table being filtered, the parameter
// scope if any, and the query collecting bound arguments.
type Frame struct {
	resourceType string
	table        *TableMapping
	param        *ParamMapping
	query        *Query
}

func (f *Frame) lookup(field expression.FieldName) (string, bool) {
	if f.param != nil {
		if col, ok := f.param.Fields[field]; ok {
			return col, true
		}
	}
	col, ok := f.table.Columns[field]
	return col, ok
}

func (f *Frame) column(node expression.Expression, field expression.FieldName) (string, error) {
	col, ok := f.lookup(field)
	if !ok {
		return "", expression.NewTraversalError(node,
			fmt.Sprintf("field %q is not mapped for %s", field, f.resourceType))
	}
	return col, nil
}

// Translator is the reducing visitor that renders a tree as SQL.
type Translator struct {
	schema Schema
}

var _ expression.Visitor[*Frame, string] = (*Translator)(nil)

// NewTranslator creates a Translator over schema.
func NewTranslator(schema Schema) *Translator {
	return &Translator{schema: schema}
}

// Translate renders e as the WHERE clause of a query over resourceType's
// table. The query selects fhir_id ordered by fhir_id.
func (t *Translator) Translate(resourceType string, e expression.Expression) (*Query, error) {
	tm, err := t.schema.Table(resourceType)
	if err != nil {
		return nil, expression.NewTraversalError(e, "unsupported resource type").Wrap(err)
	}
	q := NewQuery(tm.Table, FHIRIDColumn)
	q.OrderBy(FHIRIDColumn + " ASC")

	where, err := t.translate(e, &Frame{resourceType: resourceType, table: tm, query: q})
	if err != nil {
		return nil, err
	}
	q.Add(where)
	return q, nil
}

func (t *Translator) translate(e expression.Expression, f *Frame) (string, error) {
	return expression.Accept[*Frame, string](e, t, f)
}

// ---------------------------------------------------------------------------
// Leaves
// ---------------------------------------------------------------------------

func (t *Translator) VisitBinary(e *expression.BinaryExpression, f *Frame) (string, error) {
	col, err := f.column(e, e.Field())
	if err != nil {
		return "", err
	}
	v := e.Value()
	if v.Kind() == expression.ValueReference {
		return t.referenceClause(e, f, col, e.Operator(), v.Reference())
	}

	var arg interface{}
	switch v.Kind() {
	case expression.ValueString:
		arg = v.Str()
	case expression.ValueNumber, expression.ValueQuantity:
		arg = v.Number()
	case expression.ValueDate:
		arg = v.Date()
	default:
		return "", expression.NewTraversalError(e, fmt.Sprintf("unsupported value kind %s", v.Kind()))
	}
	var unitCol string
	if v.Kind() == expression.ValueQuantity && v.Unit() != "" {
		var ok bool
		if unitCol, ok = f.lookup(expression.FieldQuantityCode); !ok {
			return "", expression.NewTraversalError(e,
				fmt.Sprintf("quantity unit %q has no %s column on %s", v.Unit(), expression.FieldQuantityCode, f.resourceType))
		}
	}

	ph := f.query.Bind(arg)
	clause := fmt.Sprintf("%s %s %s", col, sqlOperators[e.Operator()], ph)
	if unitCol != "" {
		clause = fmt.Sprintf("(%s AND %s = %s)", clause, unitCol, f.query.Bind(v.Unit()))
	}
	return clause, nil
}

// referenceClause compares col against a referenced resource. UUID ids match
// the column directly; logical ids resolve through the target's fhir_id.
func (t *Translator) referenceClause(node expression.Expression, f *Frame, col string, op expression.BinaryOperator, ref expression.Reference) (string, error) {
	var sqlOp string
	switch op {
	case expression.OpEqual:
		sqlOp = "="
	case expression.OpNotEqual:
		sqlOp = "!="
	default:
		return "", expression.NewTraversalError(node, fmt.Sprintf("operator %q is not supported for references", op))
	}

	if id, err := uuid.Parse(ref.ID); err == nil {
		return fmt.Sprintf("%s %s %s", col, sqlOp, f.query.Bind(id)), nil
	}
	if ref.ResourceType == "" {
		return "", expression.NewTraversalError(node,
			fmt.Sprintf("reference %q needs a resource type to resolve a logical id", ref.ID))
	}
	target, err := t.schema.Table(ref.ResourceType)
	if err != nil {
		return "", expression.NewTraversalError(node, "unsupported reference target").Wrap(err)
	}
	return fmt.Sprintf("%s %s (SELECT %s FROM %s WHERE %s = %s LIMIT 1)",
		col, sqlOp, IDColumn, target.Table, FHIRIDColumn, f.query.Bind(ref.ID)), nil
}

// escapeLike escapes LIKE wildcards so the comparand matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (t *Translator) VisitString(e *expression.StringExpression, f *Frame) (string, error) {
	col, err := f.column(e, e.Field())
	if err != nil {
		return "", err
	}
	like := "LIKE"
	if e.IgnoreCase() {
		like = "ILIKE"
	}

	switch e.Mode() {
	case expression.StringExact:
		if !e.IgnoreCase() {
			return fmt.Sprintf("%s = %s", col, f.query.Bind(e.Comparand())), nil
		}
		return fmt.Sprintf("%s ILIKE %s", col, f.query.Bind(escapeLike(e.Comparand()))), nil
	case expression.StringStartsWith:
		return fmt.Sprintf("%s %s %s", col, like, f.query.Bind(escapeLike(e.Comparand())+"%")), nil
	case expression.StringContains:
		return fmt.Sprintf("%s %s %s", col, like, f.query.Bind("%"+escapeLike(e.Comparand())+"%")), nil
	}
	return "", expression.NewTraversalError(e, fmt.Sprintf("unsupported match mode %q", e.Mode()))
}

// missingClause generates IS NULL when missing is true, IS NOT NULL otherwise.
func missingClause(column string, missing bool) string {
	if missing {
		return column + " IS NULL"
	}
	return column + " IS NOT NULL"
}

func (t *Translator) VisitMissingField(e *expression.MissingFieldExpression, f *Frame) (string, error) {
	col, err := f.column(e, e.Field())
	if err != nil {
		return "", err
	}
	return missingClause(col, e.IsMissing()), nil
}

func (t *Translator) VisitMissingSearchParameter(e *expression.MissingSearchParameterExpression, f *Frame) (string, error) {
	pm, ok := f.table.Params[e.Name()]
	if !ok {
		return "", expression.NewTraversalError(e,
			fmt.Sprintf("search parameter %q is not mapped for %s", e.Name(), f.resourceType))
	}
	return missingClause(pm.Column, e.IsMissing()), nil
}

// ---------------------------------------------------------------------------
// Composites
// ---------------------------------------------------------------------------

func (t *Translator) VisitSearchParameter(e *expression.SearchParameterExpression, f *Frame) (string, error) {
	pm, ok := f.table.Params[e.Name()]
	if !ok {
		return "", expression.NewTraversalError(e,
			fmt.Sprintf("search parameter %q is not mapped for %s", e.Name(), f.resourceType))
	}
	return t.translate(e.Nested(), &Frame{resourceType: f.resourceType, table: f.table, param: &pm, query: f.query})
}

func (t *Translator) VisitMultiary(e *expression.MultiaryExpression, f *Frame) (string, error) {
	parts := make([]string, 0, e.Len())
	for i := 0; i < e.Len(); i++ {
		s, err := t.translate(e.Child(i), f)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, " "+string(e.Operator())+" ") + ")", nil
}

func (t *Translator) VisitChained(e *expression.ChainedExpression, f *Frame) (string, error) {
	var parts []string
	for _, kind := range e.TargetKinds() {
		target, err := t.schema.Table(kind)
		if err != nil {
			return "", expression.NewTraversalError(e, "unsupported chain target").Wrap(err)
		}
		inner, err := t.translate(e.Nested(), &Frame{resourceType: kind, table: target, query: f.query})
		if err != nil {
			return "", err
		}

		if e.Reversed() {
			refCol, ok := target.References[e.SourceField()]
			if !ok {
				return "", expression.NewTraversalError(e,
					fmt.Sprintf("reference %q is not mapped for %s", e.SourceField(), kind))
			}
			parts = append(parts, fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)", IDColumn, refCol, target.Table, inner))
			continue
		}

		refCol, ok := f.table.References[e.SourceField()]
		if !ok {
			return "", expression.NewTraversalError(e,
				fmt.Sprintf("reference %q is not mapped for %s", e.SourceField(), f.resourceType))
		}
		parts = append(parts, fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)", refCol, IDColumn, target.Table, inner))
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (t *Translator) VisitCompartment(e *expression.CompartmentSearchExpression, f *Frame) (string, error) {
	col := IDColumn
	if f.resourceType != e.CompartmentType() {
		var ok bool
		col, ok = f.table.Compartments[e.CompartmentType()]
		if !ok {
			return "", expression.NewTraversalError(e,
				fmt.Sprintf("%s is not in the %s compartment", f.resourceType, e.CompartmentType()))
		}
	}
	clause, err := t.referenceClause(e, f, col, expression.OpEqual,
		expression.Reference{ResourceType: e.CompartmentType(), ID: e.CompartmentID()})
	if err != nil {
		return "", err
	}
	if e.Nested() == nil {
		return clause, nil
	}
	inner, err := t.translate(e.Nested(), f)
	if err != nil {
		return "", err
	}
	return "(" + clause + " AND " + inner + ")", nil
}
