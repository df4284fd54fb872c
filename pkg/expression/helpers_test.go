package expression

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// Test builders that fail the test instead of returning an error.

func mustParam(t *testing.T, name string) *SearchParameterInfo {
	t.Helper()
	p, err := DefaultParameterRegistry().Lookup("", name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return p
}

func mustSP(t *testing.T, name string, nested Expression) Expression {
	t.Helper()
	e, err := SearchParameter(mustParam(t, name), nested)
	if err != nil {
		t.Fatalf("SearchParameter: %v", err)
	}
	return e
}

func mustBinary(t *testing.T, field FieldName, op BinaryOperator, v Value) Expression {
	t.Helper()
	e, err := Binary(field, op, v)
	if err != nil {
		t.Fatalf("Binary: %v", err)
	}
	return e
}

func mustString(t *testing.T, field FieldName, mode StringMode, s string, ignoreCase bool) Expression {
	t.Helper()
	e, err := String(field, mode, s, ignoreCase)
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	return e
}

func mustChain(t *testing.T, source string, targets []string, nested Expression, reversed bool) Expression {
	t.Helper()
	e, err := Chained(source, targets, nested, reversed)
	if err != nil {
		t.Fatalf("Chained: %v", err)
	}
	return e
}

func mustMissing(t *testing.T, field FieldName, missing bool) Expression {
	t.Helper()
	e, err := MissingField(field, missing)
	if err != nil {
		t.Fatalf("MissingField: %v", err)
	}
	return e
}

func mustMissingParam(t *testing.T, name string, missing bool) Expression {
	t.Helper()
	e, err := MissingSearchParameter(mustParam(t, name), missing)
	if err != nil {
		t.Fatalf("MissingSearchParameter: %v", err)
	}
	return e
}

func mustAnd(t *testing.T, children ...Expression) Expression {
	t.Helper()
	e, err := And(children...)
	if err != nil {
		t.Fatalf("And: %v", err)
	}
	return e
}

func mustOr(t *testing.T, children ...Expression) Expression {
	t.Helper()
	e, err := Or(children...)
	if err != nil {
		t.Fatalf("Or: %v", err)
	}
	return e
}

func mustCompartment(t *testing.T, ctype, id string, nested Expression) Expression {
	t.Helper()
	e, err := Compartment(ctype, id, nested)
	if err != nil {
		t.Fatalf("Compartment: %v", err)
	}
	return e
}

// sampleTrees returns one tree per variant plus a few composites.
func sampleTrees(t *testing.T) map[string]Expression {
	t.Helper()
	status := mustSP(t, "status", mustString(t, "status", StringExact, "active", false))
	deceased := mustMissing(t, "deceasedDate", true)
	family := mustSP(t, "family", mustString(t, "family", StringStartsWith, "Smi", true))
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	return map[string]Expression{
		"search_parameter":   status,
		"binary_number":      mustBinary(t, FieldNumber, OpGreaterThan, NumberValue(decimal.RequireFromString("5.4"))),
		"binary_date":        mustBinary(t, FieldDateTimeStart, OpLessOrEqual, DateValue(when)),
		"binary_quantity":    mustBinary(t, FieldQuantity, OpGreaterOrEqual, QuantityValue(decimal.RequireFromString("7.25"), "mg")),
		"binary_reference":   mustBinary(t, FieldReference, OpEqual, ReferenceValue(Reference{ResourceType: "Patient", ID: "123"})),
		"string_contains":    mustString(t, FieldString, StringContains, `say "hi"`, false),
		"chained":            mustChain(t, "subject", []string{"Patient"}, family, false),
		"reverse_chained":    mustChain(t, "patient", []string{"Observation"}, mustSP(t, "status", mustString(t, "status", StringExact, "final", false)), true),
		"missing_field":      deceased,
		"not_missing":        mustMissing(t, "deceasedDate", false),
		"missing_param":      mustMissingParam(t, "birthdate", true),
		"not_missing_param":  mustMissingParam(t, "birthdate", false),
		"and":                mustAnd(t, status, deceased),
		"or":                 mustOr(t, status, family),
		"compartment":        mustCompartment(t, "Patient", "123", nil),
		"compartment_nested": mustCompartment(t, "Patient", "123", status),
	}
}
