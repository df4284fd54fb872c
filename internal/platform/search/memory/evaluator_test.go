package memory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/fhirsearch/pkg/expression"
)

var registry = expression.DefaultParameterRegistry()

func param(t *testing.T, name string) *expression.SearchParameterInfo {
	t.Helper()
	p, err := registry.Lookup("", name)
	require.NoError(t, err)
	return p
}

func str(v string) expression.Value { return expression.StringValue(v) }

func ref(rt, id string) expression.Value {
	return expression.ReferenceValue(expression.Reference{ResourceType: rt, ID: id})
}

func patient(id, name string) *Resource {
	return &Resource{
		Type:   "Patient",
		ID:     id,
		Fields: Scope{"name": {str(name)}},
	}
}

func observation(id, patientID string) *Resource {
	return &Resource{
		Type:   "Observation",
		ID:     id,
		Fields: Scope{"patient": {ref("Patient", patientID)}},
		Params: map[string][]Scope{
			"patient": {{expression.FieldReference: {ref("Patient", patientID)}}},
		},
		Compartments: map[string][]string{"Patient": {patientID}},
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestMatches_ActiveAndNotDeceased(t *testing.T) {
	leaf, err := expression.String("status", expression.StringExact, "active", false)
	require.NoError(t, err)
	status, err := expression.SearchParameter(param(t, "status"), leaf)
	require.NoError(t, err)
	deceased, err := expression.MissingField("deceasedDate", true)
	require.NoError(t, err)
	tree, err := expression.And(status, deceased)
	require.NoError(t, err)

	alive := &Resource{
		Type:   "Observation",
		ID:     "alive",
		Params: map[string][]Scope{"status": {{"status": {str("active")}}}},
	}
	dead := &Resource{
		Type:   "Observation",
		ID:     "dead",
		Fields: Scope{"deceasedDate": {expression.DateValue(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))}},
		Params: map[string][]Scope{"status": {{"status": {str("active")}}}},
	}

	ok, err := Matches(nil, alive, tree)
	require.NoError(t, err)
	assert.True(t, ok, "active resource without deceasedDate should match")

	ok, err = Matches(nil, dead, tree)
	require.NoError(t, err)
	assert.False(t, ok, "resource with deceasedDate should not match")
}

func TestMatches_ChainToPatientName(t *testing.T) {
	leaf, err := expression.String("name", expression.StringContains, "Smith", false)
	require.NoError(t, err)
	chain, err := expression.Chained("patient", []string{"Patient"}, leaf, false)
	require.NoError(t, err)

	store := NewMapStore(
		patient("p1", "John Smith"),
		patient("p2", "John Doe"),
		observation("o1", "p1"),
		observation("o2", "p2"),
	)
	o1, _ := store.Get("Observation", "o1")
	o2, _ := store.Get("Observation", "o2")

	ok, err := Matches(store, o1, chain)
	require.NoError(t, err)
	assert.True(t, ok, "observation of John Smith should match")

	ok, err = Matches(store, o2, chain)
	require.NoError(t, err)
	assert.False(t, ok, "observation of John Doe should not match")
}

func TestMatches_ReverseChain(t *testing.T) {
	missingPatient, err := expression.MissingField("patient", false)
	require.NoError(t, err)
	rev, err := expression.Chained("patient", []string{"Observation"}, missingPatient, true)
	require.NoError(t, err)

	store := NewMapStore(patient("p1", "John Smith"), patient("p2", "John Doe"), observation("o1", "p1"))
	p1, _ := store.Get("Patient", "p1")
	p2, _ := store.Get("Patient", "p2")

	ok, err := Matches(store, p1, rev)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(store, p2, rev)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatches_ChainWithoutStoreFails(t *testing.T) {
	leaf, err := expression.MissingField("name", false)
	require.NoError(t, err)
	chain, err := expression.Chained("patient", []string{"Patient"}, leaf, false)
	require.NoError(t, err)

	_, err = Matches(nil, observation("o1", "p1"), chain)
	assert.ErrorIs(t, err, expression.ErrTraversal)
}

// ---------------------------------------------------------------------------
// Leaf semantics
// ---------------------------------------------------------------------------

func TestMatches_Binary(t *testing.T) {
	res := &Resource{
		Type: "Observation",
		ID:   "o1",
		Fields: Scope{
			expression.FieldQuantity: {
				expression.QuantityValue(decimal.RequireFromString("5.4"), "mg"),
				expression.QuantityValue(decimal.RequireFromString("9"), "mg"),
			},
			expression.FieldReference: {ref("Patient", "p1")},
			"code":                    {str("1234-5")},
		},
	}

	tests := []struct {
		name  string
		field expression.FieldName
		op    expression.BinaryOperator
		value expression.Value
		want  bool
	}{
		{"any value greater", expression.FieldQuantity, expression.OpGreaterThan, expression.QuantityValue(decimal.NewFromInt(8), "mg"), true},
		{"no value greater", expression.FieldQuantity, expression.OpGreaterThan, expression.QuantityValue(decimal.NewFromInt(9), "mg"), false},
		{"equal numerically", expression.FieldQuantity, expression.OpEqual, expression.QuantityValue(decimal.RequireFromString("5.40"), ""), true},
		{"unit mismatch", expression.FieldQuantity, expression.OpLessThan, expression.QuantityValue(decimal.NewFromInt(100), "kg"), false},
		{"kind mismatch", expression.FieldQuantity, expression.OpEqual, str("5.4"), false},
		{"missing field", expression.FieldNumber, expression.OpNotEqual, expression.NumberValue(decimal.NewFromInt(1)), false},
		{"reference by id", expression.FieldReference, expression.OpEqual, expression.ReferenceValue(expression.Reference{ID: "p1"}), true},
		{"reference other type", expression.FieldReference, expression.OpEqual, ref("Group", "p1"), false},
		{"reference not equal", expression.FieldReference, expression.OpNotEqual, ref("Patient", "p2"), true},
		{"string equal", "code", expression.OpEqual, str("1234-5"), true},
		{"string not equal", "code", expression.OpNotEqual, str("1234-5"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := expression.Binary(tt.field, tt.op, tt.value)
			require.NoError(t, err)
			got, err := Matches(nil, res, e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatches_String(t *testing.T) {
	res := patient("p1", "John Smith")

	tests := []struct {
		mode       expression.StringMode
		comparand  string
		ignoreCase bool
		want       bool
	}{
		{expression.StringExact, "John Smith", false, true},
		{expression.StringExact, "john smith", false, false},
		{expression.StringExact, "john smith", true, true},
		{expression.StringStartsWith, "John", false, true},
		{expression.StringStartsWith, "Smith", false, false},
		{expression.StringContains, "SMITH", true, true},
		{expression.StringContains, "Doe", true, false},
	}
	for _, tt := range tests {
		e, err := expression.String("name", tt.mode, tt.comparand, tt.ignoreCase)
		require.NoError(t, err)
		got, err := Matches(nil, res, e)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %q ignoreCase=%v", tt.mode, tt.comparand, tt.ignoreCase)
	}
}

func TestMatches_MissingSearchParameter(t *testing.T) {
	withBirth := &Resource{Type: "Patient", ID: "a", Params: map[string][]Scope{
		"birthdate": {{expression.FieldDateTimeStart: {expression.DateValue(time.Now())}}},
	}}
	without := &Resource{Type: "Patient", ID: "b"}

	missing, err := expression.MissingSearchParameter(param(t, "birthdate"), true)
	require.NoError(t, err)

	ok, err := Matches(nil, withBirth, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Matches(nil, without, missing)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatches_SearchParameterIsExistential(t *testing.T) {
	res := &Resource{Type: "Patient", ID: "a", Params: map[string][]Scope{
		"identifier": {
			{expression.FieldTokenSystem: {str("urn:mrn")}, expression.FieldTokenCode: {str("111")}},
			{expression.FieldTokenSystem: {str("urn:ssn")}, expression.FieldTokenCode: {str("222")}},
		},
	}}

	sys, err := expression.String(expression.FieldTokenSystem, expression.StringExact, "urn:ssn", false)
	require.NoError(t, err)
	code, err := expression.String(expression.FieldTokenCode, expression.StringExact, "222", false)
	require.NoError(t, err)
	wrongCode, err := expression.String(expression.FieldTokenCode, expression.StringExact, "111", false)
	require.NoError(t, err)

	sameScope, err := expression.And(sys, code)
	require.NoError(t, err)
	crossScope, err := expression.And(sys, wrongCode)
	require.NoError(t, err)

	e, err := expression.SearchParameter(param(t, "identifier"), sameScope)
	require.NoError(t, err)
	ok, err := Matches(nil, res, e)
	require.NoError(t, err)
	assert.True(t, ok, "system and code from the same identifier should match")

	e, err = expression.SearchParameter(param(t, "identifier"), crossScope)
	require.NoError(t, err)
	ok, err = Matches(nil, res, e)
	require.NoError(t, err)
	assert.False(t, ok, "system and code from different identifiers should not match")
}

func TestMatches_Compartment(t *testing.T) {
	obs := observation("o1", "p1")
	store := NewMapStore(obs)

	in, err := expression.Compartment("Patient", "p1", nil)
	require.NoError(t, err)
	out, err := expression.Compartment("Patient", "p2", nil)
	require.NoError(t, err)
	notMissing, err := expression.MissingField("code", false)
	require.NoError(t, err)
	inWithNested, err := expression.Compartment("Patient", "p1", notMissing)
	require.NoError(t, err)

	for _, tc := range []struct {
		e    expression.Expression
		want bool
	}{
		{in, true},
		{out, false},
		{inWithNested, false},
	} {
		got, err := Matches(store, obs, tc.e)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.e.String())
	}

	self, err := expression.Compartment("Patient", "p1", nil)
	require.NoError(t, err)
	ok, err := Matches(store, patient("p1", "x"), self)
	require.NoError(t, err)
	assert.True(t, ok, "a patient is in its own compartment")
}

func TestFilter(t *testing.T) {
	store := NewMapStore(patient("p1", "John Smith"), patient("p2", "John Doe"), patient("p3", "Jane Smith"))
	e, err := expression.String("name", expression.StringContains, "Smith", false)
	require.NoError(t, err)

	got, err := Filter(store, store.All("Patient"), e)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p3", got[1].ID)
}
