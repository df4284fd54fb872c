package expression

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Flatten
// ---------------------------------------------------------------------------

func TestFlatten_SplicesNestedSameOperator(t *testing.T) {
	a := mustMissing(t, "a", true)
	b := mustMissing(t, "b", true)
	c := mustMissing(t, "c", true)

	got, err := Flatten(mustAnd(t, a, mustAnd(t, b, c)))
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	want := mustAnd(t, a, b, c)
	if !Equal(got, want) {
		t.Errorf("Flatten = %s, want %s", got, want)
	}
}

func TestFlatten_KeepsMixedOperators(t *testing.T) {
	a := mustMissing(t, "a", true)
	b := mustMissing(t, "b", true)
	c := mustMissing(t, "c", true)
	e := mustAnd(t, a, mustOr(t, b, c))

	got, err := Flatten(e)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if got != e {
		t.Errorf("expected unchanged tree to be returned as is, got %s", got)
	}
}

func TestFlatten_RemovesDuplicatesAndCollapses(t *testing.T) {
	a1 := mustMissing(t, "a", true)
	a2 := mustMissing(t, "a", true)

	got, err := Flatten(mustOr(t, a1, a2))
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if got != a1 {
		t.Errorf("Flatten(Or(a, a)) = %s, want the first child", got)
	}
}

func TestFlatten_RewritesBelowOtherVariants(t *testing.T) {
	a := mustMissing(t, "deceasedDate", true)
	b := mustMissing(t, "birthDate", false)
	inner := mustSP(t, "family", mustAnd(t, a, mustAnd(t, b, a)))
	chain := mustChain(t, "subject", []string{"Patient"}, inner, false)
	e := mustCompartment(t, "Patient", "123", chain)

	got, err := Flatten(e)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	want := mustCompartment(t, "Patient", "123",
		mustChain(t, "subject", []string{"Patient"}, mustSP(t, "family", mustAnd(t, a, b)), false))
	if !Equal(got, want) {
		t.Errorf("Flatten = %s, want %s", got, want)
	}
}

func TestFlatten_SharesUnchangedSubtrees(t *testing.T) {
	untouched := mustSP(t, "status", mustString(t, "status", StringExact, "active", false))
	a := mustMissing(t, "a", true)
	b := mustMissing(t, "b", true)
	e := mustOr(t, untouched, mustOr(t, a, b))

	got, err := Flatten(e)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	m, ok := got.(*MultiaryExpression)
	if !ok {
		t.Fatalf("expected multiary, got %T", got)
	}
	if m.Child(0) != untouched {
		t.Error("unchanged subtree was copied instead of shared")
	}
	if Count(e) != 6 {
		t.Errorf("input was modified: Count = %d", Count(e))
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	for name, e := range sampleTrees(t) {
		once, err := Flatten(e)
		if err != nil {
			t.Fatalf("%s: Flatten: %v", name, err)
		}
		twice, err := Flatten(once)
		if err != nil {
			t.Fatalf("%s: Flatten twice: %v", name, err)
		}
		if twice != once {
			t.Errorf("%s: second Flatten changed the tree: %s -> %s", name, once, twice)
		}
	}
}

func TestRewriteChildren_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	e := sampleTrees(t)["and"]
	_, err := RewriteChildren(e, func(Expression) (Expression, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRewriteChildren_RevalidatesThroughConstructors(t *testing.T) {
	// Replacing a chain's nested tree with one that is invalid for the target
	// kind must fail construction.
	e := sampleTrees(t)["chained"]
	status := mustSP(t, "status", mustString(t, "status", StringExact, "final", false))
	_, err := RewriteChildren(e, func(Expression) (Expression, error) { return status, nil })
	if !errors.Is(err, ErrInvalidExpression) {
		t.Fatalf("expected ErrInvalidExpression, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// ChainDepth
// ---------------------------------------------------------------------------

func TestChainDepth(t *testing.T) {
	trees := sampleTrees(t)
	gp := mustSP(t, "general-practitioner", mustMissing(t, "Reference", false))
	nested := mustChain(t, "patient", []string{"Observation"},
		mustChain(t, "subject", []string{"Patient"}, gp, false), true)

	tests := []struct {
		name string
		e    Expression
		want int
	}{
		{"leaf", trees["missing_field"], 0},
		{"single chain", trees["chained"], 1},
		{"chain under or", mustOr(t, trees["chained"], trees["missing_field"]), 1},
		{"nested chains", nested, 2},
	}
	for _, tt := range tests {
		got, err := ChainDepth(tt.e)
		if err != nil {
			t.Fatalf("%s: ChainDepth: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: ChainDepth = %d, want %d", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Equal and CacheKey
// ---------------------------------------------------------------------------

func TestEqual(t *testing.T) {
	trees := sampleTrees(t)
	rebuilt := mustAnd(t,
		mustSP(t, "status", mustString(t, "status", StringExact, "active", false)),
		mustMissing(t, "deceasedDate", true))

	if !Equal(trees["and"], rebuilt) {
		t.Error("structurally identical trees should be equal")
	}
	if Equal(trees["and"], trees["or"]) {
		t.Error("AND and OR trees should differ")
	}
	if Equal(trees["missing_field"], trees["not_missing"]) {
		t.Error("missing and not-missing should differ")
	}
	if Equal(trees["missing_field"], nil) || !Equal(nil, nil) {
		t.Error("nil handling is wrong")
	}
}

func TestCacheKey(t *testing.T) {
	trees := sampleTrees(t)
	rebuilt := mustAnd(t,
		mustSP(t, "status", mustString(t, "status", StringExact, "active", false)),
		mustMissing(t, "deceasedDate", true))

	k1, err := CacheKey(trees["and"])
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	k2, err := CacheKey(rebuilt)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	if k1 != k2 {
		t.Errorf("equal trees have different keys: %s vs %s", k1, k2)
	}
	if len(k1) != 16 {
		t.Errorf("key length = %d, want 16", len(k1))
	}
	k3, err := CacheKey(trees["or"])
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	if k3 == k1 {
		t.Error("different trees share a key")
	}
}
