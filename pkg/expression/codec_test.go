package expression

import (
	"errors"
	"strings"
	"testing"
)

func TestMarshal_RoundTrip(t *testing.T) {
	for name, e := range sampleTrees(t) {
		t.Run(name, func(t *testing.T) {
			data, err := Marshal(e)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Unmarshal(data, DefaultParameterRegistry())
			if err != nil {
				t.Fatalf("Unmarshal(%s): %v", data, err)
			}
			if !Equal(got, e) {
				t.Errorf("round trip changed tree:\n got %s\nwant %s", got, e)
			}

			// Without a registry the embedded parameter definitions are used.
			got, err = Unmarshal(data, nil)
			if err != nil {
				t.Fatalf("Unmarshal without registry: %v", err)
			}
			if !Equal(got, e) {
				t.Errorf("round trip without registry changed tree: %s", got)
			}
		})
	}
}

func TestUnmarshal_ValidatesThroughConstructors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown kind", `{"kind":"regex"}`},
		{"single child", `{"kind":"multiary","operator":"AND","children":[{"kind":"missingField","field":"a","missing":true}]}`},
		{"ordering on string", `{"kind":"binary","field":"String","operator":"gt","value":{"kind":"string","value":"a"}}`},
		{"bad number", `{"kind":"binary","field":"Number","operator":"eq","value":{"kind":"number","value":"five"}}`},
		{"bad date", `{"kind":"binary","field":"DateTimeStart","operator":"eq","value":{"kind":"date","value":"yesterday"}}`},
		{"unknown value kind", `{"kind":"binary","field":"Number","operator":"eq","value":{"kind":"uuid","value":"x"}}`},
		{"missing comparand", `{"kind":"string","field":"String","mode":"exact"}`},
		{"unknown param", `{"kind":"missingSearchParameter","param":{"name":"shoe-size"},"missing":true}`},
		{"chain without nested", `{"kind":"chained","sourceField":"subject","targetKinds":["Patient"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc), DefaultParameterRegistry())
			if !errors.Is(err, ErrInvalidExpression) {
				t.Fatalf("expected ErrInvalidExpression, got %v", err)
			}
		})
	}
}

func TestUnmarshal_MissingFlagRequired(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind Kind
	}{
		{"missing field", `{"kind":"missingField","field":"deceasedDate"}`, KindMissingField},
		{"missing search parameter", `{"kind":"missingSearchParameter","param":{"name":"status"}}`, KindMissingSearchParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc), DefaultParameterRegistry())
			var invalidErr *InvalidExpressionError
			if !errors.As(err, &invalidErr) {
				t.Fatalf("expected *InvalidExpressionError, got %v", err)
			}
			if invalidErr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", invalidErr.Kind, tt.kind)
			}
			if !strings.Contains(err.Error(), "missing flag is required") {
				t.Errorf("error = %v", err)
			}
		})
	}

	e, err := Unmarshal([]byte(`{"kind":"missingField","field":"deceasedDate","missing":false}`), nil)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := e.String(); got != "(NotMissingField deceasedDate)" {
		t.Errorf("String() = %s", got)
	}
}

func TestUnmarshal_MalformedJSON(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":`), nil)
	if err == nil || !strings.Contains(err.Error(), "decode expression document") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestUnmarshal_DepthGuard(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxDepth+5; i++ {
		b.WriteString(`{"kind":"compartment","compartmentType":"Patient","compartmentId":"1","nested":`)
	}
	b.WriteString(`{"kind":"missingField","field":"a","missing":true}`)
	for i := 0; i < MaxDepth+5; i++ {
		b.WriteString(`}`)
	}

	_, err := Unmarshal([]byte(b.String()), nil)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024", "2024-03", "2024-03-01", "2024-03-01T10:00:00", "2024-03-01T10:00:00+02:00"} {
		if _, err := ParseDate(s); err != nil {
			t.Errorf("ParseDate(%q): %v", s, err)
		}
	}
	if _, err := ParseDate("03/01/2024"); err == nil {
		t.Error("expected error for unsupported layout")
	}
}
