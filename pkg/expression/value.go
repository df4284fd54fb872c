package expression

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind is the declared kind of a BinaryExpression operand.
type ValueKind int

const (
	ValueString ValueKind = iota + 1
	ValueNumber
	ValueDate
	ValueQuantity
	ValueReference
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueDate:
		return "date"
	case ValueQuantity:
		return "quantity"
	case ValueReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the enumerated value kinds.
func (k ValueKind) Valid() bool {
	return k >= ValueString && k <= ValueReference
}

// Orderable reports whether values of this kind support gt/ge/lt/le.
func (k ValueKind) Orderable() bool {
	switch k {
	case ValueNumber, ValueDate, ValueQuantity:
		return true
	default:
		return false
	}
}

// ParseValueKind converts the lower-case kind name back to a ValueKind.
func ParseValueKind(s string) (ValueKind, bool) {
	for k := ValueString; k <= ValueReference; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Reference identifies another resource, e.g. Patient/123.
type Reference struct {
	ResourceType string
	ID           string
}

func (r Reference) String() string {
	if r.ResourceType == "" {
		return r.ID
	}
	return r.ResourceType + "/" + r.ID
}

// ParseReference splits "Type/id" into its parts. A bare id yields an empty
// resource type.
func ParseReference(s string) Reference {
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return Reference{ResourceType: s[:idx], ID: s[idx+1:]}
	}
	return Reference{ID: s}
}

// Value is an immutable, kind-tagged scalar. The zero Value is invalid.
type Value struct {
	kind ValueKind
	str  string
	num  decimal.Decimal
	date time.Time
	unit string
	ref  Reference
}

// StringValue returns a string-kind value.
func StringValue(s string) Value { return Value{kind: ValueString, str: s} }

// NumberValue returns a number-kind value.
func NumberValue(d decimal.Decimal) Value { return Value{kind: ValueNumber, num: d} }

// DateValue returns a date-kind value. The time is normalized to UTC.
func DateValue(t time.Time) Value { return Value{kind: ValueDate, date: t.UTC()} }

// QuantityValue returns a quantity-kind value with an optional unit code.
func QuantityValue(d decimal.Decimal, unit string) Value {
	return Value{kind: ValueQuantity, num: d, unit: unit}
}

// ReferenceValue returns a reference-kind value.
func ReferenceValue(ref Reference) Value { return Value{kind: ValueReference, ref: ref} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) Str() string { return v.str }
func (v Value) Number() decimal.Decimal { return v.num }
func (v Value) Date() time.Time { return v.date }
func (v Value) Unit() string { return v.unit }
func (v Value) Reference() Reference { return v.ref }
func (v Value) IsZero() bool { return v.kind == 0 }

// Equal compares kind and content. Decimals compare numerically, so 1.0
// equals 1.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == o.str
	case ValueNumber:
		return v.num.Equal(o.num)
	case ValueDate:
		return v.date.Equal(o.date)
	case ValueQuantity:
		return v.num.Equal(o.num) && v.unit == o.unit
	case ValueReference:
		return v.ref == o.ref
	default:
		return true
	}
}

// Compare orders two values of the same orderable kind. ok is false when the
// kinds differ, the kind is not orderable, or quantity units disagree.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.kind != o.kind || !v.kind.Orderable() {
		return 0, false
	}
	switch v.kind {
	case ValueNumber:
		return v.num.Cmp(o.num), true
	case ValueQuantity:
		if v.unit != "" && o.unit != "" && v.unit != o.unit {
			return 0, false
		}
		return v.num.Cmp(o.num), true
	case ValueDate:
		return v.date.Compare(o.date), true
	}
	return 0, false
}

// String renders the value in the canonical printer form.
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return strconv.Quote(v.str)
	case ValueNumber:
		return v.num.String()
	case ValueDate:
		return v.date.Format(time.RFC3339Nano)
	case ValueQuantity:
		if v.unit == "" {
			return v.num.String()
		}
		return fmt.Sprintf("%s[%s]", v.num.String(), strconv.Quote(v.unit))
	case ValueReference:
		if v.ref.ResourceType == "" {
			return strconv.Quote(v.ref.ID)
		}
		return strconv.Quote(v.ref.ResourceType) + "/" + strconv.Quote(v.ref.ID)
	default:
		return "<invalid>"
	}
}
