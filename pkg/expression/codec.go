package expression

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Document is the tagged JSON form of a single expression node. Only the
// fields relevant to Kind are populated.
type Document struct {
	Kind            string      `json:"kind"`
	Param           *ParamDoc   `json:"param,omitempty"`
	Field           string      `json:"field,omitempty"`
	Operator        string      `json:"operator,omitempty"`
	Value           *ValueDoc   `json:"value,omitempty"`
	Mode            string      `json:"mode,omitempty"`
	Comparand       *string     `json:"comparand,omitempty"`
	IgnoreCase      bool        `json:"ignoreCase,omitempty"`
	SourceField     string      `json:"sourceField,omitempty"`
	TargetKinds     []string    `json:"targetKinds,omitempty"`
	Reversed        bool        `json:"reversed,omitempty"`
	Missing         *bool       `json:"missing,omitempty"`
	CompartmentType string      `json:"compartmentType,omitempty"`
	CompartmentID   string      `json:"compartmentId,omitempty"`
	Nested          *Document   `json:"nested,omitempty"`
	Children        []*Document `json:"children,omitempty"`
}

// ParamDoc is the JSON form of a SearchParameterInfo.
type ParamDoc struct {
	Name                string   `json:"name"`
	Type                string   `json:"type,omitempty"`
	ResourceTypes       []string `json:"resourceTypes,omitempty"`
	TargetResourceTypes []string `json:"targetResourceTypes,omitempty"`
}

// ValueDoc is the JSON form of a Value.
type ValueDoc struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

var kindTags = map[Kind]string{
	KindSearchParameter:        "searchParameter",
	KindBinary:                 "binary",
	KindString:                 "string",
	KindChained:                "chained",
	KindMissingField:           "missingField",
	KindMissingSearchParameter: "missingSearchParameter",
	KindMultiary:               "multiary",
	KindCompartment:            "compartment",
}

// DocumentTag returns the "kind" tag documents use for k.
func (k Kind) DocumentTag() string { return kindTags[k] }

// Marshal encodes e as a JSON document.
func Marshal(e Expression) ([]byte, error) {
	doc, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Encode converts e into its Document form.
func Encode(e Expression) (*Document, error) {
	return Accept[struct{}, *Document](e, encoder{}, struct{}{})
}

// Unmarshal decodes a JSON document into a validated tree. When reg is not
// nil, parameters are resolved by name against it and unknown names are
// rejected; otherwise the parameter definition embedded in the document is
// used.
func Unmarshal(data []byte, reg *ParameterRegistry) (Expression, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode expression document: %w", err)
	}
	return Decode(&doc, reg)
}

// Decode builds a tree from doc through the validating constructors.
func Decode(doc *Document, reg *ParameterRegistry) (Expression, error) {
	d := decoder{reg: reg}
	return d.decode(doc, 1)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct{}

func (enc encoder) nested(e Expression) (*Document, error) {
	return Accept[struct{}, *Document](e, enc, struct{}{})
}

func paramDoc(p SearchParameterInfo) *ParamDoc {
	return &ParamDoc{
		Name:                p.Name,
		Type:                string(p.Type),
		ResourceTypes:       p.ResourceTypes,
		TargetResourceTypes: p.TargetResourceTypes,
	}
}

func boolRef(b bool) *bool { return &b }

func valueDoc(v Value) *ValueDoc {
	doc := &ValueDoc{Kind: v.kind.String()}
	switch v.kind {
	case ValueString:
		doc.Value = v.str
	case ValueNumber:
		doc.Value = v.num.String()
	case ValueQuantity:
		doc.Value = v.num.String()
		doc.Unit = v.unit
	case ValueDate:
		doc.Value = v.date.Format(time.RFC3339Nano)
	case ValueReference:
		doc.Value = v.ref.String()
	}
	return doc
}

func (enc encoder) VisitSearchParameter(e *SearchParameterExpression, _ struct{}) (*Document, error) {
	nested, err := enc.nested(e.nested)
	if err != nil {
		return nil, err
	}
	return &Document{Kind: kindTags[KindSearchParameter], Param: paramDoc(e.param), Nested: nested}, nil
}

func (encoder) VisitBinary(e *BinaryExpression, _ struct{}) (*Document, error) {
	return &Document{
		Kind:     kindTags[KindBinary],
		Field:    string(e.field),
		Operator: string(e.op),
		Value:    valueDoc(e.value),
	}, nil
}

func (enc encoder) VisitChained(e *ChainedExpression, _ struct{}) (*Document, error) {
	nested, err := enc.nested(e.nested)
	if err != nil {
		return nil, err
	}
	return &Document{
		Kind:        kindTags[KindChained],
		SourceField: e.sourceField,
		TargetKinds: e.TargetKinds(),
		Reversed:    e.reversed,
		Nested:      nested,
	}, nil
}

func (encoder) VisitMissingField(e *MissingFieldExpression, _ struct{}) (*Document, error) {
	return &Document{Kind: kindTags[KindMissingField], Field: string(e.field), Missing: boolRef(e.missing)}, nil
}

func (encoder) VisitMissingSearchParameter(e *MissingSearchParameterExpression, _ struct{}) (*Document, error) {
	return &Document{Kind: kindTags[KindMissingSearchParameter], Param: paramDoc(e.param), Missing: boolRef(e.missing)}, nil
}

func (enc encoder) VisitMultiary(e *MultiaryExpression, _ struct{}) (*Document, error) {
	doc := &Document{Kind: kindTags[KindMultiary], Operator: string(e.op)}
	for _, child := range e.children {
		c, err := enc.nested(child)
		if err != nil {
			return nil, err
		}
		doc.Children = append(doc.Children, c)
	}
	return doc, nil
}

func (encoder) VisitString(e *StringExpression, _ struct{}) (*Document, error) {
	comparand := e.comparand
	return &Document{
		Kind:       kindTags[KindString],
		Field:      string(e.field),
		Mode:       string(e.mode),
		Comparand:  &comparand,
		IgnoreCase: e.ignoreCase,
	}, nil
}

func (enc encoder) VisitCompartment(e *CompartmentSearchExpression, _ struct{}) (*Document, error) {
	doc := &Document{
		Kind:            kindTags[KindCompartment],
		CompartmentType: e.compartmentType,
		CompartmentID:   e.compartmentID,
	}
	if e.nested != nil {
		nested, err := enc.nested(e.nested)
		if err != nil {
			return nil, err
		}
		doc.Nested = nested
	}
	return doc, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type decoder struct {
	reg *ParameterRegistry
}

func (d decoder) param(kind Kind, doc *ParamDoc) (*SearchParameterInfo, error) {
	if doc == nil || doc.Name == "" {
		return nil, invalid(kind, "search parameter is required")
	}
	if d.reg != nil {
		return d.reg.Lookup("", doc.Name)
	}
	return &SearchParameterInfo{
		Name:                doc.Name,
		Type:                ParamType(doc.Type),
		ResourceTypes:       doc.ResourceTypes,
		TargetResourceTypes: doc.TargetResourceTypes,
	}, nil
}

func decodeValue(doc *ValueDoc) (Value, error) {
	if doc == nil {
		return Value{}, invalid(KindBinary, "operand value is required")
	}
	kind, ok := ParseValueKind(doc.Kind)
	if !ok {
		return Value{}, invalid(KindBinary, fmt.Sprintf("unknown value kind %q", doc.Kind))
	}
	switch kind {
	case ValueString:
		return StringValue(doc.Value), nil
	case ValueNumber, ValueQuantity:
		n, err := decimal.NewFromString(doc.Value)
		if err != nil {
			return Value{}, invalid(KindBinary, fmt.Sprintf("invalid %s value %q", kind, doc.Value))
		}
		if kind == ValueNumber {
			return NumberValue(n), nil
		}
		return QuantityValue(n, doc.Unit), nil
	case ValueDate:
		t, err := ParseDate(doc.Value)
		if err != nil {
			return Value{}, invalid(KindBinary, err.Error())
		}
		return DateValue(t), nil
	default:
		return ReferenceValue(ParseReference(doc.Value)), nil
	}
}

func (d decoder) decode(doc *Document, depth int) (Expression, error) {
	if depth > MaxDepth {
		return nil, &DepthExceededError{Depth: depth, Limit: MaxDepth}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: missing expression node", ErrInvalidExpression)
	}

	switch doc.Kind {
	case kindTags[KindSearchParameter]:
		param, err := d.param(KindSearchParameter, doc.Param)
		if err != nil {
			return nil, err
		}
		nested, err := d.optional(doc.Nested, depth)
		if err != nil {
			return nil, err
		}
		return wrap(SearchParameter(param, nested))

	case kindTags[KindBinary]:
		v, err := decodeValue(doc.Value)
		if err != nil {
			return nil, err
		}
		return wrap(Binary(FieldName(doc.Field), BinaryOperator(doc.Operator), v))

	case kindTags[KindString]:
		if doc.Comparand == nil {
			return nil, invalid(KindString, "comparand is required")
		}
		return wrap(String(FieldName(doc.Field), StringMode(doc.Mode), *doc.Comparand, doc.IgnoreCase))

	case kindTags[KindChained]:
		nested, err := d.optional(doc.Nested, depth)
		if err != nil {
			return nil, err
		}
		return wrap(Chained(doc.SourceField, doc.TargetKinds, nested, doc.Reversed))

	case kindTags[KindMissingField]:
		if doc.Missing == nil {
			return nil, invalid(KindMissingField, "missing flag is required")
		}
		return wrap(MissingField(FieldName(doc.Field), *doc.Missing))

	case kindTags[KindMissingSearchParameter]:
		param, err := d.param(KindMissingSearchParameter, doc.Param)
		if err != nil {
			return nil, err
		}
		if doc.Missing == nil {
			return nil, invalid(KindMissingSearchParameter, "missing flag is required")
		}
		return wrap(MissingSearchParameter(param, *doc.Missing))

	case kindTags[KindMultiary]:
		children := make([]Expression, 0, len(doc.Children))
		for _, c := range doc.Children {
			child, err := d.decode(c, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return wrap(Multiary(MultiaryOperator(doc.Operator), children...))

	case kindTags[KindCompartment]:
		nested, err := d.optional(doc.Nested, depth)
		if err != nil {
			return nil, err
		}
		return wrap(Compartment(doc.CompartmentType, doc.CompartmentID, nested))
	}
	return nil, fmt.Errorf("%w: unknown expression kind %q", ErrInvalidExpression, doc.Kind)
}

func (d decoder) optional(doc *Document, depth int) (Expression, error) {
	if doc == nil {
		return nil, nil
	}
	return d.decode(doc, depth+1)
}

// wrap converts a typed constructor result into an interface result without
// turning a nil node into a non-nil interface.
func wrap[T Expression](n T, err error) (Expression, error) {
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ParseDate parses the FHIR date/dateTime precisions accepted in operands.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006-01",
		"2006",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
