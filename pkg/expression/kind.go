package expression

// Kind identifies one of the closed set of expression variants.
type Kind int

const (
	KindSearchParameter Kind = iota + 1
	KindBinary
	KindString
	KindChained
	KindMissingField
	KindMissingSearchParameter
	KindMultiary
	KindCompartment
)

var kindNames = map[Kind]string{
	KindSearchParameter:        "SearchParameter",
	KindBinary:                 "Binary",
	KindString:                 "String",
	KindChained:                "Chained",
	KindMissingField:           "MissingField",
	KindMissingSearchParameter: "MissingSearchParameter",
	KindMultiary:               "Multiary",
	KindCompartment:            "Compartment",
}

// Kinds lists every variant in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindSearchParameter,
		KindBinary,
		KindString,
		KindChained,
		KindMissingField,
		KindMissingSearchParameter,
		KindMultiary,
		KindCompartment,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}
