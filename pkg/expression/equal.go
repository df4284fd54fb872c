package expression

// Equal reports whether a and b are structurally equal: the same variant with
// the same attributes and pairwise-equal nested expressions. Nodes of
// different variants are never equal. Search parameters compare by name.
func Equal(a, b Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() || a.Depth() != b.Depth() {
		return false
	}

	switch x := a.(type) {
	case *SearchParameterExpression:
		y, ok := b.(*SearchParameterExpression)
		if !ok {
			return false
		}
		return x.param.Name == y.param.Name && Equal(x.nested, y.nested)

	case *BinaryExpression:
		y, ok := b.(*BinaryExpression)
		if !ok {
			return false
		}
		return x.field == y.field && x.op == y.op && x.value.Equal(y.value)

	case *StringExpression:
		y, ok := b.(*StringExpression)
		if !ok {
			return false
		}
		return x.field == y.field && x.mode == y.mode &&
			x.comparand == y.comparand && x.ignoreCase == y.ignoreCase

	case *ChainedExpression:
		y, ok := b.(*ChainedExpression)
		if !ok {
			return false
		}
		if x.sourceField != y.sourceField || x.reversed != y.reversed ||
			len(x.targetKinds) != len(y.targetKinds) {
			return false
		}
		for i := range x.targetKinds {
			if x.targetKinds[i] != y.targetKinds[i] {
				return false
			}
		}
		return Equal(x.nested, y.nested)

	case *MissingFieldExpression:
		y, ok := b.(*MissingFieldExpression)
		if !ok {
			return false
		}
		return x.field == y.field && x.missing == y.missing

	case *MissingSearchParameterExpression:
		y, ok := b.(*MissingSearchParameterExpression)
		if !ok {
			return false
		}
		return x.param.Name == y.param.Name && x.missing == y.missing

	case *MultiaryExpression:
		y, ok := b.(*MultiaryExpression)
		if !ok {
			return false
		}
		if x.op != y.op || len(x.children) != len(y.children) {
			return false
		}
		for i := range x.children {
			if !Equal(x.children[i], y.children[i]) {
				return false
			}
		}
		return true

	case *CompartmentSearchExpression:
		y, ok := b.(*CompartmentSearchExpression)
		if !ok {
			return false
		}
		return x.compartmentType == y.compartmentType &&
			x.compartmentID == y.compartmentID && Equal(x.nested, y.nested)
	}
	return false
}
