package expression

// RewriteChildren rebuilds e with each immediate child replaced by fn(child).
// When fn returns every child unchanged, e itself is returned, so untouched
// subtrees stay shared between the old and new tree. e is never modified.
func RewriteChildren(e Expression, fn func(Expression) (Expression, error)) (Expression, error) {
	switch n := e.(type) {
	case *SearchParameterExpression:
		nested, err := fn(n.nested)
		if err != nil {
			return nil, err
		}
		if nested == n.nested {
			return n, nil
		}
		sp, err := SearchParameter(&n.param, nested)
		if err != nil {
			return nil, err
		}
		return sp, nil

	case *ChainedExpression:
		nested, err := fn(n.nested)
		if err != nil {
			return nil, err
		}
		if nested == n.nested {
			return n, nil
		}
		ch, err := Chained(n.sourceField, n.targetKinds, nested, n.reversed)
		if err != nil {
			return nil, err
		}
		return ch, nil

	case *CompartmentSearchExpression:
		if n.nested == nil {
			return n, nil
		}
		nested, err := fn(n.nested)
		if err != nil {
			return nil, err
		}
		if nested == n.nested {
			return n, nil
		}
		cs, err := Compartment(n.compartmentType, n.compartmentID, nested)
		if err != nil {
			return nil, err
		}
		return cs, nil

	case *MultiaryExpression:
		changed := false
		children := make([]Expression, len(n.children))
		for i, child := range n.children {
			c, err := fn(child)
			if err != nil {
				return nil, err
			}
			children[i] = c
			changed = changed || c != child
		}
		if !changed {
			return n, nil
		}
		m, err := Multiary(n.op, children...)
		if err != nil {
			return nil, err
		}
		return m, nil

	case *BinaryExpression, *StringExpression, *MissingFieldExpression, *MissingSearchParameterExpression:
		return e, nil
	}
	return nil, &UnhandledVariantError{Type: typeName(e)}
}

// ---------------------------------------------------------------------------
// Flatten
// ---------------------------------------------------------------------------

// Flatten returns a tree that matches exactly the same resources as e with:
//   - nested AND-of-AND (and OR-of-OR) spliced into a single node,
//   - structurally duplicate siblings removed,
//   - a logical node left with one effective child replaced by that child.
//
// Flatten is idempotent and returns e itself when nothing changes.
func Flatten(e Expression) (Expression, error) {
	return Accept[struct{}, Expression](e, flattener{}, struct{}{})
}

type flattener struct{}

func (f flattener) rewrite(e Expression) (Expression, error) {
	return Accept[struct{}, Expression](e, f, struct{}{})
}

func (f flattener) VisitSearchParameter(e *SearchParameterExpression, _ struct{}) (Expression, error) {
	return RewriteChildren(e, f.rewrite)
}

func (flattener) VisitBinary(e *BinaryExpression, _ struct{}) (Expression, error) {
	return e, nil
}

func (f flattener) VisitChained(e *ChainedExpression, _ struct{}) (Expression, error) {
	return RewriteChildren(e, f.rewrite)
}

func (flattener) VisitMissingField(e *MissingFieldExpression, _ struct{}) (Expression, error) {
	return e, nil
}

func (flattener) VisitMissingSearchParameter(e *MissingSearchParameterExpression, _ struct{}) (Expression, error) {
	return e, nil
}

func (flattener) VisitString(e *StringExpression, _ struct{}) (Expression, error) {
	return e, nil
}

func (f flattener) VisitCompartment(e *CompartmentSearchExpression, _ struct{}) (Expression, error) {
	return RewriteChildren(e, f.rewrite)
}

func (f flattener) VisitMultiary(e *MultiaryExpression, _ struct{}) (Expression, error) {
	var flat []Expression
	for _, child := range e.children {
		c, err := f.rewrite(child)
		if err != nil {
			return nil, err
		}
		if m, ok := c.(*MultiaryExpression); ok && m.op == e.op {
			for _, gc := range m.children {
				flat = appendUnique(flat, gc)
			}
			continue
		}
		flat = appendUnique(flat, c)
	}

	if len(flat) == 1 {
		return flat[0], nil
	}
	if sameChildren(flat, e.children) {
		return e, nil
	}
	m, err := Multiary(e.op, flat...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func appendUnique(list []Expression, e Expression) []Expression {
	for _, existing := range list {
		if Equal(existing, e) {
			return list
		}
	}
	return append(list, e)
}

func sameChildren(a, b []Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// ChainDepth
// ---------------------------------------------------------------------------

// ChainDepth returns the largest number of chain hops along any path of e.
func ChainDepth(e Expression) (int, error) {
	return Accept[struct{}, int](e, chainDepth{}, struct{}{})
}

type chainDepth struct{}

func (c chainDepth) max(children ...Expression) (int, error) {
	best := 0
	for _, child := range children {
		if child == nil {
			continue
		}
		d, err := Accept[struct{}, int](child, c, struct{}{})
		if err != nil {
			return 0, err
		}
		if d > best {
			best = d
		}
	}
	return best, nil
}

func (c chainDepth) VisitSearchParameter(e *SearchParameterExpression, _ struct{}) (int, error) {
	return c.max(e.nested)
}

func (chainDepth) VisitBinary(*BinaryExpression, struct{}) (int, error) { return 0, nil }

func (c chainDepth) VisitChained(e *ChainedExpression, _ struct{}) (int, error) {
	d, err := c.max(e.nested)
	return d + 1, err
}

func (chainDepth) VisitMissingField(*MissingFieldExpression, struct{}) (int, error) { return 0, nil }

func (chainDepth) VisitMissingSearchParameter(*MissingSearchParameterExpression, struct{}) (int, error) {
	return 0, nil
}

func (c chainDepth) VisitMultiary(e *MultiaryExpression, _ struct{}) (int, error) {
	return c.max(e.children...)
}

func (chainDepth) VisitString(*StringExpression, struct{}) (int, error) { return 0, nil }

func (c chainDepth) VisitCompartment(e *CompartmentSearchExpression, _ struct{}) (int, error) {
	return c.max(e.nested)
}
