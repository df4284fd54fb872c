package expression

// Children returns the immediate nested expressions of e in order. Leaves
// return nil.
func Children(e Expression) []Expression {
	switch n := e.(type) {
	case *SearchParameterExpression:
		return []Expression{n.nested}
	case *ChainedExpression:
		return []Expression{n.nested}
	case *MultiaryExpression:
		return n.Children()
	case *CompartmentSearchExpression:
		if n.nested != nil {
			return []Expression{n.nested}
		}
	}
	return nil
}

// Walk visits e and its descendants in pre-order. Descent into a node's
// children stops when fn returns false for that node.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, child := range Children(e) {
		Walk(child, fn)
	}
}

// Count returns the number of nodes in the tree rooted at e.
func Count(e Expression) int {
	n := 0
	Walk(e, func(Expression) bool {
		n++
		return true
	})
	return n
}
