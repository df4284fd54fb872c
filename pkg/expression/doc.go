// Package expression models decomposed FHIR search criteria as an immutable
// tree of typed nodes, and provides the generic visitor contract that query
// translators, evaluators, printers and optimizers use to consume that tree.
//
// A tree is built through the validating constructors (SearchParameter,
// Binary, String, Chained, MissingField, MissingSearchParameter, Multiary and
// Compartment). Construction either returns a fully valid node or an
// *InvalidExpressionError; a partially valid tree is never handed out.
//
// Consumers implement Visitor[C, O] and call Accept, which routes the call to
// the method matching the node's runtime variant:
//
//	out, err := expression.Accept[*Frame, bool](root, evaluator, frame)
//
// Accept never recurses on its own; each visitor decides how to descend into
// nested expressions. Nodes never change after construction, so a tree can be
// shared by concurrent traversals without locking, and rewriting visitors
// return new nodes while sharing any subtree they did not touch.
package expression
