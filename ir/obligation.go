package ir

import "strings"

// Obligation is a triple (expression, method, exit-kind): on paths exiting
// with ExitKind, Method must have been invoked on Expression. Equality is
// structural, with Expression compared after canonicalization.
type Obligation struct {
	Expression string
	Method     string
	ExitKind   ExitKind
}

// CanonicalizeExpr trims whitespace and strips a leading "this." so that
// "this.resource" and "resource" (written from inside the receiver's own
// methods) compare equal. Go has no "this" keyword; the receiver is bound
// to the literal string "this" by the annotation oracle before any
// expression reaches this function, so canonicalization stays
// language-neutral here, matching the original's textual-after-viewpoint-
// adaptation equality (spec.md §4.1).
func CanonicalizeExpr(expr string) string {
	trimmed := strings.TrimSpace(expr)
	return strings.TrimPrefix(trimmed, "this.")
}

// Equal reports structural equality after canonicalizing both expressions.
func (o Obligation) Equal(other Obligation) bool {
	return o.Method == other.Method &&
		o.ExitKind == other.ExitKind &&
		CanonicalizeExpr(o.Expression) == CanonicalizeExpr(other.Expression)
}

// Key returns a value suitable for use as a map key, since Obligation
// itself compares on canonicalized (not raw) expressions and Go map keys
// use raw equality.
func (o Obligation) Key() Obligation {
	return Obligation{
		Expression: CanonicalizeExpr(o.Expression),
		Method:     o.Method,
		ExitKind:   o.ExitKind,
	}
}
