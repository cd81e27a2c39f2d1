package consistency

import (
	"golang.org/x/tools/go/ssa"

	"mustcall/calledmethods"
)

// canonicalExpr derives the "this"/"this.field"/parameter-name expression
// string a value corresponds to, for matching against
// @requirescalledmethods/@ensurescalledmethods facts (spec.md §4.1's
// canonicalized-expression model). Returns "" for values with no stable
// source-level name (temporaries, intermediate SSA registers), which
// callers must treat as never matching a named precondition/postcondition.
//
// Go's SSA form has no JavaExpression equivalent to walk; this is the
// direct replacement, grounded on annotate's "this"-binding convention
// (ir.CanonicalizeExpr) extended to resolve a *ssa.FieldAddr chain via
// calledmethods.FieldReceiver.
func canonicalExpr(fn *ssa.Function, v ssa.Value) string {
	if recv := receiverParam(fn); recv != nil && v == recv {
		return "this"
	}
	if recv, field, ok := calledmethods.FieldReceiver(v); ok {
		base := canonicalExpr(fn, recv)
		if base == "" {
			return ""
		}
		return base + "." + field
	}
	if param, ok := v.(*ssa.Parameter); ok {
		return param.Name()
	}
	return ""
}

// receiverParam returns fn's receiver parameter, or nil for a free
// function. In *ssa.Function, a method's receiver is simply its first
// parameter; there is no separate Recv accessor on the built value.
func receiverParam(fn *ssa.Function) *ssa.Parameter {
	if fn.Signature.Recv() == nil || len(fn.Params) == 0 {
		return nil
	}
	return fn.Params[0]
}
