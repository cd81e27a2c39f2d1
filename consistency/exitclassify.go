package consistency

import (
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"

	"mustcall/ir"
)

// ClassifyReturn assigns an ExitKind to a *ssa.Return, per §REDESIGN R1:
// Go has no checked exceptions, so a function's error-typed result plays
// the role Java's thrown-exception classification played in the original.
// If fn's signature ends in an error-typed result and the corresponding
// returned operand is not the literal nil constant, the return is treated
// as ExceptionalExit; otherwise it is NormalReturn. This is a syntactic,
// not flow-sensitive, classification: a variable holding a possibly-nil
// error is conservatively treated as ExceptionalExit, since consistency
// cannot prove it nil at this program point without a second dataflow
// pass this port does not build (spec.md §9 notes the same trade-off for
// exceptional-exit granularity).
func ClassifyReturn(fn *ssa.Function, ret *ssa.Return) ir.ExitKind {
	sig := fn.Signature
	if sig.Results() == nil || sig.Results().Len() == 0 {
		return ir.NormalReturn
	}
	last := sig.Results().At(sig.Results().Len() - 1)
	if !isErrorType(last.Type()) {
		return ir.NormalReturn
	}
	if len(ret.Results) == 0 {
		return ir.NormalReturn
	}
	operand := ret.Results[len(ret.Results)-1]
	if isNilConstant(operand) {
		return ir.NormalReturn
	}
	return ir.ExceptionalExit
}

// ClassifyPanic always yields ExceptionalExit: an unrecovered panic has no
// normal-return continuation (spec.md §REDESIGN R1).
func ClassifyPanic(*ssa.Panic) ir.ExitKind {
	return ir.ExceptionalExit
}

// isConstructor implements §REDESIGN R3's precise test for whether fn
// plays the role of a constructor for invariant 4(c)/5's receiver-identity
// rules: a free function named New or New<T> in T's package returning
// (*T, error) or *T, or a method literally named Init on *T returning
// error. Everything else — including a bare helper function that merely
// allocates and stores a value, or a method with any other name — is not
// a constructor, however New-like its body looks.
func isConstructor(fn *ssa.Function) bool {
	sig := fn.Signature
	if recv := sig.Recv(); recv != nil {
		if fn.Name() != "Init" {
			return false
		}
		ptr, ok := recv.Type().(*types.Pointer)
		if !ok {
			return false
		}
		if _, ok := ptr.Elem().(*types.Named); !ok {
			return false
		}
		results := sig.Results()
		return results.Len() == 1 && isErrorType(results.At(0).Type())
	}
	if fn.Name() != "New" && !strings.HasPrefix(fn.Name(), "New") {
		return false
	}
	named, ok := constructedType(sig)
	if !ok {
		return false
	}
	return fn.Name() == "New" || fn.Name() == "New"+named.Obj().Name()
}

// constructedType extracts T from a (*T, error) or *T result list, the two
// shapes §REDESIGN R3 recognizes for a New* constructor function.
func constructedType(sig *types.Signature) (*types.Named, bool) {
	results := sig.Results()
	var ptrType types.Type
	switch results.Len() {
	case 1:
		ptrType = results.At(0).Type()
	case 2:
		if !isErrorType(results.At(1).Type()) {
			return nil, false
		}
		ptrType = results.At(0).Type()
	default:
		return nil, false
	}
	ptr, ok := ptrType.(*types.Pointer)
	if !ok {
		return nil, false
	}
	named, ok := ptr.Elem().(*types.Named)
	if !ok {
		return nil, false
	}
	return named, true
}

func isErrorType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	return named.Obj().Pkg() == nil && named.Obj().Name() == "error"
}

func isNilConstant(v ssa.Value) bool {
	c, ok := v.(*ssa.Const)
	return ok && c.IsNil()
}
