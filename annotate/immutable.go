package annotate

import "go/types"

// immutableQualifiedNames is the built-in allowlist of standard-library
// types that are treated as having an empty must-call set irrespective of
// any annotation (spec.md §9 "Immutable-types shortcut"), enumerated once
// here as instructed.
var immutableQualifiedNames = map[string]bool{
	"time.Duration": true,
	"time.Time":     true,
	"time.Month":    true,
	"error":         true,
}

// isImmutableBuiltin reports whether t is one of Go's basic kinds (string,
// numeric, bool) or a member of immutableQualifiedNames.
func isImmutableBuiltin(t types.Type) bool {
	if basic, ok := t.Underlying().(*types.Basic); ok {
		switch basic.Info() & (types.IsBoolean | types.IsNumeric | types.IsString) {
		case 0:
		default:
			return true
		}
	}

	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	if obj == nil || obj.Pkg() == nil {
		return obj != nil && obj.Name() == "error"
	}
	qualified := obj.Pkg().Path() + "." + obj.Name()
	return immutableQualifiedNames[qualified]
}
