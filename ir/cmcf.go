package ir

// CreatesMustCallEffect (CMCF) records that calling a method reinstates the
// must-call set on named target expressions, even if it was previously
// discharged (spec.md §3). The default target, when the annotation carries
// no explicit value, is the literal string "this".
type CreatesMustCallEffect struct {
	Targets []string
}

// DefaultCreatesMustCallTarget is the target used when @createsmustcallfor
// is written with no explicit argument.
const DefaultCreatesMustCallTarget = "this"

// Empty reports whether the method has no CMCF targets at all (the common
// case: most methods don't reinstate obligations).
func (e CreatesMustCallEffect) Empty() bool {
	return len(e.Targets) == 0
}

// Superset reports whether e's target set is a superset of other's, the
// covariance rule enforced by declcheck's CMCF-override check (spec.md
// §4.3(d)).
func (e CreatesMustCallEffect) Superset(other CreatesMustCallEffect) bool {
	have := make(map[string]bool, len(e.Targets))
	for _, t := range e.Targets {
		have[t] = true
	}
	for _, t := range other.Targets {
		if !have[t] {
			return false
		}
	}
	return true
}
