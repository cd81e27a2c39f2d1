package ir

import "fmt"

// Provenance tags where an alias set's underlying resource came from, for
// diagnostics and for the transfer functions in consistency/transfer.go
// that treat allocations, parameters, field reads, and method results
// differently.
type Provenance int

const (
	ProvenanceParameter Provenance = iota
	ProvenanceAllocation
	ProvenanceFieldRead
	ProvenanceMethodResult
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceParameter:
		return "parameter"
	case ProvenanceAllocation:
		return "allocation"
	case ProvenanceFieldRead:
		return "field-read"
	case ProvenanceMethodResult:
		return "method-result"
	default:
		return fmt.Sprintf("Provenance(%d)", int(p))
	}
}

// AliasSet is an equivalence class of program expressions the analyzer
// treats as referring to the same underlying resource (spec.md §3).
//
// Members are keyed by canonicalized expression string rather than by
// ssa.Value identity: two different SSA values can denote the same source
// expression once the SSA builder has applied its own optimizations
// (spec.md §9, "Alias tracking without pointer identity").
type AliasSet struct {
	// Members is the set of canonicalized expressions known to alias.
	Members map[string]bool

	// MustCall is the underlying must-call set this alias set is
	// responsible for, before any discharge.
	MustCall MustCallSet

	// AlreadyCalled is the set of methods observed called on some member,
	// as reported by the calledmethods collaborator.
	AlreadyCalled MustCallSet

	// Pending holds, per exit-kind, the obligations not yet discharged on
	// paths reaching the current program point with that exit-kind.
	Pending map[ExitKind]MustCallSet

	Provenance Provenance
	Owning     bool
}

// NewAliasSet creates a fresh alias set for a single expression with the
// given must-call set. Both exit-kinds start with the full obligation
// pending, per spec.md §4.4 "Initial state".
func NewAliasSet(expr string, mcs MustCallSet, prov Provenance, owning bool) *AliasSet {
	pending := map[ExitKind]MustCallSet{}
	if owning {
		pending[NormalReturn] = mcs
		pending[ExceptionalExit] = mcs
	} else {
		pending[NormalReturn] = MustCallSet{}
		pending[ExceptionalExit] = MustCallSet{}
	}
	return &AliasSet{
		Members:       map[string]bool{CanonicalizeExpr(expr): true},
		MustCall:      mcs,
		AlreadyCalled: MustCallSet{},
		Pending:       pending,
		Provenance:    prov,
		Owning:        owning,
	}
}

// Contains reports whether expr (after canonicalization) is a member.
func (a *AliasSet) Contains(expr string) bool {
	return a.Members[CanonicalizeExpr(expr)]
}

// Copy returns a deep-enough copy for use as a new predecessor/successor
// state: Members and Pending are copied, so mutating the copy never
// affects the original (spec.md §4.4's join/merge relies on this).
func (a *AliasSet) Copy() *AliasSet {
	members := make(map[string]bool, len(a.Members))
	for m := range a.Members {
		members[m] = true
	}
	pending := make(map[ExitKind]MustCallSet, len(a.Pending))
	for k, v := range a.Pending {
		pending[k] = v
	}
	return &AliasSet{
		Members:       members,
		MustCall:      a.MustCall,
		AlreadyCalled: a.AlreadyCalled,
		Pending:       pending,
		Provenance:    a.Provenance,
		Owning:        a.Owning,
	}
}

// Discharge removes method from the pending obligations of exitKind,
// returning a new set that observes it as already-called. The receiver is
// not mutated.
func (a *AliasSet) Discharge(method string, exitKind ExitKind) *AliasSet {
	cp := a.Copy()
	cp.AlreadyCalled = cp.AlreadyCalled.Union(NewMustCallSet(method))
	cp.Pending[exitKind] = cp.Pending[exitKind].Without(NewMustCallSet(method))
	return cp
}

// Merge unions two alias sets describing the same underlying resource at a
// CFG join: members union, and pending obligations union per exit-kind
// (spec.md §4.4 "Merge (join)": conservative, not intersecting).
func (a *AliasSet) Merge(other *AliasSet) *AliasSet {
	cp := a.Copy()
	for m := range other.Members {
		cp.Members[m] = true
	}
	cp.MustCall = cp.MustCall.Union(other.MustCall)
	cp.AlreadyCalled = cp.AlreadyCalled.Union(other.AlreadyCalled)
	for _, k := range AllExitKinds() {
		cp.Pending[k] = cp.Pending[k].Union(other.Pending[k])
	}
	cp.Owning = cp.Owning || other.Owning
	return cp
}

// HasPendingAny reports whether any exit-kind still has a non-empty
// pending obligation.
func (a *AliasSet) HasPendingAny() bool {
	for _, k := range AllExitKinds() {
		if !a.Pending[k].Empty() {
			return true
		}
	}
	return false
}
