package annotate

import (
	"go/types"

	"mustcall/ir"
)

// Oracle answers the pure queries of spec.md §4.2 against go/types
// elements, backed by a Registry built by Visitor. It memoizes MustCallOf
// by the type's unqualified declared name, the same key Registry.Types
// uses, so like-named types from different packages share one entry
// (spec.md §9 "Cyclic annotation queries"), using
// an explicit "currently resolving" sentinel set rather than reentrant
// recursion, since a type's must-call annotation can in principle be
// expressed in terms of a field whose own type refers back to the
// enclosing type.
type Oracle struct {
	Registry *Registry

	mustCallCache map[string]mustCallCacheEntry
	resolving     map[string]bool
}

type mustCallCacheEntry struct {
	set   ir.MustCallSet
	known bool
}

// NewOracle builds an Oracle over registry.
func NewOracle(registry *Registry) *Oracle {
	return &Oracle{
		Registry:      registry,
		mustCallCache: map[string]mustCallCacheEntry{},
		resolving:     map[string]bool{},
	}
}

// namedTypeKey unwraps pointers and returns the declared name of t's
// underlying named type, or "" if t does not resolve to one (e.g. a basic
// type, an interface, a slice).
func namedTypeKey(t types.Type) (string, bool) {
	for {
		ptr, ok := t.(*types.Pointer)
		if !ok {
			break
		}
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok {
		return "", false
	}
	obj := named.Obj()
	if obj == nil {
		return "", false
	}
	return obj.Name(), true
}

// MustCallOf returns the must-call set of t, derived from its most
// specific @mustcall annotation. The second return is false when t is
// neither a built-in immutable type nor an annotated named type: callers
// (declcheck, consistency) must treat "unknown" conservatively, per
// spec.md §4.2.
func (o *Oracle) MustCallOf(t types.Type) (ir.MustCallSet, bool) {
	if t == nil {
		return ir.MustCallSet{}, false
	}
	if isImmutableBuiltin(t) {
		return ir.MustCallSet{}, true
	}

	key, ok := namedTypeKey(t)
	if !ok {
		return ir.MustCallSet{}, false
	}

	if cached, ok := o.mustCallCache[key]; ok {
		return cached.set, cached.known
	}
	if o.resolving[key] {
		// Cyclic query: treat as unknown rather than reentering.
		return ir.MustCallSet{}, false
	}
	o.resolving[key] = true
	defer delete(o.resolving, key)

	fact, hasFact := o.Registry.Types[key]
	var set ir.MustCallSet
	known := hasFact && fact.HasAnnotation
	if known {
		set = fact.MustCall
	}
	o.mustCallCache[key] = mustCallCacheEntry{set: set, known: known}
	return set, known
}

// funcKeyFor builds the Registry key for fn, qualifying by receiver type
// when fn is a method.
func funcKeyFor(fn *types.Func) string {
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return fn.Name()
	}
	recvType := sig.Recv().Type()
	if key, ok := namedTypeKey(recvType); ok {
		return FuncKey(fn.Name(), key)
	}
	return fn.Name()
}

func (o *Oracle) lookupFunc(fn *types.Func) (*FuncFact, bool) {
	if fn == nil {
		return nil, false
	}
	fact, ok := o.Registry.Funcs[funcKeyFor(fn)]
	return fact, ok
}

// OwningParam reports whether paramName is annotated @owning on fn.
func (o *Oracle) OwningParam(fn *types.Func, paramName string) bool {
	fact, ok := o.lookupFunc(fn)
	return ok && fact.OwningParams[paramName]
}

// NotOwningParam reports whether paramName is explicitly annotated
// @notowning on fn.
func (o *Oracle) NotOwningParam(fn *types.Func, paramName string) bool {
	fact, ok := o.lookupFunc(fn)
	return ok && fact.NotOwningParams[paramName]
}

// OwningField reports whether the named field of structName is annotated
// @owning.
func (o *Oracle) OwningField(structName, fieldName string) bool {
	fact, ok := o.Registry.Fields[FieldKey(structName, fieldName)]
	return ok && fact.Owning
}

// OwningVar reports whether the package-level variable varName is
// annotated @owning.
func (o *Oracle) OwningVar(varName string) bool {
	fact, ok := o.Registry.Vars[varName]
	return ok && fact.Owning
}

// NotOwningReturn reports whether fn's return is annotated
// @notowningreturn.
func (o *Oracle) NotOwningReturn(fn *types.Func) bool {
	fact, ok := o.lookupFunc(fn)
	return ok && fact.NotOwningReturn
}

// EnsuresCalledMethods returns every flattened @ensurescalledmethods /
// @ensurescalledmethodsonexception fact on fn.
func (o *Oracle) EnsuresCalledMethods(fn *types.Func) []Ensures {
	fact, ok := o.lookupFunc(fn)
	if !ok {
		return nil
	}
	return fact.Ensures
}

// RequiresCalledMethods returns every flattened @requirescalledmethods
// precondition on fn.
func (o *Oracle) RequiresCalledMethods(fn *types.Func) []Requires {
	fact, ok := o.lookupFunc(fn)
	if !ok {
		return nil
	}
	return fact.Requires
}

// CreatesMustCallFor returns fn's CMCF target expressions, or nil if fn has
// no @createsmustcallfor annotation at all.
func (o *Oracle) CreatesMustCallFor(fn *types.Func) []string {
	fact, ok := o.lookupFunc(fn)
	if !ok {
		return nil
	}
	return fact.CreatesMustCallTargets
}

// FuncFactFor exposes the raw fact for callers (declcheck) that need more
// than one derived query about the same function.
func (o *Oracle) FuncFactFor(fn *types.Func) (*FuncFact, bool) {
	return o.lookupFunc(fn)
}
