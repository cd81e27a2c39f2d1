package consistency

import (
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"mustcall/annotate"
	"mustcall/calledmethods"
	"mustcall/config"
	"mustcall/ir"
	"mustcall/report"
)

// transferer applies the transfer functions of spec.md §4.4's "Transfer
// functions" to one function's instructions. Grounded on the teacher's
// functionDepthFirstSearch/worklist traversal, generalized from a
// print-and-recurse walk into a proper monotone dataflow transfer.
type transferer struct {
	fn           *ssa.Function
	oracle       *annotate.Oracle
	calledOracle interface {
		CalledBefore(v ssa.Value, instr ssa.Instruction) ir.MustCallSet
	}
	cfg config.Config
}

// emitContext carries the reporter used only during the analyzer's second,
// diagnostic-emitting pass (see analyzer.go): the first, silent pass
// establishes the fixpoint, and only the second pass, run once the state at
// every block boundary is stable, produces diagnostics — so a leak is never
// reported once per fixpoint iteration.
type emitContext struct {
	reporter *report.Reporter
}

// resolve unwraps a single dereferencing load so that a local variable
// read through `*ssa.UnOp{Op: token.MUL}` is attributed to the same
// identity as the address it loads from, mirroring
// calledmethods.rootValue.
func resolve(v ssa.Value) ssa.Value {
	if unop, ok := v.(*ssa.UnOp); ok && unop.Op == token.MUL {
		return unop.X
	}
	return v
}

// step applies one instruction's effect to state, optionally emitting
// diagnostics through ctx (nil during the silent convergence pass).
func (t *transferer) step(state State, instr ssa.Instruction, ctx *emitContext) State {
	switch in := instr.(type) {
	case *ssa.Store:
		t.stepStore(state, in, ctx)
	case ssa.CallInstruction:
		t.stepCall(state, in, ctx)
	case *ssa.Return:
		if ctx != nil {
			t.stepReturn(state, in, ctx)
		}
	case *ssa.Panic:
		if ctx != nil {
			t.stepPanic(state, in, ctx)
		}
	}
	return state
}

// stepStore is the *Assignment* transfer function (spec.md §4.4): if the
// stored value is tracked, the destination address joins its alias set. If
// the destination previously held the last reference to a different,
// still-obligated set, that is a leak at the assignment point.
func (t *transferer) stepStore(state State, store *ssa.Store, ctx *emitContext) {
	srcKey := resolve(store.Val)
	set, tracked := state.Values[srcKey]
	if !tracked {
		return
	}
	destKey := store.Addr
	if old, existed := state.Values[destKey]; existed && old != set {
		if ctx != nil && old.HasPendingAny() && isLastReference(state, destKey, old) {
			ctx.reporter.Report(store.Pos(), report.KeyRequiredMethodNotCalled,
				"overwritten while still owing %v", old.Pending[ir.NormalReturn].Methods())
		}
	}
	state.Values[destKey] = set
	set.Members[exprFor(destKey)] = true

	// An @owning parameter stored into a field hands the obligation to the
	// enclosing type's own @mustcall contract (validated by C3) rather than
	// to this function's exceptional exit: the caller retained
	// responsibility for this value on the normal argument-transfer
	// asymmetry the moment it was passed in, so filing it away here is not
	// this function's own new obligation. A field sourced from a local
	// allocation keeps its pending exceptional-exit obligation: this function
	// created that obligation itself and a half-built object is exactly
	// where it would otherwise go unreported.
	if isFieldAddr(destKey) && set.Provenance == ir.ProvenanceParameter {
		updated := set.Copy()
		updated.Pending[ir.ExceptionalExit] = ir.MustCallSet{}
		state.replace(set, updated)
	}
}

func isLastReference(state State, key ssa.Value, set *ir.AliasSet) bool {
	for k, v := range state.Values {
		if v == set && k != key {
			return false
		}
	}
	return true
}

// calleeObj returns the statically-known *types.Func target of a call,
// covering both interface (invoke-mode) dispatch and direct calls to a
// method or free function. A dynamic call through a func value with no
// resolvable *types.Func (a closure stored in a variable, for instance)
// returns nil: no annotation can be attached to it, so no obligation
// reasoning is possible.
func calleeObj(common *ssa.CallCommon) *types.Func {
	if common.IsInvoke() {
		return common.Method
	}
	fn, ok := common.Value.(*ssa.Function)
	if !ok {
		return nil
	}
	obj, ok := fn.Object().(*types.Func)
	if !ok {
		return nil
	}
	return obj
}

// stepCall is the *Method/function call* transfer function (spec.md
// §4.4): checks preconditions, records the call as discharging the
// receiver's normal-return obligation, transfers ownership of @owning
// arguments on the normal edge only, reinstates CMCF targets, and applies
// @ensurescalledmethods postconditions.
func (t *transferer) stepCall(state State, call ssa.CallInstruction, ctx *emitContext) {
	common := call.Common()
	if common == nil {
		return
	}
	callee := calleeObj(common)
	if callee == nil {
		return
	}
	sig, ok := callee.Type().(*types.Signature)
	if !ok {
		return
	}

	var recvKey ssa.Value
	hasRecv := false
	if common.IsInvoke() {
		recvKey, hasRecv = resolve(common.Value), true
	} else if sig.Recv() != nil && len(common.Args) > 0 {
		recvKey, hasRecv = resolve(common.Args[0]), true
	}

	if hasRecv && ctx != nil {
		t.checkRequires(state, recvKey, callee, call, ctx)
	}

	if hasRecv {
		if orig, tracked := state.Values[recvKey]; tracked {
			updated := orig.Discharge(callee.Name(), ir.NormalReturn)
			if !calleeMayFail(sig) {
				// A call with no error-typed result has no exceptional
				// continuation of its own to reason about here: it either
				// runs to completion (discharging both exit-kinds) or
				// panics, which is handled independently at the panic
				// site. Only a call that can itself report failure via a
				// returned error keeps the normal/exceptional asymmetry
				// (spec.md §4.4 item 2), since the caller's subsequent
				// branch on that error is what actually decides whether
				// the call's contract was honored.
				updated = updated.Discharge(callee.Name(), ir.ExceptionalExit)
			}
			state.replace(orig, updated)
		}
	}

	t.transferOwningArgs(state, common, sig)

	if hasRecv {
		t.applyCreatesMustCallFor(state, recvKey, callee)
		t.applyEnsures(state, recvKey, callee)
	}

	t.trackAllocationResult(state, call, callee, sig)
}

// trackAllocationResult is the *Allocation* transfer function (spec.md
// §4.4): a call `x := alloc()` whose callee's return is owning (not
// annotated @notowningreturn) and whose return type carries a known,
// non-empty must-call set starts a fresh owning alias set at x, with full
// obligations pending on both exit-kinds.
func (t *transferer) trackAllocationResult(state State, call ssa.CallInstruction, callee *types.Func, sig *types.Signature) {
	value, ok := call.(ssa.Value)
	if !ok || sig.Results().Len() != 1 {
		return
	}
	if t.oracle.NotOwningReturn(callee) {
		return
	}
	mcs, known := t.oracle.MustCallOf(sig.Results().At(0).Type())
	if !known || mcs.Empty() {
		return
	}
	state.Track(value, ir.NewAliasSet(exprFor(value), mcs, ir.ProvenanceAllocation, true))
}

// checkRequires validates @requirescalledmethods preconditions. Each
// precondition names an expression relative to the callee's own receiver
// ("this" or "this.field"); requiresTarget resolves that expression against
// the call site's actual receiver value so a field-scoped precondition like
// @requirescalledmethods("this.resource", "Close") is checked against the
// field's own tracked alias set, not the enclosing receiver's. The target's
// own AlreadyCalled set (discharged in lockstep by this package's call
// transfer, above) is authoritative when tracked; calledmethods.Oracle is
// consulted as a fallback for methods already observed called via a call
// path this package's more limited single-alias-set bookkeeping did not
// itself witness (spec.md §6's CalledMethods collaborator).
func (t *transferer) checkRequires(state State, recvKey ssa.Value, callee *types.Func, call ssa.CallInstruction, ctx *emitContext) {
	for _, req := range t.oracle.RequiresCalledMethods(callee) {
		target, found := t.requiresTarget(recvKey, req.Expression)
		var set *ir.AliasSet
		var fallback ir.MustCallSet
		if found {
			set = state.Values[target]
			fallback = t.calledOracle.CalledBefore(target, call)
		}
		// If the field was never addressed anywhere in this function, there
		// is no local evidence its required methods were ever called, so
		// every one of them is reported unproven — mirroring how the
		// original's CalledMethods dataflow fact defaults to empty for a
		// field this method never itself observed.
		for _, m := range req.Methods {
			if found && (set != nil && set.AlreadyCalled.Contains(m) || fallback.Contains(m)) {
				continue
			}
			ctx.reporter.Report(call.Pos(), report.KeyRequiredMethodNotCalled,
				"precondition failed: %s must have been called on %s before calling %s",
				m, req.Expression, callee.Name())
		}
	}
}

// requiresTarget resolves a @requirescalledmethods expression, written from
// the callee's own receiver's viewpoint, into the ssa.Value it names at this
// call site. A bare "this" resolves to recvKey itself; "this.field" searches
// t.fn's whole instruction stream (not just the currently tracked alias
// sets, since a field observed only via a prior method call may never have
// been Track()ed) for a *ssa.FieldAddr addressing that field on recvKey.
// found is false when the field is never addressed anywhere in the
// function.
func (t *transferer) requiresTarget(recvKey ssa.Value, expr string) (ssa.Value, bool) {
	canon := ir.CanonicalizeExpr(expr)
	if canon == "this" || canon == "" {
		return recvKey, true
	}
	for _, b := range t.fn.Blocks {
		for _, instr := range b.Instrs {
			v, ok := instr.(ssa.Value)
			if !ok {
				continue
			}
			recv, field, ok := calledmethods.FieldReceiver(v)
			if ok && recv == recvKey && field == canon {
				return v, true
			}
		}
	}
	return nil, false
}

// calleeMayFail reports whether sig's last result is error-typed, i.e.
// whether this call has a possible exceptional completion distinct from
// simply running to completion.
func calleeMayFail(sig *types.Signature) bool {
	n := sig.Results().Len()
	if n == 0 {
		return false
	}
	return isErrorType(sig.Results().At(n - 1).Type())
}

func (t *transferer) transferOwningArgs(state State, common *ssa.CallCommon, sig *types.Signature) {
	args := common.Args
	offset := 0
	if !common.IsInvoke() && sig.Recv() != nil {
		offset = 1
	}
	for i := offset; i < len(args); i++ {
		paramIdx := i - offset
		if paramIdx >= sig.Params().Len() {
			break
		}
		paramName := sig.Params().At(paramIdx).Name()
		callee, _ := common.Value.(*ssa.Function)
		var calleeFn *types.Func
		if callee != nil {
			calleeFn, _ = callee.Object().(*types.Func)
		} else if common.IsInvoke() {
			calleeFn = common.Method
		}
		if calleeFn == nil || !t.oracle.OwningParam(calleeFn, paramName) {
			continue
		}
		argKey := resolve(args[i])
		orig, tracked := state.Values[argKey]
		if !tracked {
			continue
		}
		updated := orig.Copy()
		updated.Pending[ir.NormalReturn] = ir.MustCallSet{}
		state.replace(orig, updated)
	}
}

func (t *transferer) applyCreatesMustCallFor(state State, recvKey ssa.Value, callee *types.Func) {
	for _, target := range t.oracle.CreatesMustCallFor(callee) {
		if ir.CanonicalizeExpr(target) != "this" {
			continue
		}
		orig, tracked := state.Values[recvKey]
		if !tracked {
			continue
		}
		updated := orig.Copy()
		updated.Pending[ir.NormalReturn] = orig.MustCall
		updated.Pending[ir.ExceptionalExit] = orig.MustCall
		updated.AlreadyCalled = ir.MustCallSet{}
		state.replace(orig, updated)
	}
}

func (t *transferer) applyEnsures(state State, recvKey ssa.Value, callee *types.Func) {
	orig, tracked := state.Values[recvKey]
	if !tracked {
		return
	}
	updated := orig
	changed := false
	for _, ens := range t.oracle.EnsuresCalledMethods(callee) {
		if ir.CanonicalizeExpr(ens.Expression) != "this" {
			continue
		}
		for _, m := range ens.Methods {
			updated = updated.Discharge(m, ens.ExitKind)
			changed = true
		}
	}
	if changed {
		state.replace(orig, updated)
	}
}

// stepReturn is the *Return* transfer function: at a NormalReturn-
// classified return, every still-pending normal-return obligation on an
// owning alias set is a leak, except the returned value itself when the
// function is not @notowningreturn (ownership passes to the caller) and, in a constructor (§REDESIGN R3) only, any
// alias set that has been stored into a struct field anywhere in this
// function — invariant 4(c) lists field-store as a way an owning alias set
// leaves scope only "in a constructor that then returns normally"; an
// ordinary method storing into an owning field gets no such exclusion,
// since nothing in invariant 4 names that case. The exclusion applies to
// the whole alias set, not just its field-address key, since the same
// underlying resource is usually also still reachable in state.Values
// under its pre-store key (the local variable or parameter that was
// stored). At an ExceptionalReturn (§REDESIGN R1, an error-typed non-nil
// return), ownership does not transfer on this edge (S1's asymmetry):
// every owning alias set's exceptional-exit obligation is checked without
// the returned-value exception, and the field exclusion is inverted — see
// reportExceptionalLeaksWithNote.
func (t *transferer) stepReturn(state State, ret *ssa.Return, ctx *emitContext) {
	switch ClassifyReturn(t.fn, ret) {
	case ir.NormalReturn:
		returned := map[ssa.Value]bool{}
		if fnObj, _ := t.fn.Object().(*types.Func); fnObj == nil || !t.oracle.NotOwningReturn(fnObj) {
			for _, r := range ret.Results {
				returned[resolve(r)] = true
			}
		}
		var fieldOwned map[*ir.AliasSet]bool
		if isConstructor(t.fn) {
			fieldOwned = fieldOwnedSets(state)
		}
		reported := map[*ir.AliasSet]bool{}
		for v, set := range state.Values {
			if !set.Owning || set.Pending[ir.NormalReturn].Empty() {
				continue
			}
			if returned[v] {
				continue
			}
			if fieldOwned[set] {
				continue
			}
			if reported[set] {
				continue
			}
			reported[set] = true
			ctx.reporter.Report(ret.Pos(), report.KeyRequiredMethodNotCalled,
				"%s: %s returns without calling %v", t.fn.Name(), exprFor(v), set.Pending[ir.NormalReturn].Methods())
		}
	case ir.ExceptionalExit:
		t.reportExceptionalLeaks(state, ret.Pos(), ctx)
	}
}

// fieldOwnedSets returns the set of *ir.AliasSet values currently tracked
// under at least one *ssa.FieldAddr key. Used by stepReturn's NormalReturn
// exclusion (constructors only) and exceptionalFieldExclusion's
// ExceptionalExit exclusion (non-constructors only).
func fieldOwnedSets(state State) map[*ir.AliasSet]bool {
	owned := map[*ir.AliasSet]bool{}
	for v, set := range state.Values {
		if isFieldAddr(v) {
			owned[set] = true
		}
	}
	return owned
}

// exceptionalFieldExclusion returns, for a non-constructor function, the
// alias sets stored into a struct field anywhere in the function — sets
// invariant 5 does not apply to, since invariant 5 destroys the receiver's
// identity on "a constructor's error-propagating exit" specifically. The
// grounding original's realloc() spells out the non-constructor case this
// mirrors: "Unlike in a constructor, field assignments in normal methods
// are not leaked when the method exits with an exception, since the
// receiver is still accessible to the caller." A constructor gets no such
// exclusion: its exceptional exit is exactly where a half-built object's
// owning fields become unreachable leaks (spec.md §4.4 "Constructor
// exceptional exit").
func (t *transferer) exceptionalFieldExclusion(state State) map[*ir.AliasSet]bool {
	if isConstructor(t.fn) {
		return nil
	}
	return fieldOwnedSets(state)
}

// stepPanic is the *Panic propagation* transfer function. Every panic still
// leaks whatever owning obligations are pending at the panic site — a fault
// occurring mid-function does not excuse the resources already open in that
// function's own frame. config.Config.IgnoredExceptions instead controls
// whether *this function's own panic* counts as an exceptional-exit surface
// its callers must account for (spec.md §4.4 "Ignored exceptions"): a panic
// matching the list is presumed to indicate a programming bug rather than a
// recoverable condition, so it does not by itself obligate a caller to add
// @ensurescalledmethodsonexception handling, even though the local leak
// here is still reported exactly like any other exceptional exit (scenario
// S2).
func (t *transferer) stepPanic(state State, p *ssa.Panic, ctx *emitContext) {
	note := ""
	if t.cfg.IsIgnoredException(panicMessage(p.X)) {
		note = " (matches a configured ignored-exception pattern: this function's callers are not obligated to handle it, but the local leak still stands)"
	}
	t.reportExceptionalLeaksWithNote(state, p.Pos(), ctx, note)
}

func (t *transferer) reportExceptionalLeaks(state State, pos token.Pos, ctx *emitContext) {
	t.reportExceptionalLeaksWithNote(state, pos, ctx, "")
}

func (t *transferer) reportExceptionalLeaksWithNote(state State, pos token.Pos, ctx *emitContext, note string) {
	fieldOwned := t.exceptionalFieldExclusion(state)
	reported := map[*ir.AliasSet]bool{}
	for v, set := range state.Values {
		if !set.Owning || set.Pending[ir.ExceptionalExit].Empty() {
			continue
		}
		if fieldOwned[set] {
			continue
		}
		if reported[set] {
			continue
		}
		reported[set] = true
		ctx.reporter.Report(pos, report.KeyRequiredMethodNotCalled,
			"%s: %s escapes on an exceptional exit without calling %v%s",
			t.fn.Name(), exprFor(v), set.Pending[ir.ExceptionalExit].Methods(), note)
	}
}

// isFieldAddr reports whether v is the address of a struct field, i.e. a
// value tracked because something was stored into a field rather than into
// a local or parameter.
func isFieldAddr(v ssa.Value) bool {
	_, ok := v.(*ssa.FieldAddr)
	return ok
}

func panicMessage(v ssa.Value) string {
	if c, ok := v.(*ssa.Const); ok && c.Value != nil {
		if c.Value.Kind() == constant.String {
			return constant.StringVal(c.Value)
		}
		return c.Value.String()
	}
	return v.String()
}
