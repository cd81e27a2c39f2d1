// Package calledmethods is an intraprocedural, dominance-based scanner
// that answers "which methods are definitely already called on this value
// by this point in the function". spec.md §1 treats an external
// CalledMethods analysis as a black-box collaborator outside the core's
// contract; this package is a real, deliberately simplified stand-in for
// that collaborator so the module runs end to end (SPEC_FULL.md "DOMAIN
// STACK"). consistency.Analyzer is the only caller.
package calledmethods

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"mustcall/ir"
)

// Oracle answers already-called-method queries for one function's SSA
// body.
type Oracle interface {
	// CalledBefore returns the methods guaranteed to have been invoked on
	// v, via any direct or interface call, on every
	// control-flow path from the function's entry to instr.
	CalledBefore(v ssa.Value, instr ssa.Instruction) ir.MustCallSet
}

// ssaOracle is the concrete Oracle, built once per function by walking its
// dominator tree. A block's own already-called state, once it has finished
// executing, is exactly what's inherited by every block it immediately
// dominates: SSA basic blocks execute their instructions in a straight
// line, and the dominator relation guarantees every path into a dominated
// block passes through the dominator first (spec.md §5 "no cross-goroutine
// tracking" applies equally here — this is single-function only).
type ssaOracle struct {
	fn *ssa.Function

	// beforeInstr[instr] is the already-called state as of just before
	// instr executes, keyed by a canonicalized receiver root.
	beforeInstr map[ssa.Instruction]map[ssa.Value]ir.MustCallSet
}

// NewOracle builds an Oracle for fn by a single dominator-tree walk.
// Grounded on the teacher's analyzer/worklist.go queue shape and
// analyzer/ssa_analysis.go's functionDepthFirstSearch traversal, retargeted
// from a plain block DFS driven by CFG successors to a DFS driven by
// dominator-tree children, and from printing blocks to recording
// already-called facts.
func NewOracle(fn *ssa.Function) Oracle {
	o := &ssaOracle{
		fn:          fn,
		beforeInstr: map[ssa.Instruction]map[ssa.Value]ir.MustCallSet{},
	}
	if fn == nil || len(fn.Blocks) == 0 {
		return o
	}
	entryState := map[ssa.Value]ir.MustCallSet{}
	o.walk(fn.Blocks[0], entryState)
	return o
}

// domWorklistItem is one entry of the dominator-tree analogue of the
// teacher's block worklist: a (block, inherited-state) pair, since unlike a
// CFG-successor walk, a dominator-tree walk never needs to merge two
// incoming states (every block has exactly one immediate dominator).
type domWorklistItem struct {
	block *ssa.BasicBlock
	state map[ssa.Value]ir.MustCallSet
}

func (o *ssaOracle) walk(entry *ssa.BasicBlock, entryState map[ssa.Value]ir.MustCallSet) {
	queue := []domWorklistItem{{block: entry, state: entryState}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		state := copyState(item.state)
		for _, instr := range item.block.Instrs {
			o.beforeInstr[instr] = copyState(state)
			if root, method, ok := calleeMethod(instr); ok {
				state[root] = state[root].Union(ir.NewMustCallSet(method))
			}
		}
		for _, child := range item.block.Dominees() {
			queue = append(queue, domWorklistItem{block: child, state: copyState(state)})
		}
	}
}

func copyState(in map[ssa.Value]ir.MustCallSet) map[ssa.Value]ir.MustCallSet {
	out := make(map[ssa.Value]ir.MustCallSet, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// calleeMethod extracts the (receiver, method-name) pair from a call
// instruction, covering both interface (invoke-mode) calls and static
// calls to a method with an explicit receiver argument. Free function
// calls and calls with no discoverable receiver return ok=false.
func calleeMethod(instr ssa.Instruction) (ssa.Value, string, bool) {
	call, ok := instr.(ssa.CallInstruction)
	if !ok {
		return nil, "", false
	}
	common := call.Common()
	if common == nil {
		return nil, "", false
	}
	if common.IsInvoke() {
		return rootValue(common.Value), common.Method.Name(), true
	}
	callee, ok := common.Value.(*ssa.Function)
	if !ok || callee.Signature == nil || callee.Signature.Recv() == nil {
		return nil, "", false
	}
	if len(common.Args) == 0 {
		return nil, "", false
	}
	return rootValue(common.Args[0]), callee.Name(), true
}

// rootValue unwraps a single load (`*ssa.UnOp` with token.MUL) so that a
// value-receiver method called through a pointer variable (SSA lowers
// `p.M()` to `t0 := *p; t0.M()` for value receivers) is attributed to the
// same value identity as the pointer itself.
func rootValue(v ssa.Value) ssa.Value {
	if unop, ok := v.(*ssa.UnOp); ok && unop.Op == token.MUL {
		return unop.X
	}
	return v
}

// CalledBefore implements Oracle.
func (o *ssaOracle) CalledBefore(v ssa.Value, instr ssa.Instruction) ir.MustCallSet {
	state, ok := o.beforeInstr[instr]
	if !ok {
		return ir.MustCallSet{}
	}
	return state[rootValue(v)]
}

// FieldReceiver reports the ssa.Value and field name a *ssa.FieldAddr
// instruction addresses, when v was produced by one; consistency uses this
// to translate a struct-field obligation's "expression" into the SSA value
// whose already-called state it should query. No Java precedent: the
// original works over javac trees and JavaExpression, which have no SSA
// analogue, so this is new, grounded on go/types field access the same way
// annotate/oracle.go already reaches for go/types.
func FieldReceiver(v ssa.Value) (recv ssa.Value, field string, ok bool) {
	switch fa := v.(type) {
	case *ssa.FieldAddr:
		st := fa.X.Type().Underlying()
		if ptr, isPtr := st.(*types.Pointer); isPtr {
			st = ptr.Elem().Underlying()
		}
		structType, isStruct := st.(*types.Struct)
		if !isStruct || fa.Field >= structType.NumFields() {
			return nil, "", false
		}
		return fa.X, structType.Field(fa.Field).Name(), true
	default:
		return nil, "", false
	}
}
