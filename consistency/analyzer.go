package consistency

import (
	"fmt"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"mustcall/annotate"
	"mustcall/calledmethods"
	"mustcall/config"
	"mustcall/ir"
	"mustcall/report"
)

// Analyzer runs the C4 consistency analysis over one function at a time.
type Analyzer struct {
	Oracle *annotate.Oracle
	Config config.Config
}

// New builds an Analyzer.
func New(oracle *annotate.Oracle, cfg config.Config) *Analyzer {
	return &Analyzer{Oracle: oracle, Config: cfg}
}

// Analyze runs the per-function fixpoint and returns every diagnostic
// produced, isolating a panic in the analysis itself as an
// internal-invariant diagnostic rather than crashing the batch (spec.md
// §7's per-function recovery policy). After a panic only that internal
// diagnostic is returned; anything reported for fn before it is discarded.
func (a *Analyzer) Analyze(fn *ssa.Function) (diags []report.Diagnostic, err error) {
	reporter := &report.Reporter{}
	defer func() {
		if r := recover(); r != nil {
			internal := &report.Reporter{}
			internal.ReportInternal(fn.Pos(), "consistency: panic analyzing %s: %v", fn.Name(), r)
			diags = internal.Diagnostics
			err = fmt.Errorf("consistency: internal error analyzing %s: %v", fn.Name(), r)
		}
	}()

	if fn == nil || len(fn.Blocks) == 0 {
		return nil, nil
	}

	t := &transferer{
		fn:           fn,
		oracle:       a.Oracle,
		calledOracle: calledmethods.NewOracle(fn),
		cfg:          a.Config,
	}

	initial := a.initialState(fn)

	in := make([]State, len(fn.Blocks))
	out := make([]State, len(fn.Blocks))
	for i := range fn.Blocks {
		in[i] = NewState()
		out[i] = NewState()
	}

	// Phase 1: converge silently. The obligation lattice is finite (subsets
	// of each allocation site's MCS) and every transfer function is
	// monotone (Discharge/Merge only ever remove from or union pending
	// sets), so a standard block worklist reaches a fixpoint in finitely
	// many steps (spec.md §4.4 "Termination").
	wl := newBlockWorklist(fn.Blocks[0])
	for !wl.Empty() {
		b := wl.Pop()
		var blockIn State
		if b == fn.Blocks[0] {
			blockIn = initial.Copy()
			for _, pred := range b.Preds {
				blockIn = blockIn.Merge(out[pred.Index])
			}
		} else {
			blockIn = NewState()
			for i, pred := range b.Preds {
				if i == 0 {
					blockIn = out[pred.Index].Copy()
				} else {
					blockIn = blockIn.Merge(out[pred.Index])
				}
			}
		}
		in[b.Index] = blockIn

		blockOut := blockIn.Copy()
		for _, instr := range b.Instrs {
			blockOut = t.step(blockOut, instr, nil)
		}

		if !stateEqual(blockOut, out[b.Index]) {
			out[b.Index] = blockOut
			for _, succ := range b.Succs {
				wl.Push(succ)
			}
		}
	}

	// Phase 2: replay once more with diagnostics enabled, using the
	// converged in-states computed above.
	ctx := &emitContext{reporter: reporter}
	for _, b := range fn.Blocks {
		state := in[b.Index].Copy()
		for _, instr := range b.Instrs {
			state = t.step(state, instr, ctx)
		}
	}

	return reporter.Diagnostics, nil
}

// initialState builds the entry state of spec.md §4.4 "Initial state":
// each @owning parameter becomes an owning alias set with obligations
// pending on both exit-kinds; non-owning parameters are borrowed, with no
// obligations.
func (a *Analyzer) initialState(fn *ssa.Function) State {
	state := NewState()

	funcObj, hasObj := fn.Object().(*types.Func)
	if !hasObj {
		// An anonymous function (closure) carries no declaration to
		// attach @owning annotations to; nothing can be tracked from its
		// parameter list.
		return state
	}

	sig := fn.Signature
	offset := 0
	if sig.Recv() != nil {
		offset = 1
	}
	for i, param := range fn.Params {
		paramIdx := i - offset
		if paramIdx < 0 {
			continue // the receiver itself is not parameter-owning-tracked here
		}
		if paramIdx >= sig.Params().Len() {
			continue
		}
		name := sig.Params().At(paramIdx).Name()
		if !a.Oracle.OwningParam(funcObj, name) {
			continue
		}
		mcs, known := a.Oracle.MustCallOf(param.Type())
		if !known {
			mcs = ir.MustCallSet{}
		}
		state.Track(param, ir.NewAliasSet(name, mcs, ir.ProvenanceParameter, true))
	}
	return state
}

// stateEqual reports whether two states are structurally identical: same
// tracked keys, same pending obligations per exit-kind. Used only to
// decide whether Phase 1's fixpoint has stabilized for one block.
func stateEqual(a, b State) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for k, av := range a.Values {
		bv, ok := b.Values[k]
		if !ok {
			return false
		}
		if !av.Pending[ir.NormalReturn].Equal(bv.Pending[ir.NormalReturn]) {
			return false
		}
		if !av.Pending[ir.ExceptionalExit].Equal(bv.Pending[ir.ExceptionalExit]) {
			return false
		}
	}
	return true
}
