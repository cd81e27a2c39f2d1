package annotate

import (
	"fmt"
	"go/token"
	"sort"

	"mustcall/internal/posfmt"
	"mustcall/ir"
)

// Ensures is one flattened @ensurescalledmethods/@ensurescalledmethodsonexception
// fact: the given methods are guaranteed called on expression when the
// annotated function exits with exitKind (spec.md §4.2).
type Ensures struct {
	Expression string
	Methods    []string
	ExitKind   ir.ExitKind
}

// Requires is one flattened @requirescalledmethods precondition.
type Requires struct {
	Expression string
	Methods    []string
}

// FuncFact holds every annotation fact discovered for one function or
// method declaration.
type FuncFact struct {
	Pos token.Pos

	// OwningParams names the parameters (by identifier) annotated @owning.
	OwningParams map[string]bool

	// NotOwningParams names parameters explicitly annotated @notowning,
	// for symmetry with OwningParams (default is non-owning already, but
	// an explicit annotation documents intent and participates in the
	// override checks of declcheck).
	NotOwningParams map[string]bool

	NotOwningReturn bool

	Ensures  []Ensures
	Requires []Requires

	// CreatesMustCallTargets is empty when the function has no
	// @createsmustcallfor annotation at all (spec.md §4.2 distinguishes
	// "unannotated" from "annotated with default target").
	CreatesMustCallTargets []string
}

// FieldFact holds the annotation facts discovered for one struct field (or,
// via Registry.Vars, one package-level variable — the shapes of the fact
// are identical, only the enclosing-scope check in declcheck differs).
type FieldFact struct {
	Pos    token.Pos
	Owning bool
}

// TypeFact holds the annotation facts discovered for one named type.
type TypeFact struct {
	Pos      token.Pos
	MustCall ir.MustCallSet
	// HasAnnotation distinguishes "explicitly annotated @mustcall()" (even
	// with an empty method list) from "no @mustcall annotation at all",
	// which the Oracle's MustCallOf needs to tell "known empty" apart from
	// "unannotated" (spec.md §4.2).
	HasAnnotation bool
}

// Registry is the set of annotation facts discovered by Visitor across one
// or more parsed files. Grounded on the teacher's ir.ContractRegistry,
// retargeted from lock contracts to must-call facts and extended with a
// Types map (the teacher never needed type-level annotations).
type Registry struct {
	// Funcs is keyed by FuncKey(name, receiverTypeName): qualified methods
	// are stored under "Type.Method", and free functions under their bare
	// name, exactly as MakeFunctionKey did in the teacher's ir package.
	Funcs map[string]*FuncFact

	// Fields is keyed by "StructName.fieldName".
	Fields map[string]*FieldFact

	// Vars is keyed by the package-level variable's bare name (spec.md
	// §4.3(a)(1)'s "static field" analog — a package-level var has no
	// enclosing struct to qualify the key with).
	Vars map[string]*FieldFact

	// Types is keyed by the type's declared name within its package.
	Types map[string]*TypeFact
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		Funcs:  make(map[string]*FuncFact),
		Fields: make(map[string]*FieldFact),
		Vars:   make(map[string]*FieldFact),
		Types:  make(map[string]*TypeFact),
	}
}

// FuncKey mirrors the teacher's ir.MakeFunctionKey: qualifies a method name
// by its receiver type, falling back to the bare name for free functions.
func FuncKey(name, receiverTypeName string) string {
	if receiverTypeName == "" {
		return name
	}
	return receiverTypeName + "." + name
}

// FieldKey builds the registry key for a struct field.
func FieldKey(structName, fieldName string) string {
	return structName + "." + fieldName
}

// Print writes every fact in the registry to stdout, grouped by kind and
// sorted by key, for use by a debug dump tool. Grounded on the teacher's
// ir.ContractRegistry.PrintContractRegistry.
func (r *Registry) Print(fset *token.FileSet) {
	if r == nil {
		fmt.Println("<nil Registry>")
		return
	}

	fmt.Println("=== Annotation Registry ===")

	fmt.Println("\n-- Types --")
	if len(r.Types) == 0 {
		fmt.Println("(none)")
	} else {
		for _, key := range sortedKeys(r.Types) {
			tf := r.Types[key]
			pos := posfmt.FormatPos(fset, tf.Pos)
			fmt.Printf("%s @ %s: @mustcall(%v)\n", key, pos, tf.MustCall.Methods())
		}
	}

	fmt.Println("\n-- Fields --")
	if len(r.Fields) == 0 {
		fmt.Println("(none)")
	} else {
		for _, key := range sortedKeys(r.Fields) {
			ff := r.Fields[key]
			pos := posfmt.FormatPos(fset, ff.Pos)
			fmt.Printf("%s @ %s: owning=%v\n", key, pos, ff.Owning)
		}
	}

	fmt.Println("\n-- Vars --")
	if len(r.Vars) == 0 {
		fmt.Println("(none)")
	} else {
		for _, key := range sortedKeys(r.Vars) {
			vf := r.Vars[key]
			pos := posfmt.FormatPos(fset, vf.Pos)
			fmt.Printf("%s @ %s: owning=%v\n", key, pos, vf.Owning)
		}
	}

	fmt.Println("\n-- Functions --")
	if len(r.Funcs) == 0 {
		fmt.Println("(none)")
	} else {
		for _, key := range sortedKeys(r.Funcs) {
			fact := r.Funcs[key]
			pos := posfmt.FormatPos(fset, fact.Pos)
			fmt.Printf("%s @ %s: owning=%v notowning=%v notowningreturn=%v ensures=%v requires=%v createsmustcallfor=%v\n",
				key, pos, mapKeys(fact.OwningParams), mapKeys(fact.NotOwningParams), fact.NotOwningReturn,
				fact.Ensures, fact.Requires, fact.CreatesMustCallTargets)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) funcFact(key string) *FuncFact {
	f, ok := r.Funcs[key]
	if !ok {
		f = &FuncFact{
			OwningParams:    map[string]bool{},
			NotOwningParams: map[string]bool{},
		}
		r.Funcs[key] = f
	}
	return f
}
