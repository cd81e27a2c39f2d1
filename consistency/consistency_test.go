package consistency

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"mustcall/annotate"
	"mustcall/config"
)

const src = `package sample

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() {}

// @owning(res)
func Leaky(res *Resource) {
}

// @owning(res)
func Clean(res *Resource) {
	res.Close()
}

// @owning(res)
func Passthrough(res *Resource) *Resource {
	return res
}
`

func buildAnalyzer(t *testing.T) (*Analyzer, *ssa.Package) {
	t.Helper()
	return buildAnalyzerFromSource(t, "sample", src)
}

func buildAnalyzerFromSource(t *testing.T, pkgName, source string) (*Analyzer, *ssa.Package) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, pkgName+".go", source, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	conf := types.Config{Importer: importer.Default()}
	pkg := types.NewPackage(pkgName, "")
	ssaPkg, _, err := ssautil.BuildPackage(&conf, fset, pkg, []*ast.File{file}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("ssautil.BuildPackage: %v", err)
	}

	registry := annotate.NewRegistry()
	annotate.PopulateRegistryFromFiles(registry, []*ast.File{file}, fset)
	oracle := annotate.NewOracle(registry)
	return New(oracle, config.Default()), ssaPkg
}

func findSSAFunc(pkg *ssa.Package, name string) *ssa.Function {
	member, ok := pkg.Members[name]
	if !ok {
		return nil
	}
	fn, _ := member.(*ssa.Function)
	return fn
}

func TestAnalyzeReportsUndischargedObligation(t *testing.T) {
	analyzer, pkg := buildAnalyzer(t)
	fn := findSSAFunc(pkg, "Leaky")
	if fn == nil {
		t.Fatalf("could not find Leaky")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) == 0 {
		t.Fatalf("expected at least one diagnostic for Leaky, got none")
	}
}

func TestAnalyzeNoLeakWhenDischarged(t *testing.T) {
	analyzer, pkg := buildAnalyzer(t)
	fn := findSSAFunc(pkg, "Clean")
	if fn == nil {
		t.Fatalf("could not find Clean")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for Clean, got %+v", diags)
	}
}

func TestAnalyzeNoLeakWhenReturned(t *testing.T) {
	analyzer, pkg := buildAnalyzer(t)
	fn := findSSAFunc(pkg, "Passthrough")
	if fn == nil {
		t.Fatalf("could not find Passthrough")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for Passthrough (ownership returned to caller), got %+v", diags)
	}
}

const allocSrc = `package alloc

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() {}

func alloc() *Resource { return &Resource{} }

// @mustcall(Close)
type Holder struct {
	// @owning
	resource *Resource
}

func (h *Holder) Close() {
	h.resource.Close()
}

func LeakyAlloc() {
	_ = alloc()
}

func StoreAndReturn() *Holder {
	return &Holder{resource: alloc()}
}

func NewHolder() *Holder {
	return &Holder{resource: alloc()}
}

// @requirescalledmethods(this.resource, Close)
// @createsmustcallfor(this)
func (h *Holder) Realloc() {
	h.resource = alloc()
}

func UseReallocCorrectly(h *Holder) {
	h.resource.Close()
	h.Realloc()
	h.resource.Close()
}

func UseReallocIncorrectly(h *Holder) {
	h.Realloc()
}
`

// TestAnalyzeReportsLeakOnLocallyAllocatedResource exercises
// trackAllocationResult: a value produced by a plain function call (not a
// tracked parameter) must still be recognized as owning a must-call
// obligation when its declared type carries one.
func TestAnalyzeReportsLeakOnLocallyAllocatedResource(t *testing.T) {
	analyzer, pkg := buildAnalyzerFromSource(t, "alloc", allocSrc)
	fn := findSSAFunc(pkg, "LeakyAlloc")
	if fn == nil {
		t.Fatalf("could not find LeakyAlloc")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic for LeakyAlloc, got %+v", diags)
	}
}

// TestAnalyzeStoreIntoFieldNotReportedInConstructor exercises the
// fieldOwnedSets exclusion together with its deduplication fix. Invariant
// 4(c) grants the exclusion only "in a constructor (§REDESIGN R3) that then
// returns normally", so NewHolder and StoreAndReturn (checked by the next
// test) share the identical body and differ
// only in whether isConstructor accepts their name: NewHolder (a bare New<T>
// free function returning *Holder) gets the exclusion and must not be
// flagged at all on its own NormalReturn — nor flagged twice via its
// pre-store and post-store keys aliasing the same set. StoreAndReturn has
// the same body but is not a constructor under R3's naming test, so its
// locally allocated resource, stored into resource and never closed, is a
// genuine leak on its own NormalReturn.
func TestAnalyzeStoreIntoFieldNotReportedInConstructor(t *testing.T) {
	analyzer, pkg := buildAnalyzerFromSource(t, "alloc", allocSrc)
	fn := findSSAFunc(pkg, "NewHolder")
	if fn == nil {
		t.Fatalf("could not find NewHolder")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for NewHolder (constructor field-owned exclusion), got %+v", diags)
	}
}

// TestAnalyzeStoreIntoFieldNotExcludedOutsideConstructor is the R3 negative
// case the maintainer review named directly: a bare top-level function that
// is not a constructor gets no field-owned exclusion, so storing a locally
// allocated resource into a field and returning it normally must still be
// reported.
func TestAnalyzeStoreIntoFieldNotExcludedOutsideConstructor(t *testing.T) {
	analyzer, pkg := buildAnalyzerFromSource(t, "alloc", allocSrc)
	fn := findSSAFunc(pkg, "StoreAndReturn")
	if fn == nil {
		t.Fatalf("could not find StoreAndReturn")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic for StoreAndReturn (not a constructor under R3), got %+v", diags)
	}
}

// TestAnalyzeRequiresCalledMethodsOnField exercises requiresTarget /
// checkRequires resolving a "this.field" precondition expression against
// the receiver's own tracked field, not the receiver itself.
func TestAnalyzeRequiresCalledMethodsOnField(t *testing.T) {
	analyzer, pkg := buildAnalyzerFromSource(t, "alloc", allocSrc)

	fn := findSSAFunc(pkg, "UseReallocCorrectly")
	if fn == nil {
		t.Fatalf("could not find UseReallocCorrectly")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for UseReallocCorrectly, got %+v", diags)
	}

	fn = findSSAFunc(pkg, "UseReallocIncorrectly")
	if fn == nil {
		t.Fatalf("could not find UseReallocIncorrectly")
	}
	diags, err = analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) == 0 {
		t.Fatalf("expected a precondition-violation diagnostic for UseReallocIncorrectly, got none")
	}
}

const failableSrc = `package failable

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() {}

// @mustcall(TryClose)
type FailingResource struct{}

func (r *FailingResource) TryClose() error { return nil }

func bad() bool { return true }

// @owning(res)
func PanicsAfterNonFailingClose(res *Resource) {
	res.Close()
	if bad() {
		panic("bad")
	}
}

// @owning(res)
func PanicsAfterFailingCall(res *FailingResource) {
	res.TryClose()
	if bad() {
		panic("bad")
	}
}
`

// TestAnalyzeCalleeMayFailGatesExceptionalDischarge exercises the
// calleeMayFail asymmetry in stepCall's receiver discharge: calling a
// method whose own signature cannot fail discharges both exit kinds on the
// receiver, while calling one that can fail (error-typed result) discharges
// only the normal-return kind, leaving the exceptional exit still pending.
func TestAnalyzeCalleeMayFailGatesExceptionalDischarge(t *testing.T) {
	analyzer, pkg := buildAnalyzerFromSource(t, "failable", failableSrc)

	fn := findSSAFunc(pkg, "PanicsAfterNonFailingClose")
	if fn == nil {
		t.Fatalf("could not find PanicsAfterNonFailingClose")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for PanicsAfterNonFailingClose (fully discharged before panic), got %+v", diags)
	}

	fn = findSSAFunc(pkg, "PanicsAfterFailingCall")
	if fn == nil {
		t.Fatalf("could not find PanicsAfterFailingCall")
	}
	diags, err = analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic for PanicsAfterFailingCall (exceptional exit still pending), got %+v", diags)
	}
}

const exceptionalFieldSrc = `package excfield

import "errors"

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() {}

func alloc() *Resource { return &Resource{} }

// @mustcall(Close)
type Holder struct {
	// @owning
	resource *Resource
}

func (h *Holder) Close() {
	h.resource.Close()
}

func ReplaceIfNeeded(h *Holder, fail bool) error {
	h.resource = alloc()
	if fail {
		return errors.New("failed")
	}
	return nil
}

func NewHolder(fail bool) (*Holder, error) {
	h := &Holder{resource: alloc()}
	if fail {
		return nil, errors.New("failed")
	}
	return h, nil
}
`

// TestAnalyzeExceptionalFieldExclusionIsConstructorGated exercises
// exceptionalFieldExclusion's inversion of the NormalReturn field-owned
// exclusion: invariant 5 destroys a constructor's receiver identity on its
// error-propagating exit, so a constructor's own field store gets no
// exclusion there and must still be reported; an ordinary, non-constructor
// function storing into a field it was handed and then propagating an error
// leaves the receiver reachable to its caller, so that store is excluded on
// the error return; its normal return, outside a constructor, gets no
// field-owned exclusion and is still reported once.
func TestAnalyzeExceptionalFieldExclusionIsConstructorGated(t *testing.T) {
	analyzer, pkg := buildAnalyzerFromSource(t, "excfield", exceptionalFieldSrc)

	fn := findSSAFunc(pkg, "ReplaceIfNeeded")
	if fn == nil {
		t.Fatalf("could not find ReplaceIfNeeded")
	}
	diags, err := analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic for ReplaceIfNeeded (error return excluded, normal return outside a constructor reported), got %+v", diags)
	}

	fn = findSSAFunc(pkg, "NewHolder")
	if fn == nil {
		t.Fatalf("could not find NewHolder")
	}
	diags, err = analyzer.Analyze(fn)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic for NewHolder's exceptional exit (constructor gets no exclusion), got %+v", diags)
	}
}
