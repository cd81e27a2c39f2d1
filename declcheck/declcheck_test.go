package declcheck

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"mustcall/annotate"
	"mustcall/config"
	"mustcall/report"
)

func buildOracle(t *testing.T, src string) (*types.Package, *token.FileSet, *annotate.Oracle) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "sample.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	conf := types.Config{Importer: importer.Default()}
	pkg, err := conf.Check("sample", fset, []*ast.File{file}, nil)
	if err != nil {
		t.Fatalf("types.Check: %v", err)
	}
	registry := annotate.NewRegistry()
	annotate.PopulateRegistryFromFiles(registry, []*ast.File{file}, fset)
	return pkg, fset, annotate.NewOracle(registry)
}

func namedType(pkg *types.Package, name string) *types.Named {
	obj := pkg.Scope().Lookup(name)
	if obj == nil {
		return nil
	}
	named, _ := obj.Type().(*types.Named)
	return named
}

func structField(named *types.Named, fieldName string) *types.Var {
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return nil
	}
	for i := 0; i < st.NumFields(); i++ {
		if st.Field(i).Name() == fieldName {
			return st.Field(i)
		}
	}
	return nil
}

const satisfiedSrc = `package sample

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() error { return nil }

// @mustcall(Close)
type Holder struct {
	// @owning
	inner Resource
}

// @ensurescalledmethods(this.inner, Close)
// @ensurescalledmethodsonexception(this.inner, Close)
func (h *Holder) Close() error { return nil }
`

func TestCheckOwningFieldSatisfied(t *testing.T) {
	pkg, _, oracle := buildOracle(t, satisfiedSrc)
	holder := namedType(pkg, "Holder")
	field := structField(holder, "inner")
	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)

	c.CheckOwningField(holder, field, false)

	if len(reporter.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", reporter.Diagnostics)
	}
}

const unsatisfiedSrc = `package sample

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() error { return nil }

// @mustcall(Close)
type Holder struct {
	// @owning
	inner Resource
}

func (h *Holder) Close() error { return nil }
`

func TestCheckOwningFieldUnsatisfied(t *testing.T) {
	pkg, _, oracle := buildOracle(t, unsatisfiedSrc)
	holder := namedType(pkg, "Holder")
	field := structField(holder, "inner")
	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)

	c.CheckOwningField(holder, field, false)

	if len(reporter.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %+v", reporter.Diagnostics)
	}
	if reporter.Diagnostics[0].Key != report.KeyRequiredMethodNotCalled {
		t.Errorf("unexpected key: %s", reporter.Diagnostics[0].Key)
	}
}

const noEnclosingMustCallSrc = `package sample

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() error { return nil }

type Holder struct {
	// @owning
	inner Resource
}
`

func TestCheckOwningFieldNoEnclosingMustCall(t *testing.T) {
	pkg, _, oracle := buildOracle(t, noEnclosingMustCallSrc)
	holder := namedType(pkg, "Holder")
	field := structField(holder, "inner")
	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)

	c.CheckOwningField(holder, field, false)

	if len(reporter.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %+v", reporter.Diagnostics)
	}
}

const packageVarSrc = `package sample

// @mustcall(Close)
type Resource struct{}

func (r *Resource) Close() {}

func alloc() *Resource { return &Resource{} }

// @owning
var handle = alloc()
`

func packageVar(pkg *types.Package, name string) *types.Var {
	obj := pkg.Scope().Lookup(name)
	v, _ := obj.(*types.Var)
	return v
}

func TestCheckOwningPackageVarAcceptedWhenNeverReassigned(t *testing.T) {
	pkg, _, oracle := buildOracle(t, packageVarSrc)
	handle := packageVar(pkg, "handle")
	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)

	c.CheckOwningPackageVar(handle, false)

	if len(reporter.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics for a never-reassigned package var, got %+v", reporter.Diagnostics)
	}
}

func TestCheckOwningPackageVarFlaggedWhenReassignedAndNotPermitted(t *testing.T) {
	pkg, _, oracle := buildOracle(t, packageVarSrc)
	handle := packageVar(pkg, "handle")
	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)

	c.CheckOwningPackageVar(handle, true)

	if len(reporter.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic for a reassigned, unpermitted package var, got %+v", reporter.Diagnostics)
	}
}

func TestCheckOwningPackageVarAcceptedWhenPermitStaticOwning(t *testing.T) {
	pkg, _, oracle := buildOracle(t, packageVarSrc)
	handle := packageVar(pkg, "handle")
	reporter := &report.Reporter{}
	cfg := config.Default()
	cfg.PermitStaticOwning = true
	c := New(oracle, cfg, reporter)

	c.CheckOwningPackageVar(handle, true)

	if len(reporter.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics when PermitStaticOwning is set, got %+v", reporter.Diagnostics)
	}
}

const overrideSrc = `package sample

type Closer interface {
	// @owning(res)
	// @notowningreturn
	Handle(res *int) error
}

type Impl struct{}

func (i *Impl) Handle(res *int) error { return nil }
`

func TestCheckOwningOverridesReportsMissingOwning(t *testing.T) {
	pkg, _, oracle := buildOracle(t, overrideSrc)
	impl := namedType(pkg, "Impl")
	closer := namedType(pkg, "Closer")
	iface, _ := closer.Underlying().(*types.Interface)

	pairs := FindOverrides(impl, []*types.Interface{iface})
	if len(pairs) != 1 {
		t.Fatalf("expected 1 override pair, got %d", len(pairs))
	}

	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)
	c.CheckOwningOverrides(pairs[0], token.NoPos)

	if len(reporter.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics (param + return), got %+v", reporter.Diagnostics)
	}
}

const cmcfOverrideSrc = `package sample

type Resettable interface {
	// @createsmustcallfor(this)
	Reset()
}

type Widget struct{}

func (w *Widget) Reset() {}
`

func TestCheckCreatesMustCallForOverridesMissing(t *testing.T) {
	pkg, _, oracle := buildOracle(t, cmcfOverrideSrc)
	widget := namedType(pkg, "Widget")
	resettable := namedType(pkg, "Resettable")
	iface, _ := resettable.Underlying().(*types.Interface)

	pairs := FindOverrides(widget, []*types.Interface{iface})
	if len(pairs) != 1 {
		t.Fatalf("expected 1 override pair, got %d", len(pairs))
	}

	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)
	c.CheckCreatesMustCallForOverrides(pairs[0], token.NoPos)

	if len(reporter.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic since Widget.Reset drops Resettable.Reset's @createsmustcallfor(this), got %+v", reporter.Diagnostics)
	}
}

func TestCheckCreatesMustCallForTargetsInvalid(t *testing.T) {
	pkg, _, oracle := buildOracle(t, `package sample

type Plain struct{}

// @createsmustcallfor(this)
func (p *Plain) Reopen() {}
`)
	plain := namedType(pkg, "Plain")
	method := plain.Method(0)

	reporter := &report.Reporter{}
	c := New(oracle, config.Default(), reporter)
	c.CheckCreatesMustCallForTargets(method, token.NoPos, func(expr string) (types.Type, bool) {
		if expr == "this" {
			return plain, true
		}
		return nil, false
	})

	if len(reporter.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic since Plain has no @mustcall obligation, got %+v", reporter.Diagnostics)
	}
	if reporter.Diagnostics[0].Key != report.KeyCreatesMustCallForInvalidTgt {
		t.Errorf("unexpected key: %s", reporter.Diagnostics[0].Key)
	}
}
