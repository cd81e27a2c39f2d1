package pipeline

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

type Holder struct {
	// @owning
	res *Resource
}

func (h *Holder) Close() {
	h.res.Close()
}

type BadHolder struct {
	// @owning
	res *Resource
}

// @owning(res)
func Leaky(res *Resource) {
}
`

func build(t *testing.T) (*types.Package, *token.FileSet, *ssa.Program, []*ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "sample.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	files := []*ast.File{file}
	conf := types.Config{Importer: importer.Default()}
	pkg := types.NewPackage("sample", "")
	ssaPkg, _, err := ssautil.BuildPackage(&conf, fset, pkg, files, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("ssautil.BuildPackage: %v", err)
	}
	return pkg, fset, ssaPkg.Prog, files
}

func buildOracle(files []*ast.File, fset *token.FileSet) *annotate.Oracle {
	registry := annotate.NewRegistry()
	PopulateRegistryFromFiles(registry, files, fset)
	return annotate.NewOracle(registry)
}

func TestCheckDeclarationsFlagsFieldWithNoDischargingSibling(t *testing.T) {
	pkg, fset, _, files := build(t)
	oracle := buildOracle(files, fset)
	engine := New(config.Default())

	diags := engine.CheckDeclarations(pkg, oracle, files)

	found := false
	for _, d := range diags {
		if d.Message != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one declaration-level diagnostic for BadHolder.res, got none")
	}
}

func TestAnalyzeFunctionsFlagsLeakyFunction(t *testing.T) {
	_, fset, prog, files := build(t)
	oracle := buildOracle(files, fset)
	engine := New(config.Default())

	diags := engine.AnalyzeFunctions(prog, oracle)

	if len(diags) == 0 {
		t.Fatalf("expected at least one consistency diagnostic for Leaky, got none")
	}
}
