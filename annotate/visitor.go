package annotate

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"mustcall/internal/xlog"
	"mustcall/ir"
)

// Visitor implements ast.Visitor, populating a Registry from doc-comment
// annotations. Grounded on the teacher's parse/visitor.go: same
// parseAnnotations/handleFuncDecl/handleTypeSpecs shape, retargeted from
// lock-contract annotations (@requires/@acquires/@guarded_by) to the
// must-call vocabulary of annotate/annotations.go.
type Visitor struct {
	Fset     *token.FileSet
	Registry *Registry
}

// parseAnnotations scans every comment in the given groups for annotations.
func (v *Visitor) parseAnnotations(groups ...*ast.CommentGroup) []Annotation {
	var discovered []Annotation
	for _, group := range groups {
		if group == nil {
			continue
		}
		for _, c := range group.List {
			ann, err := ParseAnnotation(c.Text)
			if err == nil && ann.Kind != None {
				discovered = append(discovered, ann)
			}
		}
	}
	return discovered
}

func receiverTypeName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	expr := recv.List[0].Type
	// Strip a leading "*" for pointer receivers, matching the teacher's
	// use of types.ExprString plus its own NormalizeTypeName.
	name := types.ExprString(expr)
	return strings.TrimPrefix(name, "*")
}

func (v *Visitor) handleFuncDecl(n *ast.FuncDecl) {
	key := FuncKey(n.Name.Name, receiverTypeName(n.Recv))
	fact := v.Registry.funcFact(key)
	fact.Pos = n.Pos()

	for _, ann := range v.parseAnnotations(n.Doc) {
		v.applyFuncAnnotation(fact, ann, n.Pos())
	}
}

func (v *Visitor) applyFuncAnnotation(fact *FuncFact, ann Annotation, pos token.Pos) {
	switch ann.Kind {
	case Owning:
		for _, p := range ann.Params {
			fact.OwningParams[p] = true
		}
	case NotOwning:
		for _, p := range ann.Params {
			fact.NotOwningParams[p] = true
		}
	case NotOwningReturn:
		fact.NotOwningReturn = true
	case EnsuresCalledMethods:
		e, ok := splitExpressionAndMethods(ann.Params)
		if ok {
			fact.Ensures = append(fact.Ensures, Ensures{
				Expression: e.Expression,
				Methods:    e.Methods,
				ExitKind:   ir.NormalReturn,
			})
		}
	case EnsuresCalledMethodsOnException:
		e, ok := splitExpressionAndMethods(ann.Params)
		if ok {
			fact.Ensures = append(fact.Ensures, Ensures{
				Expression: e.Expression,
				Methods:    e.Methods,
				ExitKind:   ir.ExceptionalExit,
			})
		}
	case RequiresCalledMethods:
		e, ok := splitExpressionAndMethods(ann.Params)
		if ok {
			fact.Requires = append(fact.Requires, Requires{
				Expression: e.Expression,
				Methods:    e.Methods,
			})
		}
	case CreatesMustCallFor:
		target := ir.DefaultCreatesMustCallTarget
		if len(ann.Params) > 0 && ann.Params[0] != "" {
			target = ann.Params[0]
		}
		fact.CreatesMustCallTargets = append(fact.CreatesMustCallTargets, target)
	default:
		xlog.Warnf("unexpected annotation %v on function at %s", ann.Kind, posForWarning(v.Fset, pos))
	}
}

// exprMethods is the flattened (expression, methods) pair shared by
// @ensurescalledmethods/@ensurescalledmethodsonexception/@requirescalledmethods.
type exprMethods struct {
	Expression string
	Methods    []string
}

func splitExpressionAndMethods(params []string) (exprMethods, bool) {
	if len(params) < 2 {
		return exprMethods{}, false
	}
	return exprMethods{Expression: params[0], Methods: params[1:]}, true
}

func (v *Visitor) handleFieldList(structName string, fields *ast.FieldList) {
	if fields == nil {
		return
	}
	for _, field := range fields.List {
		annotations := v.parseAnnotations(field.Doc, field.Comment)
		for _, name := range field.Names {
			key := FieldKey(structName, name.Name)
			for _, ann := range annotations {
				if ann.Kind != Owning {
					xlog.Warnf("unexpected annotation %v on field %s at %s",
						ann.Kind, key, posForWarning(v.Fset, field.Pos()))
					continue
				}
				f, ok := v.Registry.Fields[key]
				if !ok {
					f = &FieldFact{Pos: field.Pos()}
					v.Registry.Fields[key] = f
				}
				f.Owning = true
			}
		}
	}
}

func (v *Visitor) handleTypeSpec(spec *ast.TypeSpec, doc *ast.CommentGroup) {
	annotations := v.parseAnnotations(doc, spec.Doc)
	for _, ann := range annotations {
		if ann.Kind != MustCall {
			continue
		}
		t, ok := v.Registry.Types[spec.Name.Name]
		if !ok {
			t = &TypeFact{Pos: spec.Pos()}
			v.Registry.Types[spec.Name.Name] = t
		}
		t.HasAnnotation = true
		t.MustCall = t.MustCall.Union(ir.NewMustCallSet(ann.Params...))
	}

	switch t := spec.Type.(type) {
	case *ast.StructType:
		v.handleFieldList(spec.Name.Name, t.Fields)
	case *ast.InterfaceType:
		v.handleInterfaceType(spec.Name.Name, t)
	}
}

// handleInterfaceType registers a FuncFact for every annotated method
// signature of an interface, keyed the same way as a concrete method
// (FuncKey(method, interfaceName)) so that declcheck's override checks can
// look up the interface side of an override pair through the same Oracle
// queries it uses for concrete methods. Interface method signatures are
// *ast.Field nodes inside an *ast.InterfaceType, not *ast.FuncDecl, so they
// need this separate path; handleFuncDecl only ever sees top-level and
// method declarations.
func (v *Visitor) handleInterfaceType(interfaceName string, iface *ast.InterfaceType) {
	if iface.Methods == nil {
		return
	}
	for _, method := range iface.Methods.List {
		if len(method.Names) == 0 {
			continue
		}
		annotations := v.parseAnnotations(method.Doc, method.Comment)
		if len(annotations) == 0 {
			continue
		}
		key := FuncKey(method.Names[0].Name, interfaceName)
		fact := v.Registry.funcFact(key)
		fact.Pos = method.Pos()
		for _, ann := range annotations {
			v.applyFuncAnnotation(fact, ann, method.Pos())
		}
	}
}

// handleValueSpec registers an @owning annotation on a package-level `var`
// declaration (spec.md §4.3(a)(1)'s "static field" analog — Go has no
// dedicated constant-resource declaration form, so a package-level var
// plays that role). doc is the enclosing GenDecl's doc comment, for the
// single-spec `// @owning\nvar x Resource` form; spec.Doc/spec.Comment
// cover the parenthesized `var (...)` block form, mirroring
// handleFieldList's field.Doc/field.Comment pair.
func (v *Visitor) handleValueSpec(spec *ast.ValueSpec, doc *ast.CommentGroup) {
	annotations := v.parseAnnotations(doc, spec.Doc, spec.Comment)
	for _, name := range spec.Names {
		for _, ann := range annotations {
			if ann.Kind != Owning {
				xlog.Warnf("unexpected annotation %v on package variable %s at %s",
					ann.Kind, name.Name, posForWarning(v.Fset, spec.Pos()))
				continue
			}
			f, ok := v.Registry.Vars[name.Name]
			if !ok {
				f = &FieldFact{Pos: spec.Pos()}
				v.Registry.Vars[name.Name] = f
			}
			f.Owning = true
		}
	}
}

func (v *Visitor) handleGenDecl(n *ast.GenDecl) {
	for _, spec := range n.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			v.handleTypeSpec(s, n.Doc)
		case *ast.ValueSpec:
			if n.Tok == token.VAR {
				v.handleValueSpec(s, n.Doc)
			}
		}
	}
}

// Visit implements ast.Visitor.
func (v *Visitor) Visit(node ast.Node) ast.Visitor {
	switch n := node.(type) {
	case *ast.FuncDecl:
		v.handleFuncDecl(n)
	case *ast.GenDecl:
		v.handleGenDecl(n)
	}
	return v
}

func posForWarning(fset *token.FileSet, pos token.Pos) string {
	if fset == nil || pos == token.NoPos {
		return ""
	}
	p := fset.Position(pos)
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// PopulateRegistryFromFiles walks every file with a Visitor, the same
// entry point the teacher's pipeline.PopulateRegistryFromFiles exposed.
func PopulateRegistryFromFiles(registry *Registry, files []*ast.File, fset *token.FileSet) {
	if registry == nil || fset == nil {
		return
	}
	visitor := &Visitor{Fset: fset, Registry: registry}
	for _, file := range files {
		ast.Walk(visitor, file)
	}
}
