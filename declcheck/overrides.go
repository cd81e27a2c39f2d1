// Package declcheck implements the C3 Declaration Checker of spec.md §4.3:
// the purely declaration-level checks that run once per declaration,
// independent of any one function body's control flow.
package declcheck

import "go/types"

// OverridePair is one (interface method, implementing method) pair
// discovered for a concrete type, standing in for the Java override
// relationship per REDESIGN R2: Go has no subclassing, so behavioral
// subtyping is checked wherever a concrete method's signature also
// satisfies an interface method of the same name.
type OverridePair struct {
	// Overrider is the concrete method that must honor the interface
	// method's contract.
	Overrider *types.Func
	// Overridden is the interface method being satisfied.
	Overridden *types.Func
}

// FindOverrides returns, for every interface type in ifaces, the
// pairs (concreteMethod, interfaceMethod) where named's method set
// satisfies that interface and a like-named method exists on both sides.
//
// There is no Go equivalent of javac's ElementUtils.getOverriddenMethods:
// method overriding is structural here, discovered via go/types method
// sets rather than a class hierarchy, so this function is the Go-native
// replacement for that query (spec.md §REDESIGN R2).
func FindOverrides(named *types.Named, ifaces []*types.Interface) []OverridePair {
	if named == nil {
		return nil
	}
	var pairs []OverridePair

	ptrMethodSet := types.NewMethodSet(types.NewPointer(named))
	valMethodSet := types.NewMethodSet(named)

	for _, iface := range ifaces {
		if iface == nil {
			continue
		}
		if !types.Implements(named, iface) && !types.Implements(types.NewPointer(named), iface) {
			continue
		}
		for i := 0; i < iface.NumMethods(); i++ {
			ifaceMethod := iface.Method(i)
			concrete := lookupMethod(ptrMethodSet, ifaceMethod.Name())
			if concrete == nil {
				concrete = lookupMethod(valMethodSet, ifaceMethod.Name())
			}
			if concrete == nil {
				continue
			}
			pairs = append(pairs, OverridePair{Overrider: concrete, Overridden: ifaceMethod})
		}
	}
	return pairs
}

func lookupMethod(set *types.MethodSet, name string) *types.Func {
	sel := set.Lookup(nil, name)
	if sel == nil {
		return nil
	}
	fn, _ := sel.Obj().(*types.Func)
	return fn
}

// InterfacesInScope collects every interface type reachable from a
// package's scope: the declared interfaces that a concrete type's methods
// might be checked against. Grounded on the teacher's parse/visitor.go
// scope-walking pattern, applied to types.Scope instead of ast.Scope.
func InterfacesInScope(pkg *types.Package) []*types.Interface {
	var ifaces []*types.Interface
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		if iface, ok := tn.Type().Underlying().(*types.Interface); ok {
			ifaces = append(ifaces, iface)
		}
	}
	return ifaces
}
