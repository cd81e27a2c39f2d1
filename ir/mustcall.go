package ir

import "sort"

// MustCallSet is a finite set of method names that must be invoked on some
// value before it becomes unreachable. The empty set means no obligation.
// The zero value is the empty set.
type MustCallSet struct {
	methods []string
}

// NewMustCallSet builds a MustCallSet from possibly-unsorted,
// possibly-duplicated method names.
func NewMustCallSet(methods ...string) MustCallSet {
	if len(methods) == 0 {
		return MustCallSet{}
	}
	cp := append([]string(nil), methods...)
	sort.Strings(cp)
	out := cp[:0]
	for i, m := range cp {
		if i == 0 || m != out[len(out)-1] {
			out = append(out, m)
		}
	}
	return MustCallSet{methods: out}
}

// Empty reports whether the set has no obligations.
func (s MustCallSet) Empty() bool {
	return len(s.methods) == 0
}

// Len returns the number of distinct method names in the set.
func (s MustCallSet) Len() int {
	return len(s.methods)
}

// Contains reports whether method is a member of the set.
func (s MustCallSet) Contains(method string) bool {
	_, ok := sort.Find(len(s.methods), func(i int) int {
		switch {
		case s.methods[i] < method:
			return 1
		case s.methods[i] > method:
			return -1
		default:
			return 0
		}
	})
	return ok
}

// Methods returns the sorted, deduplicated member list. The caller must not
// mutate the returned slice.
func (s MustCallSet) Methods() []string {
	return s.methods
}

// Union returns the set containing every method in s or other.
func (s MustCallSet) Union(other MustCallSet) MustCallSet {
	return NewMustCallSet(append(append([]string(nil), s.methods...), other.methods...)...)
}

// Without returns s with every method in other removed: this is how an
// alias set's pending obligations shrink as methods are observed called
// (spec.md §3 invariant 1).
func (s MustCallSet) Without(other MustCallSet) MustCallSet {
	if other.Empty() {
		return s
	}
	var out []string
	for _, m := range s.methods {
		if !other.Contains(m) {
			out = append(out, m)
		}
	}
	return MustCallSet{methods: out}
}

// Subset reports whether every method of s is also in other. Used by the
// lattice ordering in spec.md §3: a smaller MustCallSet is a supertype.
func (s MustCallSet) Subset(other MustCallSet) bool {
	for _, m := range s.methods {
		if !other.Contains(m) {
			return false
		}
	}
	return true
}

// Equal reports whether s and other contain exactly the same methods.
func (s MustCallSet) Equal(other MustCallSet) bool {
	return s.Subset(other) && other.Subset(s)
}
