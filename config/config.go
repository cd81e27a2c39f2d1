// Package config holds the boolean flags shared by declcheck and
// consistency (spec.md §6, extended by SPEC_FULL.md's "AMBIENT STACK" and
// "SUPPLEMENTED FEATURES" sections). There is no file or wire format: the
// boolean fields are populated from the mustcall-checker command-line flags;
// IgnoredExceptions and SkipUses keep their Default values unless a caller
// sets them in code.
package config

import (
	"go/types"
	"strings"
)

// Config is threaded, unmutated, through a single analysis run.
type Config struct {
	// PermitStaticOwning allows @owning package-level variables to skip
	// declcheck's owning-field coverage check entirely (spec.md §4.3(a)(1)).
	PermitStaticOwning bool

	// NoLightweightOwnership disables owning-field analysis entirely on
	// locals and non-annotated fields (spec.md §6).
	NoLightweightOwnership bool

	// IgnoredExceptions lists panic value patterns (each matched as a
	// case-insensitive substring of the panic argument's text: a constant's
	// value, otherwise the SSA value's printed form; type names are not
	// matched) that
	// are not propagated into the exceptional-exit analysis (spec.md §4.4
	// "Ignored exceptions", restored from the original's
	// -AnoCreatesMustCallFor-adjacent ignored-exceptions list). Defaults to
	// DefaultIgnoredExceptions.
	IgnoredExceptions []string

	// SkipUses, when non-nil, suppresses declcheck's owning-field and
	// owning-package-variable diagnostics for an element for which it
	// returns true; consistency does not consult it. Restored from
	// the original's shouldSkipUses filter (SPEC_FULL.md "SUPPLEMENTED
	// FEATURES"). A nil SkipUses never skips.
	SkipUses func(types.Object) bool

	// StrictFieldMatch gates a whole-identifier field matcher in place of
	// the substring matcher declcheck otherwise uses (spec.md §9, restored
	// per SPEC_FULL.md's SUPPLEMENTED FEATURES section).
	StrictFieldMatch bool
}

// DefaultIgnoredExceptions is the default ignored-panic-pattern list:
// panics that indicate a programming bug (nil-dereference-style runtime
// faults), per spec.md §4.4.
var DefaultIgnoredExceptions = []string{
	"runtime error: invalid memory address or nil pointer dereference",
	"runtime error: index out of range",
	"runtime error: integer divide by zero",
}

// Default returns the default configuration: no skipping, default ignored
// exceptions, lightweight ownership enabled.
func Default() Config {
	return Config{
		IgnoredExceptions: append([]string(nil), DefaultIgnoredExceptions...),
	}
}

// ShouldSkip reports whether obj's diagnostics should be suppressed.
func (c Config) ShouldSkip(obj types.Object) bool {
	if c.SkipUses == nil || obj == nil {
		return false
	}
	return c.SkipUses(obj)
}

// IsIgnoredException reports whether msg (a panic argument formatted as a
// string) matches one of the configured ignored patterns.
func (c Config) IsIgnoredException(msg string) bool {
	patterns := c.IgnoredExceptions
	if patterns == nil {
		patterns = DefaultIgnoredExceptions
	}
	lowerMsg := strings.ToLower(msg)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lowerMsg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
