// Package report collects diagnostics produced by declcheck and
// consistency, grounded on the teacher's utils/report package and extended
// with a message Key (spec.md §6) and a Severity distinguishing ordinary
// user diagnostics from internal-invariant failures (spec.md §7).
package report

import (
	"fmt"
	"go/token"
)

// Severity distinguishes a user-facing diagnostic from an internal
// invariant violation that indicates a bug in annotations or the framework
// itself (spec.md §7).
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityInternal Severity = "internal"
)

// Message keys, per spec.md §6.
const (
	KeyRequiredMethodNotCalled      = "required.method.not.called"
	KeyOwningOverrideParam          = "owning.override.param"
	KeyOwningOverrideReturn         = "owning.override.return"
	KeyCreatesMustCallForOverride   = "creates.mustcall.for.override.invalid"
	KeyCreatesMustCallForInvalidTgt = "creates.mustcall.for.invalid.target"
	KeyAssignment                   = "assignment"
	KeyInternalInvariant            = "internal.invariant"
)

// Diagnostic is a single reported fact at a source position.
type Diagnostic struct {
	Pos      token.Pos
	File     string
	Line     int
	Column   int
	Severity Severity
	Key      string
	Message  string
}

// Reporter accumulates diagnostics without ever aborting early, so that one
// function's leak never masks another (spec.md §7).
type Reporter struct {
	Diagnostics []Diagnostic
}

// Report appends a user-facing diagnostic.
func (r *Reporter) Report(pos token.Pos, key, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Pos:      pos,
		Severity: SeverityError,
		Key:      key,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ReportInternal appends an internal-invariant diagnostic with a distinct
// Severity, so a driver can choose to abort the batch (spec.md §7).
func (r *Reporter) ReportInternal(pos token.Pos, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Pos:      pos,
		Severity: SeverityInternal,
		Key:      KeyInternalInvariant,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasInternal reports whether any internal-invariant diagnostic was
// recorded.
func (r *Reporter) HasInternal() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityInternal {
			return true
		}
	}
	return false
}

// WithPosition fills in File/Line/Column for every diagnostic from fset,
// resolving Pos once rather than on every Print call.
func (r *Reporter) WithPosition(fset *token.FileSet) {
	if fset == nil {
		return
	}
	for i, d := range r.Diagnostics {
		if d.Pos == token.NoPos {
			continue
		}
		p := fset.Position(d.Pos)
		r.Diagnostics[i].File = p.Filename
		r.Diagnostics[i].Line = p.Line
		r.Diagnostics[i].Column = p.Column
	}
}

// Print writes every diagnostic to stdout in "file:line:col: key: message"
// form.
func (r *Reporter) Print() {
	for _, d := range r.Diagnostics {
		fmt.Printf("%s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Key, d.Message)
	}
}
