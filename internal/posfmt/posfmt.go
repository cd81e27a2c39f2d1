// Package posfmt formats token.Pos values as "file:line:col" strings. The
// teacher repo had this helper copy-pasted in utils/util.go,
// analysis/contracts.go, and ir/contracts.go; this port keeps a single copy.
package posfmt

import (
	"fmt"
	"go/token"
)

// FormatPos returns "file:line:col" for pos, or the empty string if fset or
// pos is unavailable.
func FormatPos(fset *token.FileSet, pos token.Pos) string {
	if fset == nil || pos == token.NoPos {
		return ""
	}
	p := fset.Position(pos)
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}
