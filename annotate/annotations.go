// Package annotate implements the Annotation Oracle (spec.md §4.2): pure
// queries against a program element that extract must-call sets, owning
// marks, ensures/requires postconditions, and creates-must-call effects.
//
// Annotations are written as doc-comment pseudo-annotations, one per
// comment line, in the form "@kind(args)", directly grounded on the
// teacher's analysis/annotations.go two-step
// extractAnnotation/parseAnnotation parser (generalized from the teacher's
// four lock-contract kinds to the must-call vocabulary below).
package annotate

import (
	"fmt"
	"strings"
)

// Kind enumerates the annotation vocabulary this port recognizes.
type Kind int

const (
	None Kind = iota
	MustCall
	Owning
	NotOwning
	NotOwningReturn
	EnsuresCalledMethods
	EnsuresCalledMethodsOnException
	RequiresCalledMethods
	CreatesMustCallFor
)

var kindNames = map[string]Kind{
	"mustcall":                        MustCall,
	"owning":                          Owning,
	"notowning":                       NotOwning,
	"notowningreturn":                 NotOwningReturn,
	"ensurescalledmethods":            EnsuresCalledMethods,
	"ensurescalledmethodsonexception": EnsuresCalledMethodsOnException,
	"requirescalledmethods":           RequiresCalledMethods,
	"createsmustcallfor":              CreatesMustCallFor,
}

func (k Kind) String() string {
	for name, kk := range kindNames {
		if kk == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Annotation is one parsed "@kind(args)" doc comment.
type Annotation struct {
	Kind   Kind
	Params []string
}

// extractAnnotation strips comment markers and the leading "@", returning
// the annotation text and whether the comment was an annotation at all.
// Identical in shape to the teacher's analysis/annotations.go
// extractAnnotation.
func extractAnnotation(comment string) (string, bool) {
	if !strings.Contains(comment, "@") {
		return "", false
	}
	trimmed := strings.TrimSpace(comment)
	stripped := strings.TrimPrefix(trimmed, "//")
	stripped = strings.TrimPrefix(stripped, "/*")
	stripped = strings.TrimSuffix(stripped, "*/")
	cleaned := strings.TrimSpace(stripped)

	if !strings.HasPrefix(cleaned, "@") {
		return "", false
	}
	return strings.TrimSpace(cleaned[1:]), true
}

// parseAnnotation parses "kind(arg1, arg2, ...)" or bare "kind" (no
// parentheses, e.g. "@owning" with no arguments) into an Annotation.
func parseAnnotation(annotation string) (Annotation, error) {
	open := strings.Index(annotation, "(")
	if open == -1 {
		// A bare annotation with no parameter list, e.g. "@owning" or
		// "@notowningreturn".
		name := strings.TrimSpace(annotation)
		kind, ok := kindNames[name]
		if !ok {
			return Annotation{}, fmt.Errorf("unknown annotation: %q", name)
		}
		return Annotation{Kind: kind}, nil
	}

	close := strings.LastIndex(annotation, ")")
	if close == -1 || open > close {
		return Annotation{}, fmt.Errorf("invalid annotation format: %q", annotation)
	}

	name := strings.TrimSpace(annotation[:open])
	kind, ok := kindNames[name]
	if !ok {
		return Annotation{}, fmt.Errorf("unknown annotation: %q", name)
	}

	inner := strings.TrimSpace(annotation[open+1 : close])
	var params []string
	if inner != "" {
		for _, p := range strings.Split(inner, ",") {
			params = append(params, strings.TrimSpace(p))
		}
	}

	return Annotation{Kind: kind, Params: params}, nil
}

// ParseAnnotation parses a raw *ast.Comment text (still carrying its
// "//"/"/*"/"*/" markers) into an Annotation. Returns a zero Annotation
// (Kind == None) with a nil error when the comment is not an annotation at
// all, matching the teacher's convention.
func ParseAnnotation(commentText string) (Annotation, error) {
	annotation, isAnnotation := extractAnnotation(commentText)
	if !isAnnotation {
		return Annotation{}, nil
	}
	return parseAnnotation(annotation)
}
