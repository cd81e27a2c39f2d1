// Command mustcall-checker runs the must-call/resource-leak analyzer as a
// go/analysis/singlechecker binary, usable standalone or under go vet -vettool.
// Grounded on the teacher's cmd/gotsan-analyzer/main.go, which drove its own
// lock-contract analyzer the same way.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"mustcall/pipeline"
)

func main() {
	singlechecker.Main(pipeline.GoAnalysisAnalyzer)
}
