// Command mustcall-dump parses a single Go source file and prints every
// must-call/ownership annotation fact discovered in it, without running the
// consistency analysis. Grounded on the teacher's root main.go, which walked
// one file with its own Visitor and called PrintContractRegistry; retargeted
// here to the must-call annotation vocabulary.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log"
	"os"

	"mustcall/annotate"
)

func main() {
	path := flag.String("file", "", "path to Go source file to dump annotations for")
	flag.Parse()

	if *path == "" {
		fmt.Println("Usage: mustcall-dump -file <path-to-go-file>")
		os.Exit(1)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, *path, nil, parser.ParseComments)
	if err != nil {
		log.Fatalf("failed to parse file: %v", err)
	}

	registry := annotate.NewRegistry()
	annotate.PopulateRegistryFromFiles(registry, []*ast.File{file}, fset)
	registry.Print(fset)
}
