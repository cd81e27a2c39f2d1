package pipeline

import (
	"flag"
	"go/token"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"

	"mustcall/annotate"
	"mustcall/config"
	"mustcall/internal/xlog"
	"mustcall/report"
)

// GoAnalysisAnalyzer adapts this module's checks into a single
// golang.org/x/tools/go/analysis.Analyzer, grounded on the teacher's own
// pipeline/goanalysis_adapter.go, which wired its lock-contract analyzer
// the same way around buildssa.Analyzer.
var GoAnalysisAnalyzer = &analysis.Analyzer{
	Name:     "mustcall",
	Doc:      "checks that every @owning resource has its @mustcall methods called on every exit path",
	Requires: []*analysis.Analyzer{buildssa.Analyzer},
	Run:      runGoAnalysis,
	Flags:    newFlagSet(),
}

var (
	flagPermitStaticOwning     bool
	flagNoLightweightOwnership bool
	flagStrictFieldMatch       bool
	flagVerbose                bool
)

func newFlagSet() flag.FlagSet {
	var fs flag.FlagSet
	fs.BoolVar(&flagPermitStaticOwning, "permit-static-owning", false,
		"do not require @owning package-level variables to be discharged")
	fs.BoolVar(&flagNoLightweightOwnership, "no-lightweight-ownership", false,
		"disable owning-field analysis on locals and non-annotated fields")
	fs.BoolVar(&flagStrictFieldMatch, "strict-field-match", false,
		"require exact field matches in @ensurescalledmethods postconditions instead of substring matches")
	fs.BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	return fs
}

func configFromFlags() config.Config {
	cfg := config.Default()
	cfg.PermitStaticOwning = flagPermitStaticOwning
	cfg.NoLightweightOwnership = flagNoLightweightOwnership
	cfg.StrictFieldMatch = flagStrictFieldMatch
	return cfg
}

func runGoAnalysis(pass *analysis.Pass) (any, error) {
	if flagVerbose {
		xlog.SetLevel(xlog.Debug)
	}

	registry := annotate.NewRegistry()
	PopulateRegistryFromFiles(registry, pass.Files, pass.Fset)
	oracle := annotate.NewOracle(registry)

	cfg := configFromFlags()
	engine := New(cfg)

	var diags []report.Diagnostic
	if !cfg.NoLightweightOwnership {
		diags = append(diags, engine.CheckDeclarations(pass.Pkg, oracle, pass.Files)...)
	}

	ssaInput := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)
	diags = append(diags, engine.AnalyzeFunctions(ssaInput.Pkg.Prog, oracle)...)

	for _, d := range diags {
		if d.Pos == token.NoPos {
			xlog.Warnf("%s: %s (no position available)", d.Key, d.Message)
			continue
		}
		pass.Report(analysis.Diagnostic{
			Pos:      d.Pos,
			Category: d.Key,
			Message:  d.Message,
		})
	}
	return nil, nil
}
