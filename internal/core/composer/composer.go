// Package composer runs the analysis pipeline for one composition
// definition: catalog registration, graph construction, cycle and lifetime
// validation, then planning.
//
// Compose is pure. Failures are returned as diagnostics, never as errors;
// a fatal diagnostic suppresses every plan of the definition but analysis
// of all roots still completes so that every problem is reported.
package composer

import (
	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/graph"
	"github.com/artpar/composer/internal/core/lifetime"
	"github.com/artpar/composer/internal/core/planner"
)

// Input is one composition definition.
type Input struct {
	Name     string
	Bindings []catalog.Binding
	Roots    []graph.Request
	// Diagnostics carries findings of the front end that produced the
	// bindings; they are merged in before analysis.
	Diagnostics []diag.Diagnostic
	Severity    diag.Overrides
	Catalog     catalog.Options
	Graph       graph.Options
}

// RootStatus summarises one root's analysis.
type RootStatus struct {
	Name     string `json:"name"`
	Contract string `json:"contract"`
	Static   bool   `json:"static,omitempty"`
	Failed   bool   `json:"failed"`
}

// Result is the outcome of Compose.
type Result struct {
	Name        string            `json:"name"`
	Success     bool              `json:"success"`
	Roots       []RootStatus      `json:"roots"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Plans       []planner.Plan    `json:"plans,omitempty"`
	Slots       []planner.Slot    `json:"slots,omitempty"`
}

// Errors counts fatal diagnostics.
func (r Result) Errors() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Fatal() {
			n++
		}
	}
	return n
}

// Warnings counts warning diagnostics.
func (r Result) Warnings() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == diag.SeverityWarning {
			n++
		}
	}
	return n
}

// Plan returns the plan of the named root.
func (r Result) Plan(root string) (planner.Plan, bool) {
	for _, p := range r.Plans {
		if p.Root == root {
			return p, true
		}
	}
	return planner.Plan{}, false
}

// Compose analyses in and, when no fatal diagnostic was raised, plans
// every root.
func Compose(in Input) Result {
	diags := diag.NewCollector(in.Severity)
	for _, d := range in.Diagnostics {
		diags.Add(d)
	}

	cat := catalog.New(in.Catalog, diags)
	for _, b := range in.Bindings {
		cat.Register(b)
	}

	g := graph.Build(cat, in.Roots, diags, in.Graph)
	cyclic := graph.DetectCycles(g, diags)
	analysis := lifetime.Analyze(g, diags)
	cat.Finalize(g.Used)

	var plans []planner.Plan
	if !diags.HasFatal() {
		plans = make([]planner.Plan, 0, len(g.Roots))
		for i, r := range g.Roots {
			p, err := planner.Build(g, analysis, i)
			if err != nil {
				diags.Report(diag.KindCyclicDependency, r.Location, r.Name, diag.MsgUnorderable, r.Name, err.Error())
				cyclic[i] = true
				plans = nil
				break
			}
			plans = append(plans, p)
		}
	}

	res := Result{
		Name:        in.Name,
		Success:     !diags.HasFatal() && plans != nil,
		Diagnostics: diags.Items(),
		Roots:       make([]RootStatus, len(g.Roots)),
	}
	for i, r := range g.Roots {
		res.Roots[i] = RootStatus{
			Name:     r.Name,
			Contract: r.Key.String(),
			Static:   r.Static,
			Failed:   r.Failed || cyclic[i] || analysis.Failed[i],
		}
	}
	if !res.Success {
		return res
	}

	res.Plans = plans
	res.Slots = planner.Slots(res.Plans)
	return res
}
