// Package planner turns a validated resolution graph into construction
// plans: one per root, deterministic and serialisable.
//
// All functions are pure. A plan is a list of steps grouped into blocks.
// Block 0 holds the root body; every Lazy and Func wrapper opens a block
// that runs when the wrapper is invoked, and every shared instance owns a
// block that runs on first use of its slot.
//
// # Sharing
//
//   - Transient steps are inline temporaries
//   - PerBlock steps are merged within a block
//   - PerResolve, Scoped and Singleton steps are merged across blocks and
//     stored in slots; Slots lists each slot once across all plans
//
// # Usage
//
//	analysis := lifetime.Analyze(g, diags)
//	for i := range g.Roots {
//	    p, err := planner.Build(g, analysis, i)
//	    if err != nil {
//	        return err
//	    }
//	    plans = append(plans, p)
//	}
//	slots := planner.Slots(plans)
package planner
