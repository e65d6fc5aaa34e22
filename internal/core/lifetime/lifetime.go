// Package lifetime assigns sharing keys to resolution nodes and rejects
// lifetime combinations that cannot be honoured at run time.
package lifetime

import (
	"strconv"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/graph"
)

// SharingKey identifies the storage a node's instance lives in. Two nodes
// with equal keys denote the same instance.
type SharingKey struct {
	Lifetime catalog.Lifetime `json:"lifetime"`
	Contract string           `json:"contract"`
	Scope    string           `json:"scope"`
}

func (k SharingKey) String() string {
	return string(k.Lifetime) + ":" + k.Contract + "@" + k.Scope
}

// Analysis is the result of Analyze.
type Analysis struct {
	// Keys is indexed by graph.NodeID.
	Keys []SharingKey
	// Failed flags roots with a lifetime defect.
	Failed []bool
}

// Key returns the sharing key of a node.
func (a Analysis) Key(id graph.NodeID) SharingKey {
	return a.Keys[id]
}

// Analyze computes sharing keys and validates lifetimes:
//
//   - Transient:  one instance per node
//   - PerBlock:   one per (binding, block)
//   - PerResolve: one per (binding, root invocation)
//   - Scoped:     one per (binding, scope)
//   - Singleton:  one per (binding, composition)
//
// A static root may not directly reach a Scoped or Singleton node, and a
// Singleton may not directly reach a Scoped node. Paths through Lazy or
// Func edges are exempt.
func Analyze(g *graph.Graph, diags *diag.Collector) Analysis {
	a := Analysis{
		Keys:   make([]SharingKey, len(g.Nodes)),
		Failed: make([]bool, len(g.Roots)),
	}
	for i := range g.Nodes {
		a.Keys[i] = sharingKey(g, &g.Nodes[i])
	}

	for i, root := range g.Roots {
		if root.Node == graph.NoNode {
			continue
		}
		if root.Static && checkStaticRoot(g, diags, root) {
			a.Failed[i] = true
		}
	}

	reported := make(map[[2]int]bool)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Lifetime != catalog.Singleton || n.Binding == nil {
			continue
		}
		if checkSingleton(g, diags, n, reported) {
			a.Failed[n.Root] = true
		}
	}
	return a
}

func sharingKey(g *graph.Graph, n *graph.Node) SharingKey {
	if n.Binding == nil {
		return SharingKey{Lifetime: catalog.Transient, Contract: n.Key.ID(), Scope: "node:" + strconv.Itoa(int(n.ID))}
	}
	contract := strconv.Itoa(n.Binding.ID) + "/" + n.Key.ID()
	switch n.Lifetime {
	case catalog.PerBlock:
		return SharingKey{Lifetime: n.Lifetime, Contract: contract, Scope: "block:" + strconv.Itoa(int(n.Block))}
	case catalog.PerResolve:
		return SharingKey{Lifetime: n.Lifetime, Contract: contract, Scope: "root:" + g.Roots[n.Root].Name}
	case catalog.Scoped:
		return SharingKey{Lifetime: n.Lifetime, Contract: contract, Scope: "scope"}
	case catalog.Singleton:
		return SharingKey{Lifetime: n.Lifetime, Contract: contract, Scope: "composition"}
	default:
		return SharingKey{Lifetime: catalog.Transient, Contract: contract, Scope: "node:" + strconv.Itoa(int(n.ID))}
	}
}

// checkStaticRoot reports the outermost Scoped or Singleton node directly
// reachable from a static root, without looking past it.
func checkStaticRoot(g *graph.Graph, diags *diag.Collector, root graph.Root) bool {
	found := false
	seen := make(map[graph.NodeID]bool)
	var walk func(id graph.NodeID)
	walk = func(id graph.NodeID) {
		if seen[id] {
			return
		}
		seen[id] = true
		n := &g.Nodes[id]
		if n.Binding != nil && (n.Lifetime == catalog.Scoped || n.Lifetime == catalog.Singleton) {
			found = true
			diags.Report(diag.KindLifetimeDefect, n.Binding.Location, root.Name, diag.MsgStaticRootLifetime,
				n.Key.String(), string(n.Lifetime), root.Name)
			return
		}
		for _, e := range n.Edges {
			if e.To != graph.NoNode && !e.Deferred() {
				walk(e.To)
			}
		}
	}
	walk(root.Node)
	return found
}

func checkSingleton(g *graph.Graph, diags *diag.Collector, s *graph.Node, reported map[[2]int]bool) bool {
	found := false
	seen := map[graph.NodeID]bool{s.ID: true}
	var walk func(id graph.NodeID)
	walk = func(id graph.NodeID) {
		for _, e := range g.Nodes[id].Edges {
			if e.To == graph.NoNode || e.Deferred() || seen[e.To] {
				continue
			}
			seen[e.To] = true
			dep := &g.Nodes[e.To]
			if dep.Binding != nil && dep.Lifetime == catalog.Scoped {
				found = true
				pair := [2]int{s.Binding.ID, dep.Binding.ID}
				if !reported[pair] {
					reported[pair] = true
					diags.Report(diag.KindLifetimeDefect, dep.Binding.Location, g.Roots[s.Root].Name,
						diag.MsgSingletonScoped, s.Key.String(), dep.Key.String())
				}
				continue
			}
			walk(e.To)
		}
	}
	walk(s.ID)
	return found
}
