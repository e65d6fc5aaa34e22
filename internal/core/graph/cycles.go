package graph

import (
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/composer/internal/core/diag"
)

const (
	white uint8 = iota
	gray
	black
)

type cycleSearch struct {
	g        *Graph
	diags    *diag.Collector
	root     string
	color    []uint8
	stack    []NodeID
	reported map[string]bool
	found    bool
}

// DetectCycles reports every cycle made only of direct dependencies. A
// path that crosses a Lazy or Func edge is deferred and never a cycle.
// Each distinct cycle is reported once, at the edge that closes it, even
// when several roots reach it. The result flags the roots that reach one.
func DetectCycles(g *Graph, diags *diag.Collector) []bool {
	failed := make([]bool, len(g.Roots))
	reported := make(map[string]bool)
	for i, root := range g.Roots {
		if root.Node == NoNode {
			continue
		}
		s := &cycleSearch{
			g:        g,
			diags:    diags,
			root:     root.Name,
			color:    make([]uint8, len(g.Nodes)),
			reported: reported,
		}
		s.visit(root.Node)
		failed[i] = s.found
	}
	return failed
}

func (s *cycleSearch) visit(n NodeID) {
	s.color[n] = gray
	s.stack = append(s.stack, n)
	for _, e := range s.g.Nodes[n].Edges {
		if e.To == NoNode || e.Deferred() {
			continue
		}
		switch s.color[e.To] {
		case gray:
			s.report(e)
		case white:
			s.visit(e.To)
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.color[n] = black
}

func (s *cycleSearch) report(closing Edge) {
	s.found = true
	start := len(s.stack) - 1
	for start >= 0 && s.stack[start] != closing.To {
		start--
	}
	members := s.stack[start:]

	ids := make([]string, len(members))
	labels := make([]string, 0, len(members)+1)
	for i, id := range members {
		n := &s.g.Nodes[id]
		ids[i] = n.Key.ID()
		if n.Binding != nil {
			ids[i] += "@" + strconv.Itoa(n.Binding.ID)
		}
		labels = append(labels, n.Key.String())
	}
	labels = append(labels, s.g.Nodes[closing.To].Key.String())

	sort.Strings(ids)
	sig := strings.Join(ids, "|")
	if s.reported[sig] {
		return
	}
	s.reported[sig] = true
	s.diags.Report(diag.KindCyclicDependency, closing.Location, s.root, diag.MsgCycle, strings.Join(labels, " -> "))
}
