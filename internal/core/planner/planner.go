package planner

import (
	"container/heap"
	"errors"
	"fmt"

	dgraph "github.com/dominikbraun/graph"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/graph"
	"github.com/artpar/composer/internal/core/lifetime"
)

type planBuilder struct {
	g      *graph.Graph
	a      lifetime.Analysis
	plan   Plan
	reps   map[string]StepID
	blocks map[graph.BlockID]int
	active map[StepID]bool
	order  []StepID
}

// Build produces the plan for g.Roots[root]. The root must not have failed.
func Build(g *graph.Graph, a lifetime.Analysis, root int) (Plan, error) {
	r := g.Roots[root]
	pb := &planBuilder{
		g:      g,
		a:      a,
		reps:   make(map[string]StepID),
		blocks: make(map[graph.BlockID]int),
		active: make(map[StepID]bool),
		plan: Plan{
			Root:     r.Name,
			Contract: r.Key.String(),
			Static:   r.Static,
			Dynamic:  r.Dynamic,
			Async:    r.Async,
		},
	}
	top := pb.block(r.Block)
	pb.plan.Result = pb.step(r.Node, r.Block)
	pb.plan.Blocks[top].Result = pb.plan.Result

	pb.fillReplays()
	if err := pb.sortBlocks(); err != nil {
		return Plan{}, fmt.Errorf("planning root %s: %w", r.Name, err)
	}
	return pb.plan, nil
}

// Slots lists every shared slot across plans once, in order of first
// appearance.
func Slots(plans []Plan) []Slot {
	var out []Slot
	seen := make(map[string]bool)
	for _, p := range plans {
		for _, s := range p.Steps {
			if !s.Shared() || seen[s.Storage.Slot] {
				continue
			}
			seen[s.Storage.Slot] = true
			out = append(out, Slot{Key: s.Storage.Slot, Lifetime: s.Lifetime, Contract: s.Contract})
		}
	}
	return out
}

func (pb *planBuilder) block(gb graph.BlockID) int {
	if idx, ok := pb.blocks[gb]; ok {
		return idx
	}
	parent := -1
	src := pb.g.Blocks[gb]
	if src.Parent != graph.NoBlock {
		parent = pb.block(src.Parent)
	}
	idx := len(pb.plan.Blocks)
	pb.blocks[gb] = idx
	pb.plan.Blocks = append(pb.plan.Blocks, Block{
		ID:     idx,
		Kind:   src.Kind.String(),
		Parent: parent,
		Result: NoStep,
	})
	return idx
}

func storageFor(lt catalog.Lifetime, key lifetime.SharingKey) Storage {
	switch {
	case lt.Shared():
		return Storage{Kind: StorageShared, Slot: key.String()}
	case lt == catalog.PerBlock:
		return Storage{Kind: StorageCached, Slot: key.String()}
	default:
		return Storage{Kind: StorageInline}
	}
}

// step plans node id as consumed from block from and returns its step.
// Nodes with equal sharing keys share one step.
func (pb *planBuilder) step(id graph.NodeID, from graph.BlockID) StepID {
	n := pb.g.Node(id)
	key := pb.a.Key(id)
	if sid, ok := pb.reps[key.String()]; ok {
		if pb.active[sid] && !pb.plan.Steps[sid].Shared() {
			return pb.recurse(sid, from)
		}
		return sid
	}

	sid := StepID(len(pb.plan.Steps))
	s := Step{
		ID:             sid,
		Kind:           stepKind(n.Kind),
		Contract:       n.Key.String(),
		Lifetime:       key.Lifetime,
		Binding:        -1,
		Implementation: n.Impl.String(),
		Block:          pb.block(n.Block),
		Body:           -1,
		Target:         NoStep,
		Storage:        storageFor(key.Lifetime, key),
	}
	if n.Binding != nil {
		s.Binding = n.Binding.ID
	}
	pb.plan.Steps = append(pb.plan.Steps, s)
	pb.reps[key.String()] = sid
	pb.active[sid] = true

	if n.Body != graph.NoBlock {
		pb.plan.Steps[sid].Body = pb.block(n.Body)
	}
	inner := n.Block
	if n.Body != graph.NoBlock {
		inner = n.Body
	}

	switch n.Kind {
	case graph.NodeConstruct:
		pb.construct(sid, n, inner)
	case graph.NodeFactory:
		pb.plan.Steps[sid].Factory = n.Factory.Name
		pb.plan.Steps[sid].Inputs = pb.inputs(n.Edges, inner)
	case graph.NodeArgument, graph.NodeValue, graph.NodeDefault, graph.NodeOverride:
		pb.plan.Steps[sid].Literal = n.Literal
	case graph.NodeFuncArg:
		pb.plan.Steps[sid].Index = n.Index
	case graph.NodeLazy:
		body := pb.plan.Steps[sid].Body
		pb.plan.Blocks[body].Result = pb.step(n.Edges[0].To, n.Body)
	case graph.NodeFunc:
		body := pb.plan.Steps[sid].Body
		var args []StepID
		for _, a := range n.Args {
			args = append(args, pb.step(a, n.Body))
		}
		pb.plan.Blocks[body].Args = args
		pb.plan.Blocks[body].Result = pb.step(n.Edges[0].To, n.Body)
	case graph.NodeMany, graph.NodeTuple:
		pb.plan.Steps[sid].Inputs = pb.inputs(n.Edges, inner)
	}
	if n.Body != graph.NoBlock && n.Kind != graph.NodeLazy && n.Kind != graph.NodeFunc {
		// a shared body yields the shared instance itself
		pb.plan.Blocks[pb.plan.Steps[sid].Body].Result = sid
	}

	pb.active[sid] = false
	blk := pb.plan.Steps[sid].Block
	pb.plan.Blocks[blk].Steps = append(pb.plan.Blocks[blk].Steps, sid)
	pb.order = append(pb.order, sid)
	return sid
}

func (pb *planBuilder) construct(sid StepID, n *graph.Node, inner graph.BlockID) {
	if n.Constructor != nil {
		pb.plan.Steps[sid].Constructor = n.Constructor.Name
	}
	var params []graph.Edge
	byMember := make(map[string][]graph.Edge)
	for _, e := range n.Edges {
		if e.Site == graph.SiteMember {
			byMember[e.Member] = append(byMember[e.Member], e)
		} else {
			params = append(params, e)
		}
	}
	pb.plan.Steps[sid].Inputs = pb.inputs(params, inner)

	var members []MemberCall
	for _, m := range n.Members {
		members = append(members, MemberCall{
			Name:   m.Name,
			Kind:   m.Kind,
			Inputs: pb.inputs(byMember[m.Name], inner),
		})
	}
	pb.plan.Steps[sid].Members = members
}

func (pb *planBuilder) inputs(edges []graph.Edge, from graph.BlockID) []Input {
	if len(edges) == 0 {
		return nil
	}
	out := make([]Input, len(edges))
	for i, e := range edges {
		out[i] = Input{Step: pb.step(e.To, from), Name: e.Name}
	}
	return out
}

func (pb *planBuilder) recurse(target StepID, from graph.BlockID) StepID {
	t := pb.plan.Steps[target]
	sid := StepID(len(pb.plan.Steps))
	blk := pb.block(from)
	pb.plan.Steps = append(pb.plan.Steps, Step{
		ID:             sid,
		Kind:           StepRecurse,
		Contract:       t.Contract,
		Lifetime:       t.Lifetime,
		Binding:        t.Binding,
		Implementation: t.Implementation,
		Block:          blk,
		Body:           -1,
		Target:         target,
		Storage:        Storage{Kind: StorageInline},
	})
	pb.plan.Blocks[blk].Steps = append(pb.plan.Blocks[blk].Steps, sid)
	pb.order = append(pb.order, sid)
	return sid
}

// fillReplays records, for each recurse step, the steps of the target's
// block that rebuild the target, dependencies first.
func (pb *planBuilder) fillReplays() {
	for i := range pb.plan.Steps {
		s := &pb.plan.Steps[i]
		if s.Kind != StepRecurse {
			continue
		}
		target := pb.plan.Steps[s.Target]
		var replay []StepID
		seen := make(map[StepID]bool)
		var visit func(id StepID)
		visit = func(id StepID) {
			if seen[id] {
				return
			}
			seen[id] = true
			st := pb.plan.Steps[id]
			for _, in := range stepInputs(st) {
				dep := pb.plan.Steps[in]
				if dep.Block == target.Block && !dep.Shared() {
					visit(in)
				}
			}
			replay = append(replay, id)
		}
		visit(target.ID)
		s.Replay = replay
	}
}

// sortBlocks orders each block's steps so that every step follows the
// same-block steps it consumes, ties broken by discovery order.
func (pb *planBuilder) sortBlocks() error {
	pos := make(map[StepID]int, len(pb.order))
	for i, id := range pb.order {
		pos[id] = i
	}
	for b := range pb.plan.Blocks {
		blk := &pb.plan.Blocks[b]
		if len(blk.Steps) < 2 {
			continue
		}
		sorted, err := pb.sortBlock(b, pos)
		if err != nil {
			return fmt.Errorf("ordering block %d: %w", b, err)
		}
		blk.Steps = sorted
	}
	return nil
}

func (pb *planBuilder) sortBlock(b int, pos map[StepID]int) ([]StepID, error) {
	steps := pb.plan.Blocks[b].Steps
	dag := dgraph.New(func(id StepID) StepID { return id }, dgraph.Directed())
	for _, id := range steps {
		if err := dag.AddVertex(id); err != nil {
			return nil, err
		}
	}
	for _, id := range steps {
		for _, in := range stepInputs(pb.plan.Steps[id]) {
			if pb.plan.Steps[in].Block != b {
				continue
			}
			if err := dag.AddEdge(in, id); err != nil && !errors.Is(err, dgraph.ErrEdgeAlreadyExists) {
				return nil, err
			}
		}
	}
	adj, err := dag.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	// Kahn's algorithm, always taking the earliest discovered ready step.
	pending := make(map[StepID]int, len(steps))
	for _, targets := range adj {
		for to := range targets {
			pending[to]++
		}
	}
	ready := &stepQueue{pos: pos}
	for _, id := range steps {
		if pending[id] == 0 {
			heap.Push(ready, id)
		}
	}
	out := make([]StepID, 0, len(steps))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(StepID)
		out = append(out, id)
		for to := range adj[id] {
			if pending[to]--; pending[to] == 0 {
				heap.Push(ready, to)
			}
		}
	}
	if len(out) != len(steps) {
		return nil, dgraph.ErrEdgeCreatesCycle
	}
	return out, nil
}

// stepQueue is a min-heap of steps by discovery position.
type stepQueue struct {
	ids []StepID
	pos map[StepID]int
}

func (q *stepQueue) Len() int           { return len(q.ids) }
func (q *stepQueue) Less(i, j int) bool { return q.pos[q.ids[i]] < q.pos[q.ids[j]] }
func (q *stepQueue) Swap(i, j int)      { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *stepQueue) Push(x any)         { q.ids = append(q.ids, x.(StepID)) }

func (q *stepQueue) Pop() any {
	last := q.ids[len(q.ids)-1]
	q.ids = q.ids[:len(q.ids)-1]
	return last
}

func stepInputs(s Step) []StepID {
	var out []StepID
	for _, in := range s.Inputs {
		out = append(out, in.Step)
	}
	for _, m := range s.Members {
		for _, in := range m.Inputs {
			out = append(out, in.Step)
		}
	}
	return out
}

func stepKind(k graph.NodeKind) StepKind {
	switch k {
	case graph.NodeConstruct:
		return StepConstruct
	case graph.NodeFactory:
		return StepFactory
	case graph.NodeArgument:
		return StepArgument
	case graph.NodeValue:
		return StepValue
	case graph.NodeDefault:
		return StepDefault
	case graph.NodeOverride:
		return StepOverride
	case graph.NodeFuncArg:
		return StepFuncArg
	case graph.NodeLazy:
		return StepLazy
	case graph.NodeFunc:
		return StepFunc
	case graph.NodeMany:
		return StepMany
	default:
		return StepTuple
	}
}
