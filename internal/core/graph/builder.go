package graph

import (
	"math"
	"strconv"
	"strings"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/selector"
	"github.com/artpar/composer/internal/core/types"
)

// DefaultMaxDepth bounds how deep a dependency chain may grow before the
// request is reported unresolvable.
const DefaultMaxDepth = 64

// Options tune graph construction.
type Options struct {
	MaxDepth int
}

// overrides is an immutable chain of contract keys whose value is fixed
// for the current subtree. Pushing never affects siblings.
type overrides struct {
	id   string
	node NodeID
	next *overrides
}

func (o *overrides) push(key catalog.ContractKey, node NodeID) *overrides {
	return &overrides{id: key.ID(), node: node, next: o}
}

func (o *overrides) find(key catalog.ContractKey) (NodeID, bool) {
	id := key.ID()
	for cur := o; cur != nil; cur = cur.next {
		if cur.id == id {
			return cur.node, true
		}
	}
	return NoNode, false
}

// frame is one binding on the current resolution path.
type frame struct {
	sig  string
	node NodeID
	next *frame
}

func (f *frame) find(sig string) (NodeID, bool) {
	for cur := f; cur != nil; cur = cur.next {
		if cur.sig == sig {
			return cur.node, true
		}
	}
	return NoNode, false
}

type scope struct {
	block     BlockID
	overrides *overrides
	path      *frame
	depth     int
}

func (s scope) enter(block BlockID) scope {
	return scope{block: block, overrides: s.overrides, path: s.path, depth: s.depth + 1}
}

// memoKey identifies a shared node that later requests may reuse. The
// override chain is compared by identity.
type memoKey struct {
	sig       string
	overrides *overrides
	block     BlockID
}

// noLink is the lowest back link of a subtree that has none.
const noLink = NodeID(math.MaxInt)

type builder struct {
	cat      *catalog.Catalog
	diags    *diag.Collector
	opts     Options
	g        *Graph
	root     int
	rootName string
	failed   bool
	memo     map[memoKey]NodeID
	// low is the oldest ancestor linked back to from the subtree being built.
	low NodeID
}

// Build resolves every request against cat. Transient dependencies are
// expanded per request. A PerBlock, PerResolve, Scoped or Singleton
// dependency is built once per root, override chain and (for PerBlock)
// block, and every later request links to that node, unless its subtree
// links back to an ancestor outside itself. A request for a binding
// already on the current path links back to the ancestor; whether that is
// legal is decided by DetectCycles.
func Build(cat *catalog.Catalog, requests []Request, diags *diag.Collector, opts Options) *Graph {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	b := &builder{
		cat:   cat,
		diags: diags,
		opts:  opts,
		g:     &Graph{used: make(map[int]bool)},
	}

	names := make(map[string]bool, len(requests))
	for i, req := range requests {
		b.root, b.rootName, b.failed = i, req.Name, false
		b.memo, b.low = make(map[memoKey]NodeID), noLink
		root := Root{Request: req, Node: NoNode, Block: NoBlock}

		switch {
		case names[req.Name]:
			b.fail(diag.KindInvalidMetadata, req.Location, diag.MsgDuplicateRoot, req.Name)
		case req.Key.Type.IsMarker():
			b.fail(diag.KindInvalidMetadata, req.Location, diag.MsgMarkerRequest, req.Key.String())
		default:
			if req.Dynamic && req.Key.Type.HasMarkers() {
				diags.Report(diag.KindTypeArgInResolveMethod, req.Location, req.Name, diag.MsgGenericDynamicResolve, req.Name)
			}
			root.Block = b.newBlock(BlockRoot, NoBlock, NoNode)
			root.Node = b.resolve(req.Key, req.Location, nil, "", scope{block: root.Block})
		}
		names[req.Name] = true
		root.Failed = b.failed || root.Node == NoNode
		b.g.Roots = append(b.g.Roots, root)
	}
	return b.g
}

func (b *builder) fail(kind diag.Kind, loc diag.Location, template string, params ...string) {
	b.diags.Report(kind, loc, b.rootName, template, params...)
	b.failed = true
}

func (b *builder) add(n Node) NodeID {
	n.ID = NodeID(len(b.g.Nodes))
	n.Root = b.root
	n.Body = NoBlock
	if n.Lifetime == "" {
		n.Lifetime = catalog.Transient
	}
	b.g.Nodes = append(b.g.Nodes, n)
	return n.ID
}

func (b *builder) newBlock(kind BlockKind, parent BlockID, owner NodeID) BlockID {
	id := BlockID(len(b.g.Blocks))
	b.g.Blocks = append(b.g.Blocks, Block{ID: id, Kind: kind, Parent: parent, Owner: owner, Root: b.root})
	return id
}

func (b *builder) edge(from NodeID, e Edge) {
	b.g.Nodes[from].Edges = append(b.g.Nodes[from].Edges, e)
}

// =============================================================================
// Resolution
// =============================================================================

// resolve finds what satisfies key: an override in scope, then a catalog
// binding, then a built-in wrapper, then the declared default literal.
// consumer names the requester for diagnostics; empty means the root.
func (b *builder) resolve(key catalog.ContractKey, loc diag.Location, def *string, consumer string, sc scope) NodeID {
	if sc.depth > b.opts.MaxDepth {
		b.fail(diag.KindUnableToResolve, loc, diag.MsgTooDeep, key.String(), strconv.Itoa(b.opts.MaxDepth))
		return NoNode
	}
	if key.Type.IsMarker() {
		b.fail(diag.KindInvalidMetadata, loc, diag.MsgMarkerRequest, key.String())
		return NoNode
	}
	if id, ok := sc.overrides.find(key); ok {
		return id
	}

	m, status := b.cat.Find(key)
	switch status {
	case catalog.StatusFound:
		return b.fromBinding(key, m, loc, sc)
	case catalog.StatusAmbiguous:
		names := make([]string, len(m.Candidates))
		for i, c := range m.Candidates {
			names[i] = c.String()
		}
		b.fail(diag.KindUnableToResolve, loc, diag.MsgAmbiguous, key.String(), strings.Join(names, ", "))
		return NoNode
	}

	if kind := types.Wrapper(key.Type); kind != types.WrapperNone {
		return b.wrap(kind, key, loc, sc)
	}
	if def != nil {
		return b.add(Node{Kind: NodeDefault, Key: key, Literal: *def, Block: sc.block})
	}
	if consumer == "" {
		b.fail(diag.KindUnableToResolve, loc, diag.MsgUnresolvedRoot, key.String(), b.rootName)
	} else {
		b.fail(diag.KindUnableToResolve, loc, diag.MsgUnresolved, key.String(), consumer)
	}
	return NoNode
}

func (b *builder) fromBinding(key catalog.ContractKey, m catalog.Match, loc diag.Location, sc scope) NodeID {
	bnd := m.Binding
	sig := strconv.Itoa(bnd.ID) + "|" + key.ID()
	if ancestor, ok := sc.path.find(sig); ok {
		b.low = min(b.low, ancestor)
		return ancestor
	}
	mk, memoised := b.reuseKey(sig, bnd, sc)
	if memoised {
		if id, ok := b.memo[mk]; ok {
			return id
		}
	}
	b.g.used[bnd.ID] = true

	if free := bnd.Unbound(m.Subst); len(free) > 0 {
		b.fail(diag.KindTypeCannotBeInferred, bnd.Location, diag.MsgCannotInfer,
			strings.Join(free, ", "), bnd.Name(), key.String())
		return NoNode
	}
	impl := bnd.Instantiate(m.Subst)

	n := Node{Key: key, Binding: bnd, Impl: impl.Type, Block: sc.block}
	switch impl.Kind {
	case catalog.ImplConstructed:
		n.Kind, n.Lifetime = NodeConstruct, bnd.Lifetime
	case catalog.ImplFactory:
		n.Kind, n.Lifetime = NodeFactory, bnd.Lifetime
	case catalog.ImplArgument:
		n.Kind, n.Literal = NodeArgument, impl.Argument.Name
	case catalog.ImplValue:
		n.Kind, n.Literal = NodeValue, impl.Value
	}
	id := b.add(n)

	inner := sc.enter(sc.block)
	inner.path = &frame{sig: sig, node: id, next: sc.path}
	if n.Lifetime.Shared() {
		body := b.newBlock(BlockShared, sc.block, id)
		b.g.Nodes[id].Body = body
		inner.block = body
	}

	outer := b.low
	b.low = noLink
	switch impl.Kind {
	case catalog.ImplConstructed:
		b.construct(id, impl, inner)
	case catalog.ImplFactory:
		b.factory(id, impl.Factory, inner)
	}
	if memoised && b.low >= id {
		b.memo[mk] = id
	}
	b.low = min(outer, b.low)
	return id
}

// reuseKey reports whether nodes of bnd may be reused and under which key.
func (b *builder) reuseKey(sig string, bnd *catalog.Binding, sc scope) (memoKey, bool) {
	if bnd.Impl.Kind != catalog.ImplConstructed && bnd.Impl.Kind != catalog.ImplFactory {
		return memoKey{}, false
	}
	switch {
	case bnd.Lifetime == catalog.PerBlock:
		return memoKey{sig: sig, overrides: sc.overrides, block: sc.block}, true
	case bnd.Lifetime.Shared():
		return memoKey{sig: sig, overrides: sc.overrides, block: NoBlock}, true
	}
	return memoKey{}, false
}

func (b *builder) construct(id NodeID, impl catalog.Implementation, sc scope) {
	name := impl.Type.String()
	sel, problems := selector.Select(impl.Type, impl.Constructors, impl.Members, b.probe(sc))
	if len(problems) > 0 {
		for _, p := range problems {
			b.fail(p.Kind, p.Location, p.Template, p.Params...)
		}
		return
	}

	ctor := impl.Constructors[sel.Constructor]
	b.g.Nodes[id].Constructor = &ctor
	for _, p := range ctor.Params {
		to := b.resolve(p.Key(), p.Location, p.Default, name, sc)
		b.edge(id, Edge{To: to, Key: p.Key(), Site: SiteParameter, Name: p.Name, Location: p.Location})
	}

	members := make([]catalog.Member, 0, len(sel.Members))
	for _, mi := range sel.Members {
		m := impl.Members[mi]
		members = append(members, m)
		for _, p := range m.Params {
			to := b.resolve(p.Key(), p.Location, p.Default, name, sc)
			b.edge(id, Edge{To: to, Key: p.Key(), Site: SiteMember, Name: p.Name, Member: m.Name, Location: p.Location})
		}
	}
	b.g.Nodes[id].Members = members
}

// factory walks the recognised operations in order. An override applies
// to the injections after it, and to everything those injections need.
func (b *builder) factory(id NodeID, f *catalog.FactoryBody, sc scope) {
	b.g.Nodes[id].Factory = f
	inner := sc
	for i, op := range f.Ops {
		key := op.Key()
		switch op.Kind {
		case catalog.OpOverride:
			o := b.add(Node{Kind: NodeOverride, Key: key, Literal: op.Expression, Block: sc.block})
			b.edge(id, Edge{To: o, Key: key, Site: SiteOverride, Name: strconv.Itoa(i), Location: op.Location})
			inner.overrides = inner.overrides.push(key, o)
		case catalog.OpInject:
			to := b.resolve(key, op.Location, nil, f.Name, inner)
			b.edge(id, Edge{To: to, Key: key, Site: SiteInject, Name: strconv.Itoa(i), Location: op.Location})
		}
	}
}

func (b *builder) wrap(kind types.WrapperKind, key catalog.ContractKey, loc diag.Location, sc scope) NodeID {
	label := key.String()
	switch kind {
	case types.WrapperLazy:
		id := b.add(Node{Kind: NodeLazy, Key: key, Block: sc.block})
		body := b.newBlock(BlockLazy, sc.block, id)
		b.g.Nodes[id].Body = body
		target := catalog.Key(key.Type.Args[0], key.Tag)
		to := b.resolve(target, loc, nil, label, sc.enter(body))
		b.edge(id, Edge{To: to, Key: target, Kind: EdgeLazy, Site: SiteWrapped, Location: loc})
		return id

	case types.WrapperFunc:
		id := b.add(Node{Kind: NodeFunc, Key: key, Block: sc.block})
		body := b.newBlock(BlockFunc, sc.block, id)
		b.g.Nodes[id].Body = body
		inner := sc.enter(body)
		args, result := types.FuncParts(key.Type)
		for i, a := range args {
			argKey := catalog.Key(a, catalog.Tag{})
			an := b.add(Node{Kind: NodeFuncArg, Key: argKey, Index: i, Block: body})
			b.g.Nodes[id].Args = append(b.g.Nodes[id].Args, an)
			inner.overrides = inner.overrides.push(argKey, an)
		}
		target := catalog.Key(result, key.Tag)
		to := b.resolve(target, loc, nil, label, inner)
		b.edge(id, Edge{To: to, Key: target, Kind: EdgeFactory, Site: SiteWrapped, Location: loc})
		return id

	case types.WrapperMany:
		id := b.add(Node{Kind: NodeMany, Key: key, Block: sc.block})
		elem := key.Type.Args[0]
		for i, m := range b.cat.Many(elem) {
			itemKey := catalog.Key(elem, m.Key.Tag)
			to := b.fromBinding(itemKey, m, loc, sc.enter(sc.block))
			b.edge(id, Edge{To: to, Key: itemKey, Kind: EdgeEnumerable, Site: SiteItem, Name: strconv.Itoa(i), Location: loc})
		}
		return id

	case types.WrapperTuple:
		id := b.add(Node{Kind: NodeTuple, Key: key, Block: sc.block})
		for i, a := range key.Type.Args {
			itemKey := catalog.Key(a, catalog.Tag{})
			to := b.resolve(itemKey, loc, nil, label, sc.enter(sc.block))
			b.edge(id, Edge{To: to, Key: itemKey, Kind: EdgeTupleComponent, Site: SiteItem, Name: "Item" + strconv.Itoa(i+1), Location: loc})
		}
		return id
	}
	return NoNode
}

// =============================================================================
// Probing
// =============================================================================

func (b *builder) probe(sc scope) selector.Probe {
	return func(p catalog.Parameter) selector.Resolvability {
		if b.available(p.Key(), sc.overrides) {
			return selector.ViaBinding
		}
		if p.Default != nil {
			return selector.ViaDefault
		}
		return selector.Unresolvable
	}
}

// available is a shallow check used to rank constructors. Bare markers
// count as available so that resolution reports them precisely.
func (b *builder) available(key catalog.ContractKey, ov *overrides) bool {
	if key.Type.IsMarker() {
		return true
	}
	if _, ok := ov.find(key); ok {
		return true
	}
	if _, status := b.cat.Find(key); status == catalog.StatusFound {
		return true
	}
	switch types.Wrapper(key.Type) {
	case types.WrapperLazy:
		return b.available(catalog.Key(key.Type.Args[0], key.Tag), ov)
	case types.WrapperFunc:
		args, result := types.FuncParts(key.Type)
		for _, a := range args {
			ov = ov.push(catalog.Key(a, catalog.Tag{}), NoNode)
		}
		return b.available(catalog.Key(result, key.Tag), ov)
	case types.WrapperMany:
		return true
	case types.WrapperTuple:
		for _, a := range key.Type.Args {
			if !b.available(catalog.Key(a, catalog.Tag{}), ov) {
				return false
			}
		}
		return true
	}
	return false
}
