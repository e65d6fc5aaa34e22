// Package graph builds the per-root resolution graph: every contract a
// root transitively needs, the binding or wrapper chosen for it, and the
// blocks that bound deferred evaluation.
package graph

import (
	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/types"
)

// NodeID indexes Graph.Nodes.
type NodeID int

// BlockID indexes Graph.Blocks.
type BlockID int

// NoNode marks an edge whose target could not be resolved.
const NoNode NodeID = -1

// NoBlock marks the absence of a block.
const NoBlock BlockID = -1

// =============================================================================
// Nodes
// =============================================================================

// NodeKind says what a node produces.
type NodeKind int

const (
	NodeConstruct NodeKind = iota
	NodeFactory
	NodeArgument
	NodeValue
	NodeDefault
	NodeOverride
	NodeFuncArg
	NodeLazy
	NodeFunc
	NodeMany
	NodeTuple
)

var nodeKindNames = [...]string{
	NodeConstruct: "construct",
	NodeFactory:   "factory",
	NodeArgument:  "argument",
	NodeValue:     "value",
	NodeDefault:   "default",
	NodeOverride:  "override",
	NodeFuncArg:   "func_arg",
	NodeLazy:      "lazy",
	NodeFunc:      "func",
	NodeMany:      "many",
	NodeTuple:     "tuple",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// Node is one resolved contract.
type Node struct {
	ID   NodeID
	Kind NodeKind
	Key  catalog.ContractKey
	// Binding is nil for wrapper, default, override and func-argument nodes.
	Binding  *catalog.Binding
	Lifetime catalog.Lifetime
	// Impl is the instantiated implementation type.
	Impl        types.Type
	Constructor *catalog.Constructor
	Members     []catalog.Member
	Factory     *catalog.FactoryBody
	// Literal carries the value expression, the default or override
	// expression, or the argument name.
	Literal string
	// Index is the position of a func argument.
	Index int
	// Block is where the node is consumed; Body is the block that holds
	// its dependencies when it opens one.
	Block BlockID
	Body  BlockID
	// Args lists the func-argument nodes a Func node supplies to its body.
	Args  []NodeID
	Edges []Edge
	Root  int
}

// =============================================================================
// Edges
// =============================================================================

// EdgeKind classifies how a dependency is consumed.
type EdgeKind int

const (
	EdgeDirect EdgeKind = iota
	EdgeLazy
	EdgeFactory
	EdgeEnumerable
	EdgeTupleComponent
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeLazy:
		return "lazy"
	case EdgeFactory:
		return "factory"
	case EdgeEnumerable:
		return "enumerable"
	case EdgeTupleComponent:
		return "tuple"
	default:
		return "direct"
	}
}

// SiteKind says where in the consumer an edge originates.
type SiteKind int

const (
	SiteParameter SiteKind = iota
	SiteMember
	SiteInject
	SiteOverride
	SiteWrapped
	SiteItem
)

// Edge is one consumer-to-dependency link.
type Edge struct {
	To   NodeID
	Key  catalog.ContractKey
	Kind EdgeKind
	Site SiteKind
	// Name is the parameter name; Member the member it belongs to.
	Name     string
	Member   string
	Location diag.Location
}

// Deferred reports whether crossing the edge postpones evaluation.
func (e Edge) Deferred() bool {
	return e.Kind == EdgeLazy || e.Kind == EdgeFactory
}

// =============================================================================
// Blocks and Roots
// =============================================================================

// BlockKind classifies blocks.
type BlockKind int

const (
	BlockRoot BlockKind = iota
	BlockLazy
	BlockFunc
	BlockShared
)

func (k BlockKind) String() string {
	switch k {
	case BlockLazy:
		return "lazy"
	case BlockFunc:
		return "func"
	case BlockShared:
		return "shared"
	default:
		return "root"
	}
}

// Deferred reports whether code in the block runs after its parent.
func (k BlockKind) Deferred() bool {
	return k == BlockLazy || k == BlockFunc
}

// Block is a lexical region of evaluation: a root body, a Lazy or Func
// body, or the construction body of a shared instance.
type Block struct {
	ID     BlockID
	Kind   BlockKind
	Parent BlockID
	Owner  NodeID
	Root   int
}

// Request declares one composition root.
type Request struct {
	Name     string
	Key      catalog.ContractKey
	Static   bool
	Dynamic  bool
	Async    bool
	Location diag.Location
}

// Root is a request together with its resolution.
type Root struct {
	Request
	Node   NodeID
	Block  BlockID
	Failed bool
}

// Graph is the resolution graph of every root of a definition.
type Graph struct {
	Nodes  []Node
	Blocks []Block
	Roots  []Root
	used   map[int]bool
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node {
	return &g.Nodes[id]
}

// Used reports whether any root resolution selected the binding.
func (g *Graph) Used(bindingID int) bool {
	return g.used[bindingID]
}
