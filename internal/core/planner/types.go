package planner

import (
	"github.com/artpar/composer/internal/core/catalog"
)

// =============================================================================
// Plan Types
// =============================================================================

// StepID indexes Plan.Steps.
type StepID int

// NoStep marks an absent step reference.
const NoStep StepID = -1

// StepKind says what a step does.
type StepKind string

const (
	StepConstruct StepKind = "construct"
	StepFactory   StepKind = "factory"
	StepArgument  StepKind = "argument"
	StepValue     StepKind = "value"
	StepDefault   StepKind = "default"
	StepOverride  StepKind = "override"
	StepFuncArg   StepKind = "func_arg"
	StepLazy      StepKind = "lazy"
	StepFunc      StepKind = "func"
	StepMany      StepKind = "many"
	StepTuple     StepKind = "tuple"
	// StepRecurse re-enters an enclosing inline construction from inside a
	// deferred body.
	StepRecurse StepKind = "recurse"
)

// StorageKind says where a step's value is kept.
type StorageKind string

const (
	// StorageInline values are temporaries of the enclosing block.
	StorageInline StorageKind = "inline"
	// StorageCached values are computed once per block execution.
	StorageCached StorageKind = "cached"
	// StorageShared values live in a lazily initialised slot guarded for
	// concurrent first use.
	StorageShared StorageKind = "shared"
)

// Storage describes a step's storage.
type Storage struct {
	Kind StorageKind `json:"kind"`
	Slot string      `json:"slot,omitempty"`
}

// Input is one value consumed by a step.
type Input struct {
	Step StepID `json:"step"`
	Name string `json:"name,omitempty"`
}

// MemberCall populates one member after construction.
type MemberCall struct {
	Name   string             `json:"name"`
	Kind   catalog.MemberKind `json:"kind"`
	Inputs []Input            `json:"inputs,omitempty"`
}

// Step is one instruction of a plan.
type Step struct {
	ID             StepID           `json:"id"`
	Kind           StepKind         `json:"kind"`
	Contract       string           `json:"contract"`
	Lifetime       catalog.Lifetime `json:"lifetime"`
	Binding        int              `json:"binding"`
	Implementation string           `json:"implementation,omitempty"`
	Constructor    string           `json:"constructor,omitempty"`
	Factory        string           `json:"factory,omitempty"`
	Literal        string           `json:"literal,omitempty"`
	Index          int              `json:"index,omitempty"`
	Inputs         []Input          `json:"inputs,omitempty"`
	Members        []MemberCall     `json:"members,omitempty"`
	Storage        Storage          `json:"storage"`
	// Block is where the step runs; Body is the block it evaluates when it
	// opens one (lazy, func and shared steps).
	Block  int    `json:"block"`
	Body   int    `json:"body"`
	Target StepID `json:"target"`
	// Replay lists, in order, the steps a recurse step re-evaluates.
	Replay []StepID `json:"replay,omitempty"`
}

// Block is an ordered list of steps. Lazy and func blocks run when the
// wrapper is invoked; shared blocks run when the slot is first needed.
type Block struct {
	ID     int      `json:"id"`
	Kind   string   `json:"kind"`
	Parent int      `json:"parent"`
	Steps  []StepID `json:"steps"`
	Args   []StepID `json:"args,omitempty"`
	Result StepID   `json:"result"`
}

// Plan is the construction plan of one root. Block 0 is the root body.
type Plan struct {
	Root     string  `json:"root"`
	Contract string  `json:"contract"`
	Static   bool    `json:"static,omitempty"`
	Dynamic  bool    `json:"dynamic,omitempty"`
	Async    bool    `json:"async,omitempty"`
	Result   StepID  `json:"result"`
	Steps    []Step  `json:"steps"`
	Blocks   []Block `json:"blocks"`
}

// Slot is one shared storage location of the composition.
type Slot struct {
	Key      string           `json:"key"`
	Lifetime catalog.Lifetime `json:"lifetime"`
	Contract string           `json:"contract"`
}

// Step returns the step with the given id.
func (p *Plan) Step(id StepID) *Step {
	return &p.Steps[id]
}

// Shared reports whether the step is kept in a slot.
func (s *Step) Shared() bool {
	return s.Storage.Kind == StorageShared
}
