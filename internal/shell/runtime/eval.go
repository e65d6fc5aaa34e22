package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/planner"
)

// =============================================================================
// Frames
// =============================================================================

// frame holds the values computed by one execution of a plan block. Blocks
// nest, so lookups walk to enclosing executions.
type frame struct {
	parent *frame
	block  int
	// slot is the shared slot whose body this frame executes.
	slot string

	mu     sync.Mutex
	values map[planner.StepID]any
}

func newFrame(parent *frame, block int, slot string) *frame {
	return &frame{parent: parent, block: block, slot: slot, values: make(map[planner.StepID]any)}
}

func (f *frame) lookup(id planner.StepID) (any, bool) {
	for fr := f; fr != nil; fr = fr.parent {
		fr.mu.Lock()
		v, ok := fr.values[id]
		fr.mu.Unlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

func (f *frame) set(id planner.StepID, v any) {
	f.mu.Lock()
	f.values[id] = v
	f.mu.Unlock()
}

// home returns the nearest execution of block, or f itself.
func (f *frame) home(block int) *frame {
	for fr := f; fr != nil; fr = fr.parent {
		if fr.block == block {
			return fr
		}
	}
	return f
}

func (f *frame) initializing(slot string) bool {
	for fr := f; fr != nil; fr = fr.parent {
		if fr.slot == slot {
			return true
		}
	}
	return false
}

// =============================================================================
// Evaluator
// =============================================================================

// evaluator runs one plan for one resolve call.
type evaluator struct {
	ctx        context.Context
	plan       *planner.Plan
	registry   Registry
	args       map[string]any
	fallback   map[string]any
	singletons *slotTable
	scoped     *slotTable
	perResolve *slotTable
}

func (e *evaluator) run() (any, error) {
	root := e.plan.Blocks[0]
	fr := newFrame(nil, root.ID, "")
	if err := e.runSteps(root.Steps, fr); err != nil {
		return nil, err
	}
	return e.value(e.plan.Result, fr)
}

func (e *evaluator) runSteps(steps []planner.StepID, fr *frame) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	for _, id := range steps {
		if _, err := e.value(id, fr); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) value(id planner.StepID, fr *frame) (any, error) {
	if id < 0 || int(id) >= len(e.plan.Steps) {
		return nil, fmt.Errorf("%w: step %d", ErrInvalidPlan, id)
	}
	s := e.plan.Step(id)
	if s.Shared() {
		return e.shared(s, fr)
	}
	if v, ok := fr.lookup(id); ok {
		return v, nil
	}
	home := fr.home(s.Block)
	v, err := e.build(s, home)
	if err != nil {
		return nil, e.wrap(s, err)
	}
	home.set(id, v)
	return v, nil
}

func (e *evaluator) shared(s *planner.Step, fr *frame) (any, error) {
	var table *slotTable
	switch s.Lifetime {
	case catalog.Singleton:
		table = e.singletons
	case catalog.Scoped:
		table = e.scoped
	default:
		table = e.perResolve
	}
	return table.get(s.Storage.Slot, fr, func() (any, error) {
		body := fr
		if s.Body >= 0 {
			body = newFrame(fr, s.Body, s.Storage.Slot)
			if err := e.runSteps(e.plan.Blocks[s.Body].Steps, body); err != nil {
				return nil, err
			}
		}
		v, err := e.build(s, body)
		if err != nil {
			return nil, e.wrap(s, err)
		}
		return v, nil
	})
}

func (e *evaluator) wrap(s *planner.Step, err error) error {
	var re *ResolveError
	if errors.As(err, &re) {
		return err
	}
	return NewResolveError(e.plan.Root, s, err)
}

func (e *evaluator) inputs(ins []planner.Input, fr *frame) ([]Arg, error) {
	if len(ins) == 0 {
		return nil, nil
	}
	out := make([]Arg, len(ins))
	for i, in := range ins {
		v, err := e.value(in.Step, fr)
		if err != nil {
			return nil, err
		}
		out[i] = Arg{Name: in.Name, Value: v}
	}
	return out, nil
}

func (e *evaluator) call(s *planner.Step, args []Arg) Call {
	return Call{
		Ctx:            e.ctx,
		Contract:       s.Contract,
		Implementation: s.Implementation,
		Constructor:    s.Constructor,
		Factory:        s.Factory,
		Args:           args,
	}
}

// build computes the value of s in fr.
func (e *evaluator) build(s *planner.Step, fr *frame) (any, error) {
	switch s.Kind {
	case planner.StepConstruct:
		return e.construct(s, fr)

	case planner.StepFactory:
		args, err := e.inputs(s.Inputs, fr)
		if err != nil {
			return nil, err
		}
		if fn, ok := e.registry.Factories[s.Factory]; ok {
			return fn(e.call(s, args))
		}
		return &Instance{Type: s.Contract, Factory: s.Factory, Args: args}, nil

	case planner.StepArgument:
		if v, ok := e.args[s.Literal]; ok {
			return v, nil
		}
		if v, ok := e.fallback[s.Literal]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, s.Literal)

	case planner.StepValue, planner.StepDefault, planner.StepOverride:
		return e.registry.literal(s.Literal)

	case planner.StepFuncArg:
		return nil, fmt.Errorf("%w: func argument %d outside its call", ErrInvalidPlan, s.Index)

	case planner.StepLazy:
		body := s.Body
		return newLazy(func() (any, error) {
			return e.deferred().runBody(body, fr, nil)
		}), nil

	case planner.StepFunc:
		body := s.Body
		return Func(func(args ...any) (any, error) {
			return e.deferred().runBody(body, fr, args)
		}), nil

	case planner.StepMany:
		args, err := e.inputs(s.Inputs, fr)
		if err != nil {
			return nil, err
		}
		items := make([]any, len(args))
		for i, a := range args {
			items[i] = a.Value
		}
		return items, nil

	case planner.StepTuple:
		args, err := e.inputs(s.Inputs, fr)
		if err != nil {
			return nil, err
		}
		t := make(Tuple, len(args))
		for i, a := range args {
			t[i] = a.Value
		}
		return t, nil

	case planner.StepRecurse:
		return e.replay(s, fr)
	}
	return nil, fmt.Errorf("%w: unknown step kind %q", ErrInvalidPlan, s.Kind)
}

func (e *evaluator) construct(s *planner.Step, fr *frame) (any, error) {
	args, err := e.inputs(s.Inputs, fr)
	if err != nil {
		return nil, err
	}

	var instance any
	if fn, ok := e.registry.Constructors[s.Implementation]; ok {
		instance, err = fn(e.call(s, args))
		if err != nil {
			return nil, err
		}
	} else {
		instance = &Instance{Type: s.Implementation, Constructor: s.Constructor, Args: args}
	}

	for _, m := range s.Members {
		margs, err := e.inputs(m.Inputs, fr)
		if err != nil {
			return nil, err
		}
		c := e.call(s, margs)
		c.Member = m.Name
		if fn, ok := e.registry.Members[s.Implementation+"."+m.Name]; ok {
			if err := fn(instance, c); err != nil {
				return nil, err
			}
		} else if rec, ok := instance.(*Instance); ok {
			rec.Injections = append(rec.Injections, c)
		}
	}
	return instance, nil
}

// deferred returns the evaluator used by lazy and func bodies, which may
// run after the resolve call's context is gone.
func (e *evaluator) deferred() *evaluator {
	d := *e
	d.ctx = context.WithoutCancel(e.ctx)
	return &d
}

func (e *evaluator) runBody(body int, parent *frame, args []any) (any, error) {
	if body < 0 || body >= len(e.plan.Blocks) {
		return nil, fmt.Errorf("%w: block %d", ErrInvalidPlan, body)
	}
	blk := e.plan.Blocks[body]
	if len(args) != len(blk.Args) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArgumentCount, len(blk.Args), len(args))
	}
	fr := newFrame(parent, body, "")
	for i, id := range blk.Args {
		fr.set(id, args[i])
	}
	if err := e.runSteps(blk.Steps, fr); err != nil {
		return nil, err
	}
	return e.value(blk.Result, fr)
}

// replay rebuilds the target of a recursion step in a fresh execution of
// its block.
func (e *evaluator) replay(s *planner.Step, fr *frame) (any, error) {
	if s.Target < 0 || len(s.Replay) == 0 {
		return nil, fmt.Errorf("%w: recursion without target", ErrInvalidPlan)
	}
	target := e.plan.Step(s.Target)
	rf := newFrame(fr, target.Block, "")
	for _, id := range s.Replay {
		step := e.plan.Step(id)
		v, err := e.build(step, rf)
		if err != nil {
			return nil, e.wrap(step, err)
		}
		rf.set(id, v)
	}
	v, _ := rf.lookup(s.Target)
	return v, nil
}
