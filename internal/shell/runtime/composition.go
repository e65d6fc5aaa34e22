// Package runtime executes construction plans. A Composition owns the
// singleton instances of one analysed definition; Scopes own scoped
// instances. Both are safe for concurrent use.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/artpar/composer/internal/core/composer"
	"github.com/artpar/composer/internal/core/planner"
)

// Options configure a composition.
type Options struct {
	// Args are the composition-level argument values, keyed by argument
	// name. Values passed to Resolve take precedence.
	Args   map[string]any
	Logger *slog.Logger
}

// Composition resolves the roots of one analysed definition.
type Composition struct {
	id         string
	name       string
	plans      map[string]*planner.Plan
	dynamic    map[string]*planner.Plan
	registry   Registry
	args       map[string]any
	logger     *slog.Logger
	singletons *slotTable
	scoped     *slotTable

	mu       sync.Mutex
	disposed bool
}

// New builds a composition from a successful analysis.
func New(res composer.Result, registry Registry, opts Options) (*Composition, error) {
	if !res.Success {
		return nil, fmt.Errorf("%w: %s (%d errors)", ErrNotComposable, res.Name, res.Errors())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Composition{
		id:         uuid.NewString(),
		name:       res.Name,
		plans:      make(map[string]*planner.Plan, len(res.Plans)),
		dynamic:    make(map[string]*planner.Plan),
		registry:   registry,
		args:       maps.Clone(opts.Args),
		logger:     logger,
		singletons: newSlotTable(),
		scoped:     newSlotTable(),
	}
	for i := range res.Plans {
		p := &res.Plans[i]
		if len(p.Blocks) == 0 {
			return nil, fmt.Errorf("%w: root %s has no blocks", ErrInvalidPlan, p.Root)
		}
		c.plans[p.Root] = p
		if p.Dynamic {
			if _, taken := c.dynamic[p.Contract]; !taken {
				c.dynamic[p.Contract] = p
			}
		}
	}
	logger.Debug("composition created", "composition", c.id, "name", c.name, "roots", len(c.plans))
	return c, nil
}

// ID identifies this composition instance in logs.
func (c *Composition) ID() string { return c.id }

// Roots lists the names of resolvable roots.
func (c *Composition) Roots() []string {
	out := make([]string, 0, len(c.plans))
	for name := range c.plans {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Resolve builds the named root. Scoped instances are kept in the
// composition itself, which acts as the outermost scope.
func (c *Composition) Resolve(ctx context.Context, root string, args map[string]any) (any, error) {
	p, ok := c.plans[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
	return c.resolve(ctx, p, c.scoped, args)
}

// ResolveContract builds the dynamic root declared for contract.
func (c *Composition) ResolveContract(ctx context.Context, contract string, args map[string]any) (any, error) {
	p, ok := c.dynamic[contract]
	if !ok {
		return nil, fmt.Errorf("%w: no dynamic root for %s", ErrUnknownRoot, contract)
	}
	return c.resolve(ctx, p, c.scoped, args)
}

func (c *Composition) resolve(ctx context.Context, p *planner.Plan, scoped *slotTable, args map[string]any) (any, error) {
	if c.isDisposed() {
		return nil, ErrDisposed
	}
	e := &evaluator{
		ctx:        ctx,
		plan:       p,
		registry:   c.registry,
		args:       args,
		fallback:   c.args,
		singletons: c.singletons,
		scoped:     scoped,
		perResolve: newSlotTable(),
	}
	v, err := e.run()
	if err != nil {
		c.logger.Debug("resolve failed", "composition", c.id, "root", p.Root, "error", err)
		return nil, err
	}
	return v, nil
}

// NewScope creates a scope sharing this composition's singletons.
func (c *Composition) NewScope() (*Scope, error) {
	if c.isDisposed() {
		return nil, ErrDisposed
	}
	s := &Scope{id: uuid.NewString(), comp: c, scoped: newSlotTable()}
	c.logger.Debug("scope created", "composition", c.id, "scope", s.id)
	return s, nil
}

// Dispose releases scoped then singleton instances, each in reverse
// creation order. Every instance is attempted; the joined failures are
// returned. Later calls do nothing.
func (c *Composition) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.mu.Unlock()

	err := errors.Join(c.scoped.dispose(c.logger), c.singletons.dispose(c.logger))
	c.logger.Debug("composition disposed", "composition", c.id, "failed", err != nil)
	return err
}

func (c *Composition) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// =============================================================================
// Scope
// =============================================================================

// Scope owns the scoped instances created through it.
type Scope struct {
	id     string
	comp   *Composition
	scoped *slotTable

	mu       sync.Mutex
	disposed bool
}

// ID identifies this scope in logs.
func (s *Scope) ID() string { return s.id }

// Resolve builds the named root inside this scope.
func (s *Scope) Resolve(ctx context.Context, root string, args map[string]any) (any, error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}
	p, ok := s.comp.plans[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
	return s.comp.resolve(ctx, p, s.scoped, args)
}

// Dispose releases this scope's instances in reverse creation order.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()
	return s.scoped.dispose(s.comp.logger)
}

func (s *Scope) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
