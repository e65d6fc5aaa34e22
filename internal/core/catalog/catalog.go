package catalog

import (
	"sort"
	"strings"

	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/types"
)

// GenericPrecedence decides between several generic patterns matching
// the same request.
type GenericPrecedence string

const (
	// PrecedenceSpecific prefers the pattern with the fewest markers; ties
	// go to the later declaration.
	PrecedenceSpecific GenericPrecedence = "specific"
	// PrecedenceDeclaration always prefers the later declaration.
	PrecedenceDeclaration GenericPrecedence = "declaration"
)

// Options tune lookup.
type Options struct {
	// UntaggedFallback lets an untagged request use the only tagged binding
	// of its type when no untagged binding exists.
	UntaggedFallback  bool
	GenericPrecedence GenericPrecedence
}

// Status is the outcome of a lookup.
type Status int

const (
	StatusFound Status = iota
	StatusMissing
	StatusInvalid
	StatusAmbiguous
)

// Match is a successful lookup: the binding, the key it was registered
// under and the marker substitution that made it fit.
type Match struct {
	Binding *Binding
	Key     ContractKey
	Subst   types.Subst
	// Candidates is set for StatusAmbiguous.
	Candidates []ContractKey
}

// Shadow records a later binding replacing an earlier one for a key.
type Shadow struct {
	Key         ContractKey
	Previous    *Binding
	Replacement *Binding
}

type entry struct {
	key     ContractKey
	binding *Binding
}

// Catalog maps contract keys to the bindings that satisfy them. For any
// key at most one binding is active: the latest registered.
type Catalog struct {
	opts     Options
	diags    *diag.Collector
	bindings []*Binding
	rejected map[int]bool
	active   map[string]*Binding
	keys     []ContractKey
	generic  []entry
	shadows  []Shadow
}

// New creates an empty catalog reporting into diags.
func New(opts Options, diags *diag.Collector) *Catalog {
	if opts.GenericPrecedence == "" {
		opts.GenericPrecedence = PrecedenceSpecific
	}
	return &Catalog{
		opts:     opts,
		diags:    diags,
		rejected: make(map[int]bool),
		active:   make(map[string]*Binding),
	}
}

// =============================================================================
// Registration
// =============================================================================

// Register validates b, assigns its declaration ordinal and makes it the
// active binding for each of its contracts. Invalid bindings are reported
// and kept out of lookup; nil is returned for them.
func (c *Catalog) Register(b Binding) *Binding {
	b.ID = len(c.bindings)
	if b.Lifetime == "" {
		b.Lifetime = Transient
	}
	if b.Impl.Kind == ImplConstructed && len(b.Impl.Constructors) == 0 {
		b.Impl.Constructors = []Constructor{{Name: "new", Accessible: true, Location: b.Location}}
	}
	bp := &b
	c.bindings = append(c.bindings, bp)

	if !c.validate(bp) {
		c.rejected[bp.ID] = true
		return nil
	}

	seen := make(map[string]bool, len(bp.Contracts))
	for _, key := range bp.Contracts {
		id := key.ID()
		if seen[id] {
			continue
		}
		seen[id] = true

		if prev, ok := c.active[id]; ok {
			c.shadows = append(c.shadows, Shadow{Key: key, Previous: prev, Replacement: bp})
			c.dropGeneric(id)
		} else if !key.Type.HasMarkers() {
			c.keys = append(c.keys, key)
		}
		c.active[id] = bp
		if key.Type.HasMarkers() {
			c.generic = append(c.generic, entry{key: key, binding: bp})
		}
	}
	c.checkImplements(bp)
	return bp
}

func (c *Catalog) dropGeneric(id string) {
	out := c.generic[:0]
	for _, e := range c.generic {
		if e.key.ID() != id {
			out = append(out, e)
		}
	}
	c.generic = out
}

func (c *Catalog) validate(b *Binding) bool {
	ok := true
	report := func(loc diag.Location, template string, params ...string) {
		c.diags.Report(diag.KindInvalidMetadata, loc, "", template, params...)
		ok = false
	}

	if len(b.Contracts) == 0 {
		report(b.Location, diag.MsgNoContracts)
	}
	for _, key := range b.Contracts {
		if key.Type.IsMarker() {
			report(b.Location, diag.MsgMarkerContract, key.String())
		}
	}

	switch b.Impl.Kind {
	case ImplConstructed:
		switch {
		case b.Impl.Type.IsZero():
			report(b.Location, diag.MsgContradictoryBinding, b.Name(), "no implementation type")
		case b.Impl.Type.IsMarker():
			report(b.Location, diag.MsgContradictoryBinding, b.Name(), "implementation is a bare generic marker")
		}
	case ImplFactory:
		f := b.Impl.Factory
		if f == nil {
			report(b.Location, diag.MsgContradictoryBinding, b.Name(), "factory binding without a factory")
			break
		}
		if f.Async {
			report(b.Location, diag.MsgAsyncFactory, f.Name)
		}
		for _, loc := range f.ContextMisuse {
			report(loc, diag.MsgContextMisuse, f.Name)
		}
		for _, op := range f.Ops {
			if op.Type.IsMarker() {
				report(op.Location, diag.MsgMarkerRequest, op.Type.String())
			}
		}
	case ImplArgument:
		if b.Impl.Argument == nil || b.Impl.Argument.Name == "" {
			report(b.Location, diag.MsgContradictoryBinding, b.Name(), "argument without a name")
			break
		}
		for _, key := range b.Contracts {
			if key.Type.HasMarkers() {
				report(b.Location, diag.MsgMarkerArgument, b.Impl.Argument.Name, key.Type.String())
			}
		}
	case ImplValue:
		for _, key := range b.Contracts {
			if key.Type.HasMarkers() {
				report(b.Location, diag.MsgContradictoryBinding, b.Name(), "value bindings cannot be generic")
			}
		}
	default:
		report(b.Location, diag.MsgContradictoryBinding, b.Name(), "unknown implementation kind")
	}
	return ok
}

func (c *Catalog) checkImplements(b *Binding) {
	if b.Impl.Kind != ImplConstructed || b.Impl.Implements == nil {
		return
	}
	for _, key := range b.Contracts {
		if key.Type.Equal(b.Impl.Type) {
			continue
		}
		found := false
		for _, t := range b.Impl.Implements {
			if t.Equal(key.Type) {
				found = true
				break
			}
		}
		if !found {
			c.diags.Report(diag.KindMetadataDefect, b.Location, "", diag.MsgNotImplemented, b.Impl.Type.String(), key.Type.String())
		}
	}
}

// =============================================================================
// Lookup
// =============================================================================

// Find looks key up without reporting. Precedence: exact key, then the
// any-tag binding of the exact type, then generic patterns, then (when
// enabled) the single tagged binding for an untagged request.
func (c *Catalog) Find(key ContractKey) (Match, Status) {
	if key.Type.IsMarker() {
		return Match{}, StatusInvalid
	}
	if b, ok := c.active[key.ID()]; ok {
		return c.match(b, key, key), StatusFound
	}
	if !key.Tag.IsAny() {
		anyKey := Key(key.Type, AnyTag)
		if b, ok := c.active[anyKey.ID()]; ok {
			return c.match(b, anyKey, key), StatusFound
		}
	}
	if m, ok := c.findGeneric(key); ok {
		return m, StatusFound
	}
	if c.opts.UntaggedFallback && key.Tag.IsNone() {
		var candidates []ContractKey
		for _, k := range c.keys {
			if !k.Tag.IsNone() && k.Type.Equal(key.Type) {
				candidates = append(candidates, k)
			}
		}
		switch len(candidates) {
		case 0:
		case 1:
			return c.match(c.active[candidates[0].ID()], candidates[0], key), StatusFound
		default:
			return Match{Candidates: candidates}, StatusAmbiguous
		}
	}
	return Match{}, StatusMissing
}

func (c *Catalog) match(b *Binding, registered, request ContractKey) Match {
	m := Match{Binding: b, Key: registered}
	if registered.Type.HasMarkers() {
		m.Subst, _ = types.Unify(registered.Type, request.Type, nil)
	}
	return m
}

func (c *Catalog) findGeneric(key ContractKey) (Match, bool) {
	var exact, anyTag []Match
	for _, e := range c.generic {
		if e.key.Tag != key.Tag && !e.key.Tag.IsAny() {
			continue
		}
		s, ok := types.Unify(e.key.Type, key.Type, nil)
		if !ok {
			continue
		}
		m := Match{Binding: e.binding, Key: e.key, Subst: s}
		if e.key.Tag == key.Tag {
			exact = append(exact, m)
		} else {
			anyTag = append(anyTag, m)
		}
	}
	if len(exact) > 0 {
		return c.pick(exact), true
	}
	if len(anyTag) > 0 {
		return c.pick(anyTag), true
	}
	return Match{}, false
}

// pick chooses among candidates listed in registration order.
func (c *Catalog) pick(candidates []Match) Match {
	best := candidates[0]
	for _, m := range candidates[1:] {
		if c.opts.GenericPrecedence == PrecedenceSpecific {
			mc, bc := m.Key.Type.MarkerCount(), best.Key.Type.MarkerCount()
			if mc > bc {
				continue
			}
		}
		best = m
	}
	return best
}

// Many returns every active binding whose contract type matches t, across
// all tags, in declaration order. A binding appears once even when several
// of its keys match.
func (c *Catalog) Many(t types.Type) []Match {
	var out []Match
	seen := make(map[int]bool)
	for _, k := range c.keys {
		if !k.Type.Equal(t) {
			continue
		}
		b := c.active[k.ID()]
		if !seen[b.ID] {
			seen[b.ID] = true
			out = append(out, Match{Binding: b, Key: k})
		}
	}
	for _, e := range c.generic {
		s, ok := types.Unify(e.key.Type, t, nil)
		if !ok || seen[e.binding.ID] {
			continue
		}
		seen[e.binding.ID] = true
		out = append(out, Match{Binding: e.binding, Key: e.key, Subst: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Binding.ID < out[j].Binding.ID
	})
	return out
}

// =============================================================================
// Inspection
// =============================================================================

// Bindings returns every registered binding, rejected ones included, in
// declaration order.
func (c *Catalog) Bindings() []*Binding {
	return c.bindings
}

// Shadows returns the recorded key replacements in registration order.
func (c *Catalog) Shadows() []Shadow {
	return c.shadows
}

// Finalize reports replaced bindings and bindings that no root uses. It
// runs once resolution is complete.
func (c *Catalog) Finalize(used func(bindingID int) bool) {
	for _, s := range c.shadows {
		c.diags.Report(diag.KindOverriddenBinding, s.Replacement.Location, "", diag.MsgOverridden,
			s.Key.String(), s.Previous.Location.String())
	}
	for _, b := range c.bindings {
		if c.rejected[b.ID] || used(b.ID) {
			continue
		}
		c.diags.Report(diag.KindMetadataDefect, b.Location, "", diag.MsgUnused, contractList(b.Contracts))
	}
}

func contractList(keys []ContractKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
