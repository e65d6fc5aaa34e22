// Package catalog holds the binding model and the lookup table that maps
// requested contracts to the bindings able to satisfy them.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/types"
)

// ErrUnknownLifetime is returned when parsing an unrecognised lifetime.
var ErrUnknownLifetime = errors.New("unknown lifetime")

// =============================================================================
// Lifetimes
// =============================================================================

// Lifetime controls how instances produced by a binding are shared.
type Lifetime string

const (
	Transient  Lifetime = "transient"
	PerBlock   Lifetime = "per_block"
	PerResolve Lifetime = "per_resolve"
	Scoped     Lifetime = "scoped"
	Singleton  Lifetime = "singleton"
)

// ParseLifetime accepts snake, camel and lower-cased forms.
func ParseLifetime(s string) (Lifetime, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	switch norm {
	case "", "transient":
		return Transient, nil
	case "perblock":
		return PerBlock, nil
	case "perresolve":
		return PerResolve, nil
	case "scoped":
		return Scoped, nil
	case "singleton":
		return Singleton, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLifetime, s)
}

// Shared reports whether instances outlive the block that first needs them
// and are therefore constructed in a block of their own.
func (l Lifetime) Shared() bool {
	return l == PerResolve || l == Scoped || l == Singleton
}

// =============================================================================
// Tags and Contract Keys
// =============================================================================

// TagKind discriminates tag values.
type TagKind int

const (
	TagNone TagKind = iota
	TagString
	TagInt
	TagEnum
	TagType
	TagAny
)

// Tag distinguishes bindings of the same contract type. The zero value is
// the absent tag.
type Tag struct {
	Kind  TagKind `json:"kind"`
	Value string  `json:"value,omitempty"`
}

// AnyTag matches every tag on lookup.
var AnyTag = Tag{Kind: TagAny}

// StringTag builds a string tag.
func StringTag(s string) Tag { return Tag{Kind: TagString, Value: s} }

// IntTag builds an integer tag.
func IntTag(i int) Tag { return Tag{Kind: TagInt, Value: strconv.Itoa(i)} }

// EnumTag builds an enum-member tag such as "Color.Red".
func EnumTag(member string) Tag { return Tag{Kind: TagEnum, Value: member} }

// TypeTag builds a tag naming a type.
func TypeTag(t types.Type) Tag { return Tag{Kind: TagType, Value: t.String()} }

func (t Tag) IsNone() bool { return t.Kind == TagNone }
func (t Tag) IsAny() bool  { return t.Kind == TagAny }

func (t Tag) String() string {
	switch t.Kind {
	case TagNone:
		return ""
	case TagString:
		return strconv.Quote(t.Value)
	case TagType:
		return "typeof(" + t.Value + ")"
	case TagAny:
		return "*"
	default:
		return t.Value
	}
}

// ContractKey is the unit of lookup: a type term plus an optional tag.
type ContractKey struct {
	Type types.Type `json:"type"`
	Tag  Tag        `json:"tag"`
}

// Key builds a contract key.
func Key(t types.Type, tag Tag) ContractKey {
	return ContractKey{Type: t, Tag: tag}
}

// ID returns a canonical string usable as a map key.
func (k ContractKey) ID() string {
	return k.Type.String() + "#" + strconv.Itoa(int(k.Tag.Kind)) + ":" + k.Tag.Value
}

func (k ContractKey) String() string {
	if k.Tag.IsNone() {
		return k.Type.String()
	}
	return k.Type.String() + "(" + k.Tag.String() + ")"
}

// =============================================================================
// Implementations
// =============================================================================

// ImplKind discriminates how a binding produces its value.
type ImplKind int

const (
	ImplConstructed ImplKind = iota
	ImplFactory
	ImplArgument
	ImplValue
)

func (k ImplKind) String() string {
	switch k {
	case ImplConstructed:
		return "constructed"
	case ImplFactory:
		return "factory"
	case ImplArgument:
		return "argument"
	case ImplValue:
		return "value"
	default:
		return "unknown"
	}
}

// Parameter is one injected input of a constructor or member.
type Parameter struct {
	Name     string        `json:"name"`
	Type     types.Type    `json:"type"`
	Tag      *Tag          `json:"tag,omitempty"`
	Default  *string       `json:"default,omitempty"`
	Location diag.Location `json:"location"`
}

// Key returns the contract the parameter requests.
func (p Parameter) Key() ContractKey {
	if p.Tag == nil {
		return Key(p.Type, Tag{})
	}
	return Key(p.Type, *p.Tag)
}

// Constructor is a candidate construction strategy.
type Constructor struct {
	Name       string        `json:"name"`
	Params     []Parameter   `json:"params,omitempty"`
	Accessible bool          `json:"accessible"`
	Ordinal    *int          `json:"ordinal,omitempty"`
	Location   diag.Location `json:"location"`
}

// MemberKind classifies injectable members.
type MemberKind string

const (
	MemberField    MemberKind = "field"
	MemberProperty MemberKind = "property"
	MemberMethod   MemberKind = "method"
)

// Member is a field, property or method populated after construction.
type Member struct {
	Name     string        `json:"name"`
	Kind     MemberKind    `json:"kind"`
	Params   []Parameter   `json:"params,omitempty"`
	Ordinal  *int          `json:"ordinal,omitempty"`
	Location diag.Location `json:"location"`
}

// FactoryOpKind discriminates factory body operations.
type FactoryOpKind int

const (
	OpInject FactoryOpKind = iota
	OpOverride
)

// FactoryOp is one recognised operation of a factory body, in source order.
// An override makes Expression the value of Type/Tag for every injection
// that follows it, including injections nested inside them.
type FactoryOp struct {
	Kind       FactoryOpKind `json:"kind"`
	Type       types.Type    `json:"type"`
	Tag        *Tag          `json:"tag,omitempty"`
	Expression string        `json:"expression,omitempty"`
	Location   diag.Location `json:"location"`
}

// Key returns the contract the operation refers to.
func (o FactoryOp) Key() ContractKey {
	if o.Tag == nil {
		return Key(o.Type, Tag{})
	}
	return Key(o.Type, *o.Tag)
}

// FactoryBody is the recognised shape of a user factory.
type FactoryBody struct {
	Name          string          `json:"name"`
	Ops           []FactoryOp     `json:"ops,omitempty"`
	Async         bool            `json:"async,omitempty"`
	ContextMisuse []diag.Location `json:"context_misuse,omitempty"`
}

// Argument describes a value supplied by the caller.
type Argument struct {
	Name string `json:"name"`
	// Root arguments are passed to each root invocation; others are given
	// once when the composition is created.
	Root bool `json:"root,omitempty"`
}

// Implementation says how a binding produces instances.
type Implementation struct {
	Kind ImplKind   `json:"kind"`
	Type types.Type `json:"type"`
	// Implements lists the contracts Type structurally implements. Nil
	// means unknown and disables the check.
	Implements   []types.Type  `json:"implements,omitempty"`
	Constructors []Constructor `json:"constructors,omitempty"`
	Members      []Member      `json:"members,omitempty"`
	Factory      *FactoryBody  `json:"factory,omitempty"`
	Argument     *Argument     `json:"argument,omitempty"`
	Value        string        `json:"value,omitempty"`
}

// Binding is one declared rule. ID is the declaration ordinal assigned on
// registration.
type Binding struct {
	ID        int            `json:"id"`
	Contracts []ContractKey  `json:"contracts"`
	Lifetime  Lifetime       `json:"lifetime"`
	Impl      Implementation `json:"impl"`
	Location  diag.Location  `json:"location"`
}

// Generic reports whether any contract mentions a marker.
func (b *Binding) Generic() bool {
	for _, c := range b.Contracts {
		if c.Type.HasMarkers() {
			return true
		}
	}
	return false
}

// Name is a short human label for diagnostics.
func (b *Binding) Name() string {
	if !b.Impl.Type.IsZero() {
		return b.Impl.Type.String()
	}
	if len(b.Contracts) > 0 {
		return b.Contracts[0].String()
	}
	return "#" + strconv.Itoa(b.ID)
}

// Instantiate applies s to every type mentioned by the implementation.
func (b *Binding) Instantiate(s types.Subst) Implementation {
	impl := b.Impl
	if len(s) == 0 {
		return impl
	}
	impl.Type = types.Substitute(impl.Type, s)
	if impl.Constructors != nil {
		ctors := make([]Constructor, len(impl.Constructors))
		for i, c := range impl.Constructors {
			c.Params = substParams(c.Params, s)
			ctors[i] = c
		}
		impl.Constructors = ctors
	}
	if impl.Members != nil {
		members := make([]Member, len(impl.Members))
		for i, m := range impl.Members {
			m.Params = substParams(m.Params, s)
			members[i] = m
		}
		impl.Members = members
	}
	if impl.Factory != nil {
		f := *impl.Factory
		f.Ops = make([]FactoryOp, len(impl.Factory.Ops))
		for i, op := range impl.Factory.Ops {
			op.Type = types.Substitute(op.Type, s)
			f.Ops[i] = op
		}
		impl.Factory = &f
	}
	return impl
}

// Unbound lists markers of the declared implementation that s leaves
// unbound. Markers introduced by s itself belong to the requester and are
// not reported.
func (b *Binding) Unbound(s types.Subst) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t types.Type) {
		for _, m := range types.FreeMarkers(t, s) {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	impl := b.Impl
	add(impl.Type)
	for _, c := range impl.Constructors {
		for _, p := range c.Params {
			add(p.Type)
		}
	}
	for _, m := range impl.Members {
		for _, p := range m.Params {
			add(p.Type)
		}
	}
	if impl.Factory != nil {
		for _, op := range impl.Factory.Ops {
			add(op.Type)
		}
	}
	return out
}

func substParams(params []Parameter, s types.Subst) []Parameter {
	if params == nil {
		return nil
	}
	out := make([]Parameter, len(params))
	for i, p := range params {
		p.Type = types.Substitute(p.Type, s)
		out[i] = p
	}
	return out
}
