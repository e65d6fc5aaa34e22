package definition

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Document - Main Parse Output
// =============================================================================

// Document is a parsed definition file. Positions are kept so that
// diagnostics can point back into the source.
type Document struct {
	File     string            `yaml:"-"`
	Name     string            `yaml:"name" validate:"required"`
	Markers  []string          `yaml:"markers,omitempty" validate:"dive,required"`
	Settings Settings          `yaml:"settings,omitempty"`
	Severity map[string]string `yaml:"severity,omitempty"`
	Bindings []BindingDoc      `yaml:"bindings" validate:"dive"`
	Roots    []RootDoc         `yaml:"roots" validate:"required,min=1,dive"`
}

// Settings tune analysis for this definition.
type Settings struct {
	// UntaggedFallback is nil when the definition leaves it to the caller.
	UntaggedFallback  *bool  `yaml:"untagged_fallback,omitempty"`
	GenericPrecedence string `yaml:"generic_precedence,omitempty" validate:"omitempty,oneof=specific declaration"`
	MaxDepth          int    `yaml:"max_depth,omitempty" validate:"gte=0"`
}

// Position is a line/column pair in the source.
type Position struct {
	Line   int
	Column int
}

func positionOf(n *yaml.Node) Position {
	return Position{Line: n.Line, Column: n.Column}
}

// =============================================================================
// Bindings
// =============================================================================

// BindingDoc declares one binding. Exactly one of Type, Factory, Value and
// Argument must be set.
type BindingDoc struct {
	Contracts []string `yaml:"contracts" validate:"dive,required"`
	// Tags apply to every contract; no tags means untagged.
	Tags         []TagDoc         `yaml:"tags,omitempty"`
	Lifetime     string           `yaml:"lifetime,omitempty"`
	Type         string           `yaml:"type,omitempty"`
	Implements   []string         `yaml:"implements,omitempty"`
	Constructors []ConstructorDoc `yaml:"constructors,omitempty" validate:"dive"`
	Members      []MemberDoc      `yaml:"members,omitempty" validate:"dive"`
	Factory      *FactoryDoc      `yaml:"factory,omitempty"`
	Value        *string          `yaml:"value,omitempty"`
	Argument     *ArgumentDoc     `yaml:"argument,omitempty"`

	Pos Position `yaml:"-"`
}

func (b *BindingDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain BindingDoc
	if err := n.Decode((*plain)(b)); err != nil {
		return err
	}
	b.Pos = positionOf(n)
	return nil
}

// ConstructorDoc declares one constructor of a constructed type.
type ConstructorDoc struct {
	Name       string     `yaml:"name,omitempty"`
	Accessible *bool      `yaml:"accessible,omitempty"`
	Ordinal    *int       `yaml:"ordinal,omitempty"`
	Params     []ParamDoc `yaml:"params,omitempty" validate:"dive"`

	Pos Position `yaml:"-"`
}

func (c *ConstructorDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain ConstructorDoc
	if err := n.Decode((*plain)(c)); err != nil {
		return err
	}
	c.Pos = positionOf(n)
	return nil
}

// ParamDoc declares one injected parameter.
type ParamDoc struct {
	Name    string  `yaml:"name" validate:"required"`
	Type    string  `yaml:"type" validate:"required"`
	Tag     *TagDoc `yaml:"tag,omitempty"`
	Default *string `yaml:"default,omitempty"`

	Pos Position `yaml:"-"`
}

func (p *ParamDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain ParamDoc
	if err := n.Decode((*plain)(p)); err != nil {
		return err
	}
	p.Pos = positionOf(n)
	return nil
}

// MemberDoc declares a field, property or method injected after
// construction.
type MemberDoc struct {
	Name    string     `yaml:"name" validate:"required"`
	Kind    string     `yaml:"kind,omitempty" validate:"omitempty,oneof=field property method"`
	Ordinal *int       `yaml:"ordinal,omitempty"`
	Params  []ParamDoc `yaml:"params,omitempty" validate:"dive"`

	Pos Position `yaml:"-"`
}

func (m *MemberDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain MemberDoc
	if err := n.Decode((*plain)(m)); err != nil {
		return err
	}
	m.Pos = positionOf(n)
	return nil
}

// FactoryDoc describes the recognised shape of a factory body.
type FactoryDoc struct {
	Name  string  `yaml:"name" validate:"required"`
	Async bool    `yaml:"async,omitempty"`
	Ops   []OpDoc `yaml:"ops,omitempty" validate:"dive"`
}

// OpDoc is one factory body operation: exactly one of Inject, Override
// and Misuse is set.
//
//	ops:
//	  - inject: IDependency
//	  - override: int
//	    value: "42"
//	  - misuse: passes the context to a helper
type OpDoc struct {
	Inject   string  `yaml:"inject,omitempty"`
	Override string  `yaml:"override,omitempty"`
	Tag      *TagDoc `yaml:"tag,omitempty"`
	Value    string  `yaml:"value,omitempty"`
	Misuse   string  `yaml:"misuse,omitempty"`

	Pos Position `yaml:"-"`
}

func (o *OpDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain OpDoc
	if err := n.Decode((*plain)(o)); err != nil {
		return err
	}
	o.Pos = positionOf(n)
	return nil
}

// ArgumentDoc declares a caller-supplied value.
type ArgumentDoc struct {
	Name string `yaml:"name" validate:"required"`
	Root bool   `yaml:"root,omitempty"`
}

// RootDoc declares a composition root.
type RootDoc struct {
	Name     string  `yaml:"name" validate:"required"`
	Contract string  `yaml:"contract" validate:"required"`
	Tag      *TagDoc `yaml:"tag,omitempty"`
	Static   bool    `yaml:"static,omitempty"`
	Dynamic  bool    `yaml:"dynamic,omitempty"`
	Async    bool    `yaml:"async,omitempty"`

	Pos Position `yaml:"-"`
}

func (r *RootDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain RootDoc
	if err := n.Decode((*plain)(r)); err != nil {
		return err
	}
	r.Pos = positionOf(n)
	return nil
}

// =============================================================================
// Tags
// =============================================================================

// TagKind mirrors the tag forms accepted in YAML.
type TagKind int

const (
	TagString TagKind = iota
	TagInt
	TagAny
	TagType
	TagEnum
)

// TagDoc is a tag in one of its YAML forms:
//
//	tag: Murka          string
//	tag: 3              integer
//	tag: "*"            any tag
//	tag: {type: IFoo}   type tag
//	tag: {enum: Color.Red}
type TagDoc struct {
	Kind  TagKind
	Value string
}

func (t *TagDoc) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		switch {
		case n.ShortTag() == "!!int":
			if _, err := strconv.Atoi(n.Value); err != nil {
				return fmt.Errorf("line %d: integer tag %q out of range", n.Line, n.Value)
			}
			t.Kind, t.Value = TagInt, n.Value
		case n.Value == "*":
			t.Kind, t.Value = TagAny, ""
		default:
			t.Kind, t.Value = TagString, n.Value
		}
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := n.Decode(&m); err != nil {
			return err
		}
		if v, ok := m["type"]; ok && len(m) == 1 {
			t.Kind, t.Value = TagType, v
			return nil
		}
		if v, ok := m["enum"]; ok && len(m) == 1 {
			t.Kind, t.Value = TagEnum, v
			return nil
		}
		return fmt.Errorf("line %d: tag mapping must have exactly one of type or enum", n.Line)
	}
	return fmt.Errorf("line %d: unsupported tag form", n.Line)
}
