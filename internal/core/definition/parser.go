package definition

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/composer"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/graph"
	"github.com/artpar/composer/internal/core/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// Parser Functions
// =============================================================================

// Parse decodes and schema-checks a definition. Structural problems
// (malformed YAML, missing required fields, unknown severity names) are
// returned as errors. Semantic problems such as an unparsable type
// expression are deferred to Input, which reports them as diagnostics.
func Parse(file string, src []byte) (*Document, error) {
	if strings.TrimSpace(string(src)) == "" {
		return nil, ErrEmptyInput
	}

	var doc Document
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	doc.File = file

	if err := validate.Struct(&doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Document.")
			return nil, NewParseError(field, fmt.Sprintf("failed %q validation", fe.Tag()), ErrInvalidField)
		}
		return nil, NewParseError("", err.Error(), ErrInvalidField)
	}

	for kind, level := range doc.Severity {
		if _, ok := diag.ParseKind(kind); !ok {
			return nil, NewParseError("severity."+kind, "no such diagnostic kind", ErrUnknownKind)
		}
		if _, err := diag.ParseSeverity(level); err != nil {
			return nil, NewParseError("severity."+kind, err.Error(), ErrUnknownSeverity)
		}
	}
	return &doc, nil
}

// Load parses src and converts it in one step.
func Load(file string, src []byte) (composer.Input, error) {
	doc, err := Parse(file, src)
	if err != nil {
		return composer.Input{}, err
	}
	return doc.Input(), nil
}

// Input converts the document into analysis input. Bindings or roots that
// cannot be converted are left out and reported in Input.Diagnostics.
func (d *Document) Input() composer.Input {
	c := converter{doc: d, markers: types.NewMarkerSet(d.Markers...)}

	in := composer.Input{
		Name: d.Name,
		Catalog: catalog.Options{
			UntaggedFallback:  d.Settings.UntaggedFallback != nil && *d.Settings.UntaggedFallback,
			GenericPrecedence: catalog.GenericPrecedence(d.Settings.GenericPrecedence),
		},
		Graph: graph.Options{MaxDepth: d.Settings.MaxDepth},
	}
	if len(d.Severity) > 0 {
		in.Severity = make(diag.Overrides, len(d.Severity))
		for k, v := range d.Severity {
			kind, _ := diag.ParseKind(k)
			sev, _ := diag.ParseSeverity(v)
			in.Severity[kind] = sev
		}
	}

	for i := range d.Bindings {
		if b, ok := c.binding(&d.Bindings[i]); ok {
			in.Bindings = append(in.Bindings, b)
		}
	}
	for i := range d.Roots {
		if r, ok := c.root(&d.Roots[i]); ok {
			in.Roots = append(in.Roots, r)
		}
	}
	in.Diagnostics = c.diags
	return in
}

// =============================================================================
// Conversion
// =============================================================================

type converter struct {
	doc     *Document
	markers types.MarkerSet
	diags   []diag.Diagnostic
}

func (c *converter) at(p Position) diag.Location {
	return diag.Location{File: c.doc.File, Line: p.Line, Column: p.Column}
}

func (c *converter) report(p Position, template string, params ...string) {
	c.diags = append(c.diags, diag.Diagnostic{
		Kind:     diag.KindInvalidMetadata,
		Template: template,
		Params:   params,
		Location: c.at(p),
	})
}

func (c *converter) typ(expr string, p Position) (types.Type, bool) {
	t, err := c.markers.Parse(expr)
	if err != nil {
		c.report(p, diag.MsgInvalidType, expr, err.Error())
		return types.Type{}, false
	}
	return t, true
}

func (c *converter) tag(t *TagDoc, p Position) (catalog.Tag, bool) {
	if t == nil {
		return catalog.Tag{}, true
	}
	switch t.Kind {
	case TagInt:
		n, err := strconv.Atoi(t.Value)
		if err != nil {
			c.report(p, diag.MsgContradictoryBinding, t.Value, "integer tag out of range")
			return catalog.Tag{}, false
		}
		return catalog.IntTag(n), true
	case TagAny:
		return catalog.AnyTag, true
	case TagType:
		ty, ok := c.typ(t.Value, p)
		if !ok {
			return catalog.Tag{}, false
		}
		return catalog.TypeTag(ty), true
	case TagEnum:
		return catalog.EnumTag(t.Value), true
	default:
		return catalog.StringTag(t.Value), true
	}
}

func (c *converter) binding(b *BindingDoc) (catalog.Binding, bool) {
	out := catalog.Binding{Location: c.at(b.Pos)}

	impls := 0
	for _, set := range []bool{b.Type != "", b.Factory != nil, b.Value != nil, b.Argument != nil} {
		if set {
			impls++
		}
	}
	if impls != 1 {
		c.report(b.Pos, diag.MsgImplementationCount)
		return out, false
	}

	lt, err := catalog.ParseLifetime(b.Lifetime)
	if err != nil {
		c.report(b.Pos, diag.MsgContradictoryBinding, strings.Join(b.Contracts, ", "), err.Error())
		return out, false
	}
	out.Lifetime = lt

	ok := true
	tags := []catalog.Tag{{}}
	if len(b.Tags) > 0 {
		tags = tags[:0]
		for i := range b.Tags {
			tag, tok := c.tag(&b.Tags[i], b.Pos)
			ok = ok && tok
			tags = append(tags, tag)
		}
	}
	for _, expr := range b.Contracts {
		t, tok := c.typ(expr, b.Pos)
		if !tok {
			ok = false
			continue
		}
		for _, tag := range tags {
			out.Contracts = append(out.Contracts, catalog.Key(t, tag))
		}
	}

	switch {
	case b.Type != "":
		out.Impl.Kind = catalog.ImplConstructed
		ok = c.constructed(b, &out.Impl) && ok
	case b.Factory != nil:
		out.Impl.Kind = catalog.ImplFactory
		out.Impl.Factory = c.factory(b.Factory, &ok)
	case b.Value != nil:
		out.Impl.Kind = catalog.ImplValue
		out.Impl.Value = *b.Value
	case b.Argument != nil:
		out.Impl.Kind = catalog.ImplArgument
		out.Impl.Argument = &catalog.Argument{Name: b.Argument.Name, Root: b.Argument.Root}
	}
	return out, ok
}

func (c *converter) constructed(b *BindingDoc, impl *catalog.Implementation) bool {
	ok := true
	t, tok := c.typ(b.Type, b.Pos)
	ok = ok && tok
	impl.Type = t

	if b.Implements != nil {
		impl.Implements = make([]types.Type, 0, len(b.Implements))
		for _, expr := range b.Implements {
			if it, iok := c.typ(expr, b.Pos); iok {
				impl.Implements = append(impl.Implements, it)
			} else {
				ok = false
			}
		}
	}

	for _, cd := range b.Constructors {
		ctor := catalog.Constructor{
			Name:       cd.Name,
			Accessible: cd.Accessible == nil || *cd.Accessible,
			Ordinal:    cd.Ordinal,
			Location:   c.at(cd.Pos),
		}
		if ctor.Name == "" {
			ctor.Name = "new"
		}
		ps, pok := c.params(cd.Params)
		ok = ok && pok
		ctor.Params = ps
		impl.Constructors = append(impl.Constructors, ctor)
	}

	for _, md := range b.Members {
		m := catalog.Member{
			Name:     md.Name,
			Kind:     catalog.MemberKind(md.Kind),
			Ordinal:  md.Ordinal,
			Location: c.at(md.Pos),
		}
		if m.Kind == "" {
			m.Kind = catalog.MemberProperty
		}
		ps, pok := c.params(md.Params)
		ok = ok && pok
		m.Params = ps
		impl.Members = append(impl.Members, m)
	}
	return ok
}

func (c *converter) params(docs []ParamDoc) ([]catalog.Parameter, bool) {
	if len(docs) == 0 {
		return nil, true
	}
	ok := true
	out := make([]catalog.Parameter, 0, len(docs))
	for _, pd := range docs {
		t, tok := c.typ(pd.Type, pd.Pos)
		if !tok {
			ok = false
			continue
		}
		p := catalog.Parameter{Name: pd.Name, Type: t, Default: pd.Default, Location: c.at(pd.Pos)}
		if pd.Tag != nil {
			tag, gok := c.tag(pd.Tag, pd.Pos)
			if !gok {
				ok = false
				continue
			}
			p.Tag = &tag
		}
		out = append(out, p)
	}
	return out, ok
}

func (c *converter) factory(fd *FactoryDoc, ok *bool) *catalog.FactoryBody {
	body := &catalog.FactoryBody{Name: fd.Name, Async: fd.Async}
	for _, op := range fd.Ops {
		switch {
		case op.Misuse != "":
			body.ContextMisuse = append(body.ContextMisuse, c.at(op.Pos))
		case op.Inject != "" && op.Override == "":
			body.Ops = append(body.Ops, c.op(catalog.OpInject, op.Inject, op, ok))
		case op.Override != "" && op.Inject == "":
			body.Ops = append(body.Ops, c.op(catalog.OpOverride, op.Override, op, ok))
		default:
			c.report(op.Pos, diag.MsgContradictoryBinding, fd.Name, "factory operation must be one of inject, override or misuse")
			*ok = false
		}
	}
	return body
}

func (c *converter) op(kind catalog.FactoryOpKind, expr string, od OpDoc, ok *bool) catalog.FactoryOp {
	t, tok := c.typ(expr, od.Pos)
	if !tok {
		*ok = false
	}
	op := catalog.FactoryOp{Kind: kind, Type: t, Location: c.at(od.Pos)}
	if kind == catalog.OpOverride {
		op.Expression = od.Value
	}
	if od.Tag != nil {
		tag, gok := c.tag(od.Tag, od.Pos)
		if !gok {
			*ok = false
		}
		op.Tag = &tag
	}
	return op
}

func (c *converter) root(r *RootDoc) (graph.Request, bool) {
	t, ok := c.typ(r.Contract, r.Pos)
	if !ok {
		return graph.Request{}, false
	}
	tag, ok := c.tag(r.Tag, r.Pos)
	if !ok {
		return graph.Request{}, false
	}
	return graph.Request{
		Name:     r.Name,
		Key:      catalog.Key(t, tag),
		Static:   r.Static,
		Dynamic:  r.Dynamic,
		Async:    r.Async,
		Location: c.at(r.Pos),
	}, true
}
