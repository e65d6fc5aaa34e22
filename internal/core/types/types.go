// Package types implements the closed type-term algebra used to match
// contracts: named types with positional arguments and generic markers
// that stand in for "any type" inside a binding contract.
package types

import (
	"regexp"
	"strings"
)

// =============================================================================
// Type Terms
// =============================================================================

// Type is a type term. A marker is a placeholder that unifies with any
// concrete term; markers never carry arguments.
type Type struct {
	Name   string `json:"name"`
	Args   []Type `json:"args,omitempty"`
	Marker bool   `json:"marker,omitempty"`
}

// Named builds a concrete type term.
func Named(name string, args ...Type) Type {
	return Type{Name: name, Args: args}
}

// MarkerOf builds a generic marker term.
func MarkerOf(name string) Type {
	return Type{Name: name, Marker: true}
}

// String renders the term as Name<Arg1,Arg2>.
func (t Type) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) write(b *strings.Builder) {
	b.WriteString(t.Name)
	if len(t.Args) == 0 {
		return
	}
	b.WriteByte('<')
	for i, a := range t.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		a.write(b)
	}
	b.WriteByte('>')
}

// IsZero reports whether the term is empty.
func (t Type) IsZero() bool {
	return t.Name == "" && len(t.Args) == 0
}

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.Name != o.Name || t.Marker != o.Marker || len(t.Args) != len(o.Args) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

// IsMarker reports whether the term is a bare marker.
func (t Type) IsMarker() bool {
	return t.Marker
}

// HasMarkers reports whether any marker occurs anywhere in the term.
func (t Type) HasMarkers() bool {
	if t.Marker {
		return true
	}
	for _, a := range t.Args {
		if a.HasMarkers() {
			return true
		}
	}
	return false
}

// Markers returns the distinct marker names in order of first appearance.
func (t Type) Markers() []string {
	var out []string
	seen := make(map[string]bool)
	t.collectMarkers(&out, seen)
	return out
}

func (t Type) collectMarkers(out *[]string, seen map[string]bool) {
	if t.Marker {
		if !seen[t.Name] {
			seen[t.Name] = true
			*out = append(*out, t.Name)
		}
		return
	}
	for _, a := range t.Args {
		a.collectMarkers(out, seen)
	}
}

// MarkerCount counts marker occurrences, repeated ones included. Fewer
// markers means a more specific pattern.
func (t Type) MarkerCount() int {
	if t.Marker {
		return 1
	}
	n := 0
	for _, a := range t.Args {
		n += a.MarkerCount()
	}
	return n
}

// =============================================================================
// Unification and Substitution
// =============================================================================

// Subst maps marker names to the terms they were bound to.
type Subst map[string]Type

// Unify matches pattern against target, extending s. Markers in pattern
// bind to target sub-terms; a marker bound twice must bind to equal terms.
// Markers in target are opaque and only match the identical marker. The
// input substitution is never mutated.
func Unify(pattern, target Type, s Subst) (Subst, bool) {
	out := make(Subst, len(s))
	for k, v := range s {
		out[k] = v
	}
	if !unify(pattern, target, out) {
		return nil, false
	}
	return out, true
}

func unify(p, t Type, s Subst) bool {
	if p.Marker {
		if bound, ok := s[p.Name]; ok {
			return bound.Equal(t)
		}
		s[p.Name] = t
		return true
	}
	if t.Marker || p.Name != t.Name || len(p.Args) != len(t.Args) {
		return false
	}
	for i := range p.Args {
		if !unify(p.Args[i], t.Args[i], s) {
			return false
		}
	}
	return true
}

// Substitute replaces every bound marker in t.
func Substitute(t Type, s Subst) Type {
	if len(s) == 0 {
		return t
	}
	if t.Marker {
		if bound, ok := s[t.Name]; ok {
			return bound
		}
		return t
	}
	if len(t.Args) == 0 {
		return t
	}
	args := make([]Type, len(t.Args))
	for i, a := range t.Args {
		args[i] = Substitute(a, s)
	}
	return Type{Name: t.Name, Args: args}
}

// FreeMarkers lists markers of t left unbound by s.
func FreeMarkers(t Type, s Subst) []string {
	var out []string
	for _, m := range t.Markers() {
		if _, ok := s[m]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// Marker Sets
// =============================================================================

var defaultMarker = regexp.MustCompile(`^TT\d*$`)

// MarkerSet decides which names denote generic markers. TT, TT1, TT2 and
// so on are always markers; definitions may declare more.
type MarkerSet struct {
	extra map[string]bool
}

// NewMarkerSet builds a marker set with additional marker names.
func NewMarkerSet(extra ...string) MarkerSet {
	m := MarkerSet{extra: make(map[string]bool, len(extra))}
	for _, name := range extra {
		m.extra[name] = true
	}
	return m
}

// IsMarker reports whether name denotes a marker.
func (m MarkerSet) IsMarker(name string) bool {
	return m.extra[name] || defaultMarker.MatchString(name)
}
