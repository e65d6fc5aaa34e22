package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrSyntax is returned for malformed type expressions.
var ErrSyntax = errors.New("invalid type expression")

// Parse reads a type expression such as "IBox<TT>" or
// "Func<int,IService>". Names the marker set recognises become markers.
func (m MarkerSet) Parse(expr string) (Type, error) {
	p := &parser{src: expr, markers: m}
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Type{}, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParse is Parse that panics; intended for tests and constants.
func (m MarkerSet) MustParse(expr string) Type {
	t, err := m.Parse(expr)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src     string
	pos     int
	markers MarkerSet
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %q at offset %d: %s", ErrSyntax, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) parseType() (Type, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("<>, \t\r\n", rune(p.src[p.pos])) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return Type{}, p.errorf("expected type name")
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '<' {
		if p.markers.IsMarker(name) {
			return MarkerOf(name), nil
		}
		return Named(name), nil
	}
	if p.markers.IsMarker(name) {
		return Type{}, p.errorf("marker %s cannot take arguments", name)
	}
	p.pos++ // '<'
	var args []Type
	for {
		arg, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		args = append(args, arg)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Type{}, p.errorf("unterminated argument list")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return Named(name, args...), nil
		default:
			return Type{}, p.errorf("unexpected %q", p.src[p.pos])
		}
	}
}
