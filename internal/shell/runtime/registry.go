package runtime

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// =============================================================================
// Activation
// =============================================================================

// Arg is one named value handed to an activator.
type Arg struct {
	Name  string
	Value any
}

// Call describes one activation.
type Call struct {
	Ctx            context.Context
	Contract       string
	Implementation string
	Constructor    string
	Factory        string
	Member         string
	Args           []Arg
}

// Arg returns the value of the named argument.
func (c Call) Arg(name string) (any, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Activator creates an instance.
type Activator func(call Call) (any, error)

// MemberFunc injects values into a constructed instance.
type MemberFunc func(target any, call Call) error

// Registry supplies the code a plan refers to by name. Constructors are
// keyed by implementation type, factories by factory name, members by
// "Implementation.Member". Anything missing is activated as an *Instance.
type Registry struct {
	Constructors map[string]Activator
	Factories    map[string]Activator
	Members      map[string]MemberFunc
	// Literal converts value, default and override expressions. Nil means
	// ParseLiteral.
	Literal func(expr string) (any, error)
}

func (r Registry) literal(expr string) (any, error) {
	if r.Literal != nil {
		return r.Literal(expr)
	}
	return ParseLiteral(expr), nil
}

// Instance is the generic object built when the registry has no activator.
// It records what was used to build it.
type Instance struct {
	Type        string
	Constructor string
	Factory     string
	Args        []Arg
	Injections  []Call
}

// Arg returns the value of the named constructor or factory argument.
func (i *Instance) Arg(name string) any {
	for _, a := range i.Args {
		if a.Name == name {
			return a.Value
		}
	}
	return nil
}

// Tuple holds the components of a tuple contract.
type Tuple []any

// =============================================================================
// Deferred Values
// =============================================================================

// Lazy computes its value on first use and keeps it.
type Lazy struct {
	once  sync.Once
	fn    func() (any, error)
	value any
	err   error
}

func newLazy(fn func() (any, error)) *Lazy {
	return &Lazy{fn: fn}
}

// Value returns the value, computing it on the first call.
func (l *Lazy) Value() (any, error) {
	l.once.Do(func() {
		l.value, l.err = l.fn()
		l.fn = nil
	})
	return l.value, l.err
}

// Func builds a fresh value for each call.
type Func func(args ...any) (any, error)

// =============================================================================
// Literals
// =============================================================================

// ParseLiteral interprets a literal expression: quoted strings, integers,
// floats, booleans and null. Anything else is returned verbatim.
func ParseLiteral(expr string) any {
	s := strings.TrimSpace(expr)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '`' || s[0] == '\'') {
		if v, err := strconv.Unquote(s); err == nil {
			return v
		}
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if strings.ContainsAny(s, "0123456789") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}
	return expr
}
