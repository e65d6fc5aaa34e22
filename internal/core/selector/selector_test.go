package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/types"
)

func param(name, typ string, line int) catalog.Parameter {
	return catalog.Parameter{Name: name, Type: types.Named(typ), Location: diag.Location{Line: line}}
}

func ctor(accessible bool, params ...catalog.Parameter) catalog.Constructor {
	return catalog.Constructor{Name: "new", Accessible: accessible, Params: params}
}

func intp(i int) *int { return &i }

// probeBound resolves parameters whose type is listed.
func probeBound(bound ...string) Probe {
	set := make(map[string]bool)
	for _, b := range bound {
		set[b] = true
	}
	return func(p catalog.Parameter) Resolvability {
		if set[p.Type.String()] {
			return ViaBinding
		}
		if p.Default != nil {
			return ViaDefault
		}
		return Unresolvable
	}
}

func TestSelect_SingleConstructorIgnoresAccessibility(t *testing.T) {
	sel, problems := Select(types.Named("A"), []catalog.Constructor{ctor(false)}, nil, probeBound())
	require.Empty(t, problems)
	assert.Equal(t, 0, sel.Constructor)
}

func TestSelect_OnlyAccessibleCompete(t *testing.T) {
	ctors := []catalog.Constructor{
		ctor(false, param("a", "IA", 1), param("b", "IB", 1)),
		ctor(true, param("a", "IA", 2)),
	}
	sel, problems := Select(types.Named("A"), ctors, nil, probeBound("IA", "IB"))
	require.Empty(t, problems)
	assert.Equal(t, 1, sel.Constructor)
}

func TestSelect_NoAccessibleConstructor(t *testing.T) {
	ctors := []catalog.Constructor{ctor(false), ctor(false)}
	_, problems := Select(types.Named("A"), ctors, nil, probeBound())
	require.Len(t, problems, 1)
	assert.Equal(t, diag.KindInvalidMetadata, problems[0].Kind)
}

func TestSelect_OrdinalWins(t *testing.T) {
	first := ctor(true, param("a", "IA", 1), param("b", "IB", 1))
	second := ctor(true)
	second.Ordinal = intp(0)
	third := ctor(true)
	third.Ordinal = intp(2)

	sel, problems := Select(types.Named("A"), []catalog.Constructor{first, second, third}, nil, probeBound("IA", "IB"))
	require.Empty(t, problems)
	assert.Equal(t, 1, sel.Constructor)
}

func TestSelect_AmbiguousOrdinal(t *testing.T) {
	a, b := ctor(true), ctor(true, param("x", "IX", 1))
	a.Ordinal, b.Ordinal = intp(1), intp(1)
	_, problems := Select(types.Named("A"), []catalog.Constructor{a, b}, nil, probeBound("IX"))
	require.Len(t, problems, 1)
	assert.Equal(t, diag.KindInvalidMetadata, problems[0].Kind)
}

func TestSelect_PrefersFullyResolvableThenArity(t *testing.T) {
	ctors := []catalog.Constructor{
		ctor(true),
		ctor(true, param("a", "IA", 1)),
		ctor(true, param("a", "IA", 1), param("m", "IMissing", 1)),
		ctor(true, param("b", "IB", 2)),
	}
	sel, problems := Select(types.Named("A"), ctors, nil, probeBound("IA", "IB"))
	require.Empty(t, problems)
	assert.Equal(t, 1, sel.Constructor, "earliest of the fully resolvable one-parameter constructors")
}

func TestSelect_DefaultsCountAsResolvable(t *testing.T) {
	def := "42"
	p := param("n", "int", 1)
	p.Default = &def
	ctors := []catalog.Constructor{ctor(true), ctor(true, param("a", "IA", 1), p)}

	sel, problems := Select(types.Named("A"), ctors, nil, probeBound("IA"))
	require.Empty(t, problems)
	assert.Equal(t, 1, sel.Constructor)
	assert.Equal(t, []bool{false, true}, sel.Defaults)
}

func TestSelect_ReportsFirstUnresolvableParameterPerConstructor(t *testing.T) {
	ctors := []catalog.Constructor{
		ctor(true, param("a", "IA", 1), param("x", "IX", 2)),
		ctor(true, param("x", "IX", 3)),
		ctor(true, param("y", "IY", 4), param("z", "IZ", 5)),
	}
	sel, problems := Select(types.Named("A"), ctors, nil, probeBound("IA"))
	assert.Equal(t, -1, sel.Constructor)
	require.Len(t, problems, 2)
	assert.Equal(t, 2, problems[0].Location.Line)
	assert.Equal(t, 4, problems[1].Location.Line)
	for _, p := range problems {
		assert.Equal(t, diag.KindUnableToResolve, p.Kind)
	}
}

func TestMemberOrder(t *testing.T) {
	members := []catalog.Member{
		{Name: "a"},
		{Name: "b", Ordinal: intp(2)},
		{Name: "c"},
		{Name: "d", Ordinal: intp(1)},
	}
	assert.Equal(t, []int{3, 1, 0, 2}, MemberOrder(members))
}
