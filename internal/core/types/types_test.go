package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var markers = NewMarkerSet()

func TestParse_Simple(t *testing.T) {
	ty, err := markers.Parse("IService")
	require.NoError(t, err)
	assert.Equal(t, Named("IService"), ty)
	assert.False(t, ty.HasMarkers())
}

func TestParse_Generic(t *testing.T) {
	ty, err := markers.Parse("IBox< TT , Dictionary<string,TT2> >")
	require.NoError(t, err)
	assert.Equal(t, "IBox<TT,Dictionary<string,TT2>>", ty.String())
	assert.True(t, ty.HasMarkers())
	assert.Equal(t, []string{"TT", "TT2"}, ty.Markers())
	assert.Equal(t, 2, ty.MarkerCount())
}

func TestParse_CustomMarker(t *testing.T) {
	ty, err := NewMarkerSet("TKey").Parse("IRepo<TKey>")
	require.NoError(t, err)
	assert.True(t, ty.Args[0].IsMarker())
}

func TestParse_Errors(t *testing.T) {
	tests := []string{"", "IBox<", "IBox<>", "IBox<int", "TT<int>", "A>B", "IBox<int>>"}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := markers.Parse(expr)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestUnify_BindsMarkers(t *testing.T) {
	pattern := markers.MustParse("IBox<TT>")
	target := markers.MustParse("IBox<int>")

	s, ok := Unify(pattern, target, nil)
	require.True(t, ok)
	assert.Equal(t, Named("int"), s["TT"])
	assert.Equal(t, "Box<int>", Substitute(markers.MustParse("Box<TT>"), s).String())
}

func TestUnify_ConsistentBinding(t *testing.T) {
	pattern := markers.MustParse("IPair<TT,TT>")

	_, ok := Unify(pattern, markers.MustParse("IPair<int,int>"), nil)
	assert.True(t, ok)

	_, ok = Unify(pattern, markers.MustParse("IPair<int,string>"), nil)
	assert.False(t, ok)
}

func TestUnify_Mismatch(t *testing.T) {
	tests := []struct {
		pattern, target string
	}{
		{"IBox<TT>", "IList<int>"},
		{"IBox<TT>", "IBox<int,int>"},
		{"IBox<int>", "IBox<TT>"},
		{"IBox<int>", "IBox<string>"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.target, func(t *testing.T) {
			_, ok := Unify(markers.MustParse(tt.pattern), markers.MustParse(tt.target), nil)
			assert.False(t, ok)
		})
	}
}

func TestUnify_TargetMarkerIsOpaque(t *testing.T) {
	// a generic root asks for IBox<TT1>; the binding pattern binds TT to the marker itself
	s, ok := Unify(markers.MustParse("IBox<TT>"), markers.MustParse("IBox<TT1>"), nil)
	require.True(t, ok)
	assert.Equal(t, MarkerOf("TT1"), s["TT"])
}

func TestUnify_DoesNotMutateInput(t *testing.T) {
	in := Subst{"TT": Named("int")}
	_, ok := Unify(markers.MustParse("IPair<TT,TT2>"), markers.MustParse("IPair<int,string>"), in)
	require.True(t, ok)
	assert.Len(t, in, 1)
}

func TestFreeMarkers(t *testing.T) {
	ty := markers.MustParse("Pair<TT,TT2>")
	assert.Equal(t, []string{"TT2"}, FreeMarkers(ty, Subst{"TT": Named("int")}))
	assert.Empty(t, FreeMarkers(Named("int"), nil))
}

func TestWrapper(t *testing.T) {
	tests := []struct {
		expr string
		want WrapperKind
	}{
		{"Lazy<IService>", WrapperLazy},
		{"Func<IService>", WrapperFunc},
		{"Func<int,string,IService>", WrapperFunc},
		{"IEnumerable<IService>", WrapperMany},
		{"Tuple<IService,int>", WrapperTuple},
		{"IService", WrapperNone},
		{"Lazy<A,B>", WrapperNone},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrapper(markers.MustParse(tt.expr)))
		})
	}
}

func TestFuncParts(t *testing.T) {
	args, result := FuncParts(markers.MustParse("Func<int,string,IService>"))
	assert.Equal(t, []Type{Named("int"), Named("string")}, args)
	assert.Equal(t, Named("IService"), result)
}
