package lifetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/graph"
	"github.com/artpar/composer/internal/core/types"
)

var markers = types.NewMarkerSet()

func key(expr string) catalog.ContractKey {
	return catalog.Key(markers.MustParse(expr), catalog.Tag{})
}

type fixture struct {
	t     *testing.T
	cat   *catalog.Catalog
	diags *diag.Collector
	line  int
}

func newFixture(t *testing.T) *fixture {
	d := diag.NewCollector(nil)
	return &fixture{t: t, cat: catalog.New(catalog.Options{}, d), diags: d}
}

func (f *fixture) bind(contract, impl string, lt catalog.Lifetime, params ...string) *catalog.Binding {
	f.line++
	ps := make([]catalog.Parameter, len(params))
	for i, typ := range params {
		ps[i] = catalog.Parameter{Name: "p", Type: markers.MustParse(typ), Location: diag.Location{Line: 1000 + f.line*10 + i}}
	}
	b := f.cat.Register(catalog.Binding{
		Contracts: []catalog.ContractKey{key(contract)},
		Lifetime:  lt,
		Impl: catalog.Implementation{
			Kind:         catalog.ImplConstructed,
			Type:         markers.MustParse(impl),
			Constructors: []catalog.Constructor{{Name: "new", Accessible: true, Params: ps}},
		},
		Location: diag.Location{File: "t.yaml", Line: f.line},
	})
	require.NotNil(f.t, b)
	return b
}

func (f *fixture) build(reqs ...graph.Request) *graph.Graph {
	return graph.Build(f.cat, reqs, f.diags, graph.Options{})
}

func children(g *graph.Graph, id graph.NodeID) []graph.NodeID {
	var out []graph.NodeID
	for _, e := range g.Node(id).Edges {
		out = append(out, e.To)
	}
	return out
}

func TestAnalyze_StaticRootRejectsScoped(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Transient, "IS")
	scoped := f.bind("IS", "S", catalog.Scoped, "IInner")
	f.bind("IInner", "Inner", catalog.Singleton)

	g := f.build(graph.Request{Name: "Root", Key: key("IA"), Static: true})
	a := Analyze(g, f.diags)

	assert.Equal(t, []bool{true}, a.Failed)
	items := f.diags.Items()
	require.Len(t, items, 1, "only the outermost offending node is reported")
	assert.Equal(t, diag.KindLifetimeDefect, items[0].Kind)
	assert.Equal(t, scoped.Location, items[0].Location)
}

func TestAnalyze_StaticRootThroughLazyIsFine(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Transient, "Lazy<IS>")
	f.bind("IS", "S", catalog.Singleton)

	g := f.build(graph.Request{Name: "Root", Key: key("IA"), Static: true})
	a := Analyze(g, f.diags)

	assert.Equal(t, []bool{false}, a.Failed)
	assert.Zero(t, f.diags.Len())
}

func TestAnalyze_NonStaticRootMayUseScoped(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Transient, "IS")
	f.bind("IS", "S", catalog.Scoped)

	g := f.build(graph.Request{Name: "Root", Key: key("IA")})
	a := Analyze(g, f.diags)
	assert.Equal(t, []bool{false}, a.Failed)
}

func TestAnalyze_SingletonRequiringScoped(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Singleton, "IB")
	f.bind("IB", "B", catalog.Transient, "IS")
	scoped := f.bind("IS", "S", catalog.Scoped)

	g := f.build(graph.Request{Name: "Root", Key: key("IA")})
	a := Analyze(g, f.diags)

	assert.Equal(t, []bool{true}, a.Failed)
	items := f.diags.Items()
	require.Len(t, items, 1)
	assert.Equal(t, diag.KindLifetimeDefect, items[0].Kind)
	assert.Equal(t, scoped.Location, items[0].Location)
}

func TestAnalyze_SingletonRequiringScopedThroughFuncIsFine(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Singleton, "Func<IS>")
	f.bind("IS", "S", catalog.Scoped)

	g := f.build(graph.Request{Name: "Root", Key: key("IA")})
	a := Analyze(g, f.diags)
	assert.Equal(t, []bool{false}, a.Failed)
	assert.Zero(t, f.diags.Len())
}

func TestAnalyze_PerBlockMergesWithinBlockOnly(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Transient, "IP", "IP", "Lazy<IP>")
	f.bind("IP", "P", catalog.PerBlock)

	g := f.build(graph.Request{Name: "Root", Key: key("IA")})
	a := Analyze(g, f.diags)

	kids := children(g, g.Roots[0].Node)
	require.Len(t, kids, 3)
	assert.Equal(t, a.Key(kids[0]), a.Key(kids[1]), "same block shares")

	inLazy := children(g, kids[2])[0]
	assert.NotEqual(t, a.Key(kids[0]), a.Key(inLazy), "lazy body is another block")
}

func TestAnalyze_TransientNeverMerges(t *testing.T) {
	f := newFixture(t)
	f.bind("IA", "A", catalog.Transient, "IT", "IT")
	f.bind("IT", "T", catalog.Transient)

	g := f.build(graph.Request{Name: "Root", Key: key("IA")})
	a := Analyze(g, f.diags)
	kids := children(g, g.Roots[0].Node)
	assert.NotEqual(t, a.Key(kids[0]), a.Key(kids[1]))
}

func TestAnalyze_SharedKeysAcrossRoots(t *testing.T) {
	f := newFixture(t)
	f.bind("ISingle", "Single", catalog.Singleton)
	f.bind("IPer", "Per", catalog.PerResolve)

	g := f.build(
		graph.Request{Name: "S1", Key: key("ISingle")},
		graph.Request{Name: "S2", Key: key("ISingle")},
		graph.Request{Name: "P1", Key: key("IPer")},
		graph.Request{Name: "P2", Key: key("IPer")},
	)
	a := Analyze(g, f.diags)

	assert.Equal(t, a.Key(g.Roots[0].Node), a.Key(g.Roots[1].Node))
	assert.NotEqual(t, a.Key(g.Roots[2].Node), a.Key(g.Roots[3].Node))
}
