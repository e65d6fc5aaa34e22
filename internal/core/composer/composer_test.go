package composer

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/graph"
	"github.com/artpar/composer/internal/core/planner"
	"github.com/artpar/composer/internal/core/types"
)

var markers = types.NewMarkerSet()

func ty(expr string) types.Type { return markers.MustParse(expr) }

func key(expr string) catalog.ContractKey { return catalog.Key(ty(expr), catalog.Tag{}) }

func at(line int) diag.Location { return diag.Location{File: "def.yaml", Line: line, Column: 3} }

func param(name, typ string, line int) catalog.Parameter {
	return catalog.Parameter{Name: name, Type: ty(typ), Location: at(line)}
}

func ctor(params ...catalog.Parameter) catalog.Constructor {
	return catalog.Constructor{Name: "new", Accessible: true, Params: params}
}

func bind(contract, impl string, lt catalog.Lifetime, line int, ctors ...catalog.Constructor) catalog.Binding {
	return catalog.Binding{
		Contracts: []catalog.ContractKey{key(contract)},
		Lifetime:  lt,
		Impl:      catalog.Implementation{Kind: catalog.ImplConstructed, Type: ty(impl), Constructors: ctors},
		Location:  at(line),
	}
}

func value(contract, literal string, line int) catalog.Binding {
	return catalog.Binding{
		Contracts: []catalog.ContractKey{key(contract)},
		Impl:      catalog.Implementation{Kind: catalog.ImplValue, Value: literal},
		Location:  at(line),
	}
}

func root(name, contract string, line int) graph.Request {
	return graph.Request{Name: name, Key: key(contract), Location: at(line)}
}

func ofKind(res Result, kind diag.Kind) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// =============================================================================
// Scenarios
// =============================================================================

func TestCompose_SelectsResolvableConstructor(t *testing.T) {
	res := Compose(Input{
		Name: "cats",
		Bindings: []catalog.Binding{
			bind("ICat", "ShroedingersCat", catalog.Transient, 1,
				ctor(param("id", "int", 2)),
				ctor(param("name", "string", 3)),
			),
			value("string", `"Murka"`, 4),
		},
		Roots: []graph.Request{root("Cat", "ICat", 10)},
	})

	require.True(t, res.Success, "%v", res.Diagnostics)
	p, ok := res.Plan("Cat")
	require.True(t, ok)
	cat := p.Step(p.Result)
	assert.Equal(t, planner.StepConstruct, cat.Kind)
	require.Len(t, cat.Inputs, 1)
	assert.Equal(t, "name", cat.Inputs[0].Name)
	name := p.Step(cat.Inputs[0].Step)
	assert.Equal(t, planner.StepValue, name.Kind)
	assert.Equal(t, `"Murka"`, name.Literal)
}

func TestCompose_CycleReportedOnceWithoutPlan(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{
			bind("IDependency1", "Dependency1", catalog.Transient, 1, ctor(param("d2", "IDependency2", 2))),
			bind("IDependency2", "Dependency2", catalog.Transient, 3, ctor(param("svc", "IService", 4))),
			bind("IService", "Service", catalog.Transient, 5, ctor(param("d1", "IDependency1", 6))),
		},
		Roots: []graph.Request{root("Service", "IService", 10)},
	})

	assert.False(t, res.Success)
	assert.Empty(t, res.Plans)
	cycles := ofKind(res, diag.KindCyclicDependency)
	require.Len(t, cycles, 1)
	assert.Equal(t, at(4), cycles[0].Location, "the parameter that closes the loop")
	assert.True(t, res.Roots[0].Failed)
}

func TestCompose_ScopedFromStaticRoot(t *testing.T) {
	req := root("Session", "ISession", 10)
	req.Static = true
	res := Compose(Input{
		Bindings: []catalog.Binding{bind("ISession", "Session", catalog.Scoped, 1)},
		Roots:    []graph.Request{req},
	})

	assert.False(t, res.Success)
	assert.Empty(t, res.Plans)
	defects := ofKind(res, diag.KindLifetimeDefect)
	require.Len(t, defects, 1)
	assert.Equal(t, at(1), defects[0].Location)
}

func TestCompose_SingletonSharedBetweenFuncAndDirectUse(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{
			bind("IDependency", "Dependency", catalog.Singleton, 1),
			bind("IService", "Service", catalog.Transient, 2,
				ctor(param("dep", "IDependency", 3), param("factory", "Func<IDependency>", 4))),
		},
		Roots: []graph.Request{root("Service", "IService", 10)},
	})

	require.True(t, res.Success, "%v", res.Diagnostics)
	p := res.Plans[0]
	svc := p.Step(p.Result)
	direct := svc.Inputs[0].Step
	fn := p.Step(svc.Inputs[1].Step)
	assert.Equal(t, direct, p.Blocks[fn.Body].Result)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, p.Step(direct).Storage.Slot, res.Slots[0].Key)
}

func TestCompose_DuplicateBindingWarnings(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{
			bind("IService", "Service", catalog.Transient, 1),
			bind("IService", "OtherService", catalog.Transient, 2),
		},
		Roots: []graph.Request{root("Service", "IService", 10)},
	})

	require.True(t, res.Success)
	overridden := ofKind(res, diag.KindOverriddenBinding)
	require.Len(t, overridden, 1)
	assert.Equal(t, at(2), overridden[0].Location)
	defects := ofKind(res, diag.KindMetadataDefect)
	require.Len(t, defects, 1)
	assert.Equal(t, at(1), defects[0].Location)
	assert.Equal(t, "OtherService", res.Plans[0].Steps[res.Plans[0].Result].Implementation)
}

// =============================================================================
// Pipeline Properties
// =============================================================================

func TestCompose_FatalSuppressesAllPlansButAnalysesAllRoots(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{
			bind("IGood", "Good", catalog.Transient, 1),
			bind("IBad", "Bad", catalog.Transient, 2, ctor(param("m", "IMissing", 3))),
			bind("IWorse", "Worse", catalog.Transient, 4, ctor(param("m", "IAlsoMissing", 5))),
		},
		Roots: []graph.Request{root("Good", "IGood", 10), root("Bad", "IBad", 11), root("Worse", "IWorse", 12)},
	})

	assert.False(t, res.Success)
	assert.Empty(t, res.Plans)
	assert.Equal(t, 2, res.Errors())
	assert.False(t, res.Roots[0].Failed)
	assert.True(t, res.Roots[1].Failed)
	assert.True(t, res.Roots[2].Failed)
}

func TestCompose_InnermostUnresolvedSiteOnly(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{
			bind("IA", "A", catalog.Transient, 1, ctor(param("b", "IB", 2))),
			bind("IB", "B", catalog.Transient, 3, ctor(param("c", "IC", 4))),
		},
		Roots: []graph.Request{root("A", "IA", 10)},
	})

	unresolved := ofKind(res, diag.KindUnableToResolve)
	require.Len(t, unresolved, 1)
	assert.Equal(t, at(4), unresolved[0].Location)
}

func TestCompose_SeverityOverride(t *testing.T) {
	in := Input{
		Bindings: []catalog.Binding{
			bind("IService", "Service", catalog.Transient, 1),
			bind("IUnused", "Unused", catalog.Transient, 2),
		},
		Roots: []graph.Request{root("Service", "IService", 10)},
	}

	assert.Len(t, ofKind(Compose(in), diag.KindMetadataDefect), 1)

	in.Severity = diag.Overrides{diag.KindMetadataDefect: diag.SeverityHidden}
	assert.Empty(t, ofKind(Compose(in), diag.KindMetadataDefect))

	in.Severity = diag.Overrides{diag.KindMetadataDefect: diag.SeverityError}
	res := Compose(in)
	assert.False(t, res.Success)
	assert.Empty(t, res.Plans)
}

func TestCompose_FrontEndDiagnosticsAreMerged(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{bind("IService", "Service", catalog.Transient, 1)},
		Roots:    []graph.Request{root("Service", "IService", 10)},
		Diagnostics: []diag.Diagnostic{{
			Kind:     diag.KindInvalidMetadata,
			Template: diag.MsgContradictoryBinding,
			Params:   []string{"X", "two implementations"},
			Location: at(20),
		}},
	})
	assert.False(t, res.Success)
	assert.Equal(t, diag.SeverityError, res.Diagnostics[0].Severity)
}

func TestCompose_RoundTripIsDeterministic(t *testing.T) {
	in := Input{
		Bindings: []catalog.Binding{
			bind("IBox<TT>", "Box<TT>", catalog.PerResolve, 1, ctor(param("v", "TT", 2))),
			value("int", "7", 3),
			bind("IA", "A", catalog.Transient, 4, ctor(
				param("box", "IBox<int>", 5),
				param("lazy", "Lazy<IBox<int>>", 6),
				param("all", "IEnumerable<IBox<int>>", 7),
			)),
			bind("IUnused", "Unused", catalog.Singleton, 8),
		},
		Roots: []graph.Request{root("A", "IA", 10), root("Box", "IBox<int>", 11)},
	}

	first, second := Compose(in), Compose(in)
	require.True(t, first.Success, "%v", first.Diagnostics)
	assert.Equal(t, first, second)
}

func TestCompose_PerResolveSpansBlocks(t *testing.T) {
	res := Compose(Input{
		Bindings: []catalog.Binding{
			bind("IState", "State", catalog.PerResolve, 1),
			bind("IA", "A", catalog.Transient, 2, ctor(param("s", "IState", 3), param("l", "Lazy<IState>", 4))),
		},
		Roots: []graph.Request{root("A", "IA", 10)},
	})

	require.True(t, res.Success)
	p := res.Plans[0]
	a := p.Step(p.Result)
	lazy := p.Step(a.Inputs[1].Step)
	assert.Equal(t, a.Inputs[0].Step, p.Blocks[lazy.Body].Result)
}

func TestCompose_DeepSingletonDiamond(t *testing.T) {
	const depth = 40
	var bindings []catalog.Binding
	for i := 0; i < depth; i++ {
		next := "I" + strconv.Itoa(i+1)
		bindings = append(bindings, bind("I"+strconv.Itoa(i), "C"+strconv.Itoa(i), catalog.Singleton, i+1,
			ctor(param("a", next, i+1), param("b", next, i+1))))
	}
	bindings = append(bindings, bind("I"+strconv.Itoa(depth), "C"+strconv.Itoa(depth), catalog.Singleton, depth+1, ctor()))

	start := time.Now()
	res := Compose(Input{Name: "diamond", Bindings: bindings, Roots: []graph.Request{root("Top", "I0", 100)}})
	assert.Less(t, time.Since(start), time.Second)

	require.True(t, res.Success, "%v", res.Diagnostics)
	require.Len(t, res.Plans, 1)
	assert.Len(t, res.Plans[0].Steps, depth+1)
	assert.Len(t, res.Slots, depth+1)
}
