// Package selector chooses the construction strategy for a constructed
// implementation: which constructor to call and in which order members are
// populated afterwards.
package selector

import (
	"sort"
	"strconv"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/types"
)

// Resolvability is the outcome of a shallow probe for one parameter.
type Resolvability int

const (
	Unresolvable Resolvability = iota
	ViaBinding
	ViaDefault
)

// Probe answers whether a parameter can be satisfied, looking only one
// level deep.
type Probe func(p catalog.Parameter) Resolvability

// Problem is a finding the caller turns into a diagnostic.
type Problem struct {
	Kind     diag.Kind
	Location diag.Location
	Template string
	Params   []string
}

// Selection is the chosen strategy. Defaults marks parameters of the
// chosen constructor that take their declared default literal.
type Selection struct {
	Constructor int
	Defaults    []bool
	Members     []int
}

// Select picks a constructor for impl:
//
//   - a single constructor is used whatever its accessibility
//   - otherwise only accessible constructors compete
//   - the lowest explicit ordinal wins; equal lowest ordinals are ambiguous
//   - without ordinals, fully resolvable beats partially resolvable, then
//     more parameters beats fewer, then the earlier declaration wins
//
// When no candidate is fully resolvable, the first unresolvable parameter
// of each candidate is reported, once per distinct contract. Selection's
// Constructor is -1 whenever problems are returned.
func Select(impl types.Type, ctors []catalog.Constructor, members []catalog.Member, probe Probe) (Selection, []Problem) {
	sel := Selection{Constructor: -1}
	name := impl.String()

	candidates := make([]int, 0, len(ctors))
	for i, c := range ctors {
		if len(ctors) == 1 || c.Accessible {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return sel, []Problem{{
			Kind:     diag.KindInvalidMetadata,
			Location: firstLocation(ctors),
			Template: diag.MsgNoAccessibleCtor,
			Params:   []string{name},
		}}
	}

	if chosen, problem, ok := byOrdinal(name, ctors, candidates); ok {
		if problem != nil {
			return sel, []Problem{*problem}
		}
		return finish(ctors, chosen, members, probe)
	}

	type ranked struct {
		index int
		full  bool
		arity int
	}
	ranks := make([]ranked, len(candidates))
	for i, idx := range candidates {
		ranks[i] = ranked{index: idx, full: resolvable(ctors[idx], probe), arity: len(ctors[idx].Params)}
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.full != b.full {
			return a.full
		}
		if a.arity != b.arity {
			return a.arity > b.arity
		}
		return a.index < b.index
	})
	if ranks[0].full {
		return finish(ctors, ranks[0].index, members, probe)
	}

	var problems []Problem
	reported := make(map[string]bool)
	for _, idx := range candidates {
		for _, p := range ctors[idx].Params {
			if probe(p) != Unresolvable {
				continue
			}
			id := p.Key().ID()
			if !reported[id] {
				reported[id] = true
				problems = append(problems, Problem{
					Kind:     diag.KindUnableToResolve,
					Location: p.Location,
					Template: diag.MsgUnresolved,
					Params:   []string{p.Key().String(), name},
				})
			}
			break
		}
	}
	return sel, problems
}

func byOrdinal(name string, ctors []catalog.Constructor, candidates []int) (int, *Problem, bool) {
	best, count := -1, 0
	for _, idx := range candidates {
		o := ctors[idx].Ordinal
		if o == nil {
			continue
		}
		switch {
		case best < 0 || *o < *ctors[best].Ordinal:
			best, count = idx, 1
		case *o == *ctors[best].Ordinal:
			count++
		}
	}
	if best < 0 {
		return 0, nil, false
	}
	if count > 1 {
		return 0, &Problem{
			Kind:     diag.KindInvalidMetadata,
			Location: ctors[best].Location,
			Template: diag.MsgAmbiguousOrdinal,
			Params:   []string{name, strconv.Itoa(*ctors[best].Ordinal)},
		}, true
	}
	return best, nil, true
}

func resolvable(c catalog.Constructor, probe Probe) bool {
	for _, p := range c.Params {
		if probe(p) == Unresolvable {
			return false
		}
	}
	return true
}

func finish(ctors []catalog.Constructor, chosen int, members []catalog.Member, probe Probe) (Selection, []Problem) {
	params := ctors[chosen].Params
	sel := Selection{
		Constructor: chosen,
		Defaults:    make([]bool, len(params)),
		Members:     MemberOrder(members),
	}
	for i, p := range params {
		sel.Defaults[i] = probe(p) == ViaDefault
	}
	return sel, nil
}

// MemberOrder returns member indexes in population order: members with an
// ordinal first, ascending, then the rest in declaration order.
func MemberOrder(members []catalog.Member) []int {
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := members[order[i]].Ordinal, members[order[j]].Ordinal
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		default:
			return false
		}
	})
	return order
}

func firstLocation(ctors []catalog.Constructor) diag.Location {
	if len(ctors) > 0 {
		return ctors[0].Location
	}
	return diag.Location{}
}
