package status

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOrphanState      = errors.New("transition references an undeclared state")
	ErrUnreachableState = errors.New("state is unreachable from the initial state")
)

// Graph is an immutable directed graph of allowed status transitions.
type Graph[S ~string] struct {
	initial S
	order   []S
	edges   map[S]map[S]struct{}
}

// Edge lists the targets allowed from a single state.
type Edge[S ~string] struct {
	From S
	To   []S
}

// NewGraph builds and validates a transition graph. Every state the graph
// knows about must appear as an Edge.From (terminal states carry an empty To),
// every target must be declared, and every state must be reachable from initial.
func NewGraph[S ~string](initial S, edges []Edge[S]) (Graph[S], error) {
	g := Graph[S]{
		initial: initial,
		order:   make([]S, 0, len(edges)),
		edges:   make(map[S]map[S]struct{}, len(edges)),
	}
	for _, e := range edges {
		if _, dup := g.edges[e.From]; dup {
			return Graph[S]{}, fmt.Errorf("state %q declared twice", e.From)
		}
		targets := make(map[S]struct{}, len(e.To))
		for _, to := range e.To {
			targets[to] = struct{}{}
		}
		g.edges[e.From] = targets
		g.order = append(g.order, e.From)
	}

	if _, ok := g.edges[initial]; !ok {
		return Graph[S]{}, fmt.Errorf("%w: initial state %q", ErrOrphanState, initial)
	}
	for _, from := range g.order {
		for to := range g.edges[from] {
			if _, ok := g.edges[to]; !ok {
				return Graph[S]{}, fmt.Errorf("%w: %q -> %q", ErrOrphanState, from, to)
			}
		}
	}

	seen := map[S]struct{}{initial: {}}
	stack := []S{initial}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for to := range g.edges[cur] {
			if _, ok := seen[to]; !ok {
				seen[to] = struct{}{}
				stack = append(stack, to)
			}
		}
	}
	for _, s := range g.order {
		if _, ok := seen[s]; !ok {
			return Graph[S]{}, fmt.Errorf("%w: %q", ErrUnreachableState, s)
		}
	}

	return g, nil
}

// Initial returns the entry state of the graph.
func (g Graph[S]) Initial() S { return g.initial }

// States returns the declared states in declaration order.
func (g Graph[S]) States() []S {
	out := make([]S, len(g.order))
	copy(out, g.order)
	return out
}

// Has reports whether s is a declared state.
func (g Graph[S]) Has(s S) bool {
	_, ok := g.edges[s]
	return ok
}

// Allows reports whether the edge from -> to exists.
func (g Graph[S]) Allows(from, to S) bool {
	targets, ok := g.edges[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Targets returns the states reachable in one step from s, sorted.
func (g Graph[S]) Targets(s S) []S {
	targets := g.edges[s]
	out := make([]S, 0, len(targets))
	for to := range targets {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether s is declared and has no outgoing edges.
func (g Graph[S]) IsTerminal(s S) bool {
	targets, ok := g.edges[s]
	return ok && len(targets) == 0
}
