package status

import (
	"fmt"
	"strings"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// Meta is the display and classification data attached to one status value.
type Meta struct {
	Label                 string `json:"label"`
	Description           string `json:"description"`
	Color                 string `json:"color"`
	Icon                  string `json:"icon"`
	Editable              bool   `json:"editable"`
	Active                bool   `json:"active"`
	PendingCustomerAction bool   `json:"pending_customer_action"`
}

// Catalog bundles a transition graph with per-status metadata for one entity kind.
type Catalog[S ~string] struct {
	graph Graph[S]
	meta  map[S]Meta
}

// NewCatalog validates that every graph state has metadata and vice versa.
func NewCatalog[S ~string](graph Graph[S], meta map[S]Meta) (Catalog[S], error) {
	for _, s := range graph.States() {
		if _, ok := meta[s]; !ok {
			return Catalog[S]{}, fmt.Errorf("status %q has no metadata", s)
		}
	}
	for s := range meta {
		if !graph.Has(s) {
			return Catalog[S]{}, fmt.Errorf("%w: metadata for %q", ErrOrphanState, s)
		}
	}
	copied := make(map[S]Meta, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	return Catalog[S]{graph: graph, meta: copied}, nil
}

// MustCatalog builds a catalog from edges and metadata and panics when the
// definition is inconsistent. Intended for package-level tables.
func MustCatalog[S ~string](initial S, edges []Edge[S], meta map[S]Meta) Catalog[S] {
	g, err := NewGraph(initial, edges)
	if err != nil {
		panic(err)
	}
	c, err := NewCatalog(g, meta)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalog[S]) Graph() Graph[S] { return c.graph }

// Values returns all statuses in declaration order.
func (c Catalog[S]) Values() []S { return c.graph.States() }

func (c Catalog[S]) Meta(s S) (Meta, bool) {
	m, ok := c.meta[s]
	return m, ok
}

// Label returns the display label, or the raw value for unknown statuses.
func (c Catalog[S]) Label(s S) string {
	if m, ok := c.meta[s]; ok {
		return m.Label
	}
	return string(s)
}

// Parse resolves a raw value case-insensitively.
func (c Catalog[S]) Parse(raw string) (S, bool) {
	v := S(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.graph.Has(v) {
		var zero S
		return zero, false
	}
	return v, true
}

func (c Catalog[S]) CanTransition(from, to S) bool { return c.graph.Allows(from, to) }

func (c Catalog[S]) Next(s S) []S { return c.graph.Targets(s) }

func (c Catalog[S]) IsFinal(s S) bool { return c.graph.IsTerminal(s) }

func (c Catalog[S]) IsEditable(s S) bool { return c.meta[s].Editable }

func (c Catalog[S]) IsActive(s S) bool { return c.meta[s].Active }

func (c Catalog[S]) IsPendingCustomerAction(s S) bool { return c.meta[s].PendingCustomerAction }

// Transition returns a validation error when from -> to is not allowed.
func (c Catalog[S]) Transition(from, to S) error {
	if !c.graph.Has(from) || !c.graph.Has(to) {
		return apperr.Validation("status.Transition", "unknown status %q -> %q", from, to)
	}
	if !c.graph.Allows(from, to) {
		return apperr.Validation("status.Transition", "transition from %s to %s is not allowed", from, to)
	}
	return nil
}
