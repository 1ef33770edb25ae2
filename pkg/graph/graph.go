// Package graph provides a generic string-keyed dependency graph with
// cycle-detecting topological sort, shared by role dependency resolution and
// task-level `dependencies` ordering.
package graph

import (
	"sort"

	"github.com/latticeops/lattice/pkg/types"
)

// Graph is a directed graph of string node identifiers. An edge from A to B
// means "A depends on B" (B must be visited before A in the sort order).
type Graph struct {
	nodes map[string]bool
	edges map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		edges: make(map[string][]string),
	}
}

// AddNode registers a node identifier, even if it has no dependencies.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// AddEdge records that `from` depends on `to`. Both nodes are implicitly
// registered if not already present.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.edges[from] = append(g.edges[from], to)
}

// HasNode reports whether id was registered via AddNode/AddEdge.
func (g *Graph) HasNode(id string) bool {
	return g.nodes[id]
}

// TopoSort returns node identifiers ordered so that every node appears after
// everything it depends on. Traversal starts from nodes in sorted order for
// determinism. Returns a *types.DependencyCycleError if the graph contains a
// cycle.
func (g *Graph) TopoSort() ([]string, error) {
	var ids []string
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return g.topoSort(ids)
}

// TopoSortFrom is TopoSort but visits nodes in the given seed order rather
// than alphabetically, so a graph with few or no edges preserves the
// caller's original ordering instead of being alphabetized. Nodes present in
// the graph but missing from seed are appended, sorted, at the end.
func (g *Graph) TopoSortFrom(seed []string) ([]string, error) {
	seen := make(map[string]bool, len(seed))
	ids := make([]string, 0, len(g.nodes))
	for _, id := range seed {
		if g.nodes[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	var rest []string
	for id := range g.nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	ids = append(ids, rest...)
	return g.topoSort(ids)
}

func (g *Graph) topoSort(ids []string) ([]string, error) {
	resolved := make(map[string]bool, len(g.nodes))
	inProgress := make(map[string]bool, len(g.nodes))
	var order []string

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if inProgress[id] {
			return types.NewDependencyCycleError(id, append(path, id))
		}
		if resolved[id] {
			return nil
		}

		inProgress[id] = true
		path = append(path, id)

		deps := append([]string(nil), g.edges[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, path); err != nil {
				return err
			}
		}

		inProgress[id] = false
		resolved[id] = true
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if !resolved[id] {
			if err := visit(id, nil); err != nil {
				return nil, err
			}
		}
	}

	return order, nil
}
