package roles

import (
	"fmt"

	"github.com/latticeops/lattice/pkg/graph"
)

// DependencyResolver resolves role dependencies in correct order
type DependencyResolver struct {
	roles      map[string]*Role
	resolved   map[string]bool
	inProgress map[string]bool
	order      []string
}

// NewDependencyResolver creates a new dependency resolver
func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{
		roles:      make(map[string]*Role),
		resolved:   make(map[string]bool),
		inProgress: make(map[string]bool),
		order:      []string{},
	}
}

// AddRole adds a role to the resolver
func (dr *DependencyResolver) AddRole(role *Role) {
	dr.roles[role.Name] = role
}

// buildGraph translates the role set into the generic string-node
// dependency graph: an edge from a role's name to each of its dependencies.
func (dr *DependencyResolver) buildGraph() (*graph.Graph, error) {
	g := graph.New()
	for name, role := range dr.roles {
		g.AddNode(name)
		for _, dep := range role.Dependencies {
			if !g.HasNode(dep.Role) {
				if _, exists := dr.roles[dep.Role]; !exists {
					return nil, fmt.Errorf("dependency '%s' of role '%s' not found", dep.Role, name)
				}
			}
			g.AddEdge(name, dep.Role)
		}
	}
	return g, nil
}

// Resolve returns roles in dependency order
func (dr *DependencyResolver) Resolve() ([]*Role, error) {
	// Reset state
	dr.resolved = make(map[string]bool)
	dr.inProgress = make(map[string]bool)
	dr.order = []string{}

	g, err := dr.buildGraph()
	if err != nil {
		return nil, err
	}

	order, err := g.TopoSort()
	if err != nil {
		return nil, err
	}
	dr.order = order
	for _, name := range order {
		dr.resolved[name] = true
	}

	// Build result in resolved order
	var result []*Role
	for _, name := range dr.order {
		if role, exists := dr.roles[name]; exists {
			result = append(result, role)
		}
	}

	return result, nil
}

// GetExecutionOrder returns the execution order for roles
func (dr *DependencyResolver) GetExecutionOrder() []string {
	return dr.order
}

// CheckCircularDependencies checks for circular dependencies, returning a
// *types.DependencyCycleError if one is found.
func (dr *DependencyResolver) CheckCircularDependencies() error {
	g, err := dr.buildGraph()
	if err != nil {
		return err
	}
	_, err = g.TopoSort()
	return err
}

// GetDependencyGraph returns a map of role to its dependencies
func (dr *DependencyResolver) GetDependencyGraph() map[string][]string {
	depGraph := make(map[string][]string)

	for name, role := range dr.roles {
		var deps []string
		for _, dep := range role.Dependencies {
			deps = append(deps, dep.Role)
		}
		depGraph[name] = deps
	}

	return depGraph
}

// GetDependents returns roles that depend on the given role
func (dr *DependencyResolver) GetDependents(roleName string) []string {
	var dependents []string
	
	for name, role := range dr.roles {
		if name == roleName {
			continue
		}
		
		for _, dep := range role.Dependencies {
			if dep.Role == roleName {
				dependents = append(dependents, name)
				break
			}
		}
	}
	
	return dependents
}