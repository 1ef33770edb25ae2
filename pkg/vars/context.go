package vars

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/imdario/mergo"

	"github.com/latticeops/lattice/pkg/types"
)

// Scope identifies one of the twelve variable-precedence layers, ordered
// lowest to highest. Host/group scopes are per-host maps; everything else is
// a single process-wide map for the run (block/task scopes are supplied by
// the caller per invocation rather than stored here, since they are
// transient to a single task's lifecycle).
type Scope int

const (
	ScopeRoleDefaults Scope = iota
	ScopeGroupVars
	ScopeHostVars
	ScopePlaybookVars
	ScopePlayVars
	ScopeBlockVars
	ScopeTaskVars
	ScopeIncludeVars
	ScopeRegistered
	ScopeSetFact
	ScopeRoleParams
	ScopeIncludeParams
	ScopeExtraVars
	scopeCount
)

// RuntimeContext is the process-wide, per-run variable store described by
// the twelve-layer precedence table: role defaults, group vars, host vars,
// playbook vars, play vars, block vars, task vars, include vars, registered
// results & set_fact, role params, include params, extra vars (highest).
//
// Reads take a shared lock; merged-view construction is the only operation
// that walks every scope, so it preallocates for the total variable count
// seen so far to avoid repeated map growth.
type RuntimeContext struct {
	mu sync.RWMutex

	global   [scopeCount]map[string]interface{}
	perHost  map[string]*hostScopes
	hostSize int // running estimate of merged-view size, for preallocation
}

type hostScopes struct {
	groupVars  map[string]interface{}
	hostVars   map[string]interface{}
	registered map[string]*types.RegisteredResult
	setFact    map[string]interface{}
	facts      map[string]interface{}
}

// NewRuntimeContext creates an empty runtime context with all scopes ready
// for writes.
func NewRuntimeContext() *RuntimeContext {
	rc := &RuntimeContext{
		perHost: make(map[string]*hostScopes),
	}
	for i := range rc.global {
		rc.global[i] = make(map[string]interface{})
	}
	return rc
}

func (rc *RuntimeContext) hostEntry(host string) *hostScopes {
	hs, ok := rc.perHost[host]
	if !ok {
		hs = &hostScopes{
			groupVars:  make(map[string]interface{}),
			hostVars:   make(map[string]interface{}),
			registered: make(map[string]*types.RegisteredResult),
			setFact:    make(map[string]interface{}),
			facts:      make(map[string]interface{}),
		}
		rc.perHost[host] = hs
	}
	return hs
}

// SetScope writes name=value into one of the process-wide (non-host-scoped)
// layers: role defaults, playbook vars, play vars, block vars, task vars,
// include vars, role params, include params, extra vars.
func (rc *RuntimeContext) SetScope(scope Scope, name string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.global[scope][name] = value
}

// SetScopeVars bulk-writes a map into a process-wide scope.
func (rc *RuntimeContext) SetScopeVars(scope Scope, values map[string]interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for k, v := range values {
		rc.global[scope][k] = v
	}
}

// ClearScope empties a process-wide scope. Used between plays/blocks/tasks
// to drop transient layers (play vars at play end, block vars at block exit,
// task vars at task exit).
func (rc *RuntimeContext) ClearScope(scope Scope) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.global[scope] = make(map[string]interface{})
}

// SetGroupVar sets a group-derived variable for a host (group scope is
// materialized per host by the inventory loader before tasks run, since a
// host may belong to several groups whose vars already need merging).
func (rc *RuntimeContext) SetGroupVar(host, name string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.hostEntry(host).groupVars[name] = value
}

// SetHostVar sets an inventory host variable.
func (rc *RuntimeContext) SetHostVar(host, name string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.hostEntry(host).hostVars[name] = value
}

// SetHostFact records a gathered fact for a host. Facts are exposed both
// nested under ansible_facts and flattened as top-level ansible_<name> keys.
func (rc *RuntimeContext) SetHostFact(host, name string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.hostEntry(host).facts[name] = value
}

// SetFact writes to the set_fact scope for a host, which shares precedence
// with registered results (scope 9) per the precedence table.
func (rc *RuntimeContext) SetFact(host, name string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.hostEntry(host).setFact[name] = value
}

// Register stores a task's RegisteredResult under name in per-host scope.
// Registered results never cross host boundaries.
func (rc *RuntimeContext) Register(host, name string, result *types.RegisteredResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.hostEntry(host).registered[name] = result
}

// GetRegistered reads back a previously registered result for a host.
func (rc *RuntimeContext) GetRegistered(host, name string) (*types.RegisteredResult, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	hs, ok := rc.perHost[host]
	if !ok {
		return nil, false
	}
	r, ok := hs.registered[name]
	return r, ok
}

// Get scans scopes high to low and returns the first definition of name.
// Host/group scopes are skipped when host is empty.
func (rc *RuntimeContext) Get(name string, host string) (interface{}, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	for s := ScopeExtraVars; s > ScopeIncludeVars; s-- {
		if v, ok := rc.global[s][name]; ok {
			return v, true
		}
	}
	if host != "" {
		hs, ok := rc.perHost[host]
		if ok {
			if v, ok := hs.facts[name]; ok {
				return v, true
			}
			if v, ok := hs.setFact[name]; ok {
				return v, true
			}
			if v, ok := hs.registered[name]; ok {
				return v.ToMap(), true
			}
		}
	}
	for s := ScopeIncludeVars; s >= ScopePlaybookVars; s-- {
		if v, ok := rc.global[s][name]; ok {
			return v, true
		}
	}
	if host != "" {
		if hs, ok := rc.perHost[host]; ok {
			if v, ok := hs.hostVars[name]; ok {
				return v, true
			}
			if v, ok := hs.groupVars[name]; ok {
				return v, true
			}
		}
	}
	if v, ok := rc.global[ScopeRoleDefaults][name]; ok {
		return v, true
	}
	return nil, false
}

// merged materializes the full layered view for host, in precedence order
// lowest to highest, so that a later assignment always overwrites an earlier
// one. This is the only reader API the template/condition layer consumes.
func (rc *RuntimeContext) Merged(host string) map[string]interface{} {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make(map[string]interface{}, rc.hostSize+32)

	out["inventory_hostname"] = host
	out["inventory_hostname_short"] = shortHostname(host)

	layer(out, rc.global[ScopeRoleDefaults])
	if hs, ok := rc.perHost[host]; ok {
		layer(out, hs.groupVars)
		layer(out, hs.hostVars)
	}
	layer(out, rc.global[ScopePlaybookVars])
	layer(out, rc.global[ScopePlayVars])
	layer(out, rc.global[ScopeBlockVars])
	layer(out, rc.global[ScopeTaskVars])
	layer(out, rc.global[ScopeIncludeVars])

	if hs, ok := rc.perHost[host]; ok {
		registered := make(map[string]interface{}, len(hs.registered))
		for k, v := range hs.registered {
			registered[k] = v.ToMap()
		}
		layer(out, registered)
		layer(out, hs.setFact)

		facts := make(map[string]interface{}, len(hs.facts))
		for k, v := range hs.facts {
			facts[k] = v
			if matchesAnsiblePrefix(k) {
				continue
			}
			out["ansible_"+k] = v
		}
		out["ansible_facts"] = facts
		for k, v := range hs.facts {
			if matchesAnsiblePrefix(k) {
				out[k] = v
			}
		}
	}

	layer(out, rc.global[ScopeRoleParams])
	layer(out, rc.global[ScopeIncludeParams])
	layer(out, rc.global[ScopeExtraVars])

	if rc.hostSize < len(out) {
		rc.hostSize = len(out)
	}
	return out
}

// MergedWithGroups is Merged plus the magic group_names/groups/hostvars
// variables, which depend on the full inventory rather than this context
// alone; callers (the Task Runner) supply that inventory-derived data.
func (rc *RuntimeContext) MergedWithGroups(host string, groupNames []string, groups map[string][]string, hostvars map[string]map[string]interface{}, playHosts []string) map[string]interface{} {
	m := rc.Merged(host)
	m["group_names"] = groupNames
	m["groups"] = groups
	m["hostvars"] = hostvars
	m["ansible_play_hosts"] = playHosts
	return m
}

// MergeInto deep-merges override into base using mergo, with override values
// winning on conflict. Used by the Task Runner to fold a loop item or a
// role's defaults/vars chain into a single map before rendering.
func MergeInto(base, override map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	if err := mergo.Merge(&result, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging variable scopes: %w", err)
	}
	return result, nil
}

func layer(out, src map[string]interface{}) {
	for k, v := range src {
		out[k] = v
	}
}

var ansibleFactPrefix = regexp.MustCompile(`^ansible_`)

func matchesAnsiblePrefix(name string) bool {
	return ansibleFactPrefix.MatchString(name)
}

func shortHostname(host string) string {
	for i := 0; i < len(host); i++ {
		if host[i] == '.' {
			return host[:i]
		}
	}
	return host
}

// SortedHostNames returns the context's known hosts sorted, for deterministic
// iteration in tests and reports.
func (rc *RuntimeContext) SortedHostNames() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	names := make([]string, 0, len(rc.perHost))
	for h := range rc.perHost {
		names = append(names, h)
	}
	sort.Strings(names)
	return names
}
