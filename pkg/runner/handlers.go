package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/latticeops/lattice/pkg/types"
)

// HandlerManager is the Handler Flush Engine. It indexes handlers by both
// their own name and every alias in their listen list, tracks per-host
// pending notifications, and drains them in handler definition order with
// cascade support: a handler that reports Changed re-notifies whatever
// listens for its own name, which may pull further handlers into the next
// round.
type HandlerManager struct {
	mu sync.RWMutex

	// order preserves handler definition order; index maps a notification
	// name (the handler's own name, or any of its listen aliases) to every
	// handler name it resolves to.
	order   []string
	byName  map[string]types.Handler
	index   map[string][]string
	pending map[string][]string // host -> pending notification names, insertion order
}

// NewHandlerManager creates an empty handler manager.
func NewHandlerManager() *HandlerManager {
	return &HandlerManager{
		byName:  make(map[string]types.Handler),
		index:   make(map[string][]string),
		pending: make(map[string][]string),
	}
}

// RegisterHandlers seeds the manager for one play. It must be called once at
// play start, after which the registry is read-only for the play's duration.
func (h *HandlerManager) RegisterHandlers(handlers []types.Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.order = nil
	h.byName = make(map[string]types.Handler)
	h.index = make(map[string][]string)

	for _, handler := range handlers {
		if handler.Name == "" {
			return fmt.Errorf("handler must have a name")
		}
		h.order = append(h.order, handler.Name)
		h.byName[handler.Name] = handler
		h.addIndexEntry(handler.Name, handler.Name)
		for _, alias := range handler.Listen {
			h.addIndexEntry(alias, handler.Name)
		}
	}
	return nil
}

func (h *HandlerManager) addIndexEntry(notification, handlerName string) {
	for _, existing := range h.index[notification] {
		if existing == handlerName {
			return
		}
	}
	h.index[notification] = append(h.index[notification], handlerName)
}

// Notify records notification names as pending for host. Deduplicated: a
// name already pending for that host is not added twice.
func (h *HandlerManager) Notify(host string, names []string) {
	if len(names) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range names {
		if _, known := h.index[name]; !known {
			continue // unresolved notification: warning only, never fatal (§4.5)
		}
		if !containsString(h.pending[host], name) {
			h.pending[host] = append(h.pending[host], name)
		}
	}
}

// HasHandlers reports whether any handler is registered for this play.
func (h *HandlerManager) HasHandlers() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order) > 0
}

// GetHandler looks up a handler definition by its own name.
func (h *HandlerManager) GetHandler(name string) (types.Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, exists := h.byName[name]
	return handler, exists
}

// Clear drops all registered handlers and pending notifications, for reuse
// across plays.
func (h *HandlerManager) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	h.byName = make(map[string]types.Handler)
	h.index = make(map[string][]string)
	h.pending = make(map[string][]string)
}

// takePending drains and clears the pending-notification set across the
// given hosts, resolving it to a deduplicated list of handler names in
// handler definition order, exactly as the flush protocol's `resolved`
// computation describes.
func (h *HandlerManager) takePending(hosts []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]bool)
	for _, host := range hosts {
		for _, name := range h.pending[host] {
			for _, handlerName := range h.index[name] {
				seen[handlerName] = true
			}
		}
		delete(h.pending, host)
	}

	var resolved []string
	for _, name := range h.order {
		if seen[name] {
			resolved = append(resolved, name)
		}
	}
	return resolved
}

// discardPending drops pending notifications for the given hosts without
// executing them (used when a play fails and force_handlers is false).
func (h *HandlerManager) discardPending(hosts []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, host := range hosts {
		count += len(h.pending[host])
		delete(h.pending, host)
	}
	return count
}

// nextFrontier resolves which further handlers a round of Changed handler
// names should pull in, in definition order, excluding anything already
// executed.
func (h *HandlerManager) nextFrontier(changedHandlers []string, executed map[string]bool) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	for _, name := range changedHandlers {
		for _, next := range h.index[name] {
			seen[next] = true
		}
	}

	var frontier []string
	for _, name := range h.order {
		if seen[name] && !executed[name] {
			frontier = append(frontier, name)
		}
	}
	return frontier
}

// Flush drains pending notifications across hosts and runs the resolved
// handlers to fixpoint, per §4.5: each handler runs at most once per flush,
// in definition order within a round, and a Changed handler cascades into
// the next round via its own name/listen aliases.
//
// If failed is true and forceHandlers is false, pending notifications are
// discarded (a warning, never fatal) and Flush is a no-op.
func (h *HandlerManager) Flush(ctx context.Context, runner *TaskRunner, hosts []types.Host, vars map[string]interface{}, failed, forceHandlers bool) ([]types.Result, error) {
	hostNames := make([]string, len(hosts))
	for i, host := range hosts {
		hostNames[i] = host.Name
	}

	if failed && !forceHandlers {
		h.discardPending(hostNames)
		return nil, nil
	}

	frontier := h.takePending(hostNames)
	if len(frontier) == 0 {
		return nil, nil
	}

	var allResults []types.Result
	executed := make(map[string]bool)

	for len(frontier) > 0 {
		var changedThisRound []string

		for _, name := range frontier {
			if executed[name] {
				continue
			}
			handler, exists := h.GetHandler(name)
			if !exists {
				continue
			}
			executed[name] = true

			results, err := runner.Run(ctx, handler.Task, hosts, vars)
			if err != nil {
				return allResults, fmt.Errorf("handler %q failed: %w", name, err)
			}
			allResults = append(allResults, results...)

			for _, r := range results {
				if r.Changed {
					changedThisRound = append(changedThisRound, name)
					break
				}
			}
		}

		frontier = h.nextFrontier(changedThisRound, executed)
	}

	return allResults, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
