package runner

import (
	"context"
	"testing"

	"github.com/latticeops/lattice/pkg/types"
)

func TestHandlerManager(t *testing.T) {
	hm := NewHandlerManager()

	handler1 := types.Handler{Task: types.Task{
		Name:   "restart_service",
		Module: types.TypeService,
		Args:   map[string]interface{}{"name": "nginx", "state": "restarted"},
	}}
	handler2 := types.Handler{Task: types.Task{
		Name:   "reload_config",
		Module: types.TypeCommand,
		Args:   map[string]interface{}{"cmd": "reload config"},
	}, Listen: []string{"config_changed"}}

	if err := hm.RegisterHandlers([]types.Handler{handler1, handler2}); err != nil {
		t.Fatalf("failed to register handlers: %v", err)
	}

	// Registering an unnamed handler should fail.
	if err := hm.RegisterHandlers([]types.Handler{{Task: types.Task{Module: types.TypeDebug}}}); err == nil {
		t.Error("expected error when registering handler without name")
	}
	// Re-register the valid set, since the failed call above cleared state.
	if err := hm.RegisterHandlers([]types.Handler{handler1, handler2}); err != nil {
		t.Fatalf("failed to re-register handlers: %v", err)
	}

	if !hm.HasHandlers() {
		t.Error("expected HasHandlers to return true")
	}

	h, exists := hm.GetHandler("restart_service")
	if !exists || h.Name != "restart_service" {
		t.Error("expected to find handler by name")
	}

	// A listen alias resolves to the handler's own name, not a handler
	// itself, so GetHandler("config_changed") has no direct entry.
	if _, exists := hm.GetHandler("config_changed"); exists {
		t.Error("listen alias should not resolve via GetHandler")
	}

	hm.Notify("web1", []string{"restart_service"})
	ctx := context.Background()
	tr := NewTaskRunner()
	hosts := []types.Host{{Name: "web1", Address: "localhost"}}

	results, err := hm.Flush(ctx, tr, hosts, nil, false, false)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 handler result, got %d", len(results))
	}

	// A second flush with nothing pending is a no-op.
	results, err = hm.Flush(ctx, tr, hosts, nil, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results with no pending notifications, got %d", len(results))
	}

	// Notifying via the listen alias resolves to the same handler.
	hm.Notify("web1", []string{"config_changed"})
	results, err = hm.Flush(ctx, tr, hosts, nil, false, false)
	if err != nil {
		t.Fatalf("flush via listen alias failed: %v", err)
	}
	if len(results) != 1 || results[0].ModuleName != types.TypeCommand.String() {
		t.Errorf("expected reload_config to run via listen alias, got %+v", results)
	}

	// Duplicate notifications for the same host collapse to one run.
	hm.Notify("web1", []string{"restart_service"})
	hm.Notify("web1", []string{"restart_service"})
	results, _ = hm.Flush(ctx, tr, hosts, nil, false, false)
	if len(results) != 1 {
		t.Errorf("expected 1 result for deduplicated notifications, got %d", len(results))
	}

	hm.Clear()
	if hm.HasHandlers() {
		t.Error("expected HasHandlers to return false after Clear")
	}
}

func TestHandlerManagerForceHandlers(t *testing.T) {
	hm := NewHandlerManager()
	handler := types.Handler{Task: types.Task{
		Name:   "notify_on_failure",
		Module: types.TypeDebug,
		Args:   map[string]interface{}{"msg": "handler executed"},
	}}
	if err := hm.RegisterHandlers([]types.Handler{handler}); err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	hosts := []types.Host{{Name: "localhost", Address: "localhost"}}
	tr := NewTaskRunner()
	ctx := context.Background()

	hm.Notify("localhost", []string{"notify_on_failure"})
	results, err := hm.Flush(ctx, tr, hosts, nil, true, false)
	if err != nil {
		t.Fatalf("unexpected error discarding on failure: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected pending notifications to be discarded, got %d results", len(results))
	}

	hm.Notify("localhost", []string{"notify_on_failure"})
	results, err = hm.Flush(ctx, tr, hosts, nil, true, true)
	if err != nil {
		t.Fatalf("force_handlers flush failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected force_handlers to run the pending handler, got %d results", len(results))
	}
}

func TestHandlerManagerCascade(t *testing.T) {
	hm := NewHandlerManager()
	// "reload" reports Changed via its command module (debug never reports
	// changed, so only the command-backed handler can cascade here); it
	// listens for nothing but is itself listened for by "restart".
	reload := types.Handler{Task: types.Task{
		Name:   "reload",
		Module: types.TypeCommand,
		Args:   map[string]interface{}{"cmd": "true"},
	}}
	restart := types.Handler{Task: types.Task{
		Name:   "restart",
		Module: types.TypeDebug,
		Args:   map[string]interface{}{"msg": "restarted"},
	}, Listen: []string{"reload"}}

	if err := hm.RegisterHandlers([]types.Handler{reload, restart}); err != nil {
		t.Fatalf("failed to register handlers: %v", err)
	}

	hosts := []types.Host{{Name: "localhost", Address: "localhost"}}
	tr := NewTaskRunner()
	ctx := context.Background()

	hm.Notify("localhost", []string{"reload"})
	results, err := hm.Flush(ctx, tr, hosts, nil, false, false)
	if err != nil {
		t.Fatalf("cascade flush failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected reload's change to cascade into restart, got %d results", len(results))
	}
}
