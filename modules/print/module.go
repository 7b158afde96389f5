package print

import (
	"context"
	"sort"

	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/registry"
)

// Name is the registry key of this module.
const Name = "print"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Line is one printed key/value pair.
type Line struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// State is the module's shared state.
type State struct {
	Count int    `json:"count"`
	Last  []Line `json:"last"`
	By    string `json:"by"`
}

// Print writes the posted parameters to the worker log, sorted by key, and
// keeps them as the last printed entry.
func Print(ctx context.Context, call *module.Call) (any, error) {
	logger := ctxlog.FromContext(ctx)

	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("RW_print", err)
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(call.Params))
	for k := range call.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]Line, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, Line{Key: k, Value: call.Param(k)})
		logger.Info("Printing input", "key", k, "value", call.Param(k))
	}
	if len(lines) == 0 {
		logger.Info("Printing input", "value", "(null)")
	}

	call.SetState(State{Count: st.Count + 1, Last: lines, By: call.Who})
	call.Audit("Input printed.", "keys", len(lines))
	return len(lines), nil
}

// Last returns the last printed entry.
func Last(ctx context.Context, call *module.Call) (any, error) {
	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("GET_last", err)
	}
	return st, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Add(module.NewHandle(Name).
		ReadWrite("print", Print).
		Telemetry("last", Last))
}
