package env_vars

import (
	"context"
	"os"

	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/registry"
)

// Name is the registry key of this module.
const Name = "env_vars"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Lookup reads a variable. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// State lists the variables workers may disclose.
type State struct {
	Expose []string `json:"expose"`
}

// Output maps each exposed variable that is set to its value.
type Output struct {
	All map[string]string `json:"all"`
}

// Vars reports the exposed variables as this worker sees them.
func (m *Module) Vars(ctx context.Context, call *module.Call) (any, error) {
	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("GET_vars", err)
	}

	lookup := m.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	envMap := make(map[string]string, len(st.Expose))
	for _, name := range st.Expose {
		if v, ok := lookup(name); ok {
			envMap[name] = v
		}
	}
	return &Output{All: envMap}, nil
}

// Expose replaces the list of disclosed variables.
func (m *Module) Expose(ctx context.Context, call *module.Call) (any, error) {
	names := call.Params["name"]
	call.SetState(State{Expose: append([]string{}, names...)})
	call.Audit("Exposed environment changed.", "names", names)
	return len(names), nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Add(module.NewHandle(Name).
		Telemetry("vars", m.Vars).
		ReadWrite("expose", m.Expose))
}
