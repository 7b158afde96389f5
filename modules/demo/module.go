package demo

import (
	"context"

	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/registry"
)

// Name is the registry key of this module.
const Name = "demo"

// Module implements the registry.Module interface for this package.
type Module struct{}

// State is the module's shared state.
type State struct {
	Flag int `json:"flag"`
}

// Input defines the form parameters of setFlag.
type Input struct {
	Value int `json:"value"`
}

// Init normalizes the manifest's init_state into a State.
func Init(ctx context.Context, initial any) (any, error) {
	var st State
	if initial != nil {
		if err := module.Decode(initial, &st); err != nil {
			return nil, err
		}
	}
	ctxlog.FromContext(ctx).Debug("Demo module initialized.", "flag", st.Flag)
	return st, nil
}

// SetFlag stores the posted value and answers true.
func SetFlag(ctx context.Context, call *module.Call) (any, error) {
	var in Input
	if err := call.Bind(&in); err != nil {
		return nil, module.Internal("RW_setFlag", err)
	}
	call.SetState(State{Flag: in.Value})
	call.Audit("Flag set.", "value", in.Value)
	return true, nil
}

// GetFlag returns the flag from the shared state.
func GetFlag(ctx context.Context, call *module.Call) (any, error) {
	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("GET_getFlag", err)
	}
	return st.Flag, nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Add(module.NewHandle(Name).
		OnInit(Init).
		ReadWrite("setFlag", SetFlag).
		ReadOnly("getFlag", GetFlag).
		Telemetry("getFlag", GetFlag))
}
