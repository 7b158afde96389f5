package demo

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/registry"
)

func TestSetAndGetFlag(t *testing.T) {
	ctx := context.Background()

	set := module.NewCall(Name, "setFlag", module.ReadWrite, map[string]any{"flag": float64(0)})
	set.Params.Set("value", "1")
	out, err := SetFlag(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, true, out)
	assert.True(t, set.StateChanged())
	assert.Equal(t, State{Flag: 1}, set.State())

	get := module.NewCall(Name, "getFlag", module.Telemetry, map[string]any{"flag": float64(1)})
	out, err = GetFlag(ctx, get)
	require.NoError(t, err)
	assert.Equal(t, 1, out)
}

func TestSetFlag_BadInput(t *testing.T) {
	call := module.NewCall(Name, "setFlag", module.ReadWrite, nil)
	call.Params.Set("value", "not-a-number")

	_, err := SetFlag(context.Background(), call)

	assert.Equal(t, module.KindInternal, module.KindOf(err))
}

func TestInit(t *testing.T) {
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))

	v, err := Init(ctx, map[string]any{"flag": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, State{Flag: 3}, v)

	v, err = Init(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, State{}, v)
}

func TestRegister(t *testing.T) {
	reg := registry.New(registry.Catalog{})
	(&Module{}).Register(reg)

	h, ok := reg.Lookup(Name)
	require.True(t, ok)
	_, ok = h.Lookup(module.ReadOnly, "setFlag")
	assert.False(t, ok, "setFlag must not be reachable read-only")
	_, ok = h.Lookup(module.ReadWrite, "setFlag")
	assert.True(t, ok)
}
