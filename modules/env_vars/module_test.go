package env_vars

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/module"
)

func TestVars_OnlyExposedAndSet(t *testing.T) {
	// --- Arrange ---
	env := map[string]string{"HOSTNAME": "node-1", "SECRET": "hunter2"}
	m := &Module{Lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	call := module.NewCall(Name, "vars", module.Telemetry, map[string]any{
		"expose": []any{"HOSTNAME", "TZ"},
	})

	// --- Act ---
	out, err := m.Vars(context.Background(), call)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, &Output{All: map[string]string{"HOSTNAME": "node-1"}}, out)
}

func TestExpose(t *testing.T) {
	// --- Arrange ---
	m := &Module{}
	call := module.NewCall(Name, "expose", module.ReadWrite, nil)
	call.Params["name"] = []string{"LANG", "TZ"}

	// --- Act ---
	out, err := m.Expose(context.Background(), call)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	assert.Equal(t, State{Expose: []string{"LANG", "TZ"}}, call.State())
}
