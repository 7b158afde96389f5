package print

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
)

func TestPrint_SortsAndRemembersInput(t *testing.T) {
	// --- Arrange ---
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
	call := module.NewCall(Name, "print", module.ReadWrite, map[string]any{"count": float64(2)})
	call.Who = "ops"
	call.Params.Set("zeta", "last")
	call.Params.Set("alpha", "first")

	// --- Act ---
	out, err := Print(ctx, call)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	require.True(t, call.StateChanged())
	assert.Equal(t, State{
		Count: 3,
		Last:  []Line{{Key: "alpha", Value: "first"}, {Key: "zeta", Value: "last"}},
		By:    "ops",
	}, call.State())
}

func TestPrint_EmptyInput(t *testing.T) {
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
	call := module.NewCall(Name, "print", module.ReadWrite, nil)

	out, err := Print(ctx, call)

	require.NoError(t, err)
	assert.Equal(t, 0, out)
	assert.Equal(t, State{Count: 1, Last: []Line{}}, call.State())
}

func TestLast(t *testing.T) {
	call := module.NewCall(Name, "last", module.Telemetry, map[string]any{
		"count": float64(1),
		"last":  []any{map[string]any{"key": "a", "value": "b"}},
		"by":    "ops",
	})

	out, err := Last(context.Background(), call)

	require.NoError(t, err)
	assert.Equal(t, State{Count: 1, Last: []Line{{Key: "a", Value: "b"}}, By: "ops"}, out)
}
