package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := With(WithLogger(context.Background(), logger), "worker_id", "w-1")

	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "worker_id=w-1")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestFromContextPanicsWithoutLogger(t *testing.T) {
	require.False(t, Has(context.Background()))
	assert.PanicsWithValue(t, "ctxlog: logger missing from context", func() {
		FromContext(context.Background())
	})
}
