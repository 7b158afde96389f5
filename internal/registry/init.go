package registry

import (
	"context"
	"fmt"

	"github.com/vk/modgate/internal/ctxlog"
)

// Initialize runs every module's init hook with the init_state from its
// manifest and returns the initial shared state keyed by module name. It is
// meant to run once, in the supervising process, before any worker starts.
func (r *Registry) Initialize(ctx context.Context) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	state := make(map[string]any, len(r.modules))

	for _, name := range r.Names() {
		h := r.modules[name]
		initial, err := r.manifests[name].InitialValue()
		if err != nil {
			return nil, err
		}

		fn := h.InitFunc()
		if fn == nil {
			if initial != nil {
				state[name] = initial
			}
			continue
		}

		value, err := fn(ctx, initial)
		if err != nil {
			return nil, fmt.Errorf("module '%s': init failed: %w", name, err)
		}
		if value != nil {
			state[name] = value
		}
		logger.Debug("Module initialized.", "module", name)
	}

	return state, nil
}
