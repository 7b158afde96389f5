package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
)

// ValidateRegistry performs a parity check between manifests and Go code:
// every function a manifest lists must be registered by its module, and every
// registered module must have come from a manifest.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		h := r.modules[name]
		m, ok := r.manifests[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("module '%s': registered without a manifest", name))
			continue
		}

		if len(h.Functions()) == 0 {
			logger.Warn("Module registers no functions; it can only serve static assets.", "module", name)
		}

		for _, qualified := range m.Functions {
			v, fn, err := module.ParseQualifiedName(qualified)
			if err != nil {
				errs = append(errs, fmt.Sprintf("module '%s': %v", name, err))
				continue
			}
			if _, ok := h.Lookup(v, fn); !ok {
				errs = append(errs, fmt.Sprintf("module '%s': manifest declares '%s' which is not registered in Go", name, qualified))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
