package registry

import (
	"context"
	"fmt"

	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/fsutil"
	"github.com/vk/modgate/internal/manifest"
)

// Discover walks modulesPath, loads every module manifest it finds, validates
// the result and locks the registry.
func (r *Registry) Discover(ctx context.Context, modulesPath string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry discovering modules...", "path", modulesPath)

	filePaths, err := fsutil.FindFilesBySuffix(modulesPath, manifest.FileSuffix)
	if err != nil {
		logger.Error("Failed to walk modules directory", "path", modulesPath, "error", err)
		return &Error{Path: modulesPath, Err: err}
	}

	if len(filePaths) == 0 {
		logger.Warn("No module manifests found in path", "path", modulesPath, "suffix", manifest.FileSuffix)
	}

	parser := manifest.NewParser()
	for _, filePath := range filePaths {
		manifests, err := parser.ParseFile(ctx, filePath)
		if err != nil {
			return &Error{Path: filePath, Err: err}
		}
		for _, m := range manifests {
			if err := r.load(m); err != nil {
				return &Error{Path: filePath, Err: err}
			}
			logger.Debug("Module loaded.", "module", m.Name, "entry", m.Entry, "functions", len(r.modules[m.Name].Functions()), "file", filePath)
		}
	}

	if err := r.ValidateRegistry(ctx); err != nil {
		return err
	}
	r.Lock()

	logger.Info("Registry loaded successfully.", "modules", r.Names())
	return nil
}

// load resolves m's entry in the catalog and runs its self-registration.
func (r *Registry) load(m *manifest.Manifest) (err error) {
	mod, ok := r.catalog[m.Entry]
	if !ok {
		return fmt.Errorf("module '%s': unknown entry '%s'", m.Name, m.Entry)
	}
	if _, exists := r.modules[m.Name]; exists {
		return fmt.Errorf("module with name '%s' already registered", m.Name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("module '%s': registration panicked: %v", m.Name, rec)
		}
	}()
	mod.Register(r)

	h, ok := r.modules[m.Name]
	if !ok {
		return fmt.Errorf("entry '%s' did not register a module named '%s'", m.Entry, m.Name)
	}
	h.SetClientDir(m.ClientDir)
	r.manifests[m.Name] = m
	return nil
}
