package registry

import (
	"fmt"
	"sort"

	"github.com/vk/modgate/internal/manifest"
	"github.com/vk/modgate/internal/module"
)

// Module is the interface that all compiled-in modules implement.
type Module interface {
	Register(r *Registry)
}

// Catalog maps manifest entry names to compiled-in modules.
type Catalog map[string]Module

// Registry holds the loaded module handles for one process.
type Registry struct {
	catalog   Catalog
	modules   map[string]*module.Handle
	manifests map[string]*manifest.Manifest
	locked    bool
}

// New creates an empty registry that resolves manifest entries in catalog.
func New(catalog Catalog) *Registry {
	return &Registry{
		catalog:   catalog,
		modules:   make(map[string]*module.Handle),
		manifests: make(map[string]*manifest.Manifest),
	}
}

// Add inserts a module handle. It is called from Module.Register.
func (r *Registry) Add(h *module.Handle) {
	if r.locked {
		panic(fmt.Sprintf("module '%s' registered after the registry was locked", h.Name()))
	}
	if _, exists := r.modules[h.Name()]; exists {
		panic(fmt.Sprintf("module with name '%s' already registered", h.Name()))
	}
	r.modules[h.Name()] = h
}

// Lookup returns the handle registered under name.
func (r *Registry) Lookup(name string) (*module.Handle, bool) {
	h, ok := r.modules[name]
	return h, ok
}

// Manifest returns the manifest a module was loaded from.
func (r *Registry) Manifest(name string) (*manifest.Manifest, bool) {
	m, ok := r.manifests[name]
	return m, ok
}

// Names lists registered module names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.modules) }

// Lock forbids further registration.
func (r *Registry) Lock() { r.locked = true }

// Locked reports whether discovery has finished.
func (r *Registry) Locked() bool { return r.locked }

// Error reports a module file that could not be loaded.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to load module file %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
