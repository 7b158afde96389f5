package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// HandlerFunc serves one module function.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// InitFunc receives the manifest's initial state and returns the value that
// seeds the module's shared state.
type InitFunc func(ctx context.Context, initial any) (any, error)

// Variant tags a handler with its calling convention.
type Variant uint8

const (
	ReadOnly Variant = iota + 1
	ReadWrite
	Telemetry
)

var variantPrefixes = map[Variant]string{
	ReadOnly:  "RO_",
	ReadWrite: "RW_",
	Telemetry: "GET_",
}

// Prefix returns the conventional name prefix, e.g. "RW_".
func (v Variant) Prefix() string {
	return variantPrefixes[v]
}

func (v Variant) String() string {
	switch v {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case Telemetry:
		return "telemetry"
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// ParseQualifiedName splits "RW_setFlag" into ReadWrite and "setFlag".
func ParseQualifiedName(qualified string) (Variant, string, error) {
	for _, v := range []Variant{ReadOnly, ReadWrite, Telemetry} {
		if name, ok := strings.CutPrefix(qualified, v.Prefix()); ok && name != "" {
			return v, name, nil
		}
	}
	return 0, "", fmt.Errorf("function name %q has no RO_, RW_ or GET_ prefix", qualified)
}

// Function is one entry of a module's registration table.
type Function struct {
	Variant Variant
	Name    string
	Handler HandlerFunc
}

// QualifiedName returns the prefixed name, e.g. "GET_getFlag".
func (f Function) QualifiedName() string {
	return f.Variant.Prefix() + f.Name
}

// Handle is a loaded capability module.
type Handle struct {
	name      string
	table     map[Variant]map[string]HandlerFunc
	init      InitFunc
	clientDir string
}

// NewHandle returns an empty handle for the module called name.
func NewHandle(name string) *Handle {
	return &Handle{
		name: name,
		table: map[Variant]map[string]HandlerFunc{
			ReadOnly:  {},
			ReadWrite: {},
			Telemetry: {},
		},
	}
}

// Name returns the module's registry key.
func (h *Handle) Name() string { return h.name }

// ReadOnly registers fn as RO_<name>.
func (h *Handle) ReadOnly(name string, fn HandlerFunc) *Handle {
	return h.add(ReadOnly, name, fn)
}

// ReadWrite registers fn as RW_<name>.
func (h *Handle) ReadWrite(name string, fn HandlerFunc) *Handle {
	return h.add(ReadWrite, name, fn)
}

// Telemetry registers fn as GET_<name>.
func (h *Handle) Telemetry(name string, fn HandlerFunc) *Handle {
	return h.add(Telemetry, name, fn)
}

func (h *Handle) add(v Variant, name string, fn HandlerFunc) *Handle {
	if name == "" || fn == nil {
		panic(fmt.Sprintf("module '%s': %s handler needs a name and a function", h.name, v))
	}
	if _, exists := h.table[v][name]; exists {
		panic(fmt.Sprintf("module '%s': handler '%s%s' already registered", h.name, v.Prefix(), name))
	}
	h.table[v][name] = fn
	return h
}

// OnInit sets the module's one-time initialization hook.
func (h *Handle) OnInit(fn InitFunc) *Handle {
	h.init = fn
	return h
}

// InitFunc returns the initialization hook, or nil.
func (h *Handle) InitFunc() InitFunc { return h.init }

// Lookup finds the handler registered for the variant and function name.
func (h *Handle) Lookup(v Variant, name string) (HandlerFunc, bool) {
	fn, ok := h.table[v][name]
	return fn, ok
}

// Functions lists the registration table ordered by qualified name.
func (h *Handle) Functions() []Function {
	var out []Function
	for v, fns := range h.table {
		for name, fn := range fns {
			out = append(out, Function{Variant: v, Name: name, Handler: fn})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

// ClientDir is the directory static assets are served from.
func (h *Handle) ClientDir() string { return h.clientDir }

// SetClientDir is called by the registry while binding the module's manifest.
func (h *Handle) SetClientDir(dir string) { h.clientDir = dir }
