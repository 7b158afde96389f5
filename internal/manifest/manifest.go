// Package manifest decodes module manifest files (`<name>.module.hcl`).
//
// A manifest binds a module name to a compiled-in implementation and carries
// the metadata the registry needs at startup: where the module's client
// assets live, the initial shared state, and an optional list of functions
// the implementation must provide.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/modgate/internal/ctxlog"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// FileSuffix is the naming convention for module manifest files.
const FileSuffix = ".module.hcl"

const defaultClientDir = "client"

// Manifest is the format-agnostic description of one module.
type Manifest struct {
	Name      string
	Entry     string
	ClientDir string
	// InitState is the JSON encoding of init_state, or nil when absent.
	InitState json.RawMessage
	Functions []string
	Path      string
}

type fileRoot struct {
	Modules []*moduleBlock `hcl:"module,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type moduleBlock struct {
	Name      string         `hcl:"name,label"`
	Entry     *string        `hcl:"entry,optional"`
	ClientDir *string        `hcl:"client_dir,optional"`
	InitState hcl.Expression `hcl:"init_state,optional"`
	Functions []string       `hcl:"functions,optional"`
}

// Parser decodes manifest files. A single parser caches file contents for
// diagnostics, so one instance is used per discovery pass.
type Parser struct {
	hcl *hclparse.Parser
}

// NewParser returns a ready Parser.
func NewParser() *Parser {
	return &Parser{hcl: hclparse.NewParser()}
}

// ParseFile decodes every module block in the file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) ([]*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	file, diags := p.hcl.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if len(root.Modules) == 0 {
		return nil, fmt.Errorf("manifest %s declares no module block", path)
	}

	baseDir := filepath.Dir(path)
	out := make([]*Manifest, 0, len(root.Modules))
	for _, block := range root.Modules {
		m, err := translate(block, baseDir)
		if err != nil {
			return nil, fmt.Errorf("module '%s' in %s: %w", block.Name, path, err)
		}
		m.Path = path
		logger.Debug("Decoded module manifest.", "module", m.Name, "entry", m.Entry, "file", path)
		out = append(out, m)
	}
	return out, nil
}

func translate(block *moduleBlock, baseDir string) (*Manifest, error) {
	if block.Name == "" {
		return nil, fmt.Errorf("module label must not be empty")
	}

	m := &Manifest{
		Name:      block.Name,
		Entry:     block.Name,
		ClientDir: filepath.Join(baseDir, defaultClientDir),
		Functions: block.Functions,
	}
	if block.Entry != nil && *block.Entry != "" {
		m.Entry = *block.Entry
	}
	if block.ClientDir != nil && *block.ClientDir != "" {
		dir := *block.ClientDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		m.ClientDir = dir
	}

	if block.InitState != nil {
		val, diags := block.InitState.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to evaluate init_state: %w", diags)
		}
		if !val.IsNull() {
			if !val.IsWhollyKnown() {
				return nil, fmt.Errorf("init_state must be a constant value")
			}
			raw, err := ctyjson.Marshal(val, val.Type())
			if err != nil {
				return nil, fmt.Errorf("failed to encode init_state: %w", err)
			}
			m.InitState = raw
		}
	}
	return m, nil
}

// InitialValue decodes InitState into a plain Go value (maps, slices,
// float64, string, bool, nil).
func (m *Manifest) InitialValue() (any, error) {
	if m.InitState == nil {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(m.InitState, &v); err != nil {
		return nil, fmt.Errorf("module '%s': failed to decode init_state: %w", m.Name, err)
	}
	return v, nil
}
