// Package access decides whether a connection may use privileged handlers.
//
// Authentication itself is done by TLS: a client that presents a
// certificate signed by the configured client CA is identified by the
// certificate's subject common name. This package only maps that identity
// through a static allow-list.
package access

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// AllowList is the set of identities granted privileged access.
type AllowList struct {
	ids map[string]struct{}
}

type allowListFile struct {
	Privileged []string `hcl:"privileged,optional"`
	Remain     hcl.Body `hcl:",remain"`
}

// NewAllowList builds an allow-list from identities.
func NewAllowList(identities ...string) *AllowList {
	ids := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return &AllowList{ids: ids}
}

// LoadAllowList reads an HCL file of the form
//
//	privileged = ["lab-admin", "bench-operator"]
//
// An empty path yields an empty list: nobody is privileged.
func LoadAllowList(path string) (*AllowList, error) {
	if path == "" {
		return NewAllowList(), nil
	}

	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse allow-list %s: %w", path, diags)
	}
	var decoded allowListFile
	if diags := gohcl.DecodeBody(file.Body, nil, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode allow-list %s: %w", path, diags)
	}
	return NewAllowList(decoded.Privileged...), nil
}

// Allows reports whether id is on the list.
func (a *AllowList) Allows(id string) bool {
	if a == nil {
		return false
	}
	_, ok := a.ids[id]
	return ok
}

// Identities lists the allowed identities in lexical order.
func (a *AllowList) Identities() []string {
	out := make([]string, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of allowed identities.
func (a *AllowList) Len() int { return len(a.ids) }
