package app

import (
	"github.com/vk/modgate/internal/registry"
	"github.com/vk/modgate/modules/demo"
	"github.com/vk/modgate/modules/env_vars"
	prnt "github.com/vk/modgate/modules/print"
	"github.com/vk/modgate/modules/stats"
	"github.com/vk/modgate/modules/system"
)

// coreModules is the definitive list of all module entries that are
// compiled into the modgate binary. Manifests pick from it by entry name.
func coreModules() registry.Catalog {
	return registry.Catalog{
		demo.Name:     &demo.Module{},
		env_vars.Name: &env_vars.Module{},
		prnt.Name:     &prnt.Module{},
		stats.Name:    &stats.Module{},
		system.Name:   &system.Module{},
	}
}
