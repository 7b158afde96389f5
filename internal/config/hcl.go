package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

type fileRoot struct {
	PortBase       *int        `hcl:"port_base,optional"`
	Workers        *int        `hcl:"workers,optional"`
	ModulesPath    *string     `hcl:"modules_path,optional"`
	AllowList      *string     `hcl:"allow_list,optional"`
	AuditLog       *string     `hcl:"audit_log,optional"`
	LiveFeed       *bool       `hcl:"live_feed,optional"`
	StrictFallback *bool       `hcl:"strict_fallback,optional"`
	LogLevel       *string     `hcl:"log_level,optional"`
	LogFormat      *string     `hcl:"log_format,optional"`
	TLS            *tlsBlock   `hcl:"tls,block"`
	Relay          *relayBlock `hcl:"relay,block"`
}

type tlsBlock struct {
	Cert     *string `hcl:"cert,optional"`
	Key      *string `hcl:"key,optional"`
	ClientCA *string `hcl:"client_ca,optional"`
}

type relayBlock struct {
	Backend       *string `hcl:"backend,optional"`
	Resync        *string `hcl:"resync,optional"`
	RedisAddr     *string `hcl:"redis_addr,optional"`
	RedisPassword *string `hcl:"redis_password,optional"`
	RedisDB       *int    `hcl:"redis_db,optional"`
	Channel       *string `hcl:"channel,optional"`
}

// LoadFile overlays the settings found in the HCL file at path onto cfg.
// Attributes absent from the file leave cfg untouched.
func LoadFile(path string, cfg *Config) error {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	set(&cfg.PortBase, root.PortBase)
	set(&cfg.Workers, root.Workers)
	set(&cfg.ModulesPath, root.ModulesPath)
	set(&cfg.AllowList, root.AllowList)
	set(&cfg.AuditLog, root.AuditLog)
	set(&cfg.LiveFeed, root.LiveFeed)
	set(&cfg.StrictFallback, root.StrictFallback)
	set(&cfg.LogLevel, root.LogLevel)
	set(&cfg.LogFormat, root.LogFormat)

	if t := root.TLS; t != nil {
		set(&cfg.TLS.Cert, t.Cert)
		set(&cfg.TLS.Key, t.Key)
		set(&cfg.TLS.ClientCA, t.ClientCA)
	}
	if r := root.Relay; r != nil {
		set(&cfg.Relay.Backend, r.Backend)
		set(&cfg.Relay.Resync, r.Resync)
		set(&cfg.Relay.RedisAddr, r.RedisAddr)
		set(&cfg.Relay.RedisPassword, r.RedisPassword)
		set(&cfg.Relay.RedisDB, r.RedisDB)
		set(&cfg.Relay.Channel, r.Channel)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
