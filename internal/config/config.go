package config

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

const (
	// PlainPortOffset is added to the port base for the read-only listener.
	PlainPortOffset = 80
	// TLSPortOffset is added to the port base for the TLS listener.
	TLSPortOffset = 443

	BackendPipe  = "pipe"
	BackendRedis = "redis"

	// WorkerConfigEnv carries the resolved Config from master to worker.
	WorkerConfigEnv = "MODGATE_WORKER_CONFIG"
)

// TLS locates the server certificate and the CA that signs client
// certificates. All three are needed to serve the privileged port.
type TLS struct {
	Cert     string `json:"cert"`
	Key      string `json:"key"`
	ClientCA string `json:"client_ca"`
}

// Relay selects how state updates travel between processes.
type Relay struct {
	Backend       string `json:"backend"`
	Resync        string `json:"resync"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	Channel       string `json:"channel"`
}

// Config holds everything a master or worker process needs.
type Config struct {
	PortBase       int    `json:"port_base"`
	Workers        int    `json:"workers"`
	ModulesPath    string `json:"modules_path"`
	AllowList      string `json:"allow_list"`
	AuditLog       string `json:"audit_log"`
	LiveFeed       bool   `json:"live_feed"`
	StrictFallback bool   `json:"strict_fallback"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	TLS            TLS    `json:"tls"`
	Relay          Relay  `json:"relay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PortBase:    8000,
		ModulesPath: "modules",
		LiveFeed:    true,
		LogLevel:    "info",
		LogFormat:   "json",
		Relay: Relay{
			Backend: BackendPipe,
			Resync:  "@every 30s",
			Channel: "modgate:state",
		},
	}
}

// PlainAddr is the listen address of the read-only port.
func (c *Config) PlainAddr() string {
	return fmt.Sprintf(":%d", c.PortBase+PlainPortOffset)
}

// TLSAddr is the listen address of the privileged port.
func (c *Config) TLSAddr() string {
	return fmt.Sprintf(":%d", c.PortBase+TLSPortOffset)
}

// TLSEnabled reports whether the privileged port is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLS.Cert != "" && c.TLS.Key != "" && c.TLS.ClientCA != ""
}

// WorkerCount resolves Workers, defaulting to the number of CPUs.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []string

	if c.PortBase < 0 || c.PortBase+TLSPortOffset > 65535 {
		errs = append(errs, fmt.Sprintf("port_base %d puts the listeners outside 1-65535", c.PortBase))
	}
	if c.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}
	if c.ModulesPath == "" {
		errs = append(errs, "modules_path must not be empty")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "invalid log-format: must be 'text' or 'json'")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	tlsSet := 0
	for _, v := range []string{c.TLS.Cert, c.TLS.Key, c.TLS.ClientCA} {
		if v != "" {
			tlsSet++
		}
	}
	if tlsSet != 0 && tlsSet != 3 {
		errs = append(errs, "tls needs cert, key and client_ca together")
	}

	switch c.Relay.Backend {
	case BackendPipe:
	case BackendRedis:
		if c.Relay.RedisAddr == "" {
			errs = append(errs, "relay backend 'redis' needs redis_addr")
		}
		if c.Relay.Channel == "" {
			errs = append(errs, "relay backend 'redis' needs a channel")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown relay backend %q", c.Relay.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Encode serializes c for WorkerConfigEnv.
func (c *Config) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}
	return string(data), nil
}

// Decode parses a configuration produced by Encode.
func Decode(s string) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode worker configuration: %w", err)
	}
	return &cfg, nil
}
