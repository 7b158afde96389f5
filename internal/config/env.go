package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) into the process environment. Missing files are ignored and
// variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays MODGATE_* environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	strs := map[string]*string{
		"MODGATE_MODULES_PATH":   &cfg.ModulesPath,
		"MODGATE_ALLOW_LIST":     &cfg.AllowList,
		"MODGATE_AUDIT_LOG":      &cfg.AuditLog,
		"MODGATE_LOG_LEVEL":      &cfg.LogLevel,
		"MODGATE_LOG_FORMAT":     &cfg.LogFormat,
		"MODGATE_TLS_CERT":       &cfg.TLS.Cert,
		"MODGATE_TLS_KEY":        &cfg.TLS.Key,
		"MODGATE_TLS_CLIENT_CA":  &cfg.TLS.ClientCA,
		"MODGATE_RELAY_BACKEND":  &cfg.Relay.Backend,
		"MODGATE_RELAY_RESYNC":   &cfg.Relay.Resync,
		"MODGATE_REDIS_ADDR":     &cfg.Relay.RedisAddr,
		"MODGATE_REDIS_PASSWORD": &cfg.Relay.RedisPassword,
		"MODGATE_REDIS_CHANNEL":  &cfg.Relay.Channel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MODGATE_PORT_BASE": &cfg.PortBase,
		"MODGATE_WORKERS":   &cfg.Workers,
		"MODGATE_REDIS_DB":  &cfg.Relay.RedisDB,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"MODGATE_LIVE_FEED":       &cfg.LiveFeed,
		"MODGATE_STRICT_FALLBACK": &cfg.StrictFallback,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}
