// Package config assembles runtime configuration from defaults, an optional
// .env file, and environment variables, in that precedence order.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultStateDir     = ".storefront-state"
	defaultCartKey      = "hanko.cart.v1"
	defaultInitialPath  = "/shop"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	State   StateConfig
	Remote  RemoteConfig
	Session SessionConfig
	Catalog CatalogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StateConfig locates the local persistence the cart writes through.
type StateConfig struct {
	Dir        string
	CartKey    string
	WatchBlobs bool
}

// RemoteConfig points at the CMS API serving the catalog and the
// per-account cart store. An empty BaseURL disables remote sync.
type RemoteConfig struct {
	BaseURL string
}

// SessionConfig holds the session token verification secret.
type SessionConfig struct {
	Secret string
}

// CatalogConfig configures catalog behaviour.
type CatalogConfig struct {
	DefaultsFile string
	InitialPath  string
	InitialQuery string
}

// ValidationError lists configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.fields) == 0 {
		return "config validation failed"
	}
	return fmt.Sprintf("config validation failed: missing %s", strings.Join(e.fields, ", "))
}

// Fields returns the offending field names.
func (e *ValidationError) Fields() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups.
// Values in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided
// maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		State: StateConfig{
			Dir:        stringWithDefault(lookup, "STOREFRONT_STATE_DIR", defaultStateDir),
			CartKey:    stringWithDefault(lookup, "STOREFRONT_CART_KEY", defaultCartKey),
			WatchBlobs: boolWithDefault(lookup, "STOREFRONT_STATE_WATCH", true),
		},
		Remote: RemoteConfig{
			BaseURL: stringWithDefault(lookup, "STOREFRONT_API_BASE_URL", ""),
		},
		Session: SessionConfig{
			Secret: stringWithDefault(lookup, "STOREFRONT_SESSION_SECRET", ""),
		},
		Catalog: CatalogConfig{
			DefaultsFile: stringWithDefault(lookup, "STOREFRONT_CATALOG_DEFAULTS_FILE", ""),
			InitialPath:  stringWithDefault(lookup, "STOREFRONT_INITIAL_PATH", defaultInitialPath),
			InitialQuery: stringWithDefault(lookup, "STOREFRONT_INITIAL_QUERY", ""),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.State.Dir == "" {
		missing = append(missing, "State.Dir")
	}
	if cfg.State.CartKey == "" {
		missing = append(missing, "State.CartKey")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
