// Package config loads and validates gateway configuration: the HTTP
// server, upstream providers, the models[] catalog, the plugins[] pipeline,
// dynamically-loaded availableExtensions[], and logging, per §6.
package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	defaultPort           = 8080
	defaultPluginPriority = 1000
)

// Config is the top-level configuration for the llmrouter gateway.
type Config struct {
	Server              ServerConfig      `koanf:"server"`
	Models              []ModelConfig     `koanf:"models"`
	Plugins             []PluginConfig    `koanf:"plugins"`
	AvailableExtensions []ExtensionConfig `koanf:"availableExtensions"`
	Logging             LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	CORS         CORSConfig    `koanf:"cors"`
}

// CORSConfig configures which origins may call the gateway cross-origin.
type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

// ProviderConfig holds the client settings for one upstream LLM vendor
// instance, owned by the model entry that declares it.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	// Model is the name actually sent upstream; empty passes the requested
	// name through unchanged, per §4.4's bypass-model rule.
	Model         string        `koanf:"model"`
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// ModelProviderConfig picks the vendor client type for a model and carries
// its vendor-specific settings.
type ModelProviderConfig struct {
	Type   string         `koanf:"type"`
	Config ProviderConfig `koanf:"config"`
}

// ModelConfig is one entry in the models[] catalog: the public name callers
// request, the provider instance serving it, and its free-form knobs.
type ModelConfig struct {
	Name        string              `koanf:"name"`
	IsDefault   bool                `koanf:"isDefault"`
	Description string              `koanf:"description"`
	Provider    ModelProviderConfig `koanf:"provider"`
	ModelConfig map[string]any      `koanf:"modelConfig"`
	Metadata    map[string]any      `koanf:"metadata"`
}

// PluginConfig is one entry in the plugins[] pipeline. Type selects which
// bundled plugin constructor to build (basic_api_key_auth, auth_gateway,
// model_router, prompt_manager, regex_hider); Settings carries the
// plugin-specific fields, decoded by each plugin's own loader.
type PluginConfig struct {
	Name       string           `koanf:"name"`
	Type       string           `koanf:"type"`
	Priority   int              `koanf:"priority"` // defaults to 1000 when omitted
	Enabled    bool             `koanf:"enabled"`  // defaults to true when omitted
	Conditions ConditionsConfig `koanf:"conditions"`
	Settings   map[string]any   `koanf:"config"`
}

// ConditionsConfig is the wire shape of plugin.Conditions.
type ConditionsConfig struct {
	Paths   []string          `koanf:"paths"`
	Methods []string          `koanf:"methods"`
	Headers map[string]string `koanf:"headers"`
	UserIDs []string          `koanf:"user_ids"`
	Models  []string          `koanf:"models"`
}

// ExtensionConfig is one entry in availableExtensions[]: a Lua-scripted
// plugin loaded dynamically rather than compiled in, referenced either by
// filesystem path or by module name (loaded from "<module>.lua").
type ExtensionConfig struct {
	Name       string           `koanf:"name"`
	Path       string           `koanf:"path"`
	Module     string           `koanf:"module"`
	Priority   int              `koanf:"priority"`
	Enabled    bool             `koanf:"enabled"`
	Conditions ConditionsConfig `koanf:"conditions"`
}

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level        string   `koanf:"level"`
	Format       string   `koanf:"format"`       // "json" or "console"
	Destinations []string `koanf:"destinations"` // "stdout", "stderr", "file"
	FilePath     string   `koanf:"file_path"`    // used by the "file" destination
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, expands ${VAR}/$VAR references against the process
// environment in every string leaf, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Any env var starting with "LLMROUTER_" overrides a config value:
	//   LLMROUTER_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("LLMROUTER_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMROUTER_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// enabled defaults to true and priority to 1000 when a plugins[] entry
	// omits them; a plain bool/int field can't tell "omitted" from
	// "false"/"0", so consult the raw list entries. koanf does not flatten
	// keys inside list elements, so they are looked up on the raw maps.
	hasKey := func(list string, i int, key string) bool {
		raw, _ := k.Get(list).([]any)
		if i >= len(raw) {
			return false
		}
		entry, _ := raw[i].(map[string]any)
		_, ok := entry[key]
		return ok
	}
	for i := range cfg.Plugins {
		if !hasKey("plugins", i, "enabled") {
			cfg.Plugins[i].Enabled = true
		}
		if !hasKey("plugins", i, "priority") {
			cfg.Plugins[i].Priority = defaultPluginPriority
		}
	}
	for i := range cfg.AvailableExtensions {
		if !hasKey("availableExtensions", i, "enabled") {
			cfg.AvailableExtensions[i].Enabled = true
		}
		if !hasKey("availableExtensions", i, "priority") {
			cfg.AvailableExtensions[i].Priority = defaultPluginPriority
		}
	}

	expandEnvRefs(reflect.ValueOf(&cfg))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvRefs walks every string field, map, and slice element in v and
// replaces ${VAR}/$VAR references with the corresponding environment
// variable value, using the same placeholder syntax across the whole
// config tree rather than special-casing provider API keys the way the
// teacher's loader did.
func expandEnvRefs(v reflect.Value) {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		expandEnvRefs(v.Elem())
		return
	}

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanSet() {
				continue
			}
			if f.Kind() == reflect.String {
				f.SetString(expandString(f.String()))
				continue
			}
			expandEnvRefs(f)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			e := v.Index(i)
			if e.Kind() == reflect.String {
				e.SetString(expandString(e.String()))
				continue
			}
			if e.Kind() == reflect.Interface && !e.IsNil() && e.Elem().Kind() == reflect.String {
				e.Set(reflect.ValueOf(expandString(e.Elem().String())))
				continue
			}
			expandEnvRefs(e)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			e := v.MapIndex(key)
			if e.Kind() == reflect.Interface && !e.IsNil() {
				e = e.Elem()
			}
			if e.Kind() == reflect.String {
				v.SetMapIndex(key, reflect.ValueOf(expandString(e.String())))
				continue
			}
			if e.Kind() == reflect.Struct {
				// Map values aren't addressable; copy out, expand, write back.
				cp := reflect.New(e.Type()).Elem()
				cp.Set(e)
				expandEnvRefs(cp)
				v.SetMapIndex(key, cp)
				continue
			}
			expandEnvRefs(e)
		}
	}
}

var envRefPattern = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// expandString substitutes ${VAR} and $VAR references with the named
// environment variable's value. Unresolved references are left intact so a
// missing variable is visible downstream instead of collapsing to "".
func expandString(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.Trim(ref[1:], "{}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return ref
	})
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaultPort
	}
	seen := map[string]bool{}
	for _, m := range cfg.Models {
		if m.Name == "" {
			return fmt.Errorf("models[]: name is required")
		}
		if seen[m.Name] {
			return fmt.Errorf("models[]: duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
		if m.Provider.Type == "" {
			return fmt.Errorf("models[] entry %q: provider.type is required", m.Name)
		}
	}
	for _, p := range cfg.Plugins {
		if p.Type == "" {
			return fmt.Errorf("plugins[] entry %q: type is required", p.Name)
		}
	}
	for _, e := range cfg.AvailableExtensions {
		if e.Path == "" && e.Module == "" {
			return fmt.Errorf("availableExtensions[] entry %q: path or module is required", e.Name)
		}
	}
	return nil
}
