package bootstrap

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/authcache"
	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/plugin"
	"github.com/howard-nolan/llmrouter/internal/plugin/plugins"
	"github.com/howard-nolan/llmrouter/internal/script"
)

// BuildPlugin constructs the bundled plugin named by pc.Type, decoding its
// Settings bag per-type (§4.8). Unknown types are a configuration error.
func BuildPlugin(pc config.PluginConfig, log zerolog.Logger) (plugin.Plugin, error) {
	cond, err := buildConditions(pc.Conditions)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", pc.Name, err)
	}
	settings := pc.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	switch pc.Type {
	case "basic_api_key_auth":
		keys := map[string]bool{}
		for _, k := range settingStringSlice(settings, "keys") {
			keys[k] = true
		}
		return plugins.NewBasicAPIKeyAuth(plugins.APIKeyAuthConfig{
			Name_:      pc.Name,
			Priority_:  pc.Priority,
			Enabled_:   pc.Enabled,
			Conditions: cond,
			Keys:       keys,
			HeaderName: settingString(settings, "header_name"),
		}), nil

	case "auth_gateway":
		ttl := settingDuration(settings, "cache_ttl")
		if ttl == 0 {
			ttl = 5 * time.Minute
		}
		size := settingInt(settings, "cache_size")
		if size == 0 {
			size = 10_000
		}
		timeout := settingDuration(settings, "timeout")
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		return plugins.NewAuthGateway(plugins.AuthGatewayConfig{
			Name_:      pc.Name,
			Priority_:  pc.Priority,
			Enabled_:   pc.Enabled,
			Conditions: cond,
			ServiceURL: settingString(settings, "service_url"),
			Timeout:    timeout,
			Client:     &http.Client{Timeout: timeout},
			Cache:      authcache.NewLRU(size, ttl),
			CacheTTL:   ttl,
			Log:        log,
		}), nil

	case "model_router":
		chains := map[string][]plugins.FallbackTarget{}
		rawChains, _ := settings["chains"].(map[string]any)
		for model, rawTargets := range rawChains {
			targets, ok := rawTargets.([]any)
			if !ok {
				continue
			}
			for _, rt := range targets {
				tm, ok := rt.(map[string]any)
				if !ok {
					continue
				}
				chains[model] = append(chains[model], plugins.FallbackTarget{
					Model:    settingString(tm, "model"),
					Provider: settingString(tm, "provider"),
				})
			}
		}
		available := map[string]bool{}
		for _, m := range settingStringSlice(settings, "available_models") {
			available[m] = true
		}
		return plugins.NewModelRouter(plugins.ModelRouterConfig{
			Name_:           pc.Name,
			Priority_:       pc.Priority,
			Enabled_:        pc.Enabled,
			Conditions:      cond,
			Chains:          chains,
			AvailableModels: available,
		}), nil

	case "prompt_manager":
		var variants []plugins.Variant
		for _, v := range settingMapSlice(settings, "variants") {
			variants = append(variants, plugins.Variant{
				Name:       settingString(v, "name"),
				Mode:       plugins.PromptMode(settingString(v, "mode")),
				Text:       settingString(v, "text"),
				Percentage: settingInt(v, "percentage"),
			})
		}
		return plugins.NewPromptManager(plugins.PromptManagerConfig{
			Name_:      pc.Name,
			Priority_:  pc.Priority,
			Enabled_:   pc.Enabled,
			Conditions: cond,
			Variants:   variants,
		}), nil

	case "regex_hider":
		var rules []plugins.RegexRule
		for _, r := range settingMapSlice(settings, "rules") {
			pattern := settingString(r, "pattern")
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("plugin %q: invalid regex rule %q: %w", pc.Name, pattern, err)
			}
			rules = append(rules, plugins.RegexRule{
				Pattern:      re,
				Replacement:  settingString(r, "replacement"),
				BlockOnMatch: settingBool(r, "block_on_match"),
			})
		}
		return plugins.NewRegexHider(plugins.RegexHiderConfig{
			Name_:         pc.Name,
			Priority_:     pc.Priority,
			Enabled_:      pc.Enabled,
			Conditions:    cond,
			Rules:         rules,
			Mode:          plugins.RegexMode(settingString(settings, "mode")),
			ApplyTo:       plugins.ApplyTo(settingString(settings, "apply_to")),
			BlockStatus:   settingInt(settings, "block_status"),
			FlushTrigger:  plugins.FlushTrigger(settingString(settings, "flush_trigger")),
			MaxBufferSize: settingInt(settings, "max_buffer_size"),
			FlushTimeout:  settingDuration(settings, "flush_timeout"),
		}), nil

	default:
		return nil, fmt.Errorf("unknown plugin type %q for plugin %q", pc.Type, pc.Name)
	}
}

// BuildExtension loads a Lua-scripted plugin from disk and wraps it so the
// pipeline engine only sees the hook interfaces it actually implements.
func BuildExtension(ec config.ExtensionConfig) (plugin.Plugin, error) {
	cond, err := buildConditions(ec.Conditions)
	if err != nil {
		return nil, fmt.Errorf("extension %q: %w", ec.Name, err)
	}
	path := ec.Path
	if path == "" {
		// module references resolve to a .lua file of the same name,
		// relative to the process working directory
		path = ec.Module + ".lua"
	}
	sp, err := script.Load(script.Config{
		Name_:      ec.Name,
		Path:       path,
		Priority_:  ec.Priority,
		Enabled_:   ec.Enabled,
		Conditions: cond,
	})
	if err != nil {
		return nil, fmt.Errorf("extension %q: %w", ec.Name, err)
	}
	return script.Wrap(sp), nil
}
