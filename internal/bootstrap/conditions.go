// Package bootstrap turns a loaded config.Config into the live registries,
// pipeline engine, and dispatcher dependencies main.go needs — the
// generalised, multi-plugin-type replacement for the teacher's single
// providerFactory map in cmd/llmrouter/main.go.
package bootstrap

import (
	"fmt"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// buildMatchers converts a []string from config into []plugin.Matcher. An
// entry prefixed "regex:" compiles as a regular expression; anything else
// matches by prefix.
func buildMatchers(raw []string) ([]plugin.Matcher, error) {
	out := make([]plugin.Matcher, 0, len(raw))
	for _, s := range raw {
		if rest, ok := strings.CutPrefix(s, "regex:"); ok {
			m, err := plugin.NewRegexMatcher(rest)
			if err != nil {
				return nil, fmt.Errorf("invalid regex condition %q: %w", s, err)
			}
			out = append(out, m)
			continue
		}
		out = append(out, plugin.NewPrefixMatcher(s))
	}
	return out, nil
}

// buildConditions converts a config.ConditionsConfig into a plugin.Conditions.
func buildConditions(cc config.ConditionsConfig) (plugin.Conditions, error) {
	paths, err := buildMatchers(cc.Paths)
	if err != nil {
		return plugin.Conditions{}, err
	}
	userIDs, err := buildMatchers(cc.UserIDs)
	if err != nil {
		return plugin.Conditions{}, err
	}
	models, err := buildMatchers(cc.Models)
	if err != nil {
		return plugin.Conditions{}, err
	}
	var headers map[string]plugin.Matcher
	if len(cc.Headers) > 0 {
		headers = make(map[string]plugin.Matcher, len(cc.Headers))
		for name, pattern := range cc.Headers {
			matchers, err := buildMatchers([]string{pattern})
			if err != nil {
				return plugin.Conditions{}, err
			}
			headers[name] = matchers[0]
		}
	}
	return plugin.Conditions{
		Paths:   paths,
		Methods: cc.Methods,
		Headers: headers,
		UserIDs: userIDs,
		Models:  models,
	}, nil
}
