package plugin

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/model"
)

// Matcher is either a plain prefix string or a compiled regexp, matched
// against one field of the request (§4.5's "paths/methods/headers/user_ids/
// models, plain-prefix or regex" condition grammar).
type Matcher struct {
	prefix string
	re     *regexp.Regexp
}

// NewPrefixMatcher builds a Matcher that matches by string prefix.
func NewPrefixMatcher(prefix string) Matcher { return Matcher{prefix: prefix} }

// NewRegexMatcher compiles pattern into a Matcher. Invalid patterns are a
// configuration error the caller should surface at load time, not here.
func NewRegexMatcher(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Matcher{}, err
	}
	return Matcher{re: re}, nil
}

func (m Matcher) Match(s string) bool {
	if m.re != nil {
		return m.re.MatchString(s)
	}
	return strings.HasPrefix(s, m.prefix)
}

// Conditions gates whether a plugin is eligible for a given request. Every
// declared list must have at least one matching entry; an empty/nil list
// means that dimension is unconstrained. Method comparison is exact and
// case-insensitive; everything else goes through Matcher.
type Conditions struct {
	Paths   []Matcher
	Methods []string
	Headers map[string]Matcher
	UserIDs []Matcher
	Models  []Matcher
}

// Matches reports whether ctx satisfies every declared dimension.
func (c Conditions) Matches(ctx *model.Context) bool {
	if len(c.Paths) > 0 {
		path := ""
		if ctx.HTTP != nil {
			path = ctx.HTTP.URL
		}
		if !anyMatch(c.Paths, path) {
			return false
		}
	}
	if len(c.Methods) > 0 {
		method := ""
		if ctx.HTTP != nil {
			method = ctx.HTTP.Method
		}
		if !containsFold(c.Methods, method) {
			return false
		}
	}
	if len(c.Headers) > 0 {
		var hdr http.Header
		if ctx.HTTP != nil {
			hdr = ctx.HTTP.Headers
		}
		for name, matcher := range c.Headers {
			if !matcher.Match(hdr.Get(name)) {
				return false
			}
		}
	}
	if len(c.UserIDs) > 0 && !anyMatch(c.UserIDs, ctx.UserID) {
		return false
	}
	if len(c.Models) > 0 {
		target := ctx.TargetModel
		if target == "" && ctx.Request != nil {
			target = ctx.Request.Model
		}
		if !anyMatch(c.Models, target) {
			return false
		}
	}
	return true
}

func anyMatch(matchers []Matcher, s string) bool {
	for _, m := range matchers {
		if m.Match(s) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
