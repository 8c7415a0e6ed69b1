package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/authcache"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

const defaultAuthTimeout = 5 * time.Second

// validatePath is the auth service's key-validation endpoint, relative to
// ServiceURL.
const validatePath = "/api/keys/validate"

// AuthGatewayConfig configures AuthGateway.
type AuthGatewayConfig struct {
	Name_      string
	Priority_  int
	Enabled_   bool
	Conditions plugin.Conditions

	// ServiceURL is the external auth service's base URL.
	ServiceURL string
	Timeout    time.Duration
	Client     *http.Client
	Cache      authcache.Cache
	CacheTTL   time.Duration
	Log        zerolog.Logger
}

// AuthGateway delegates API-key validation to an external service, caches
// the result keyed on (apiKey, method, path), and fails closed: the service
// being unreachable or answering anything unexpected terminates with 503,
// never a pass-through. On success it strips every inbound x-auth-* and
// x-user-* header so client-forged identity claims never reach the
// provider, and records the resolved identity on ctx.UserID and
// metadata.auth_*.
type AuthGateway struct {
	cfg AuthGatewayConfig
}

func NewAuthGateway(cfg AuthGatewayConfig) *AuthGateway {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAuthTimeout
	}
	return &AuthGateway{cfg: cfg}
}

func (p *AuthGateway) Name() string                  { return p.cfg.Name_ }
func (p *AuthGateway) Priority() int                 { return p.cfg.Priority_ }
func (p *AuthGateway) Enabled() bool                 { return p.cfg.Enabled_ }
func (p *AuthGateway) Conditions() plugin.Conditions { return p.cfg.Conditions }

type validateResponse struct {
	Valid     bool   `json:"valid"`
	KeyID     string `json:"key_id"`
	KeyName   string `json:"key_name"`
	UserEmail string `json:"user_email"`
	UserSub   string `json:"user_sub"`
}

func apiKeyFrom(ctx *model.Context) string {
	if ctx.HTTP == nil {
		return ""
	}
	if auth := ctx.HTTP.Headers.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ctx.HTTP.Headers.Get("X-API-Key")
}

// strippableHeaders lists every inbound header whose lowercase name starts
// with x-auth- or x-user-.
func strippableHeaders(hdr http.Header) []string {
	var out []string
	for name := range hdr {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-auth-") || strings.HasPrefix(lower, "x-user-") {
			out = append(out, name)
		}
	}
	return out
}

func (p *AuthGateway) BeforeModel(ctx *model.Context) plugin.Result {
	apiKey := apiKeyFrom(ctx)
	method, path := "", ""
	if ctx.HTTP != nil {
		method, path = ctx.HTTP.Method, ctx.HTTP.URL
	}
	cacheKey := authcache.Key(apiKey, method, path)

	result, ok := p.lookupCache(cacheKey)
	if !ok {
		var err error
		result, err = p.validateKey(apiKey)
		if err != nil {
			p.cfg.Log.Error().Err(err).Str("plugin", p.Name()).Msg("auth service unreachable, failing closed")
			return plugin.Result{
				Terminate: true,
				Status:    http.StatusServiceUnavailable,
				Err:       apperr.Wrap(apperr.KindAuthServiceUnavailable, "auth service unavailable", err),
			}
		}
		if p.cfg.Cache != nil {
			p.cfg.Cache.Set(cacheKey, result, p.cfg.CacheTTL)
		}
	}

	if !result.Authorized {
		return plugin.Result{
			Terminate: true,
			Status:    http.StatusUnauthorized,
			Err:       apperr.New(apperr.KindUnauthorized, "invalid API key"),
		}
	}

	metadataPatch := model.Metadata{Custom: map[string]any{
		"auth_key_id":     result.KeyID,
		"auth_key_name":   result.KeyName,
		"auth_user_email": result.UserEmail,
	}}
	var remove []string
	if ctx.HTTP != nil {
		remove = strippableHeaders(ctx.HTTP.Headers)
	}
	return plugin.Result{
		Patch: &plugin.ContextPatch{
			UserID:        result.UserID,
			MetadataPatch: &metadataPatch,
			RemoveHeaders: remove,
		},
	}
}

func (p *AuthGateway) lookupCache(cacheKey string) (authcache.Result, bool) {
	if p.cfg.Cache == nil {
		return authcache.Result{}, false
	}
	return p.cfg.Cache.Get(cacheKey)
}

// validateKey calls GET {ServiceURL}/api/keys/validate?key=… and maps the
// answer: 200 means the body's "valid" field decides; 400 and 401 mean a
// definitive no; every other status, transport failure, or unparsable body
// means the service is unavailable and the error return makes the caller
// fail closed.
func (p *AuthGateway) validateKey(apiKey string) (authcache.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	u := p.cfg.ServiceURL + validatePath + "?key=" + url.QueryEscape(apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return authcache.Result{}, err
	}

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return authcache.Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var vr validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return authcache.Result{}, err
		}
		userID := vr.UserSub
		if userID == "" {
			userID = vr.UserEmail
		}
		return authcache.Result{
			Authorized: vr.Valid,
			UserID:     userID,
			KeyID:      vr.KeyID,
			KeyName:    vr.KeyName,
			UserEmail:  vr.UserEmail,
		}, nil
	case http.StatusUnauthorized, http.StatusBadRequest:
		return authcache.Result{Authorized: false}, nil
	default:
		return authcache.Result{}, fmt.Errorf("auth service answered %d", resp.StatusCode)
	}
}
