package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	openaiadapter "github.com/howard-nolan/llmrouter/internal/adapter/openai"
	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/metrics"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/pipeline"
	"github.com/howard-nolan/llmrouter/internal/plugin"
	"github.com/howard-nolan/llmrouter/internal/provider"
	"github.com/howard-nolan/llmrouter/internal/registry"
)

type stubWireRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
	Text   string `json:"text"`
}

type stubInput struct{}

func (stubInput) Name() string     { return "stub" }
func (stubInput) BasePath() string { return "/v1/stub" }
func (stubInput) Decode(body []byte) (*model.Request, error) {
	var wire stubWireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	return &model.Request{
		Model:  wire.Model,
		Stream: wire.Stream,
		Messages: []model.Message{
			{Role: model.RoleUser, Content: wire.Text},
		},
	}, nil
}

type stubOutput struct{}

func (stubOutput) Name() string { return "stub" }
func (stubOutput) EncodeUnary(w io.Writer, resp *model.Response) error {
	return json.NewEncoder(w).Encode(map[string]any{
		"content": resp.Content[0].Message.Content,
		"usage":   resp.Usage,
	})
}

type stubStreamWriter struct{ w http.ResponseWriter }

func (s stubStreamWriter) WriteChunk(resp *model.Response) error {
	_, err := fmt.Fprintf(s.w, "data: %s\n\n", resp.Content[0].Delta.Content)
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return err
}

func (s stubStreamWriter) Close() error {
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return err
}

func (stubOutput) NewStreamWriter(w http.ResponseWriter) adapter.StreamWriter {
	return stubStreamWriter{w: w}
}

type stubProvider struct {
	name      string
	content   string
	deltas    []string
	execErr   error
	callCount int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	p.callCount++
	if p.execErr != nil {
		return nil, p.execErr
	}
	prompt, completion := 5, 3
	return &model.Response{
		Model: req.Model,
		Content: []model.Content{{
			Index:   0,
			Message: &model.Message{Role: model.RoleAssistant, Content: p.content},
		}},
		Usage: &model.Usage{PromptTokens: &prompt, CompletionTokens: &completion},
	}, nil
}

func (p *stubProvider) ExecuteStreaming(ctx context.Context, req *model.Request) (<-chan provider.StreamEvent, error) {
	p.callCount++
	ch := make(chan provider.StreamEvent, len(p.deltas)+1)
	for _, d := range p.deltas {
		ch <- provider.StreamEvent{Chunk: &model.Response{
			Model:   req.Model,
			Content: []model.Content{{Index: 0, Delta: &model.Message{Content: d}}},
		}}
	}
	ch <- provider.StreamEvent{Final: true}
	close(ch)
	return ch, nil
}

type countingPlugin struct {
	name     string
	priority int
	enabled  bool
	calls    int
}

func (p *countingPlugin) Name() string                  { return p.name }
func (p *countingPlugin) Priority() int                 { return p.priority }
func (p *countingPlugin) Enabled() bool                 { return p.enabled }
func (p *countingPlugin) Conditions() plugin.Conditions { return plugin.Conditions{} }
func (p *countingPlugin) BeforeModel(ctx *model.Context) plugin.Result {
	p.calls++
	return plugin.Ok()
}

type terminatingPlugin struct{ name string }

func (p *terminatingPlugin) Name() string                  { return p.name }
func (p *terminatingPlugin) Priority() int                 { return 0 }
func (p *terminatingPlugin) Enabled() bool                 { return true }
func (p *terminatingPlugin) Conditions() plugin.Conditions { return plugin.Conditions{} }
func (p *terminatingPlugin) BeforeModel(ctx *model.Context) plugin.Result {
	return plugin.Result{Terminate: true, Status: http.StatusUnauthorized,
		Err: fmt.Errorf("unauthorized")}
}

func newTestServer(t *testing.T, prov provider.Provider, plugins ...plugin.Plugin) *Server {
	t.Helper()
	adapters := registry.NewAdapters()
	adapters.Register(stubInput{}, stubOutput{})

	providers := registry.NewProviders()
	providers.Register(prov)

	models := registry.NewModels(zerolog.Nop())
	models.Register(registry.ModelConfig{Name: "stub-model", Provider: prov, Default: true})

	engine := pipeline.New(zerolog.Nop(), plugins)
	reg := prometheus.NewRegistry()

	return New(Deps{
		Adapters:  adapters,
		Providers: providers,
		Models:    models,
		Engine:    engine,
		Metrics:   metrics.New(reg),
		Log:       zerolog.Nop(),
		CORS:      config.CORSConfig{},
	})
}

func TestUnaryRoundTripReturnsProviderContent(t *testing.T) {
	prov := &stubProvider{name: "stub-provider", content: "hello there"}
	srv := newTestServer(t, prov)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body, _ := json.Marshal(stubWireRequest{Model: "stub-model", Text: "hi"})
	resp, err := http.Post(ts.URL+"/stub/v1/stub", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "hello there", got["content"])
}

func TestBeforeModelTerminateSkipsProviderCall(t *testing.T) {
	prov := &stubProvider{name: "stub-provider", content: "unreachable"}
	srv := newTestServer(t, prov, &terminatingPlugin{name: "gate"})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body, _ := json.Marshal(stubWireRequest{Model: "stub-model", Text: "hi"})
	resp, err := http.Post(ts.URL+"/stub/v1/stub", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, prov.callCount)
}

func TestDisabledPluginNeverCalled(t *testing.T) {
	prov := &stubProvider{name: "stub-provider", content: "ok"}
	disabled := &countingPlugin{name: "noop", enabled: false}
	srv := newTestServer(t, prov, disabled)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body, _ := json.Marshal(stubWireRequest{Model: "stub-model", Text: "hi"})
	resp, err := http.Post(ts.URL+"/stub/v1/stub", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 0, disabled.calls)
}

func TestStreamingConcatenatesDeltasInOrder(t *testing.T) {
	prov := &stubProvider{name: "stub-provider", deltas: []string{"Hel", "lo, ", "world"}}
	srv := newTestServer(t, prov)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body, _ := json.Marshal(stubWireRequest{Model: "stub-model", Text: "hi", Stream: true})
	resp, err := http.Post(ts.URL+"/stub/v1/stub", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		if after, ok := strings.CutPrefix(line, "data: "); ok && after != "[DONE]" {
			rebuilt.WriteString(after)
		}
	}
	assert.Equal(t, "Hello, world", rebuilt.String())
	assert.Contains(t, string(raw), "data: [DONE]")
}

func TestHealthEndpointReportsOK(t *testing.T) {
	prov := &stubProvider{name: "stub-provider"}
	srv := newTestServer(t, prov)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownModelReturnsModelNotConfigured(t *testing.T) {
	prov := &stubProvider{name: "stub-provider"}
	adapters := registry.NewAdapters()
	adapters.Register(stubInput{}, stubOutput{})
	providers := registry.NewProviders()
	providers.Register(prov)
	models := registry.NewModels(zerolog.Nop())
	engine := pipeline.New(zerolog.Nop(), nil)

	srv := New(Deps{Adapters: adapters, Providers: providers, Models: models, Engine: engine, Log: zerolog.Nop()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body, _ := json.Marshal(stubWireRequest{Model: "no-such-model", Text: "hi"})
	resp, err := http.Post(ts.URL+"/stub/v1/stub", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestCORSOriginHeaderOnlyEchoedWhenAllowlisted(t *testing.T) {
	prov := &stubProvider{name: "stub-provider", content: "ok"}
	adapters := registry.NewAdapters()
	adapters.Register(stubInput{}, stubOutput{})
	providers := registry.NewProviders()
	providers.Register(prov)
	models := registry.NewModels(zerolog.Nop())
	models.Register(registry.ModelConfig{Name: "stub-model", Provider: prov, Default: true})
	engine := pipeline.New(zerolog.Nop(), nil)

	srv := New(Deps{
		Adapters: adapters, Providers: providers, Models: models, Engine: engine,
		Log: zerolog.Nop(), CORS: config.CORSConfig{Origins: []string{"https://allowed.example"}},
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/stub/v1/stub", strings.NewReader(`{"model":"stub-model","text":"hi"}`))
	req.Header.Set("Origin", "https://not-allowed.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req2, _ := http.NewRequest(http.MethodPost, ts.URL+"/stub/v1/stub", strings.NewReader(`{"model":"stub-model","text":"hi"}`))
	req2.Header.Set("Origin", "https://allowed.example")
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "https://allowed.example", resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestVendorAdapterMountsIncludeAliasAndModelsRoute(t *testing.T) {
	prov := &stubProvider{name: "stub-provider", content: "ok"}
	adapters := registry.NewAdapters()
	oa := openaiadapter.New()
	adapters.Register(oa, oa)
	providers := registry.NewProviders()
	providers.Register(prov)
	models := registry.NewModels(zerolog.Nop())
	models.Register(registry.ModelConfig{Name: "m1", Provider: prov, Default: true})
	engine := pipeline.New(zerolog.Nop(), nil)

	srv := New(Deps{Adapters: adapters, Providers: providers, Models: models, Engine: engine, Log: zerolog.Nop()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/openai/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{"/openai/v1/chat/completions", "/openai/chat/completions"} {
		body := `{"model":"m1","messages":[{"role":"user","content":"hi"}]}`
		r, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		r.Body.Close()
		assert.NotEqual(t, http.StatusNotFound, r.StatusCode, path)
		assert.NotEqual(t, http.StatusMethodNotAllowed, r.StatusCode, path)
	}
}
