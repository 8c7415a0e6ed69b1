package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/plugin"
)

func loadWrapped(t *testing.T, source string) plugin.Plugin {
	t.Helper()
	path := writeScript(t, source)
	p, err := Load(Config{Name_: "w", Path: path})
	require.NoError(t, err)
	return Wrap(p)
}

func TestWrapExposesOnlyDefinedHooks(t *testing.T) {
	w := loadWrapped(t, `function before_model(ctx) return {} end`)

	_, isBefore := w.(plugin.BeforeModelHook)
	assert.True(t, isBefore)

	_, isAfter := w.(plugin.AfterModelHook)
	assert.False(t, isAfter, "a script with no after_model must not satisfy AfterModelHook")

	_, isChunk := w.(plugin.AfterChunkHook)
	assert.False(t, isChunk)

	_, isDetached := w.(plugin.DetachedHook)
	assert.False(t, isDetached)
}

func TestWrapAllFourHooks(t *testing.T) {
	w := loadWrapped(t, `
function before_model(ctx) return {} end
function after_model(ctx) return {} end
function after_chunk(ctx) return {} end
function detached_after_response(ctx) end
`)

	_, isBefore := w.(plugin.BeforeModelHook)
	_, isAfter := w.(plugin.AfterModelHook)
	_, isChunk := w.(plugin.AfterChunkHook)
	_, isDetached := w.(plugin.DetachedHook)
	assert.True(t, isBefore)
	assert.True(t, isAfter)
	assert.True(t, isChunk)
	assert.True(t, isDetached)
}

func TestWrapNoHooksExposesIdentityOnly(t *testing.T) {
	w := loadWrapped(t, `-- no hook functions defined`)

	_, isBefore := w.(plugin.BeforeModelHook)
	_, isAfter := w.(plugin.AfterModelHook)
	assert.False(t, isBefore)
	assert.False(t, isAfter)
	assert.Equal(t, "w", w.Name())
}

func TestWrapAfterModelAndAfterChunkOnly(t *testing.T) {
	w := loadWrapped(t, `
function after_model(ctx) return {} end
function after_chunk(ctx) return {} end
`)

	_, isBefore := w.(plugin.BeforeModelHook)
	_, isAfter := w.(plugin.AfterModelHook)
	_, isChunk := w.(plugin.AfterChunkHook)
	assert.False(t, isBefore)
	assert.True(t, isAfter)
	assert.True(t, isChunk)
}
