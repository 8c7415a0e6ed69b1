package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteDataFramesUnnamedEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w := New(rec)
	require := assert.New(t)
	require.NoError(w.WriteData([]byte(`{"a":1}`)))
	require.Equal("data: {\"a\":1}\n\n", rec.Body.String())
}

func TestWriteNamedFramesNamedEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w := New(rec)
	assert.NoError(t, w.WriteNamed("ping", []byte(`{"type":"ping"}`)))
	assert.Equal(t, "event: ping\ndata: {\"type\":\"ping\"}\n\n", rec.Body.String())
}

func TestWriteRawWritesLiteral(t *testing.T) {
	rec := httptest.NewRecorder()
	w := New(rec)
	assert.NoError(t, w.WriteRaw("data: [DONE]\n\n"))
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
}

func TestNewToleratesNonFlusherWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := New(struct{ http.ResponseWriter }{rec})
	assert.NotPanics(t, func() { w.Flush() })
}
