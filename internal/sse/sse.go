// Package sse is the low-level Server-Sent-Events frame writer shared by
// every vendor's OutputAdapter. It is adapted from the teacher's own
// internal/stream.Write — the same flusher type-assertion, the same
// "data: {json}\n\n" framing and flush-after-every-event discipline — split
// out so both the OpenAI and Anthropic stream writers (each with a
// different event/sentinel shape) can reuse the mechanics instead of
// duplicating them.
package sse

import (
	"fmt"
	"net/http"
)

// Writer frames and flushes individual SSE events against an
// http.ResponseWriter. Not safe for concurrent use unless the caller
// synchronizes writes itself (the Anthropic writer does, for its ping
// goroutine).
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// New wraps w. Flushing is skipped (not an error) if w doesn't implement
// http.Flusher — unlike the teacher's original, which required a Flusher, a
// writer without Flush is accepted and its events are written unflushed.
func New(w http.ResponseWriter) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// WriteData writes one unnamed "data: ...\n\n" event, the shape OpenAI's
// wire format uses for every chunk.
func (sw *Writer) WriteData(payload []byte) error {
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	sw.Flush()
	return nil
}

// WriteNamed writes a named "event: name\ndata: ...\n\n" event, the shape
// Anthropic's wire format uses for every lifecycle event.
func (sw *Writer) WriteNamed(event string, payload []byte) error {
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	sw.Flush()
	return nil
}

// WriteRaw writes a literal sentinel line, e.g. OpenAI's "data: [DONE]\n\n".
func (sw *Writer) WriteRaw(line string) error {
	if _, err := fmt.Fprint(sw.w, line); err != nil {
		return err
	}
	sw.Flush()
	return nil
}

// Flush pushes buffered output to the client immediately, if the
// underlying ResponseWriter supports it.
func (sw *Writer) Flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}
