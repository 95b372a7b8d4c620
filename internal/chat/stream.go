// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// EventSink receives the driver's stream events. The SSE stream implements
// it; the non-stream path uses a collecting sink.
type EventSink interface {
	Send(event string, data any)
}

// SSEStream frames events as server-sent events on an HTTP response. The
// stream closes exactly once; sends after close are no-ops.
type SSEStream struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

// NewSSEStream prepares the response for SSE and returns the stream.
func NewSSEStream(w http.ResponseWriter) *SSEStream {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	return &SSEStream{w: w, flusher: flusher}
}

// Send writes one "event: name\ndata: json\n\n" frame.
func (s *SSEStream) Send(event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, body); err != nil {
		// A dead client turns the stream into a sink.
		s.closed = true
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Close seals the stream. Idempotent.
func (s *SSEStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// CollectSink buffers events for the non-stream JSON response path.
type CollectSink struct {
	mu     sync.Mutex
	events []CollectedEvent
}

// CollectedEvent is one buffered event.
type CollectedEvent struct {
	Event string
	Data  any
}

func (c *CollectSink) Send(event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, CollectedEvent{Event: event, Data: data})
}

// Events returns the buffered events.
func (c *CollectSink) Events() []CollectedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CollectedEvent(nil), c.events...)
}
