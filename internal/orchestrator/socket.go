// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package orchestrator

import (
	"context"
	"encoding/json"
)

// SocketConnect fans the connect event out to every plugin with a socket
// grant. Errors are logged and skipped.
func (o *Orchestrator) SocketConnect(ctx context.Context, socketID string) {
	o.socketFanOut(ctx, "onSocketConnect", map[string]string{"socketId": socketID})
}

// SocketDisconnect mirrors SocketConnect for disconnects.
func (o *Orchestrator) SocketDisconnect(ctx context.Context, socketID string) {
	o.socketFanOut(ctx, "onSocketDisconnect", map[string]string{"socketId": socketID})
}

func (o *Orchestrator) socketFanOut(ctx context.Context, hook string, payload any) {
	for _, p := range o.Plugins() {
		if p.Manifest.Permissions.Socket == nil {
			continue
		}
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}
		if _, err := w.CallHook(ctx, hook, payload); err != nil {
			o.logger.Warn(hook+" failed; skipping plugin", "plugin", p.Manifest.ID, "error", err)
		}
	}
}

// SocketMessage runs onSocketMessage interception-style across plugins
// whose socket grant covers the event and allows interception.
func (o *Orchestrator) SocketMessage(ctx context.Context, socketID, event string, data json.RawMessage) Result[json.RawMessage] {
	for _, p := range o.Plugins() {
		guard, ok := o.guard(p.Manifest.ID)
		if !ok || !guard.CanInterceptSocket() {
			continue
		}
		if err := guard.CheckSocketEvent(event); err != nil {
			continue
		}
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "onSocketMessage", map[string]any{
			"socketId": socketID,
			"event":    event,
			"data":     data,
		})
		if err != nil {
			return Failed[json.RawMessage](p.Manifest.ID, err)
		}
		if isNullish(raw) {
			continue
		}
		if result, ok := decodeIntercept(raw); ok {
			return Intercepted[json.RawMessage](result, p.Manifest.ID)
		}
		data = raw
	}
	return Continued(data)
}
