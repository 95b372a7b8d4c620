// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package rpc defines the envelope exchanged between the host and a plugin
// sandbox, and the length-prefixed frame codec that carries it. The envelope
// is the only shape crossing the trust boundary.
package rpc

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// MessageType tags an envelope.
type MessageType string

const (
	TypeHook         MessageType = "HOOK"
	TypeSysCall      MessageType = "SYS_CALL"
	TypeResponse     MessageType = "RESPONSE"
	TypeError        MessageType = "ERROR"
	TypeInit         MessageType = "INIT"
	TypeSandboxReady MessageType = "SANDBOX_READY"
)

// WireError is the only error shape allowed across the boundary. Stack is
// populated in development mode only and the bridge strips it before
// forwarding to the other side.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Envelope is a single framed message. Requests carry Method and Payload;
// responses echo the request ID and carry Result or Error.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Method    string          `json:"method,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *WireError      `json:"error,omitempty"`
}

// NewRequest builds a request envelope of the given type with a fresh
// cryptographic ID. The payload is marshalled to JSON.
func NewRequest(t MessageType, method string, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInternal, "marshalling %s payload", method)
		}
		raw = data
	}

	return &Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Method:    method,
		Payload:   raw,
	}, nil
}

// NewResponse builds a RESPONSE envelope echoing the request ID.
func NewResponse(requestID string, result any) (*Envelope, error) {
	var raw json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "marshalling response result")
		}
		raw = data
	}

	return &Envelope{
		ID:        requestID,
		Type:      TypeResponse,
		Timestamp: time.Now().UnixMilli(),
		Result:    raw,
	}, nil
}

// NewErrorResponse builds an ERROR envelope echoing the request ID.
// Only code and message cross the boundary.
func NewErrorResponse(requestID, code, message string) *Envelope {
	return &Envelope{
		ID:        requestID,
		Type:      TypeError,
		Timestamp: time.Now().UnixMilli(),
		Error:     &WireError{Code: code, Message: message},
	}
}

// StripStack removes any stack text from the envelope's error in place.
func (e *Envelope) StripStack() {
	if e.Error != nil {
		e.Error.Stack = ""
	}
}

// Err converts a wire error into a coded error, boxing codeless plugin
// errors as HOOK_ERROR with the message preserved.
func (w *WireError) Err() error {
	code := frontclawerr.Code(w.Code)
	if code == "" {
		code = frontclawerr.CodeHookError
	}
	return frontclawerr.New(code, w.Message)
}
