// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package orchestrator

import (
	"encoding/json"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Kind tags a pipeline result.
type Kind int

const (
	// KindContinued means every plugin ran (or was skipped) and Value holds
	// the transformed pipeline value.
	KindContinued Kind = iota
	// KindIntercepted means a plugin replaced the final value and
	// suppressed downstream plugins.
	KindIntercepted
	// KindFailed means a plugin aborted the phase.
	KindFailed
)

// Result is the tagged outcome of one pipeline run.
type Result[T any] struct {
	Kind Kind

	// Value is set for KindContinued.
	Value T

	// Intercepted and InterceptedBy are set for KindIntercepted.
	Intercepted   json.RawMessage
	InterceptedBy string

	// FailedPlugin, Code, and Message are set for KindFailed.
	FailedPlugin string
	Code         string
	Message      string
}

// Continued wraps a transformed value.
func Continued[T any](value T) Result[T] {
	return Result[T]{Kind: KindContinued, Value: value}
}

// Intercepted wraps a plugin's final value.
func Intercepted[T any](value json.RawMessage, pluginID string) Result[T] {
	return Result[T]{Kind: KindIntercepted, Intercepted: value, InterceptedBy: pluginID}
}

// Failed wraps a pipeline abort.
func Failed[T any](pluginID string, err error) Result[T] {
	code := frontclawerr.CodeOf(err)
	if code == "" {
		code = frontclawerr.CodeHookError
	}
	return Result[T]{
		Kind:         KindFailed,
		FailedPlugin: pluginID,
		Code:         string(code),
		Message:      err.Error(),
	}
}

// InterceptedText renders the intercepted value as plain text: JSON strings
// are unquoted, anything else keeps its JSON form.
func (r Result[T]) InterceptedText() string {
	var s string
	if err := json.Unmarshal(r.Intercepted, &s); err == nil {
		return s
	}
	return string(r.Intercepted)
}

// hookReturn is the explicit interception tag a hook may return instead of
// a plain value.
type hookReturn struct {
	Intercepted bool            `json:"intercepted"`
	Result      json.RawMessage `json:"result"`
}

// decodeIntercept reports whether raw carries the interception tag.
func decodeIntercept(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var ret hookReturn
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, false
	}
	if !ret.Intercepted {
		return nil, false
	}
	return ret.Result, true
}

// isNullish reports whether a hook returned nothing.
func isNullish(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
