// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package errors is the coded error layer for Frontclaw. Codes are stable
// strings: they cross the sandbox RPC boundary and appear in HTTP error
// bodies, so they must never change meaning between releases.
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeHookTimeout         Code = "HOOK_TIMEOUT"
	CodeHookError           Code = "HOOK_ERROR"
	CodeSandboxReadyTimeout Code = "SANDBOX_READY_TIMEOUT"
	CodeInitFailed          Code = "INIT_FAILED"
	CodeWorkerStopped       Code = "WORKER_STOPPED"
	CodeSyscallRateLimited  Code = "SYSCALL_RATE_LIMITED"
	CodeUnknownSyscall      Code = "UNKNOWN_SYSCALL"
	CodeSignatureMismatch   Code = "SIGNATURE_MISMATCH"
	CodeInvalidManifest     Code = "INVALID_MANIFEST"
	CodePluginNotFound      Code = "PLUGIN_NOT_FOUND"
	CodeToolNotFound        Code = "TOOL_NOT_FOUND"
	CodeSkillNotFound       Code = "SKILL_NOT_FOUND"
	CodeInvalidSQL          Code = "INVALID_SQL"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeUpstreamFailure     Code = "UPSTREAM_FAILURE"
	CodeInternal            Code = "INTERNAL"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldPlugin(value string) Attr {
	return Field("plugin", value)
}

func FieldPermission(value string) Attr {
	return Field("permission", value)
}

func FieldAction(value string) Attr {
	return Field("action", value)
}

func FieldConversationID(value string) Attr {
	return Field("conversation_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternal
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

// CodeOf extracts the error code, or "" when the error carries none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	default:
		return ""
	}
}

// FieldsOf returns the structured context attached to an error.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsPermissionDenied reports whether the error blocks the caller on policy
// grounds. Plugin-raised codes (e.g. SECURITY_VIOLATION) are not covered
// and HTTPStatus maps them to 500; the chat route answers 403 itself when
// a pipeline abort carries a blockedBy field.
func IsPermissionDenied(err error) bool {
	return CodeOf(err) == CodePermissionDenied
}

func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeNotFound, CodePluginNotFound, CodeToolNotFound, CodeSkillNotFound:
		return true
	}
	return false
}

func IsInvalidInput(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidInput, CodeInvalidManifest, CodeInvalidSQL:
		return true
	}
	return false
}

func IsTimeout(err error) bool {
	return CodeOf(err) == CodeHookTimeout
}

// HTTPStatus maps an error to the HTTP status the REST surface returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsPermissionDenied(err):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case HasCode(err, CodeSyscallRateLimited):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case HasCode(err, CodeUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeInternal).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}
