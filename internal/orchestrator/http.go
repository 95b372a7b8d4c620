// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// HTTPRequest is the plugin-facing view of an inbound HTTP request, with
// the mount prefix already stripped from Path.
type HTTPRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HTTPResponse is what a plugin's onHTTPRequest returns.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// defaultSecurityHeaders are applied to every plugin HTTP response unless
// the plugin supplies its own header of the same name.
var defaultSecurityHeaders = map[string]string{
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
}

// RouteHTTPRequest resolves the plugin, checks its api route grant for the
// request, and invokes onHTTPRequest. The response is augmented with the
// default security headers.
func (o *Orchestrator) RouteHTTPRequest(ctx context.Context, pluginID string, req *HTTPRequest) (*HTTPResponse, error) {
	if _, ok := o.manifest(pluginID); !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodePluginNotFound, "plugin %q not found", pluginID)
	}
	guard, ok := o.guard(pluginID)
	if !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodePluginNotFound, "plugin %q not found", pluginID)
	}
	if err := guard.CheckRoute(req.Method, req.Path); err != nil {
		return nil, err
	}

	w, ok := o.worker(pluginID)
	if !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodePluginNotFound, "plugin %q has no running sandbox", pluginID)
	}

	raw, err := w.CallHook(ctx, "onHTTPRequest", req)
	if err != nil {
		return nil, err
	}

	var resp HTTPResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeHookError, "malformed onHTTPRequest response from %s", pluginID)
	}
	if resp.Status == 0 {
		resp.Status = 200
	}
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}

	for name, value := range defaultSecurityHeaders {
		if !hasHeaderFold(resp.Headers, name) {
			resp.Headers[name] = value
		}
	}
	return &resp, nil
}

func hasHeaderFold(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
