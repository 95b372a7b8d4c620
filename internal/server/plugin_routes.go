// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/frontclaw/frontclaw/internal/orchestrator"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// maxPluginBody bounds request bodies forwarded to plugin routes.
const maxPluginBody = 1 << 20

func (s *Server) registerPluginMount() {
	s.router.HandleFunc("/api/v1/p/{pluginID}/*", s.handlePluginRoute)
	s.router.HandleFunc("/api/v1/p/{pluginID}", s.handlePluginRoute)
}

// handlePluginRoute forwards the request to the plugin's onHTTPRequest
// hook with the mount prefix stripped from the path.
func (s *Server) handlePluginRoute(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")

	subPath := strings.TrimPrefix(r.URL.Path, "/api/v1/p/"+pluginID)
	if subPath == "" {
		subPath = "/"
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPluginBody))
	if err != nil {
		writeJSONError(w, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "reading request body"))
		return
	}

	query := make(map[string]string)
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	headers := make(map[string]string)
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp, err := s.deps.Orchestrator.RouteHTTPRequest(r.Context(), pluginID, &orchestrator.HTTPRequest{
		Method:  r.Method,
		Path:    subPath,
		Query:   query,
		Headers: headers,
		Body:    string(body),
	})
	if err != nil {
		writeJSONError(w, err)
		return
	}

	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}

func writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(frontclawerr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": err.Error(),
		"code":    string(frontclawerr.CodeOf(err)),
	})
}
