// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package permission

import (
	"net/url"
	"strings"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Guard is a stateless wrapper around one plugin's grants. All methods
// return nil when the action is allowed and a PERMISSION_DENIED error
// carrying the plugin id, permission path, and action otherwise.
type Guard struct {
	pluginID string
	grants   Grants
}

// NewGuard builds a guard for the given plugin's grants.
func NewGuard(pluginID string, grants Grants) *Guard {
	return &Guard{pluginID: pluginID, grants: grants}
}

func (g *Guard) denied(permission, action string) error {
	return frontclawerr.New(
		frontclawerr.CodePermissionDenied,
		"plugin "+g.pluginID+" denied: "+action,
		frontclawerr.FieldPlugin(g.pluginID),
		frontclawerr.FieldPermission(permission),
		frontclawerr.FieldAction(action),
	)
}

// CheckTableRead allows reading from table when the db grant lists it or "*".
func (g *Guard) CheckTableRead(table string) error {
	if g.grants.DB == nil || !tableAllowed(g.grants.DB.Tables, table) {
		return g.denied("db.tables", "read table "+table)
	}
	return nil
}

// CheckTableWrite additionally requires read-write access.
func (g *Guard) CheckTableWrite(table string) error {
	if g.grants.DB == nil || !tableAllowed(g.grants.DB.Tables, table) {
		return g.denied("db.tables", "write table "+table)
	}
	if g.grants.DB.Access != AccessReadWrite {
		return g.denied("db.access", "write table "+table+" with read-only access")
	}
	return nil
}

func tableAllowed(tables []string, table string) bool {
	for _, t := range tables {
		if t == "*" || t == table {
			return true
		}
	}
	return false
}

// CheckURL allows fetching rawURL when its host matches an allowed domain.
func (g *Guard) CheckURL(rawURL string) error {
	grant := g.grants.Network
	if grant == nil {
		return g.denied("network", "fetch "+rawURL)
	}
	if grant.AllowAll {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return g.denied("network.allowed_domains", "fetch invalid url "+rawURL)
	}

	host := strings.ToLower(u.Hostname())
	for _, entry := range grant.AllowedDomains {
		if domainMatches(strings.ToLower(entry), host) {
			return nil
		}
	}
	return g.denied("network.allowed_domains", "fetch "+rawURL)
}

// domainMatches reports whether host equals entry, or, for "*.suffix"
// entries, is the suffix itself or ends with ".suffix".
func domainMatches(entry, host string) bool {
	if entry == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(entry, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return entry == host
}

// CheckMemoryRead allows reading key under the memory read patterns.
func (g *Guard) CheckMemoryRead(key string) error {
	if g.grants.Memory == nil || !keyAllowed(g.grants.Memory.Read, key) {
		return g.denied("memory.read", "read memory key "+key)
	}
	return nil
}

// CheckMemoryWrite allows writing key under the memory write patterns.
func (g *Guard) CheckMemoryWrite(key string) error {
	if g.grants.Memory == nil || !keyAllowed(g.grants.Memory.Write, key) {
		return g.denied("memory.write", "write memory key "+key)
	}
	return nil
}

// keyAllowed matches "*" against everything, "prefix:*" by literal prefix,
// and other entries by exact equality.
func keyAllowed(patterns []string, key string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(key, prefix) {
				return true
			}
			continue
		}
		if p == key {
			return true
		}
	}
	return false
}

// CheckSkill allows invoking skillName. A "plugin__name" namespace is
// stripped to "name" before matching; grant entries ending in "__*" match
// by literal prefix and "*" matches all.
func (g *Guard) CheckSkill(skillName string) error {
	if len(g.grants.Skills) == 0 {
		return g.denied("skills", "invoke skill "+skillName)
	}

	local := skillName
	if _, rest, ok := strings.Cut(skillName, "__"); ok {
		local = rest
	}

	for _, entry := range g.grants.Skills {
		if entry == "*" {
			return nil
		}
		if prefix, ok := strings.CutSuffix(entry, "*"); ok {
			if strings.HasPrefix(skillName, prefix) {
				return nil
			}
			continue
		}
		if entry == skillName || entry == local {
			return nil
		}
	}
	return g.denied("skills", "invoke skill "+skillName)
}

// CheckRoute allows serving method+path under the api grant. Paths are
// compared after trailing-slash normalization; specs ending in "/*" match
// by prefix. Verb restrictions come from the matched spec when it names
// verbs, from the grant's top-level methods otherwise.
func (g *Guard) CheckRoute(method, path string) error {
	grant := g.grants.API
	if grant == nil || len(grant.Routes) == 0 {
		return g.denied("api.routes", method+" "+path)
	}

	method = strings.ToUpper(method)
	normPath := normalizePath(path)

	for _, spec := range grant.Routes {
		verbs, pattern := parseRouteSpec(spec)
		if !routeMatches(pattern, normPath) {
			continue
		}
		if len(verbs) > 0 {
			if containsFold(verbs, method) {
				return nil
			}
			continue
		}
		if len(grant.Methods) > 0 {
			if containsFold(grant.Methods, method) {
				return nil
			}
			continue
		}
		return nil
	}
	return g.denied("api.routes", method+" "+path)
}

// parseRouteSpec splits "<VERBS> <pattern>" specs; a bare pattern has no
// verb restriction. Verbs are comma-separated.
func parseRouteSpec(spec string) ([]string, string) {
	spec = strings.TrimSpace(spec)
	head, rest, ok := strings.Cut(spec, " ")
	if !ok {
		return nil, spec
	}

	verbs := strings.Split(head, ",")
	for _, v := range verbs {
		if !isHTTPVerb(strings.TrimSpace(v)) {
			// Not a verb list; the whole spec is a pattern.
			return nil, spec
		}
	}
	for i := range verbs {
		verbs[i] = strings.ToUpper(strings.TrimSpace(verbs[i]))
	}
	return verbs, strings.TrimSpace(rest)
}

func isHTTPVerb(s string) bool {
	switch strings.ToUpper(s) {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
		return true
	}
	return false
}

func routeMatches(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		prefix = normalizePath(prefix)
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return normalizePath(pattern) == path
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// CheckSocketEvent allows handling the named socket event.
func (g *Guard) CheckSocketEvent(event string) error {
	grant := g.grants.Socket
	if grant == nil {
		return g.denied("socket.events", "handle socket event "+event)
	}
	for _, e := range grant.Events {
		if e == "*" || e == event {
			return nil
		}
	}
	return g.denied("socket.events", "handle socket event "+event)
}

// CanInterceptSocket reports the socket interception flag.
func (g *Guard) CanInterceptSocket() bool {
	return g.grants.Socket != nil && g.grants.Socket.CanIntercept
}

// CanEmitSocket reports the socket emit flag.
func (g *Guard) CanEmitSocket() bool {
	return g.grants.Socket != nil && g.grants.Socket.CanEmit
}

// LLM flag accessors; a nil llm grant denies all of them.

func (g *Guard) CanInterceptTask() bool {
	return g.grants.LLM != nil && g.grants.LLM.CanInterceptTask
}

func (g *Guard) CanModifyPrompt() bool {
	return g.grants.LLM != nil && g.grants.LLM.CanModifyPrompt
}

func (g *Guard) CanModifySystemMessage() bool {
	return g.grants.LLM != nil && g.grants.LLM.CanModifySystemMessage
}

func (g *Guard) CanModifyResponse() bool {
	return g.grants.LLM != nil && g.grants.LLM.CanModifyResponse
}

// LogAllowed reports whether the plugin may log at level.
func (g *Guard) LogAllowed(level string) bool {
	grant := g.grants.Log
	if grant == nil || !grant.Enabled {
		return false
	}
	if len(grant.Levels) == 0 {
		return false
	}
	return containsFold(grant.Levels, level)
}
