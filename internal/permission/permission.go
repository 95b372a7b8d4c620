// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package permission implements the typed capability grants declared in a
// plugin manifest and the guard that checks every effectful operation
// against them. All predicates are fail-closed: an absent grant or an empty
// pattern list denies.
package permission

// Access describes the database access mode a plugin is granted.
type Access string

const (
	AccessReadOnly  Access = "read-only"
	AccessReadWrite Access = "read-write"
)

// DBGrant allows queries against a set of tables.
type DBGrant struct {
	Tables []string `json:"tables"`
	Access Access   `json:"access"`
}

// NetworkGrant allows outbound requests to a set of domains.
// Entries of the form "*.suffix" match the suffix itself and any subdomain.
type NetworkGrant struct {
	AllowedDomains []string `json:"allowed_domains"`
	AllowAll       bool     `json:"allow_all"`
}

// LLMGrant controls participation in the prompt/response pipelines.
type LLMGrant struct {
	CanInterceptTask       bool `json:"can_intercept_task"`
	CanModifyPrompt        bool `json:"can_modify_prompt"`
	CanModifySystemMessage bool `json:"can_modify_system_message"`
	CanModifyResponse      bool `json:"can_modify_response"`
	MaxTokensPerRequest    int  `json:"max_tokens_per_request,omitempty"`
}

// APIGrant allows the plugin to serve HTTP routes. A route spec is either
// "<VERBS> <pattern>" or a bare pattern; a pattern ending in "/*" matches
// any suffix.
type APIGrant struct {
	Routes  []string `json:"routes"`
	Methods []string `json:"methods,omitempty"`
}

// SocketGrant controls socket event participation.
type SocketGrant struct {
	CanIntercept bool     `json:"can_intercept"`
	CanEmit      bool     `json:"can_emit"`
	Events       []string `json:"events"`
}

// MemoryGrant allows reads and writes in the memory key space. Entries are
// exact keys, "prefix:*" literal prefixes, or "*".
type MemoryGrant struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// LogGrant allows the plugin to emit host log lines at the listed levels.
type LogGrant struct {
	Enabled bool     `json:"enabled"`
	Levels  []string `json:"levels"`
}

// Grants is the complete permission block of a manifest. A nil sub-grant
// denies that capability family entirely.
type Grants struct {
	DB      *DBGrant      `json:"db,omitempty"`
	Network *NetworkGrant `json:"network,omitempty"`
	LLM     *LLMGrant     `json:"llm,omitempty"`
	API     *APIGrant     `json:"api,omitempty"`
	Socket  *SocketGrant  `json:"socket,omitempty"`
	Skills  []string      `json:"skills,omitempty"`
	Memory  *MemoryGrant  `json:"memory,omitempty"`
	Log     *LogGrant     `json:"log,omitempty"`
}
