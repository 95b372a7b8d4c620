// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package syscall routes sandbox SYS_CALL requests through the permission
// guard to the host backends. Every call is rate-limited per plugin before
// any other work happens.
package syscall

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frontclaw/frontclaw/internal/memory"
	"github.com/frontclaw/frontclaw/internal/metrics"
	"github.com/frontclaw/frontclaw/internal/permission"
	"github.com/frontclaw/frontclaw/internal/plugin"
	"github.com/frontclaw/frontclaw/internal/store"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// maxFetchBody bounds the response body returned to a sandbox.
const maxFetchBody = 4 << 20

// SkillInvoker re-enters the orchestrator's skill pipeline. The orchestrator
// implements it; taking the interface here keeps construction acyclic.
type SkillInvoker interface {
	InvokeSkill(ctx context.Context, skillName string, args map[string]any) (any, error)
}

// Handler services sys-calls for all plugins.
type Handler struct {
	rows    store.RowStore
	memory  memory.Service
	client  *http.Client
	skills  SkillInvoker
	limiter *RateLimiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Config holds the Handler's backends.
type Config struct {
	Rows       store.RowStore
	Memory     memory.Service
	HTTPClient *http.Client
	Skills     SkillInvoker
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// NewHandler builds a Handler over the given backends.
func NewHandler(cfg Config) *Handler {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	return &Handler{
		rows:    cfg.Rows,
		memory:  cfg.Memory,
		client:  cfg.HTTPClient,
		skills:  cfg.Skills,
		limiter: NewRateLimiter(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// SetSkillInvoker wires the orchestrator in after construction.
func (h *Handler) SetSkillInvoker(invoker SkillInvoker) {
	h.skills = invoker
}

// Handle dispatches one sys-call from the given plugin.
func (h *Handler) Handle(ctx context.Context, caller *plugin.Loaded, method string, payload json.RawMessage) (result any, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(frontclawerr.CodeOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		h.metrics.SyscallsTotal.WithLabelValues(caller.Manifest.ID, method, outcome).Inc()
	}()

	if err := h.limiter.Allow(caller.Manifest.ID); err != nil {
		return nil, err
	}

	guard := permission.NewGuard(caller.Manifest.ID, caller.Manifest.Permissions)

	switch method {
	case "db.query":
		return h.dbQuery(ctx, guard, payload)
	case "db.getItems":
		return h.dbGetItems(ctx, guard, payload)
	case "db.getItem":
		return h.dbGetItem(ctx, guard, payload)
	case "network.fetch":
		return h.networkFetch(ctx, guard, payload)
	case "log":
		return h.log(guard, caller.Manifest.ID, payload), nil
	case "memory.get", "memory.set", "memory.delete", "memory.list", "memory.ttl":
		return h.memoryCall(ctx, guard, method, payload)
	case "skills.invoke":
		return h.skillsInvoke(ctx, guard, payload)
	default:
		return nil, frontclawerr.Errorf(frontclawerr.CodeUnknownSyscall, "unknown sys-call %q", method)
	}
}

// --- db ---

type dbQueryPayload struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

func (h *Handler) dbQuery(ctx context.Context, guard *permission.Guard, payload json.RawMessage) (any, error) {
	var req dbQueryPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding db.query payload")
	}

	audit, err := permission.AuditSQL(req.SQL)
	if err != nil {
		return nil, err
	}

	for _, table := range audit.Tables {
		if audit.Write {
			if err := guard.CheckTableWrite(table); err != nil {
				return nil, err
			}
			continue
		}
		if err := guard.CheckTableRead(table); err != nil {
			return nil, err
		}
	}

	return h.rows.Query(ctx, req.SQL, req.Params)
}

type dbGetItemsPayload struct {
	Table  string         `json:"table"`
	Where  map[string]any `json:"where"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (h *Handler) dbGetItems(ctx context.Context, guard *permission.Guard, payload json.RawMessage) (any, error) {
	var req dbGetItemsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding db.getItems payload")
	}

	if err := guard.CheckTableRead(req.Table); err != nil {
		return nil, err
	}
	return h.rows.GetItems(ctx, req.Table, store.ItemQuery{
		Where:  req.Where,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

type dbGetItemPayload struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

func (h *Handler) dbGetItem(ctx context.Context, guard *permission.Guard, payload json.RawMessage) (any, error) {
	var req dbGetItemPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding db.getItem payload")
	}

	if err := guard.CheckTableRead(req.Table); err != nil {
		return nil, err
	}
	return h.rows.GetItem(ctx, req.Table, req.ID)
}

// --- network ---

type fetchPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type fetchResult struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

func (h *Handler) networkFetch(ctx context.Context, guard *permission.Guard, payload json.RawMessage) (any, error) {
	var req fetchPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding network.fetch payload")
	}

	if err := guard.CheckURL(req.URL); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "building fetch request")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeUpstreamFailure, "performing fetch")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeUpstreamFailure, "reading fetch body")
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &fetchResult{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Body:       string(data),
	}, nil
}

// --- log ---

type logPayload struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta"`
}

// log forwards a plugin log line when the level is permitted. It never
// raises; a denied level is silently dropped.
func (h *Handler) log(guard *permission.Guard, pluginID string, payload json.RawMessage) any {
	var req logPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return map[string]any{"logged": false}
	}

	if !guard.LogAllowed(req.Level) {
		return map[string]any{"logged": false}
	}

	attrs := []any{slog.String("plugin", pluginID)}
	if len(req.Meta) > 0 {
		attrs = append(attrs, slog.Any("meta", req.Meta))
	}

	msg := "[" + pluginID + "] " + req.Message
	switch strings.ToLower(req.Level) {
	case "debug":
		h.logger.Debug(msg, attrs...)
	case "warn":
		h.logger.Warn(msg, attrs...)
	case "error":
		h.logger.Error(msg, attrs...)
	default:
		h.logger.Info(msg, attrs...)
	}
	return map[string]any{"logged": true}
}

// --- memory ---

type memoryPayload struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl"` // seconds
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
}

func (h *Handler) memoryCall(ctx context.Context, guard *permission.Guard, method string, payload json.RawMessage) (any, error) {
	var req memoryPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding memory payload")
	}

	switch method {
	case "memory.get":
		if err := guard.CheckMemoryRead(req.Key); err != nil {
			return nil, err
		}
		value, ok, err := h.memory.Get(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return map[string]any{"found": false}, nil
		}
		return map[string]any{"found": true, "value": value}, nil

	case "memory.set":
		if err := guard.CheckMemoryWrite(req.Key); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, h.memory.Set(ctx, req.Key, req.Value, time.Duration(req.TTL)*time.Second)

	case "memory.delete":
		if err := guard.CheckMemoryWrite(req.Key); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, h.memory.Delete(ctx, req.Key)

	case "memory.list":
		// Listing without a prefix enumerates everything and therefore
		// requires wildcard read.
		checkKey := req.Prefix
		if checkKey == "" {
			checkKey = "*"
		}
		if err := guard.CheckMemoryRead(checkKey); err != nil {
			return nil, err
		}
		keys, err := h.memory.List(ctx, req.Prefix, req.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"keys": keys}, nil

	case "memory.ttl":
		if err := guard.CheckMemoryRead(req.Key); err != nil {
			return nil, err
		}
		ttl, ok, err := h.memory.TTL(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return map[string]any{"ttl": nil}, nil
		}
		return map[string]any{"ttl": int(ttl.Seconds())}, nil
	}

	return nil, frontclawerr.Errorf(frontclawerr.CodeUnknownSyscall, "unknown sys-call %q", method)
}

// --- skills ---

type skillsInvokePayload struct {
	Skill string         `json:"skill"`
	Args  map[string]any `json:"args"`
}

func (h *Handler) skillsInvoke(ctx context.Context, guard *permission.Guard, payload json.RawMessage) (any, error) {
	var req skillsInvokePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding skills.invoke payload")
	}

	if err := guard.CheckSkill(req.Skill); err != nil {
		return nil, err
	}
	if h.skills == nil {
		return nil, frontclawerr.New(frontclawerr.CodeSkillNotFound, "no skill invoker configured")
	}
	return h.skills.InvokeSkill(ctx, req.Skill, req.Args)
}
