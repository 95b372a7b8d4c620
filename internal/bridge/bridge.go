// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package bridge owns one sandboxed worker: it spawns the process, performs
// the SANDBOX_READY/INIT handshake, dispatches hook calls with timeouts, and
// services sys-calls coming back the other way.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/frontclaw/frontclaw/internal/metrics"
	"github.com/frontclaw/frontclaw/internal/plugin"
	"github.com/frontclaw/frontclaw/internal/rpc"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

const (
	// DefaultHookTimeout bounds a single hook call into the sandbox.
	DefaultHookTimeout = 5 * time.Second
	// DefaultSyscallTimeout bounds a sys-call forwarded to a backend.
	DefaultSyscallTimeout = 30 * time.Second
	// DefaultReadyTimeout bounds the wait for SANDBOX_READY.
	DefaultReadyTimeout = 5 * time.Second
)

// SysCallHandler services SYS_CALL envelopes from the worker.
type SysCallHandler interface {
	Handle(ctx context.Context, caller *plugin.Loaded, method string, payload json.RawMessage) (any, error)
}

// Config holds the bridge's dependencies.
type Config struct {
	Plugin  *plugin.Loaded
	Handler SysCallHandler

	// Command is the sandbox runtime argv; the plugin's entry path is
	// appended. Ignored when Spawn is set.
	Command []string
	// Spawn overrides process spawning, used by tests and alternative
	// runtimes.
	Spawn func() (Transport, error)

	HookTimeout    time.Duration
	SyscallTimeout time.Duration
	ReadyTimeout   time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Development is carried in the config but not consulted by the bridge:
	// error stacks are logged host-side at error level in every mode, and
	// stack text is never forwarded to the worker.
	Development bool
}

type callResult struct {
	env *rpc.Envelope
	err error
}

// Bridge owns one sandbox. At most one bridge exists per plugin id; the
// orchestrator enforces that.
type Bridge struct {
	cfg       Config
	pluginID  string
	transport Transport

	mu      sync.Mutex
	pending map[string]chan callResult
	stopped bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once

	lateDrops int
}

// New builds a bridge for the given plugin. Start must be called before any
// hook dispatch.
func New(cfg Config) *Bridge {
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = DefaultHookTimeout
	}
	if cfg.SyscallTimeout <= 0 {
		cfg.SyscallTimeout = DefaultSyscallTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}

	return &Bridge{
		cfg:      cfg,
		pluginID: cfg.Plugin.Manifest.ID,
		pending:  make(map[string]chan callResult),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// PluginID returns the owning plugin's identifier.
func (b *Bridge) PluginID() string {
	return b.pluginID
}

// Plugin returns the loaded plugin record.
func (b *Bridge) Plugin() *plugin.Loaded {
	return b.cfg.Plugin
}

// Start spawns the sandbox, waits for SANDBOX_READY, and completes the INIT
// exchange. On failure the worker is terminated and the bridge is unusable.
func (b *Bridge) Start(ctx context.Context) error {
	transport, err := b.spawn()
	if err != nil {
		return err
	}
	b.transport = transport

	go b.readLoop()

	select {
	case <-b.ready:
	case <-time.After(b.cfg.ReadyTimeout):
		b.terminate()
		return frontclawerr.New(frontclawerr.CodeSandboxReadyTimeout,
			"sandbox did not signal ready", frontclawerr.FieldPlugin(b.pluginID))
	case <-ctx.Done():
		b.terminate()
		return frontclawerr.Wrap(ctx.Err(), frontclawerr.CodeSandboxReadyTimeout,
			"waiting for sandbox ready", frontclawerr.FieldPlugin(b.pluginID))
	}

	initPayload := map[string]any{
		"pluginId":    b.pluginID,
		"config":      b.cfg.Plugin.Config,
		"permissions": b.cfg.Plugin.Manifest.Permissions,
	}
	if _, err := b.roundTrip(ctx, rpc.TypeInit, "init", initPayload, b.cfg.HookTimeout); err != nil {
		b.terminate()
		return frontclawerr.Wrap(err, frontclawerr.CodeInitFailed,
			"sandbox init", frontclawerr.FieldPlugin(b.pluginID))
	}

	return nil
}

func (b *Bridge) spawn() (Transport, error) {
	if b.cfg.Spawn != nil {
		return b.cfg.Spawn()
	}

	argv := append(append([]string(nil), b.cfg.Command...), b.cfg.Plugin.EntryPath)
	env := []string{"FRONTCLAW_PLUGIN_ID=" + b.pluginID}
	return SpawnProcess(argv, env, b.cfg.Logger)
}

// CallHook invokes a named hook in the sandbox and returns its raw result.
// A nil result means the hook returned nothing. Timeouts surface as
// HOOK_TIMEOUT; the worker is left alive and late responses are dropped.
func (b *Bridge) CallHook(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	start := time.Now()
	result, err := b.roundTrip(ctx, rpc.TypeHook, method, payload, b.cfg.HookTimeout)
	b.cfg.Metrics.HookDuration.WithLabelValues(b.pluginID, method).Observe(time.Since(start).Seconds())
	return result, err
}

func (b *Bridge) roundTrip(ctx context.Context, t rpc.MessageType, method string, payload any, timeout time.Duration) (json.RawMessage, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, frontclawerr.New(frontclawerr.CodeWorkerStopped,
			"worker is stopped", frontclawerr.FieldPlugin(b.pluginID))
	}
	b.mu.Unlock()

	env, err := rpc.NewRequest(t, method, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan callResult, 1)
	b.mu.Lock()
	b.pending[env.ID] = ch
	b.mu.Unlock()

	if err := b.transport.Send(env); err != nil {
		b.removePending(env.ID)
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeWorkerStopped, "posting %s to sandbox", method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.env.Error != nil {
			return nil, frontclawerr.With(res.env.Error.Err(), frontclawerr.FieldPlugin(b.pluginID))
		}
		return res.env.Result, nil

	case <-timer.C:
		b.removePending(env.ID)
		return nil, frontclawerr.New(frontclawerr.CodeHookTimeout,
			"hook "+method+" timed out",
			frontclawerr.FieldPlugin(b.pluginID),
			frontclawerr.Field("hook", method),
		)

	case <-b.done:
		b.removePending(env.ID)
		return nil, frontclawerr.New(frontclawerr.CodeWorkerStopped,
			"worker stopped while awaiting "+method, frontclawerr.FieldPlugin(b.pluginID))

	case <-ctx.Done():
		b.removePending(env.ID)
		return nil, frontclawerr.Wrapf(ctx.Err(), frontclawerr.CodeHookTimeout, "awaiting %s", method)
	}
}

func (b *Bridge) removePending(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// readLoop is the only reader of the transport. It settles responses,
// signals readiness, and fans sys-calls out to the handler.
func (b *Bridge) readLoop() {
	for {
		env, err := b.transport.Recv()
		if err != nil {
			return
		}

		switch env.Type {
		case rpc.TypeSandboxReady:
			b.readyOnce.Do(func() { close(b.ready) })

		case rpc.TypeResponse, rpc.TypeError:
			// Any stack a worker smuggled into an error stays host-side.
			if env.Error != nil && env.Error.Stack != "" {
				b.cfg.Logger.Error("sandbox error with stack",
					"plugin", b.pluginID, "code", env.Error.Code, "stack", env.Error.Stack)
				env.StripStack()
			}
			b.settle(env)

		case rpc.TypeSysCall:
			go b.handleSysCall(env)

		default:
			b.cfg.Logger.Warn("unexpected envelope from sandbox",
				"plugin", b.pluginID, "type", string(env.Type))
		}
	}
}

func (b *Bridge) settle(env *rpc.Envelope) {
	b.mu.Lock()
	ch, ok := b.pending[env.ID]
	if ok {
		delete(b.pending, env.ID)
	} else {
		b.lateDrops++
	}
	b.mu.Unlock()

	if !ok {
		b.cfg.Logger.Debug("dropping late response", "plugin", b.pluginID, "id", env.ID)
		return
	}
	ch <- callResult{env: env}
}

// handleSysCall runs one SYS_CALL through the handler and posts the reply.
// Only code and message cross back; stacks are logged host-side.
func (b *Bridge) handleSysCall(env *rpc.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SyscallTimeout)
	defer cancel()

	result, err := b.cfg.Handler.Handle(ctx, b.cfg.Plugin, env.Method, env.Payload)
	if err != nil {
		code := frontclawerr.CodeOf(err)
		if code == "" {
			code = frontclawerr.CodeInternal
		}
		b.cfg.Logger.Error("sys-call failed",
			"plugin", b.pluginID, "method", env.Method, "code", string(code), "error", err)
		b.post(rpc.NewErrorResponse(env.ID, string(code), err.Error()))
		return
	}

	reply, err := rpc.NewResponse(env.ID, result)
	if err != nil {
		b.post(rpc.NewErrorResponse(env.ID, string(frontclawerr.CodeInternal), "unencodable sys-call result"))
		return
	}
	b.post(reply)
}

func (b *Bridge) post(env *rpc.Envelope) {
	if err := b.transport.Send(env); err != nil {
		b.cfg.Logger.Warn("posting to sandbox failed", "plugin", b.pluginID, "error", err)
	}
}

// Stop shuts the worker down: best-effort onUnload, cancellation of all
// pending calls with WORKER_STOPPED, process termination. Idempotent.
func (b *Bridge) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		// onUnload is advisory; errors and timeouts are ignored.
		unloadCtx, cancel := context.WithTimeout(ctx, b.cfg.HookTimeout)
		_, _ = b.CallHook(unloadCtx, "onUnload", nil)
		cancel()

		b.mu.Lock()
		b.stopped = true
		stale := b.pending
		b.pending = make(map[string]chan callResult)
		b.mu.Unlock()

		close(b.done)
		for id, ch := range stale {
			ch <- callResult{err: frontclawerr.New(frontclawerr.CodeWorkerStopped,
				"worker stopped", frontclawerr.FieldPlugin(b.pluginID), frontclawerr.Field("call_id", id))}
		}

		b.terminate()
	})
}

func (b *Bridge) terminate() {
	if b.transport != nil {
		_ = b.transport.Close()
	}
}

// LateDrops reports how many responses arrived after their pending entry
// was gone.
func (b *Bridge) LateDrops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lateDrops
}
