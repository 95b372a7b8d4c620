// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/bridge"
	"github.com/frontclaw/frontclaw/internal/permission"
	"github.com/frontclaw/frontclaw/internal/plugin"
	"github.com/frontclaw/frontclaw/internal/rpc"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// fakeTransport is an in-memory transport driven by a scripted worker.
type fakeTransport struct {
	toWorker   chan *rpc.Envelope
	fromWorker chan *rpc.Envelope
	// replies collects host responses to worker-originated sys-calls once
	// runWorker is consuming toWorker.
	replies chan *rpc.Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		toWorker:   make(chan *rpc.Envelope, 16),
		fromWorker: make(chan *rpc.Envelope, 16),
		replies:    make(chan *rpc.Envelope, 16),
		closed:     make(chan struct{}),
	}
}

func (t *fakeTransport) Send(env *rpc.Envelope) error {
	select {
	case t.toWorker <- env:
		return nil
	case <-t.closed:
		return errors.New("transport closed")
	}
}

func (t *fakeTransport) Recv() (*rpc.Envelope, error) {
	select {
	case env := <-t.fromWorker:
		return env, nil
	case <-t.closed:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// emit injects a worker-originated envelope.
func (t *fakeTransport) emit(env *rpc.Envelope) {
	t.fromWorker <- env
}

// hookFunc scripts the worker's reply to one hook method. Returning
// (nil, nil, false) leaves the call unanswered.
type hookFunc func(env *rpc.Envelope) (result any, wireErr *rpc.WireError, respond bool)

// runWorker answers init and dispatches hook methods to script entries.
func (t *fakeTransport) runWorker(script map[string]hookFunc) {
	go func() {
		for {
			select {
			case env := <-t.toWorker:
				switch env.Type {
				case rpc.TypeInit:
					reply, _ := rpc.NewResponse(env.ID, map[string]any{"ok": true})
					t.emit(reply)
				case rpc.TypeHook:
					fn, ok := script[env.Method]
					if !ok {
						reply, _ := rpc.NewResponse(env.ID, nil)
						t.emit(reply)
						continue
					}
					result, wireErr, respond := fn(env)
					if !respond {
						continue
					}
					if wireErr != nil {
						t.emit(&rpc.Envelope{ID: env.ID, Type: rpc.TypeError, Error: wireErr})
						continue
					}
					reply, _ := rpc.NewResponse(env.ID, result)
					t.emit(reply)
				default:
					t.replies <- env
				}
			case <-t.closed:
				return
			}
		}
	}()
}

func testPlugin(id string) *plugin.Loaded {
	return &plugin.Loaded{
		Manifest: &plugin.Manifest{
			ID: id, Name: id, Version: "1.0.0", Main: "index.js",
			Permissions: permission.Grants{},
		},
		Config: map[string]any{"k": "v"},
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	calls  []string
	result any
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, _ *plugin.Loaded, method string, _ json.RawMessage) (any, error) {
	h.mu.Lock()
	h.calls = append(h.calls, method)
	h.mu.Unlock()
	return h.result, h.err
}

func startBridge(t *testing.T, transport *fakeTransport, handler bridge.SysCallHandler, opts func(*bridge.Config)) *bridge.Bridge {
	t.Helper()

	cfg := bridge.Config{
		Plugin:  testPlugin("worker-test"),
		Handler: handler,
		Spawn:   func() (bridge.Transport, error) { return transport, nil },
	}
	if opts != nil {
		opts(&cfg)
	}
	b := bridge.New(cfg)

	transport.emit(&rpc.Envelope{ID: "boot", Type: rpc.TypeSandboxReady})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Stop(context.Background()) })
	return b
}

func TestStartAndHookRoundTrip(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.runWorker(map[string]hookFunc{
		"onPromptReceived": func(env *rpc.Envelope) (any, *rpc.WireError, bool) {
			var payload map[string]string
			_ = json.Unmarshal(env.Payload, &payload)
			return payload["prompt"] + "!", nil, true
		},
	})

	b := startBridge(t, transport, &recordingHandler{}, nil)

	result, err := b.CallHook(context.Background(), "onPromptReceived", map[string]string{"prompt": "hi"})
	require.NoError(t, err)

	var transformed string
	require.NoError(t, json.Unmarshal(result, &transformed))
	assert.Equal(t, "hi!", transformed)
}

func TestStartReadyTimeout(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	b := bridge.New(bridge.Config{
		Plugin:       testPlugin("slow"),
		Handler:      &recordingHandler{},
		Spawn:        func() (bridge.Transport, error) { return transport, nil },
		ReadyTimeout: 50 * time.Millisecond,
	})

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeSandboxReadyTimeout, frontclawerr.CodeOf(err))
}

func TestHookTimeoutLeavesWorkerAlive(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	transport := newFakeTransport()
	transport.runWorker(map[string]hookFunc{
		"slowHook": func(env *rpc.Envelope) (any, *rpc.WireError, bool) {
			// Answer late, after the bridge gave up.
			go func() {
				<-release
				reply, _ := rpc.NewResponse(env.ID, "late")
				transport.emit(reply)
			}()
			return nil, nil, false
		},
		"fastHook": func(*rpc.Envelope) (any, *rpc.WireError, bool) {
			return "fast", nil, true
		},
	})

	b := startBridge(t, transport, &recordingHandler{}, func(cfg *bridge.Config) {
		cfg.HookTimeout = 50 * time.Millisecond
	})

	_, err := b.CallHook(context.Background(), "slowHook", nil)
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeHookTimeout, frontclawerr.CodeOf(err))

	// The worker stays alive and serves later hooks.
	result, err := b.CallHook(context.Background(), "fastHook", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"fast"`), result)

	// The late response is dropped, not delivered.
	close(release)
	assert.Eventually(t, func() bool { return b.LateDrops() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHookErrorPreservesCodeAndMessage(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.runWorker(map[string]hookFunc{
		"failing": func(*rpc.Envelope) (any, *rpc.WireError, bool) {
			return nil, &rpc.WireError{Code: "SECURITY_VIOLATION", Message: "blocked", Stack: "secret stack"}, true
		},
		"codeless": func(*rpc.Envelope) (any, *rpc.WireError, bool) {
			return nil, &rpc.WireError{Message: "plain failure"}, true
		},
	})

	b := startBridge(t, transport, &recordingHandler{}, nil)

	_, err := b.CallHook(context.Background(), "failing", nil)
	require.Error(t, err)
	assert.Equal(t, frontclawerr.Code("SECURITY_VIOLATION"), frontclawerr.CodeOf(err))
	assert.Contains(t, err.Error(), "blocked")
	assert.NotContains(t, err.Error(), "secret stack")

	// A codeless plugin error is boxed as HOOK_ERROR.
	_, err = b.CallHook(context.Background(), "codeless", nil)
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeHookError, frontclawerr.CodeOf(err))
	assert.Contains(t, err.Error(), "plain failure")
}

func TestSysCallDispatch(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{result: map[string]any{"found": true, "value": "v"}}
	transport := newFakeTransport()
	transport.runWorker(nil)

	startBridge(t, transport, handler, nil)

	req, err := rpc.NewRequest(rpc.TypeSysCall, "memory.get", map[string]any{"key": "worker-test:k"})
	require.NoError(t, err)
	transport.emit(req)

	reply := <-transport.replies
	assert.Equal(t, req.ID, reply.ID)
	assert.Equal(t, rpc.TypeResponse, reply.Type)

	var result map[string]any
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.Equal(t, "v", result["value"])
}

func TestSysCallErrorCrossesWithoutStack(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{
		err: frontclawerr.New(frontclawerr.CodeSyscallRateLimited, "plugin exceeded the sys-call budget"),
	}
	transport := newFakeTransport()
	transport.runWorker(nil)

	startBridge(t, transport, handler, nil)

	req, err := rpc.NewRequest(rpc.TypeSysCall, "log", map[string]any{"level": "info"})
	require.NoError(t, err)
	transport.emit(req)

	reply := <-transport.replies
	assert.Equal(t, rpc.TypeError, reply.Type)
	require.NotNil(t, reply.Error)
	assert.Equal(t, "SYSCALL_RATE_LIMITED", reply.Error.Code)
	assert.NotEmpty(t, reply.Error.Message)
	assert.Empty(t, reply.Error.Stack)
}

func TestStopCancelsPendingAndIsIdempotent(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.runWorker(map[string]hookFunc{
		"hang": func(*rpc.Envelope) (any, *rpc.WireError, bool) { return nil, nil, false },
		// onUnload also hangs so Stop exercises its best-effort path.
		"onUnload": func(*rpc.Envelope) (any, *rpc.WireError, bool) { return nil, nil, false },
	})

	b := startBridge(t, transport, &recordingHandler{}, func(cfg *bridge.Config) {
		cfg.HookTimeout = 100 * time.Millisecond
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := b.CallHook(context.Background(), "hang", nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	b.Stop(context.Background())
	b.Stop(context.Background()) // idempotent

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, []frontclawerr.Code{frontclawerr.CodeWorkerStopped, frontclawerr.CodeHookTimeout},
		frontclawerr.CodeOf(err))

	// Hooks after stop fail fast.
	_, err = b.CallHook(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeWorkerStopped, frontclawerr.CodeOf(err))
}
