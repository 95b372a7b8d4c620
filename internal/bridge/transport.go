// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package bridge

import (
	"bufio"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/frontclaw/frontclaw/internal/rpc"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Transport moves envelopes to and from one sandbox. Send is safe for
// concurrent use; Recv is called only from the bridge's read loop.
type Transport interface {
	Send(env *rpc.Envelope) error
	Recv() (*rpc.Envelope, error)
	Close() error
}

// procTransport frames envelopes over a child process's stdin/stdout.
type procTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// SpawnProcess starts argv as the sandbox worker and connects the frame
// codec to its pipes. Stderr is drained to the host logger.
func SpawnProcess(argv []string, env []string, logger *slog.Logger) (Transport, error) {
	if len(argv) == 0 {
		return nil, frontclawerr.New(frontclawerr.CodeInvalidInput, "empty sandbox command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "opening sandbox stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "opening sandbox stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "opening sandbox stderr")
	}

	if err := cmd.Start(); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "starting sandbox process")
	}

	go drainStderr(stderr, logger)

	return &procTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

func drainStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("sandbox stderr", "line", scanner.Text())
	}
}

func (t *procTransport) Send(env *rpc.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return rpc.WriteFrame(t.stdin, env)
}

func (t *procTransport) Recv() (*rpc.Envelope, error) {
	return rpc.ReadFrame(t.stdout)
}

// Close terminates the worker. Cancellation is strictly
// terminate-the-process: the child gets no grace period beyond the
// onUnload hook the bridge already attempted.
func (t *procTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	_ = t.cmd.Wait()
	return nil
}
