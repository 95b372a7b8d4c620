// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package rpc

import (
	"encoding/binary"
	"encoding/json"
	"io"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// MaxFrameSize bounds a single envelope on the wire. A sandbox that sends a
// larger frame is considered broken and its stream is failed.
const MaxFrameSize = 8 << 20

// WriteFrame writes env as a 4-byte big-endian length prefix followed by the
// JSON body.
func WriteFrame(w io.Writer, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "marshalling envelope")
	}
	if len(body) > MaxFrameSize {
		return frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "envelope exceeds frame limit: %d bytes", len(body))
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "writing frame prefix")
	}
	if _, err := w.Write(body); err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "writing frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope. io.EOF is returned unchanged
// so callers can detect an orderly stream close.
func ReadFrame(r io.Reader) (*Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "reading frame prefix")
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 || size > MaxFrameSize {
		return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "invalid frame size %d", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "reading frame body")
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding envelope")
	}
	return &env, nil
}
