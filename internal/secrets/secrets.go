// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package secrets resolves the key material for the secure memory envelope.
// Keys come from the environment (hex or base64) or, failing that, from the
// OS keyring.
package secrets

import (
	"encoding/base64"
	"encoding/hex"
	"os"

	"github.com/zalando/go-keyring"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

const (
	// EnvEncryptionKey and EnvSigningKey name the environment variables
	// carrying the 32-byte keys.
	EnvEncryptionKey = "FRONTCLAW_MEMORY_ENCRYPTION_KEY"
	EnvSigningKey    = "FRONTCLAW_MEMORY_SIGNING_KEY"

	keyringService = "frontclaw"
	keyringEncUser = "memory-encryption-key"
	keyringSigUser = "memory-signing-key"

	keySize = 32
)

// EncryptionKey resolves the memory encryption key. Returns (nil, nil) when
// no key is configured anywhere, which disables the secure envelope.
func EncryptionKey() ([]byte, error) {
	return resolve(EnvEncryptionKey, keyringEncUser)
}

// SigningKey resolves the optional separate signing key. (nil, nil) means
// "sign with the encryption key".
func SigningKey() ([]byte, error) {
	return resolve(EnvSigningKey, keyringSigUser)
}

func resolve(envVar, keyringUser string) ([]byte, error) {
	if raw := os.Getenv(envVar); raw != "" {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidInput, "decoding %s", envVar)
		}
		return key, nil
	}

	raw, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		// An absent keyring entry is not an error; the envelope is optional.
		return nil, nil
	}
	key, err := decodeKey(raw)
	if err != nil {
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidInput, "decoding keyring entry %s", keyringUser)
	}
	return key, nil
}

// decodeKey accepts 64 hex characters or base64 for a 32-byte key.
func decodeKey(raw string) ([]byte, error) {
	if key, err := hex.DecodeString(raw); err == nil && len(key) == keySize {
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, frontclawerr.New(frontclawerr.CodeInvalidInput, "key is neither hex nor base64")
	}
	if len(key) != keySize {
		return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "key must be %d bytes, got %d", keySize, len(key))
	}
	return key, nil
}
