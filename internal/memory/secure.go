// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package memory

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

const (
	envelopeVersion = 1
	ivSize          = 12
	tagSize         = 16
	keySize         = 32
)

// envelope is the stored wire form of an encrypted value.
type envelope struct {
	V    int    `json:"v"`
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	CT   string `json:"ct"`
	HMAC string `json:"hmac"`
}

// Secure wraps any backend with an AES-256-GCM + HMAC-SHA256 envelope. On
// read the HMAC over (iv ‖ tag ‖ ciphertext) is recomputed and compared in
// constant time; mismatch fails with SIGNATURE_MISMATCH. Listing and TTL
// pass through untouched.
type Secure struct {
	inner   Service
	aead    cipher.AEAD
	signKey []byte
}

// NewSecure builds the envelope over inner. encKey must be 32 bytes;
// signKey may be nil to sign with the encryption key.
func NewSecure(inner Service, encKey, signKey []byte) (*Secure, error) {
	if len(encKey) != keySize {
		return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "encryption key must be %d bytes, got %d", keySize, len(encKey))
	}
	if signKey == nil {
		signKey = encKey
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "creating cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "creating gcm")
	}

	return &Secure{inner: inner, aead: aead, signKey: signKey}, nil
}

func (s *Secure) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "serializing memory value")
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "generating iv")
	}

	sealed := s.aead.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	env := envelope{
		V:    envelopeVersion,
		IV:   base64.StdEncoding.EncodeToString(iv),
		Tag:  base64.StdEncoding.EncodeToString(tag),
		CT:   base64.StdEncoding.EncodeToString(ct),
		HMAC: base64.StdEncoding.EncodeToString(s.sign(iv, tag, ct)),
	}

	wrapped, err := json.Marshal(env)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "serializing envelope")
	}
	return s.inner.Set(ctx, key, string(wrapped), ttl)
}

func (s *Secure) Get(ctx context.Context, key string) (string, bool, error) {
	stored, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		return "", false, frontclawerr.Wrap(err, frontclawerr.CodeSignatureMismatch, "memory value is not a valid envelope")
	}
	if env.V != envelopeVersion {
		return "", false, frontclawerr.Errorf(frontclawerr.CodeSignatureMismatch, "unsupported envelope version %d", env.V)
	}

	iv, ivErr := base64.StdEncoding.DecodeString(env.IV)
	tag, tagErr := base64.StdEncoding.DecodeString(env.Tag)
	ct, ctErr := base64.StdEncoding.DecodeString(env.CT)
	mac, macErr := base64.StdEncoding.DecodeString(env.HMAC)
	if ivErr != nil || tagErr != nil || ctErr != nil || macErr != nil {
		return "", false, frontclawerr.New(frontclawerr.CodeSignatureMismatch, "corrupt envelope encoding")
	}

	if !hmac.Equal(mac, s.sign(iv, tag, ct)) {
		return "", false, frontclawerr.New(frontclawerr.CodeSignatureMismatch, "memory envelope signature mismatch")
	}

	plaintext, err := s.aead.Open(nil, iv, append(append([]byte{}, ct...), tag...), nil)
	if err != nil {
		return "", false, frontclawerr.Wrap(err, frontclawerr.CodeSignatureMismatch, "memory envelope decryption failed")
	}

	var value string
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return "", false, frontclawerr.Wrap(err, frontclawerr.CodeSignatureMismatch, "deserializing memory value")
	}
	return value, true, nil
}

func (s *Secure) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *Secure) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	return s.inner.List(ctx, prefix, limit)
}

func (s *Secure) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	return s.inner.TTL(ctx, key)
}

// sign computes HMAC-SHA256 over iv ‖ tag ‖ ciphertext.
func (s *Secure) sign(iv, tag, ct []byte) []byte {
	mac := hmac.New(sha256.New, s.signKey)
	mac.Write(iv)
	mac.Write(tag)
	mac.Write(ct)
	return mac.Sum(nil)
}

// Compile-time interface check.
var _ Service = (*Secure)(nil)
