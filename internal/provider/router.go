// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package provider

import (
	"context"
	"strings"
	"sync"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Router resolves "provider/model" references to a registered provider.
type Router interface {
	Route(ctx context.Context, modelRef string) (Provider, string, error)
	RegisterProvider(name string, p Provider) error
	Close() error
}

// Registry is the default Router implementation.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultModel string
}

// NewRegistry creates a Registry. defaultModel is used when a request
// names no model ("" or "default").
func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		providers:    make(map[string]Provider),
		defaultModel: defaultModel,
	}
}

func (r *Registry) RegisterProvider(name string, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Route resolves modelRef ("provider/model", "" and "default" fall back to
// the configured default) and returns the provider plus the bare model id.
func (r *Registry) Route(_ context.Context, modelRef string) (Provider, string, error) {
	if modelRef == "" || modelRef == "default" {
		modelRef = r.defaultModel
	}

	providerName, model, ok := strings.Cut(modelRef, "/")
	if !ok || providerName == "" || model == "" {
		return nil, "", frontclawerr.Errorf(frontclawerr.CodeInvalidInput,
			"model reference %q is not provider/model", modelRef)
	}

	r.mu.RLock()
	p, exists := r.providers[providerName]
	r.mu.RUnlock()
	if !exists {
		return nil, "", frontclawerr.Errorf(frontclawerr.CodeNotFound,
			"provider %q not configured", providerName)
	}
	return p, model, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.providers = make(map[string]Provider)
	if len(errs) > 0 {
		return frontclawerr.Join(errs...)
	}
	return nil
}
