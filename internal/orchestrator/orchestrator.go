// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package orchestrator holds the loaded plugins and their bridges, and runs
// the capability-filtered pipelines each chat request flows through.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/frontclaw/frontclaw/internal/metrics"
	"github.com/frontclaw/frontclaw/internal/permission"
	"github.com/frontclaw/frontclaw/internal/plugin"
)

// Worker is the bridge surface the orchestrator drives. bridge.Bridge
// implements it; tests substitute in-process fakes.
type Worker interface {
	Start(ctx context.Context) error
	CallHook(ctx context.Context, method string, payload any) (json.RawMessage, error)
	Stop(ctx context.Context)
}

// Config holds the orchestrator's dependencies.
type Config struct {
	Plugins []*plugin.Loaded

	// NewWorker builds the bridge for one plugin.
	NewWorker func(p *plugin.Loaded) (Worker, error)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Orchestrator owns the ordered plugin list and one bridge per plugin.
type Orchestrator struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	plugins []*plugin.Loaded // priority order; only successfully started plugins
	workers map[string]Worker
	guards  map[string]*permission.Guard
}

// New builds an Orchestrator; Start launches the sandboxes.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop()
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		workers: make(map[string]Worker),
		guards:  make(map[string]*permission.Guard),
	}
}

// Start spawns a bridge per plugin in parallel. A plugin whose sandbox
// fails to come up is not registered; startup proceeds without it.
func (o *Orchestrator) Start(ctx context.Context) error {
	type started struct {
		p *plugin.Loaded
		w Worker
	}

	results := make([]*started, len(o.cfg.Plugins))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range o.cfg.Plugins {
		g.Go(func() error {
			worker, err := o.cfg.NewWorker(p)
			if err != nil {
				o.logger.Warn("plugin not registered: bridge construction failed",
					"plugin", p.Manifest.ID, "error", err)
				return nil
			}
			if err := worker.Start(gctx); err != nil {
				o.logger.Warn("plugin not registered: sandbox start failed",
					"plugin", p.Manifest.ID, "error", err)
				return nil
			}
			results[i] = &started{p: p, w: worker}
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, res := range results {
		if res == nil {
			continue
		}
		o.plugins = append(o.plugins, res.p)
		o.workers[res.p.Manifest.ID] = res.w
		o.guards[res.p.Manifest.ID] = permission.NewGuard(res.p.Manifest.ID, res.p.Manifest.Permissions)
	}

	// Pipelines iterate in priority order regardless of registration order.
	sort.Slice(o.plugins, func(i, j int) bool {
		pi, pj := o.plugins[i].Manifest.EffectivePriority(), o.plugins[j].Manifest.EffectivePriority()
		if pi != pj {
			return pi < pj
		}
		return o.plugins[i].Manifest.ID < o.plugins[j].Manifest.ID
	})

	o.logger.Info("orchestrator started", "plugins", len(o.plugins))
	return nil
}

// Stop shuts all bridges down in parallel. Pending hook calls across all
// bridges fail with WORKER_STOPPED.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	workers := o.workers
	o.workers = make(map[string]Worker)
	o.plugins = nil
	o.guards = make(map[string]*permission.Guard)
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop(ctx)
		}()
	}
	wg.Wait()
}

// Plugins returns the registered plugins in priority order.
func (o *Orchestrator) Plugins() []*plugin.Loaded {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*plugin.Loaded(nil), o.plugins...)
}

// worker returns the bridge for a plugin id.
func (o *Orchestrator) worker(pluginID string) (Worker, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workers[pluginID]
	return w, ok
}

// guard returns the cached permission guard for a plugin id.
func (o *Orchestrator) guard(pluginID string) (*permission.Guard, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	g, ok := o.guards[pluginID]
	return g, ok
}

// manifest returns the loaded record for a plugin id.
func (o *Orchestrator) manifest(pluginID string) (*plugin.Loaded, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, p := range o.plugins {
		if p.Manifest.ID == pluginID {
			return p, true
		}
	}
	return nil, false
}
