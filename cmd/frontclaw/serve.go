// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/frontclaw/frontclaw/internal/bridge"
	"github.com/frontclaw/frontclaw/internal/chat"
	"github.com/frontclaw/frontclaw/internal/config"
	"github.com/frontclaw/frontclaw/internal/memory"
	"github.com/frontclaw/frontclaw/internal/metrics"
	"github.com/frontclaw/frontclaw/internal/orchestrator"
	"github.com/frontclaw/frontclaw/internal/plugin"
	"github.com/frontclaw/frontclaw/internal/provider"
	"github.com/frontclaw/frontclaw/internal/provider/anthropic"
	"github.com/frontclaw/frontclaw/internal/provider/openai"
	"github.com/frontclaw/frontclaw/internal/secrets"
	"github.com/frontclaw/frontclaw/internal/server"
	"github.com/frontclaw/frontclaw/internal/store"
	"github.com/frontclaw/frontclaw/internal/store/sqlite"
	fcsyscall "github.com/frontclaw/frontclaw/internal/syscall"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the frontclaw backend",
		Long:  "Load configuration, discover plugins, start their sandboxes, and serve the HTTP API.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Persistence.
	var (
		chatStore chat.Store
		rows      store.RowStore
		closeDB   func()
	)
	switch cfg.Storage.Backend {
	case "memory":
		mem := store.NewMemStore()
		chatStore = struct {
			store.ConversationStore
			store.MessageStore
		}{mem, mem}
		rows = store.NewMemRows()
		closeDB = func() {}
	default:
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		chatStore = db
		rows = db
		closeDB = func() { _ = db.Close() }
	}
	defer closeDB()

	// Plugin memory backend, optionally wrapped in the secure envelope.
	memService, err := buildMemory(cfg)
	if err != nil {
		return err
	}

	// Sys-call handler; the skill invoker is wired after the orchestrator
	// exists.
	handler := fcsyscall.NewHandler(fcsyscall.Config{
		Rows:    rows,
		Memory:  memService,
		Logger:  logger,
		Metrics: m,
	})

	// Plugin discovery.
	overrides, err := config.LoadPluginOverrides(cfg)
	if err != nil {
		return err
	}
	loaded, err := plugin.NewLoader(cfg.Plugins.Dir, overrides, cfg.Plugins.Deny, logger).Load()
	if err != nil {
		return err
	}
	logger.Info("plugins discovered", "count", len(loaded))

	orch := orchestrator.New(orchestrator.Config{
		Plugins: loaded,
		NewWorker: func(p *plugin.Loaded) (orchestrator.Worker, error) {
			return bridge.New(bridge.Config{
				Plugin:         p,
				Handler:        handler,
				Command:        cfg.Sandbox.Command,
				HookTimeout:    cfg.Sandbox.HookTimeout,
				SyscallTimeout: cfg.Sandbox.SyscallTimeout,
				ReadyTimeout:   cfg.Sandbox.ReadyTimeout,
				Logger:         logger,
				Metrics:        m,
				Development:    cfg.Sandbox.Development,
			}), nil
		},
		Logger:  logger,
		Metrics: m,
	})
	handler.SetSkillInvoker(orch)

	// LLM providers.
	router, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = router.Close() }()

	driver := chat.New(chat.Config{
		Orchestrator: orch,
		Router:       router,
		Store:        chatStore,
		Logger:       logger,
		Metrics:      m,
	})

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, server.Deps{
		Driver:        driver,
		Orchestrator:  orch,
		Conversations: chatStore,
		Messages:      chatStore,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop(context.Background())

	return srv.Start(ctx)
}

// buildMemory selects the memory backend and applies the secure envelope
// when an encryption key is configured.
func buildMemory(cfg *config.Config) (memory.Service, error) {
	var backend memory.Service
	switch cfg.Memory.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Memory.RedisAddr})
		backend = memory.NewRedis(client)
	default:
		backend = memory.NewInProc()
	}

	encKey, err := secrets.EncryptionKey()
	if err != nil {
		return nil, err
	}
	if encKey == nil {
		return backend, nil
	}

	signKey, err := secrets.SigningKey()
	if err != nil {
		return nil, err
	}
	return memory.NewSecure(backend, encKey, signKey)
}

// buildProviders registers the configured LLM adapters on a router.
func buildProviders(cfg *config.Config) (provider.Router, error) {
	router := provider.NewRegistry(cfg.Models.Default)

	for name, pc := range cfg.Providers {
		switch name {
		case "anthropic":
			p, err := anthropic.New(anthropic.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
			if err != nil {
				return nil, err
			}
			if err := router.RegisterProvider(name, p); err != nil {
				return nil, err
			}
		case "openai":
			p, err := openai.New(openai.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
			if err != nil {
				return nil, err
			}
			if err := router.RegisterProvider(name, p); err != nil {
				return nil, err
			}
		default:
			return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput,
				"unknown provider %q in config", name)
		}
	}

	return router, nil
}
