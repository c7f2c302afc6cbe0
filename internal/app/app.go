package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/dispatch"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/localexecutor"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/session"
	"github.com/vk/nodeflow/internal/task"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx         context.Context
	outW        io.Writer
	logger      *slog.Logger
	config      *Config
	types       *registry.Registry
	dispatchers *dispatch.Registry
	local       *localexecutor.Executor
	session     *session.Session
	httpServer  *http.Server
}

// NewApp builds an App with its own logger and registries. Node types come
// from modules, or from the core modules when none are given. An invalid
// registry is a programming error and panics.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	types := registry.New()
	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	for _, mod := range modules {
		mod.Register(types)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	local := localexecutor.New(localexecutor.Options{Workers: cfg.Workers, Background: cfg.Background})
	dispatchers := dispatch.NewRegistry()
	dispatchers.Register(local)
	types.OnNodeCreated(func(ctx context.Context, n *graph.Node) error {
		if task.IsTaskNode(n) {
			return dispatchers.SetupPlugs(ctx, n)
		}
		return nil
	})

	if err := types.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.", "types", types.TypeNames())

	sess, err := session.New(types, session.Options{CacheSize: cfg.CacheSize})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &App{
		ctx:         ctx,
		outW:        outW,
		logger:      logger,
		config:      cfg,
		types:       types,
		dispatchers: dispatchers,
		local:       local,
		session:     sess,
	}, nil
}

// Registry returns the node type registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.types
}

// Dispatchers returns the dispatcher registry.
func (a *App) Dispatchers() *dispatch.Registry {
	return a.dispatchers
}

// Session returns the session scripts are loaded into.
func (a *App) Session() *session.Session {
	return a.session
}

// Close releases the session.
func (a *App) Close() {
	a.session.Close()
}
