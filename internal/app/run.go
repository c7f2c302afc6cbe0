package app

import (
	"context"
	"fmt"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/dispatch"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/monitor"
)

// Run loads the scripts and dispatches the configured nodes.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthCheckServer()
		defer a.closeHealthCheckServer()
	}

	if a.config.MonitorURL != "" {
		m, err := monitor.Connect(ctx, monitor.Config{URL: a.config.MonitorURL})
		if err != nil {
			return fmt.Errorf("failed to connect monitor: %w", err)
		}
		defer m.Close()
		m.Attach(a.dispatchers)
	}

	if err := a.LoadEnvFile(ctx); err != nil {
		return err
	}
	if err := a.LoadScripts(ctx); err != nil {
		return err
	}
	if a.config.Frame != nil {
		a.session.SetFrame(*a.config.Frame)
	}

	nodes, err := a.nodes()
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		a.logger.Warn("No task nodes found in script, execution not required.")
		return nil
	}

	d, err := a.dispatchers.New(a.config.Dispatcher, dispatch.Config{
		JobName:       a.config.JobName,
		JobsDirectory: a.config.JobsDirectory,
		FramesMode:    a.config.FramesMode,
		FrameRange:    a.config.FrameRange,
	})
	if err != nil {
		return err
	}

	a.logger.Info("🚀 Dispatching nodes...", "count", len(nodes), "dispatcher", d.Name())
	if err := d.Dispatch(ctx, a.session, nodes); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	if err := a.local.Pool().WaitForAll(); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.", "jobDirectory", d.JobDirectory())

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) nodes() ([]*graph.Node, error) {
	if len(a.config.Nodes) == 0 {
		return a.session.TaskNodes(), nil
	}
	return a.session.Nodes(a.config.Nodes...)
}
