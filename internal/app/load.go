package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/fsutil"
)

// LoadEnvFile reads the configured .env file into session variables. A
// missing setting is not an error; a missing file is.
func (a *App) LoadEnvFile(ctx context.Context) error {
	if a.config.EnvFile == "" {
		return nil
	}
	vars, err := godotenv.Read(a.config.EnvFile)
	if err != nil {
		return fmt.Errorf("failed to read env file '%s': %w", a.config.EnvFile, err)
	}
	a.session.SetVariables(vars)
	ctxlog.FromContext(ctx).Debug("Env file loaded.", "path", a.config.EnvFile, "variables", len(vars))
	return nil
}

// LoadScripts loads the script file, or every script in the directory,
// named by the configuration. The jobs directory is never searched, so
// script copies saved by earlier dispatches are not loaded again.
func (a *App) LoadScripts(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading scripts...", "path", a.config.ScriptPath)

	files, err := fsutil.FindScripts(a.config.ScriptPath, a.config.JobsDirectory)
	if err != nil {
		return fmt.Errorf("failed to find scripts: %w", err)
	}
	if err := a.session.Load(ctx, files...); err != nil {
		return fmt.Errorf("failed to load scripts: %w", err)
	}
	logger.Info("Scripts loaded successfully.", "files", len(files), "taskNodes", len(a.session.TaskNodes()))
	return nil
}
