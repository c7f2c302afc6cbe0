package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/nodeflow/internal/app"
	"github.com/vk/nodeflow/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Dir       string
}

// RunScripts writes files below a temporary directory, points the app at
// its "scripts" subdirectory and runs it. cfg.ScriptPath and
// cfg.JobsDirectory are filled in when empty. Startup panics are returned
// as errors.
func RunScripts(t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunScriptsWithContext(context.Background(), t, files, cfg, modules...)
}

// RunScriptsWithContext is RunScripts with a caller supplied context.
func RunScriptsWithContext(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "scripts"), 0o755))
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	if cfg.ScriptPath == "" {
		cfg.ScriptPath = filepath.Join(tmpDir, "scripts")
	}
	if cfg.JobsDirectory == "" {
		cfg.JobsDirectory = filepath.Join(tmpDir, "jobs")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	logBuffer := &SafeBuffer{}
	result := &HarnessResult{Dir: tmpDir}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Err = fmt.Errorf("application startup panicked | %v", r)
			}
		}()
		a, err := app.NewApp(logBuffer, &cfg, modules...)
		if err != nil {
			result.Err = err
			return
		}
		t.Cleanup(a.Close)
		result.App = a
		result.Err = a.Run(ctx)
	}()

	if os.Getenv("NODEFLOW_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}
	result.LogOutput = logBuffer.String()
	return result
}
