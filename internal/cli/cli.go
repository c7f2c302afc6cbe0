package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/vk/nodeflow/internal/app"
	"github.com/vk/nodeflow/internal/dispatch"
	"github.com/vk/nodeflow/internal/framelist"
	"github.com/vk/nodeflow/internal/localexecutor"
)

// ExitError ends the process with Code after printing Message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// usageExitCode is returned for every invalid invocation.
const usageExitCode = 2

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: usageExitCode, Message: fmt.Sprintf(format, args...)}
}

const usageText = `
nodeflow - dispatches task nodes of a node graph script over a frame range.

Usage:
  nodeflow [options] [SCRIPT_PATH]

Arguments:
  SCRIPT_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// optionalFloat is a float flag that remembers whether it was given.
type optionalFloat struct {
	value *float64
}

func (f *optionalFloat) String() string {
	if f == nil || f.value == nil {
		return ""
	}
	return strconv.FormatFloat(*f.value, 'g', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid frame '%s': must be a number", s)
	}
	f.value = &v
	return nil
}

// options mirrors the command line before validation.
type options struct {
	script, scriptShort string
	nodes               string
	dispatcher          string
	framesMode          string
	frameRange          string
	frame               optionalFloat
	jobName, jobDir     string
	workers             int
	background          bool
	logFormat, logLevel string
	healthPort          int
	monitorURL          string
	cacheSize           int
	envFile             string
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.script, "script", "", "Path to the script file or directory.")
	fs.StringVar(&o.scriptShort, "s", "", "Path to the script file or directory (shorthand).")
	fs.StringVar(&o.nodes, "nodes", "", "Comma separated task nodes to dispatch. Empty dispatches every task node.")
	fs.StringVar(&o.dispatcher, "dispatcher", localexecutor.Name, "Name of the dispatcher to use.")
	fs.StringVar(&o.framesMode, "frames-mode", "current", "Frames to dispatch. Options: 'current', 'script' or 'custom'.")
	fs.StringVar(&o.frameRange, "frame-range", "", "Frame list for the custom frames mode, e.g. '1-10x2,15'.")
	fs.Var(&o.frame, "frame", "Current frame. Defaults to the frame saved in the script.")
	fs.StringVar(&o.jobName, "job-name", "", "Job name. Defaults to the script name.")
	fs.StringVar(&o.jobDir, "job-dir", "", "Directory in which numbered job directories are created.")
	fs.IntVar(&o.workers, "workers", 4, "Number of batches the local dispatcher runs at once.")
	fs.BoolVar(&o.background, "background", false, "Run local jobs in the background.")
	fs.StringVar(&o.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&o.logLevel, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.IntVar(&o.healthPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	fs.StringVar(&o.monitorURL, "monitor-url", "", "Socket.io endpoint receiving dispatch events.")
	fs.IntVar(&o.cacheSize, "cache-size", 0, "Number of computed values kept in memory. 0 uses the default.")
	fs.StringVar(&o.envFile, "env-file", "", "Optional .env file whose values become script variables.")
}

// scriptPath picks -script, then -s, then the first positional argument.
func (o *options) scriptPath(positional []string) string {
	for _, p := range []string{o.script, o.scriptShort} {
		if p != "" {
			return p
		}
	}
	if len(positional) > 0 {
		return positional[0]
	}
	return ""
}

func (o *options) config(path string) (*app.Config, error) {
	logFormat, err := oneOf("log-format", o.logFormat, logFormats)
	if err != nil {
		return nil, err
	}
	logLevel, err := oneOf("log-level", o.logLevel, logLevels)
	if err != nil {
		return nil, err
	}
	framesMode, err := dispatch.ParseFramesMode(o.framesMode)
	if err != nil {
		return nil, usageError("invalid frames-mode: %v", err)
	}
	// Ranges built from variables can only be checked once they are substituted.
	if o.frameRange != "" && !strings.ContainsAny(o.frameRange, "$#~") {
		if _, err := framelist.Parse(o.frameRange); err != nil {
			return nil, usageError("invalid frame-range: %v", err)
		}
	}

	cfg, err := app.NewConfig(app.Config{
		ScriptPath:      path,
		Nodes:           splitList(o.nodes),
		EnvFile:         o.envFile,
		Dispatcher:      o.dispatcher,
		FramesMode:      framesMode,
		FrameRange:      o.frameRange,
		Frame:           o.frame.value,
		JobName:         o.jobName,
		JobsDirectory:   o.jobDir,
		Workers:         o.workers,
		Background:      o.background,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: o.healthPort,
		MonitorURL:      o.monitorURL,
		CacheSize:       o.cacheSize,
	})
	if err != nil {
		return nil, usageError("%v", err)
	}
	return cfg, nil
}

// Parse reads args into a validated Config. The boolean is true when the
// process should exit successfully without running, e.g. after -h.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	fs := flag.NewFlagSet("nodeflow", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, usageText)
		fs.PrintDefaults()
	}

	var opts options
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%v", err)
	}

	path := opts.scriptPath(fs.Args())
	if path == "" {
		fs.Usage()
		return nil, true, nil
	}

	cfg, err := opts.config(path)
	if err != nil {
		return nil, false, err
	}
	slog.Debug("Command line parsed.", "config", cfg)
	return cfg, false, nil
}

func oneOf(flagName, value string, choices []string) (string, error) {
	v := strings.ToLower(value)
	if !slices.Contains(choices, v) {
		return "", usageError("invalid %s: must be one of '%s'", flagName, strings.Join(choices, "', '"))
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
