package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodeflow/internal/app"
	"github.com/vk/nodeflow/internal/dispatch"
)

func frame(f float64) *float64 { return &f }

func TestParse(t *testing.T) {
	t.Parallel()

	defaults := func(path string) *app.Config {
		return &app.Config{
			ScriptPath: path,
			Dispatcher: "local",
			FramesMode: dispatch.CurrentFrame,
			Workers:    4,
			LogLevel:   "info",
			LogFormat:  "json",
		}
	}

	testCases := []struct {
		name           string
		args           []string
		expectExit     bool
		expectErr      string
		expectedConfig *app.Config
		checkOutput    func(t *testing.T, output string)
	}{
		{
			name: "Happy Path with all flags",
			args: []string{
				"-script", "/test/render.hcl",
				"--nodes=write, upload",
				"--frames-mode=custom",
				"--frame-range=1-10x2",
				"--frame=3",
				"--job-name=nightly",
				"--job-dir=/jobs",
				"--workers=8",
				"--background",
				"--log-level=debug",
				"--log-format=text",
				"--healthcheck-port=8080",
				"--monitor-url=http://localhost:3000/socket.io/",
				"--cache-size=64",
				"--env-file=.env",
			},
			expectedConfig: &app.Config{
				ScriptPath:      "/test/render.hcl",
				Nodes:           []string{"write", "upload"},
				EnvFile:         ".env",
				Dispatcher:      "local",
				FramesMode:      dispatch.CustomRange,
				FrameRange:      "1-10x2",
				Frame:           frame(3),
				JobName:         "nightly",
				JobsDirectory:   "/jobs",
				Workers:         8,
				Background:      true,
				LogFormat:       "text",
				LogLevel:        "debug",
				HealthcheckPort: 8080,
				MonitorURL:      "http://localhost:3000/socket.io/",
				CacheSize:       64,
			},
		},
		{
			name:           "Shorthand flag and defaults",
			args:           []string{"-s", "/short/path"},
			expectedConfig: defaults("/short/path"),
		},
		{
			name:           "Positional argument for path",
			args:           []string{"/positional/path"},
			expectedConfig: defaults("/positional/path"),
		},
		{
			name: "Substituted frame range is checked at dispatch time",
			args: []string{"--frames-mode=custom", "--frame-range=${RANGE}", "/p"},
			expectedConfig: func() *app.Config {
				c := defaults("/p")
				c.FramesMode = dispatch.CustomRange
				c.FrameRange = "${RANGE}"
				return c
			}(),
		},
		{
			name:       "Help flag triggers clean exit",
			args:       []string{"-h"},
			expectExit: true,
			checkOutput: func(t *testing.T, output string) {
				require.True(t, strings.Contains(output, "Usage:"), "Expected help text to be printed")
			},
		},
		{
			name:       "No path triggers clean exit with usage",
			args:       []string{},
			expectExit: true,
			checkOutput: func(t *testing.T, output string) {
				require.True(t, strings.Contains(output, "SCRIPT_PATH"), "Expected help text to be printed")
			},
		},
		{
			name:      "Invalid log level returns an error",
			args:      []string{"--log-level=foo", "/path"},
			expectErr: "invalid log-level",
		},
		{
			name:      "Invalid log format returns an error",
			args:      []string{"--log-format=yaml", "/path"},
			expectErr: "invalid log-format",
		},
		{
			name:      "Invalid frames mode returns an error",
			args:      []string{"--frames-mode=some", "/path"},
			expectErr: "invalid frames-mode",
		},
		{
			name:      "Invalid frame range returns an error",
			args:      []string{"--frames-mode=custom", "--frame-range=5-1x0", "/path"},
			expectErr: "invalid frame-range",
		},
		{
			name:      "Custom mode needs a range",
			args:      []string{"--frames-mode=custom", "/path"},
			expectErr: "frame range is required",
		},
		{
			name:      "Invalid frame returns an error",
			args:      []string{"--frame=first", "/path"},
			expectErr: "invalid frame 'first'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := &bytes.Buffer{}
			config, shouldExit, err := Parse(tc.args, out)

			if tc.expectErr != "" {
				require.Error(t, err)
				exitErr, isExitError := err.(*ExitError)
				require.True(t, isExitError, "Expected error to be of type ExitError")
				require.Equal(t, 2, exitErr.Code)
				require.Contains(t, exitErr.Message, tc.expectErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectExit, shouldExit)

			if tc.expectedConfig != nil {
				if diff := cmp.Diff(tc.expectedConfig, config); diff != "" {
					t.Errorf("Config mismatch (-want +got):\n%s", diff)
				}
			}
			if tc.checkOutput != nil {
				tc.checkOutput(t, out.String())
			}
		})
	}
}
