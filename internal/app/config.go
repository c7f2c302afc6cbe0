package app

import (
	"errors"
	"fmt"

	"github.com/vk/nodeflow/internal/dispatch"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ScriptPath string   // hcl file or directory of hcl files
	Nodes      []string // task nodes to dispatch; empty means every task node
	EnvFile    string   // optional .env file loaded into session variables

	Dispatcher    string
	FramesMode    dispatch.FramesMode
	FrameRange    string
	Frame         *float64
	JobName       string
	JobsDirectory string
	Workers       int
	Background    bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	MonitorURL      string
	CacheSize       int
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ScriptPath == "" {
		return nil, errors.New("ScriptPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative, got %d", cfg.CacheSize)
	}
	if cfg.FramesMode == dispatch.CustomRange && cfg.FrameRange == "" {
		return nil, errors.New("a frame range is required with the custom frames mode")
	}
	return &cfg, nil
}
