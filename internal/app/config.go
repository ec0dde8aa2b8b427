package app

import (
	"errors"
	"fmt"
)

// Command selects what an App does after loading definitions.
type Command string

const (
	CommandRun      Command = "run"
	CommandValidate Command = "validate"
	CommandPromote  Command = "promote"
	CommandWatch    Command = "watch"
)

// Commands lists the valid commands, default first.
var Commands = []Command{CommandRun, CommandValidate, CommandPromote, CommandWatch}

// PromoteOptions are the arguments of the promote command.
type PromoteOptions struct {
	Job         string
	BuildNumber int
	// Repository and Pattern default to the selected pipeline's promotion.
	Repository string
	Pattern    string
}

// Config holds the invocation options of one App.
type Config struct {
	Command Command
	// Paths are definition files or directories.
	Paths []string
	// Pipeline selects a pipeline; optional when exactly one is defined.
	Pipeline string
	// Namespace overrides the namespace setting when non-empty.
	Namespace string
	// SettingsFile is an optional viper settings file.
	SettingsFile string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// Workers overrides the max_parallel setting when positive.
	Workers int
	// Trace enables the stdout span exporter.
	Trace bool

	Promote PromoteOptions
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Command == "" {
		cfg.Command = CommandRun
	}
	known := false
	for _, c := range Commands {
		known = known || c == cfg.Command
	}
	if !known {
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	if len(cfg.Paths) == 0 {
		return nil, errors.New("at least one definition path is required")
	}
	if cfg.Workers < 0 {
		return nil, errors.New("workers cannot be negative")
	}
	if cfg.Command == CommandPromote {
		if cfg.Promote.Job == "" {
			return nil, errors.New("promote requires -job")
		}
		if cfg.Promote.BuildNumber <= 0 {
			return nil, errors.New("promote requires a positive -build")
		}
	}
	return &cfg, nil
}
