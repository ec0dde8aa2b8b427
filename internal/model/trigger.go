// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the trigger variants that decide what starts a job.
package model

import (
	"fmt"
	"time"

	"github.com/specialistvlad/gridci/internal/config"
)

// TriggerKind names a trigger variant.
type TriggerKind string

const (
	TriggerNone     TriggerKind = "none"
	TriggerPoll     TriggerKind = "poll"
	TriggerUpstream TriggerKind = "upstream"
)

// Trigger is implemented by NoTrigger, PollTrigger and UpstreamTrigger.
type Trigger interface {
	Kind() TriggerKind
	isTrigger()
}

// NoTrigger means the job only runs as part of an explicit pipeline run.
type NoTrigger struct{}

// PollTrigger polls the job's SCM every Interval and starts a run on change.
type PollTrigger struct {
	Interval time.Duration
}

// UpstreamTrigger starts the job when the named job completes successfully.
type UpstreamTrigger struct {
	Job string
}

func (NoTrigger) Kind() TriggerKind       { return TriggerNone }
func (PollTrigger) Kind() TriggerKind     { return TriggerPoll }
func (UpstreamTrigger) Kind() TriggerKind { return TriggerUpstream }

func (NoTrigger) isTrigger()       {}
func (PollTrigger) isTrigger()     {}
func (UpstreamTrigger) isTrigger() {}

// NewTrigger validates a raw trigger block.
func NewTrigger(cfg *config.Trigger) (Trigger, error) {
	switch TriggerKind(cfg.Kind) {
	case TriggerNone, "":
		return NoTrigger{}, nil
	case TriggerPoll:
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("poll trigger: invalid interval %q: %w", cfg.Interval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("poll trigger: interval must be positive, got %s", cfg.Interval)
		}
		return PollTrigger{Interval: d}, nil
	case TriggerUpstream:
		if cfg.Job == "" {
			return nil, fmt.Errorf("upstream trigger requires a job")
		}
		return UpstreamTrigger{Job: cfg.Job}, nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", cfg.Kind)
	}
}
