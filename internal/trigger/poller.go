// Package trigger starts pipeline runs when a job's SCM revision changes.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/gridci/internal/ctxlog"
)

// Poller probes a revision every Interval and fires when it changes. The
// first successful probe always fires.
type Poller struct {
	Interval time.Duration
	// Probe returns the current revision.
	Probe func(ctx context.Context) (string, error)
	// Fire starts a run. Its error is logged and does not stop the poller.
	Fire func(ctx context.Context, revision string) error
}

// Run polls until ctx is done and returns ctx.Err(). A probe error skips the
// tick; the last seen revision is kept.
func (p *Poller) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return errors.New("trigger: interval must be positive")
	}
	if p.Probe == nil || p.Fire == nil {
		return errors.New("trigger: probe and fire are required")
	}
	logger := ctxlog.FromContext(ctx)

	var (
		last string
		seen bool
	)
	tick := func() {
		rev, err := p.Probe(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Revision probe failed.", "error", err)
			}
			return
		}
		if seen && rev == last {
			logger.Debug("Revision unchanged.", "revision", rev)
			return
		}
		logger.Info("🔔 New revision detected.", "revision", rev, "previous", last)
		last, seen = rev, true
		if err := p.Fire(ctx, rev); err != nil {
			logger.Error("Triggered run failed.", "revision", rev, "error", err)
		}
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}
