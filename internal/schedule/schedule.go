// Package schedule changes the panel brightness at fixed times of day.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"unicornhat/internal/config"
	appLog "unicornhat/internal/log"
)

// Dimmer is the part of the panel the schedule drives.
type Dimmer interface {
	SetBrightness(v float64) error
}

// Scheduler owns a cron runner with one job per schedule entry.
type Scheduler struct {
	cron *cron.Cron
}

// New registers every entry against target. Times are evaluated in loc.
func New(loc *time.Location, entries []config.ScheduleEntry, target Dimmer) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	for i, e := range entries {
		if e.Brightness < 0 || e.Brightness > 1 {
			return nil, fmt.Errorf("schedule: entry %d: brightness %v outside [0, 1]", i, e.Brightness)
		}
		level := e.Brightness
		spec := e.Cron
		if _, err := c.AddFunc(spec, func() {
			if err := target.SetBrightness(level); err != nil {
				appLog.Error("scheduled brightness change failed", err, "cron", spec, "brightness", level)
				return
			}
			appLog.Info("scheduled brightness change", "cron", spec, "brightness", level)
		}); err != nil {
			return nil, fmt.Errorf("schedule: entry %d (%q): %w", i, spec, err)
		}
	}
	return &Scheduler{cron: c}, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// lookback is how far Current searches for past activations. A week covers
// daily and weekly entries.
const lookback = 7 * 24 * time.Hour

// Current returns the brightness of the entry that fired most recently
// within the last week, so the daemon can start at the level the schedule
// implies rather than waiting for the next tick. ok is false when no entry
// fired in that window.
func Current(loc *time.Location, entries []config.ScheduleEntry, now time.Time) (level float64, ok bool) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	var best time.Time
	for _, e := range entries {
		sched, err := cron.ParseStandard(e.Cron)
		if err != nil {
			continue
		}
		// Walk forward from the start of the window to the last activation
		// before now.
		var last time.Time
		for t := sched.Next(now.Add(-lookback)); !t.IsZero() && !t.After(now); t = sched.Next(t) {
			last = t
		}
		if !last.IsZero() && (best.IsZero() || last.After(best)) {
			best = last
			level = e.Brightness
			ok = true
		}
	}
	return level, ok
}
