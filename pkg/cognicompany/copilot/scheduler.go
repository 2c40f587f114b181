package copilot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const refreshTimeout = 30 * time.Second

// initScheduler registers the maintenance jobs and starts the scheduler.
// Empty schedules disable their job.
func (a *Assistant) initScheduler() error {
	c := cron.New()

	if spec := a.config.Janitor.MediaSweep; spec != "" && a.config.Janitor.MediaMaxAge > 0 {
		if _, err := c.AddFunc(spec, func() { a.janitor.Sweep() }); err != nil {
			return fmt.Errorf("scheduling media sweep %q: %w", spec, err)
		}
	}

	if spec := a.config.Janitor.PersonaRefresh; spec != "" {
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(a.ctx, refreshTimeout)
			defer cancel()
			if err := a.personas.Refresh(ctx); err != nil {
				a.logger.Warn("persona refresh failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling persona refresh %q: %w", spec, err)
		}
	}

	a.scheduler = c
	c.Start()
	a.logger.Info("scheduler started", "jobs", len(c.Entries()))
	return nil
}

// stopScheduler stops the scheduler and waits for running jobs.
func (a *Assistant) stopScheduler() {
	if a.scheduler == nil {
		return
	}
	<-a.scheduler.Stop().Done()
	a.scheduler = nil
}
