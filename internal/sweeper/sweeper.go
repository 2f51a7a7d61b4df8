// Package sweeper runs the periodic maintenance tasks (session, token and
// attempt-record expiry, tracker pruning) on a fixed interval for the life
// of the process.
package sweeper

import (
	"context"
	"time"

	"github.com/veloursalon/websec/log"
)

// Task is one named maintenance pass. Reported is the number of entries it
// removed, for the log line.
type Task struct {
	Name string
	Run  func(ctx context.Context) int
}

// Sweeper owns the maintenance ticker. Cancel the context passed to Run
// for a clean shutdown.
type Sweeper struct {
	interval time.Duration
	tasks    []Task
	logger   log.Logger
}

// New creates a sweeper. interval <= 0 selects five minutes.
func New(interval time.Duration, logger log.Logger, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{interval: interval, tasks: tasks, logger: logger}
}

// Run blocks, executing every task once per interval, until ctx is
// cancelled. Callers run it in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info(ctx, "sweeper stopped", nil)
			}
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	for _, task := range s.tasks {
		removed := task.Run(ctx)
		if removed > 0 && s.logger != nil {
			s.logger.Debug(ctx, "sweep pass", map[string]interface{}{
				"task":    task.Name,
				"removed": removed,
			})
		}
	}
}
