// Package scheduler runs periodic maintenance for mediaxcode.
// The janitor removes scratch entries orphaned by killed external tools.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/mediaxcode/internal/startup"
)

// Janitor sweeps a scratch directory at startup and on a cron schedule.
type Janitor struct {
	mu sync.Mutex

	dir      string
	maxAge   time.Duration
	schedule string

	logger *slog.Logger

	// cron parser for validating/parsing cron expressions
	parser cron.Parser
	cron   *cron.Cron
	entry  cron.EntryID

	removed int
}

// NewJanitor creates a janitor for dir. Entries older than maxAge are
// removed. An empty schedule sweeps once at Start only.
func NewJanitor(dir string, maxAge time.Duration, schedule string) *Janitor {
	if maxAge <= 0 {
		maxAge = startup.DefaultCleanupAge
	}
	return &Janitor{
		dir:      dir,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   slog.Default(),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// WithLogger sets a custom logger.
func (j *Janitor) WithLogger(logger *slog.Logger) *Janitor {
	j.logger = logger
	return j
}

// Start sweeps immediately and then schedules recurring sweeps. The
// schedule stops when ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return fmt.Errorf("janitor already started")
	}

	var schedule cron.Schedule
	if j.schedule != "" {
		var err error
		if schedule, err = j.parser.Parse(j.schedule); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", j.schedule, err)
		}
	}

	j.sweepLocked()

	if schedule == nil {
		j.logger.Info("janitor ran startup sweep only", slog.String("dir", j.dir))
		return nil
	}

	j.cron = cron.New(cron.WithParser(j.parser))
	j.entry = j.cron.Schedule(schedule, cron.FuncJob(j.Sweep))
	j.cron.Start()

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	j.logger.Info("janitor started",
		slog.String("dir", j.dir),
		slog.String("schedule", j.schedule),
		slog.Duration("max_age", j.maxAge),
		slog.Time("next_run", schedule.Next(time.Now())))

	return nil
}

// Stop halts scheduled sweeps and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Sweep removes orphaned entries now.
func (j *Janitor) Sweep() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweepLocked()
}

func (j *Janitor) sweepLocked() {
	n, err := startup.CleanupOrphanedScratch(j.logger, j.dir, j.maxAge)
	if err != nil {
		j.logger.Error("scratch sweep failed", slog.String("dir", j.dir), slog.Any("error", err))
		return
	}
	j.removed += n
	if n > 0 {
		j.logger.Info("scratch sweep finished", slog.Int("removed", n))
	}
}

// Removed returns the total number of entries removed so far.
func (j *Janitor) Removed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.removed
}

// NextRun returns the next scheduled sweep, or false when none is scheduled.
func (j *Janitor) NextRun() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		return time.Time{}, false
	}
	return j.cron.Entry(j.entry).Next, true
}

// ValidateCron validates a 5-field cron expression.
func ValidateCron(expr string) error {
	_, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(expr)
	return err
}
