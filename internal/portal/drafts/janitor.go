package drafts

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/carportal/carportal/internal/portal/observability"
)

// Sweeper is implemented by stores that need periodic expiry.
type Sweeper interface {
	Sweep() int
}

// Janitor runs Sweep on a cron schedule.
type Janitor struct {
	store     Sweeper
	logger    *zap.Logger
	scheduler *cron.Cron
}

// NewJanitor builds a janitor for store. It does nothing until Start.
func NewJanitor(store Sweeper, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		store:     store,
		logger:    logger.Named("drafts.janitor"),
		scheduler: cron.New(cron.WithLogger(observability.NewCronLogger(logger.Named("cron")))),
	}
}

// Start schedules the sweep. An empty schedule disables it.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		j.logger.Warn("draft sweep schedule not set; expired drafts stay in memory")
		return nil
	}
	if _, err := j.scheduler.AddFunc(schedule, j.Run); err != nil {
		return err
	}
	j.logger.Info("draft sweep scheduled", zap.String("schedule", schedule))
	j.scheduler.Start()
	return nil
}

// Run performs one sweep.
func (j *Janitor) Run() {
	removed := j.store.Sweep()
	if removed > 0 {
		j.logger.Info("expired drafts removed", zap.Int("count", removed))
	}
}

// Stop halts the scheduler and waits briefly for a running sweep.
func (j *Janitor) Stop() {
	ctx := j.scheduler.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		j.logger.Warn("draft sweep stop timed out")
	}
}
