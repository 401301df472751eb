package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/port"

	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const RESYNC_JOB_KEY = "resync-entities"

// ResyncSource is what the resync job needs from the repository.
type ResyncSource interface {
	port.StateRefresher
	port.SessionStateReader
}

// ResyncJob asks the server for every entity state while the session is
// authenticated. Other session states skip the run.
type ResyncJob struct {
	source  ResyncSource
	timeout time.Duration
	logger  *zap.Logger
}

func NewResyncJob(source ResyncSource, timeout time.Duration, logger *zap.Logger) *ResyncJob {
	return &ResyncJob{
		source:  source,
		timeout: timeout,
		logger:  logger.With(zap.String("job", RESYNC_JOB_KEY)),
	}
}

func (j *ResyncJob) Execute(ctx context.Context) error {
	if state := j.source.CurrentSessionState(); state != domain.SESSION_STATE_AUTHENTICATED {
		j.logger.Debug("resync skipped", zap.Stringer("session", state))
		return nil
	}
	reqCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if err := j.source.RequestEntitiesState(reqCtx, false); err != nil {
		j.logger.Warn("resync failed", zap.Error(err))
		return err
	}
	j.logger.Debug("resync requested")
	return nil
}

func (j *ResyncJob) Description() string {
	return "request every entity state from the server"
}

// StartResync schedules the resync job every interval. The scheduler stops when
// ctx ends.
func StartResync(ctx context.Context, interval time.Duration, source ResyncSource, logger *zap.Logger) (quartz.Scheduler, error) {
	sched := quartz.NewStdScheduler()
	sched.Start(ctx)

	job := NewResyncJob(source, interval/2, logger)
	detail := quartz.NewJobDetail(job, quartz.NewJobKey(RESYNC_JOB_KEY))
	if err := sched.ScheduleJob(detail, quartz.NewSimpleTrigger(interval)); err != nil {
		sched.Stop()
		return nil, fmt.Errorf("schedule resync job: %w", err)
	}
	logger.Info("resync scheduled", zap.Duration("interval", interval))
	return sched, nil
}
