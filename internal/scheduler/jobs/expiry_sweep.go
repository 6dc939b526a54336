package jobs

import (
	"context"

	"github.com/wonny/bastion/backend/internal/approval"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// ExpirySweepJob expires staged/pending orders past their max age
type ExpirySweepJob struct {
	workflow *approval.Workflow
	schedule string
	logger   *logger.Logger
}

func NewExpirySweepJob(workflow *approval.Workflow, schedule string, log *logger.Logger) *ExpirySweepJob {
	return &ExpirySweepJob{
		workflow: workflow,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ExpirySweepJob) Name() string {
	return "expiry_sweep"
}

// Schedule returns the configured cron expression
func (j *ExpirySweepJob) Schedule() string {
	return j.schedule
}

// Run executes one sweep. 멱등이라 경합/중복 실행에 안전
func (j *ExpirySweepJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled expiry sweep")

	report, err := j.workflow.ExpireStale(ctx)
	if err != nil {
		return err
	}

	if report.Expired > 0 {
		j.logger.WithFields(map[string]interface{}{
			"scanned": report.Scanned,
			"expired": report.Expired,
		}).Info("Expiry sweep expired orders")
	}

	return nil
}
