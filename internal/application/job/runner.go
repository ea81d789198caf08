package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/repository"
	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/metrics"
)

// Orchestrator 生成编排端口
type Orchestrator interface {
	RequestGeneration(ctx context.Context, req generation.Request, opts generation.Options) (*generation.Result, error)
}

// Runner 执行异步任务。
// 每次尝试都会写入任务记录与结果缓存；可重试失败返回 ErrRetryLater 交由队列重投。
type Runner struct {
	jobs     repository.JobRepository
	results  ResultStore
	orch     Orchestrator
	bulk     *BulkProcessor
	policies Policies
	now      func() time.Time
}

// NewRunner 创建任务执行器
func NewRunner(jobs repository.JobRepository, results ResultStore, orch Orchestrator, bulk *BulkProcessor, policies Policies) *Runner {
	return &Runner{
		jobs:     jobs,
		results:  results,
		orch:     orch,
		bulk:     bulk,
		policies: policies,
		now:      time.Now,
	}
}

// Execute 执行一次任务尝试
func (r *Runner) Execute(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		logger.FromContext(ctx).Warn("job not found, dropping message", "job_id", jobID)
		return nil
	}
	if job.Status.Terminal() {
		// 重复投递
		return nil
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)

	// 另一个消费者认领了仍在运行的消息，交由运行中的尝试写终态
	if job.InFlight(r.now()) {
		logger.FromContext(ctx).Info("job attempt still running, deferring redelivery", "attempt", job.AttemptsMade)
		return fmt.Errorf("%w: attempt %d still running", ErrRetryLater, job.AttemptsMade)
	}

	if job.JobType.IsBulk() {
		return r.executeBulk(ctx, job)
	}
	return r.executeSingle(ctx, job)
}

func (r *Runner) executeSingle(ctx context.Context, job *entity.GenerationJob) error {
	log := logger.FromContext(ctx)
	now := r.now()

	// 重投时尝试次数或总时长已耗尽
	if job.AttemptsMade > 0 && !job.CanRetry(now) {
		return r.failPermanent(ctx, job, nil, "", "retry budget exhausted: "+job.ErrorMessage)
	}

	var in SingleInput
	if err := decodeInput(job, &in); err != nil {
		return r.failPermanent(ctx, job, nil, string(generation.StatusInvalidParams), err.Error())
	}

	job.StartAttempt(now)
	if err := r.jobs.Update(ctx, job); err != nil {
		return err
	}
	log.Info("job attempt started", "attempt", job.AttemptsMade, "max_attempts", job.MaxAttempts)

	attemptCtx := ctx
	if job.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	res, err := r.orch.RequestGeneration(attemptCtx, generation.Request{
		ActorID:  job.ActorID,
		ClientIP: job.ClientIP,
		Kind:     in.Kind,
		Params:   in.Params,
		Provider: in.Provider,
		Model:    in.Model,
	}, generation.Options{SkipRateLimit: true})
	if err != nil {
		return r.failAttempt(ctx, job, nil, "", err.Error())
	}

	switch res.Status {
	case generation.StatusSuccess:
		return r.succeed(ctx, job, res.Outcome)
	case generation.StatusQuotaExceeded, generation.StatusInvalidParams:
		detail := res.ErrorDetail
		if res.Status == generation.StatusQuotaExceeded {
			detail = "daily generation quota exceeded"
		}
		return r.failPermanent(ctx, job, res.Outcome, string(res.Status), detail)
	default:
		return r.failAttempt(ctx, job, res.Outcome, string(res.Status), res.ErrorDetail)
	}
}

func (r *Runner) succeed(ctx context.Context, job *entity.GenerationJob, outcome *entity.GenerationOutcome) error {
	ctx = context.WithoutCancel(ctx)
	now := r.now()
	job.Succeed(now)
	metrics.JobAttemptsTotal.WithLabelValues(string(job.JobType), "succeeded").Inc()

	r.putResult(ctx, &entity.JobResult{
		JobID:      job.ID,
		JobType:    job.JobType,
		Status:     entity.JobStatusSucceeded,
		Outcome:    outcome,
		Attempts:   job.AttemptsMade,
		Progress:   job.Progress,
		FinishedAt: &now,
	})
	if err := r.jobs.Update(ctx, job); err != nil {
		logger.Error(ctx, "failed to mark job succeeded", err, "job_id", job.ID)
	}
	logger.FromContext(ctx).Info("job succeeded", "attempts", job.AttemptsMade)
	return nil
}

// failAttempt 可重试失败：仍有预算时返回 ErrRetryLater，否则转为永久失败
func (r *Runner) failAttempt(ctx context.Context, job *entity.GenerationJob, outcome *entity.GenerationOutcome, code, detail string) error {
	if !job.CanRetry(r.now()) {
		return r.failPermanent(ctx, job, outcome, code, detail)
	}

	ctx = context.WithoutCancel(ctx)
	job.FailRetryable(detail)
	metrics.JobAttemptsTotal.WithLabelValues(string(job.JobType), "retry").Inc()

	r.putResult(ctx, &entity.JobResult{
		JobID:     job.ID,
		JobType:   job.JobType,
		Status:    entity.JobStatusFailedRetryable,
		Outcome:   outcome,
		Error:     detail,
		ErrorCode: code,
		Attempts:  job.AttemptsMade,
		Progress:  job.Progress,
	})
	if err := r.jobs.Update(ctx, job); err != nil {
		logger.Error(ctx, "failed to mark job retryable", err, "job_id", job.ID)
	}
	logger.FromContext(ctx).Warn("job attempt failed, will retry",
		"attempt", job.AttemptsMade,
		"max_attempts", job.MaxAttempts,
		"detail", detail,
	)
	return fmt.Errorf("%w: %s", ErrRetryLater, detail)
}

// failPermanent 永久失败终态写入，始终返回 nil 以便队列确认消息
func (r *Runner) failPermanent(ctx context.Context, job *entity.GenerationJob, outcome *entity.GenerationOutcome, code, detail string) error {
	ctx = context.WithoutCancel(ctx)
	now := r.now()
	job.FailPermanent(detail, now)
	metrics.JobAttemptsTotal.WithLabelValues(string(job.JobType), "permanent").Inc()

	r.putResult(ctx, &entity.JobResult{
		JobID:      job.ID,
		JobType:    job.JobType,
		Status:     entity.JobStatusFailedPermanent,
		Permanent:  true,
		Outcome:    outcome,
		Error:      detail,
		ErrorCode:  code,
		Attempts:   job.AttemptsMade,
		Progress:   job.Progress,
		FinishedAt: &now,
	})
	if err := r.jobs.Update(ctx, job); err != nil {
		logger.Error(ctx, "failed to mark job permanently failed", err, "job_id", job.ID)
	}
	logger.FromContext(ctx).Warn("job failed permanently", "attempts", job.AttemptsMade, "detail", detail)
	return nil
}

// Abandon 队列放弃消息（进入死信）时写入永久失败记录
func (r *Runner) Abandon(ctx context.Context, jobID string, cause error) error {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil || job.Status.Terminal() {
		return nil
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	if job.InFlight(r.now()) {
		logger.FromContext(ctx).Warn("dead-lettered job is still running, leaving terminal write to the attempt", "attempt", job.AttemptsMade)
		return nil
	}

	detail := "abandoned by queue"
	if cause != nil && !errors.Is(cause, ErrRetryLater) {
		detail += ": " + cause.Error()
	} else if job.ErrorMessage != "" {
		detail += ": " + job.ErrorMessage
	}

	if job.JobType.IsBulk() {
		summary := entity.NewBulkSummary(0)
		summary.Status = entity.JobStatusFailedPermanent
		summary.Error = detail
		return r.finishBulk(ctx, job, summary)
	}
	return r.failPermanent(ctx, job, nil, "abandoned", detail)
}

func (r *Runner) executeBulk(ctx context.Context, job *entity.GenerationJob) error {
	now := r.now()
	if job.AttemptsMade > 0 && !job.CanRetry(now) {
		summary := entity.NewBulkSummary(0)
		summary.Status = entity.JobStatusFailedPermanent
		summary.Error = "bulk job interrupted: " + job.ErrorMessage
		return r.finishBulk(ctx, job, summary)
	}

	job.StartAttempt(now)
	if err := r.jobs.Update(ctx, job); err != nil {
		return err
	}

	runCtx := ctx
	if job.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	summary := entity.NewBulkSummary(0)
	// 汇总的终态写入不可跳过
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "bulk job panicked", fmt.Errorf("%v", rec))
			summary.Status = entity.JobStatusFailedPermanent
			summary.Error = fmt.Sprintf("bulk job aborted: %v", rec)
		}
		_ = r.finishBulk(ctx, job, summary)
	}()

	items, opts, err := bulkItems(job)
	if err != nil {
		summary.Status = entity.JobStatusFailedPermanent
		summary.Error = err.Error()
		return nil
	}
	summary.Requested = len(items)
	r.bulk.Run(runCtx, job, items, opts, summary)
	return nil
}

// finishBulk 写入批量任务终态
func (r *Runner) finishBulk(ctx context.Context, job *entity.GenerationJob, summary *entity.BulkSummary) error {
	ctx = context.WithoutCancel(ctx)
	now := r.now()

	if summary.Status != entity.JobStatusFailedPermanent {
		if summary.Requested > 0 && summary.Generated == 0 {
			summary.Status = entity.JobStatusFailedPermanent
			if summary.Error == "" {
				summary.Error = "all items failed"
			}
		} else {
			summary.Status = entity.JobStatusSucceeded
		}
	}

	result := &entity.JobResult{
		JobID:      job.ID,
		JobType:    job.JobType,
		Status:     summary.Status,
		Summary:    summary,
		Attempts:   job.AttemptsMade,
		FinishedAt: &now,
	}
	if summary.Status == entity.JobStatusSucceeded {
		job.Succeed(now)
		metrics.JobAttemptsTotal.WithLabelValues(string(job.JobType), "succeeded").Inc()
	} else {
		job.FailPermanent(summary.Error, now)
		result.Permanent = true
		result.Error = summary.Error
		metrics.JobAttemptsTotal.WithLabelValues(string(job.JobType), "permanent").Inc()
	}
	result.Progress = job.Progress

	r.putResult(ctx, result)
	if err := r.jobs.Update(ctx, job); err != nil {
		logger.Error(ctx, "failed to update bulk job", err, "job_id", job.ID)
	}
	logger.FromContext(ctx).Info("bulk job finished",
		"status", string(summary.Status),
		"requested", summary.Requested,
		"generated", summary.Generated,
		"failed", summary.Failed,
		"total_cost", summary.TotalCost,
	)
	return nil
}

func (r *Runner) putResult(ctx context.Context, result *entity.JobResult) {
	if r.results == nil {
		return
	}
	if err := r.results.Put(ctx, result); err != nil {
		logger.Error(ctx, "failed to write job result", err, "job_id", result.JobID, "status", string(result.Status))
	}
}
