package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/application/provider"
	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/application/ratelimit"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/repository"
	"theme-gen-ai-api/internal/domain/service"
	apperrors "theme-gen-ai-api/pkg/errors"
	"theme-gen-ai-api/pkg/logger"
)

const (
	maxBulkItems         = 500
	maxTemplateBulkCount = 500
)

// ResultStore 任务结果缓存
type ResultStore interface {
	Key(jobID string) string
	Put(ctx context.Context, result *entity.JobResult) error
	Get(ctx context.Context, jobID string) (*entity.JobResult, bool, error)
}

// QuotaPrechecker 入队前的额度预检
type QuotaPrechecker interface {
	Precheck(ctx context.Context, actorID string, cost int) (*quota.Admission, error)
}

// EnqueueRequest 单项异步生成入参
type EnqueueRequest struct {
	ActorID  string
	ClientIP string
	Kind     entity.GenerationKind
	Params   entity.GenerationParams
	Provider string
	Model    string
}

// EnqueueResult 入队结果；Status 为 success 时 JobID 有效，否则为准入拒绝
type EnqueueResult struct {
	JobID      string
	Status     generation.Status
	RetryAfter time.Duration
	RateLimit  *ratelimit.Decision
	Admission  *quota.Admission
	Error      string
}

// Service 任务入队与查询
type Service struct {
	jobs     repository.JobRepository
	queue    service.JobQueue
	results  ResultStore
	limiter  generation.RateLimiter
	quota    QuotaPrechecker
	policies Policies
	now      func() time.Time
}

// NewService 创建任务服务，limiter 与 quota 可为空
func NewService(jobs repository.JobRepository, queue service.JobQueue, results ResultStore, limiter generation.RateLimiter, quota QuotaPrechecker, policies Policies) *Service {
	return &Service{
		jobs:     jobs,
		queue:    queue,
		results:  results,
		limiter:  limiter,
		quota:    quota,
		policies: policies,
		now:      time.Now,
	}
}

// EnqueueGeneration 校验、限流计数并预检额度后创建任务并投递到队列
func (s *Service) EnqueueGeneration(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	if req.Kind == "" {
		req.Kind = entity.GenerationKindText
	}
	if err := provider.ValidateParams(req.Kind, req.Params); err != nil {
		return &EnqueueResult{Status: generation.StatusInvalidParams, Error: err.Error()}, nil
	}

	actorID := strings.TrimSpace(req.ActorID)
	subject := actorID
	if subject == "" {
		subject = req.ClientIP
	}
	if s.limiter != nil && subject != "" {
		decision := s.limiter.Attempt(ctx, s.limiter.Policy(generation.PolicyFor(req.Kind)), subject)
		if !decision.Allowed {
			return &EnqueueResult{Status: generation.StatusRateLimited, RetryAfter: decision.RetryAfter, RateLimit: &decision}, nil
		}
	}

	if s.quota != nil && actorID != "" {
		adm, err := s.quota.Precheck(ctx, actorID, 1)
		if err != nil {
			return nil, err
		}
		if !adm.Allowed {
			return &EnqueueResult{Status: generation.StatusQuotaExceeded, Admission: adm}, nil
		}
	}

	payload, err := json.Marshal(SingleInput{
		Kind:     req.Kind,
		Params:   req.Params,
		Provider: req.Provider,
		Model:    req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job input: %w", err)
	}

	job := entity.NewGenerationJob(uuid.NewString(), actorID, entity.JobTypeSingle, payload)
	job.ClientIP = req.ClientIP
	if err := s.submit(ctx, job); err != nil {
		return nil, err
	}
	return &EnqueueResult{JobID: job.ID, Status: generation.StatusSuccess}, nil
}

// EnqueueBulk 创建管理员批量任务
func (s *Service) EnqueueBulk(ctx context.Context, actorID string, items []entity.GenerationParams, opts BulkOptions) (string, error) {
	if len(items) == 0 {
		return "", apperrors.ErrInvalidParam.WithDetail("items must not be empty")
	}
	if len(items) > maxBulkItems {
		return "", apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("at most %d items per bulk job", maxBulkItems))
	}

	payload, err := json.Marshal(BulkInput{Items: items, Options: opts})
	if err != nil {
		return "", fmt.Errorf("failed to marshal bulk input: %w", err)
	}
	job := entity.NewGenerationJob(uuid.NewString(), strings.TrimSpace(actorID), entity.JobTypeBulk, payload)
	if err := s.submit(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// EnqueueTemplateBulk 创建按主题随机组合风格与长度的批量任务；seed 为空时由任务 ID 派生
func (s *Service) EnqueueTemplateBulk(ctx context.Context, actorID, theme string, count int, seed *uint64, opts BulkOptions) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return "", apperrors.ErrInvalidParam.WithDetail("theme is required")
	}
	if count <= 0 || count > maxTemplateBulkCount {
		return "", apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("count must be between 1 and %d", maxTemplateBulkCount))
	}

	id := uuid.NewString()
	in := TemplateBulkInput{Theme: theme, Count: count, Options: opts, Seed: seedFor(id)}
	if seed != nil {
		in.Seed = *seed
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template bulk input: %w", err)
	}
	job := entity.NewGenerationJob(id, strings.TrimSpace(actorID), entity.JobTypeTemplateBulk, payload)
	if err := s.submit(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// submit 落库并投递；投递失败时任务直接记为永久失败
func (s *Service) submit(ctx context.Context, job *entity.GenerationJob) error {
	s.policies.For(job.JobType).apply(job)
	job.ResultCacheKey = s.results.Key(job.ID)

	if err := s.jobs.Create(ctx, job); err != nil {
		return err
	}

	if err := s.queue.PublishJob(ctx, job); err != nil {
		logger.Error(ctx, "failed to publish generation job", err, "job_id", job.ID)
		job.FailPermanent("queue unavailable: "+err.Error(), s.now())
		if uerr := s.jobs.Update(context.WithoutCancel(ctx), job); uerr != nil {
			logger.Error(ctx, "failed to mark unpublished job as failed", uerr, "job_id", job.ID)
		}
		return apperrors.Wrap(err, apperrors.CodeQueueError, "failed to enqueue generation job")
	}

	logger.FromContext(ctx).Info("generation job enqueued", "job_id", job.ID, "job_type", string(job.JobType))
	return nil
}

// PollResult 查询任务结果。
// 未知任务返回 ErrJobNotFound；cached 为 false 时结果由任务记录推导（尚未完成或缓存已过期）。
func (s *Service) PollResult(ctx context.Context, jobID string) (result *entity.JobResult, cached bool, err error) {
	jobID = strings.TrimSpace(jobID)
	if _, perr := uuid.Parse(jobID); perr != nil {
		return nil, false, apperrors.ErrJobNotFound
	}

	res, found, err := s.results.Get(ctx, jobID)
	if err != nil {
		// 缓存故障时回落到任务记录
		logger.FromContext(ctx).Warn("result cache unavailable", "job_id", jobID, "error", err)
	} else if found {
		return res, true, nil
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, apperrors.ErrJobNotFound
	}
	return viewFromJob(job), false, nil
}

// viewFromJob 由任务记录构造结果视图
func viewFromJob(job *entity.GenerationJob) *entity.JobResult {
	return &entity.JobResult{
		JobID:      job.ID,
		JobType:    job.JobType,
		Status:     job.Status,
		Permanent:  job.Status == entity.JobStatusFailedPermanent,
		Error:      job.ErrorMessage,
		Attempts:   job.AttemptsMade,
		Progress:   job.Progress,
		FinishedAt: job.CompletedAt,
	}
}
