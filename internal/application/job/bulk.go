package job

import (
	"context"
	"fmt"
	"time"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/repository"
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/metrics"
)

// BulkConfig 批量处理配置
type BulkConfig struct {
	ItemDelay   time.Duration
	Materialize bool
}

// BulkProcessor 顺序处理批量任务中的每一项。
// 单项的错误与 panic 只记录在该项结果中，不会中断循环。
type BulkProcessor struct {
	orch  Orchestrator
	sink  service.ContentSink
	jobs  repository.JobRepository
	cfg   BulkConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBulkProcessor 创建批量处理器，sink 为空时不落地
func NewBulkProcessor(orch Orchestrator, sink service.ContentSink, jobs repository.JobRepository, cfg BulkConfig) *BulkProcessor {
	if sink == nil {
		sink = service.NopContentSink{}
	}
	return &BulkProcessor{
		orch:  orch,
		sink:  sink,
		jobs:  jobs,
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

// Run 依次生成 items 并累计到 summary
func (p *BulkProcessor) Run(ctx context.Context, job *entity.GenerationJob, items []entity.GenerationParams, opts BulkOptions, summary *entity.BulkSummary) {
	log := logger.FromContext(ctx)
	delay := p.cfg.ItemDelay
	if opts.ItemDelayMs > 0 {
		delay = time.Duration(opts.ItemDelayMs) * time.Millisecond
	}
	materialize := p.cfg.Materialize
	if opts.Materialize != nil {
		materialize = *opts.Materialize
	}

	total := len(items)
	for i, params := range items {
		if i > 0 && delay > 0 {
			if err := p.sleep(ctx, delay); err != nil {
				p.abortRemaining(summary, items[i:], i, err)
				log.Warn("bulk job interrupted", "processed", i, "total", total, "error", err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			p.abortRemaining(summary, items[i:], i, err)
			log.Warn("bulk job interrupted", "processed", i, "total", total, "error", err)
			break
		}

		item := p.processItem(ctx, job, i, params, opts, materialize, summary)
		summary.Add(item)
		if item.Success {
			metrics.BulkItemsTotal.WithLabelValues("generated").Inc()
		} else {
			metrics.BulkItemsTotal.WithLabelValues("failed").Inc()
		}
		p.reportProgress(ctx, job, (i+1)*100/total)
	}
}

// processItem 处理单项，panic 被捕获为该项失败
func (p *BulkProcessor) processItem(ctx context.Context, job *entity.GenerationJob, index int, params entity.GenerationParams, opts BulkOptions, materialize bool, summary *entity.BulkSummary) (item entity.BulkItemResult) {
	item = entity.BulkItemResult{Index: index, Params: params}
	defer func() {
		if rec := recover(); rec != nil {
			item.Success = false
			item.Content = ""
			item.Error = fmt.Sprintf("panic: %v", rec)
			logger.Error(ctx, "bulk item panicked", fmt.Errorf("%v", rec), "index", index)
		}
	}()

	res, err := p.orch.RequestGeneration(ctx, generation.Request{
		ActorID:  job.ActorID,
		Kind:     entity.GenerationKindText,
		Params:   params,
		Provider: opts.Provider,
		Model:    opts.Model,
	}, generation.Options{SkipRateLimit: true, SkipQuota: true})
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if res.Outcome != nil {
		item.Cost = res.Outcome.CostEstimate
	}
	if res.Status != generation.StatusSuccess {
		item.Error = res.ErrorDetail
		if item.Error == "" {
			item.Error = string(res.Status)
		}
		return item
	}

	item.Success = true
	item.Content = res.Outcome.Content

	if materialize {
		id, err := p.sink.Materialize(ctx, params.Theme, params.Style, params.Length, item.Content)
		if err != nil {
			summary.MaterializeFailed++
			logger.FromContext(ctx).Warn("failed to materialize bulk item", "index", index, "error", err)
		} else if id != "" {
			summary.Materialized++
			item.RecordID = id
		}
	}
	return item
}

// abortRemaining 任务被取消或超时，剩余项记为失败
func (p *BulkProcessor) abortRemaining(summary *entity.BulkSummary, rest []entity.GenerationParams, offset int, cause error) {
	for j, params := range rest {
		summary.Add(entity.BulkItemResult{
			Index:  offset + j,
			Params: params,
			Error:  "not processed: " + cause.Error(),
		})
	}
	metrics.BulkItemsTotal.WithLabelValues("skipped").Add(float64(len(rest)))
}

func (p *BulkProcessor) reportProgress(ctx context.Context, job *entity.GenerationJob, progress int) {
	job.UpdateProgress(progress)
	if p.jobs == nil {
		return
	}
	if err := p.jobs.UpdateProgress(ctx, job.ID, job.Progress); err != nil {
		logger.FromContext(ctx).Warn("failed to update bulk progress", "job_id", job.ID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
