package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"

	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/metrics"
	"theme-gen-ai-api/pkg/tracer"
)

const (
	defaultTextTimeout  = 60 * time.Second
	defaultImageTimeout = 45 * time.Second
)

// ChatModelSource 按供应商名称提供 ChatModel 及其模型名
type ChatModelSource interface {
	Get(ctx context.Context, provider string) (model.BaseChatModel, error)
	ResolveProvider(name string) string
	TextModel(provider string) string
	VisionModel(provider string) string
}

// Options 供应商调用选项
type Options struct {
	TextTimeout  time.Duration
	ImageTimeout time.Duration
}

// Client 供应商客户端。
// 供应商失败以 Success=false 的结果返回，不作为 Go error 向上传播。
type Client struct {
	models ChatModelSource
	prices *PriceTable
	audit  service.AuditRecorder

	textTimeout  time.Duration
	imageTimeout time.Duration

	now func() time.Time
}

// NewClient 创建供应商客户端
func NewClient(models ChatModelSource, prices *PriceTable, audit service.AuditRecorder, opts Options) *Client {
	if prices == nil {
		prices = NewPriceTable(nil)
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = defaultTextTimeout
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = defaultImageTimeout
	}
	return &Client{
		models:       models,
		prices:       prices,
		audit:        audit,
		textTimeout:  opts.TextTimeout,
		imageTimeout: opts.ImageTimeout,
		now:          time.Now,
	}
}

// Generate 执行一次供应商调用。
// 仅在参数非法时返回 ErrInvalidParams（此时不会发起调用也不写审计）；其余情况总是返回结果并写入一条审计日志。
func (c *Client) Generate(ctx context.Context, req *entity.GenerationRequest) (*entity.GenerationOutcome, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrInvalidParams)
	}
	if err := ValidateParams(req.Kind, req.Params); err != nil {
		return nil, err
	}

	providerName := c.models.ResolveProvider(req.Provider)
	modelName := strings.TrimSpace(req.Model)
	timeout := c.textTimeout
	if req.Kind == entity.GenerationKindImage {
		timeout = c.imageTimeout
		if modelName == "" {
			modelName = c.models.VisionModel(providerName)
		}
	} else if modelName == "" {
		modelName = c.models.TextModel(providerName)
	}

	ctx, span := tracer.Start(ctx, "provider.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", providerName),
		attribute.String("llm.model", modelName),
		attribute.String("generation.kind", string(req.Kind)),
	)

	out := &entity.GenerationOutcome{Provider: providerName, Model: modelName}
	start := c.now()
	raw, callErr := c.call(ctx, req, providerName, modelName, timeout, out)
	out.ProviderLatencyMs = c.now().Sub(start).Milliseconds()
	out.CostEstimate = c.prices.Estimate(modelName, out.InputTokens, out.OutputTokens)

	if callErr == nil {
		callErr = c.decode(req.Kind, raw, out)
	}
	if callErr != nil {
		out.Success = false
		out.Content = ""
		out.Analysis = nil
		out.ErrorDetail = describeError(callErr, timeout)
		tracer.Fail(span, callErr)
	} else {
		out.Success = true
	}

	c.observe(providerName, modelName, out)
	c.record(ctx, req, raw, out)
	return out, nil
}

func (c *Client) call(ctx context.Context, req *entity.GenerationRequest, providerName, modelName string, timeout time.Duration, out *entity.GenerationOutcome) (string, error) {
	chatModel, err := c.models.Get(ctx, providerName)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var messages []*schema.Message
	if req.Kind == entity.GenerationKindImage {
		messages = BuildImageMessages(req.Params)
	} else {
		messages = BuildTextMessages(req.Params)
	}

	var opts []model.Option
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}

	msg, err := chatModel.Generate(callCtx, messages, opts...)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return "", err
	}
	if msg == nil {
		return "", errors.New("empty llm response")
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		out.InputTokens = msg.ResponseMeta.Usage.PromptTokens
		out.OutputTokens = msg.ResponseMeta.Usage.CompletionTokens
	}
	return msg.Content, nil
}

func (c *Client) decode(kind entity.GenerationKind, raw string, out *entity.GenerationOutcome) error {
	if kind == entity.GenerationKindImage {
		analysis, err := ParseImageAnalysis(raw)
		if err != nil {
			return err
		}
		out.Analysis = analysis
		return nil
	}
	content := CleanText(raw)
	if content == "" {
		return errors.New("empty generated content")
	}
	out.Content = content
	return nil
}

func (c *Client) observe(providerName, modelName string, out *entity.GenerationOutcome) {
	status := "success"
	if !out.Success {
		status = "error"
	}
	metrics.LLMCallTotal.WithLabelValues(providerName, modelName, status).Inc()
	metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(float64(out.ProviderLatencyMs) / 1000)
	if out.InputTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(providerName, modelName, "input").Add(float64(out.InputTokens))
	}
	if out.OutputTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(providerName, modelName, "output").Add(float64(out.OutputTokens))
	}
	if out.CostEstimate > 0 {
		metrics.LLMCostTotal.WithLabelValues(providerName, modelName).Add(out.CostEstimate)
	}
}

// record 同步写入审计日志；写入失败只记录日志
func (c *Client) record(ctx context.Context, req *entity.GenerationRequest, raw string, out *entity.GenerationOutcome) {
	if c.audit == nil {
		return
	}
	response := out.Content
	if response == "" {
		response = raw
	}
	metadata := map[string]any{
		"theme":  req.Params.Theme,
		"style":  req.Params.Style,
		"length": req.Params.Length,
	}
	if out.Analysis != nil {
		metadata["mood"] = out.Analysis.Mood
		metadata["confidence"] = out.Analysis.Confidence
	}

	id, err := c.audit.Record(ctx, service.AuditInput{
		ActorID:         req.ActorID,
		Kind:            string(req.Kind),
		Provider:        out.Provider,
		Model:           out.Model,
		PromptSummary:   promptSummary(req),
		ResponseSummary: response,
		InputTokens:     out.InputTokens,
		OutputTokens:    out.OutputTokens,
		Cost:            out.CostEstimate,
		LatencyMs:       out.ProviderLatencyMs,
		Success:         out.Success,
		ErrorMsg:        out.ErrorDetail,
		Metadata:        metadata,
	})
	if err != nil {
		logger.Error(ctx, "failed to write generation audit log", err,
			"provider", out.Provider,
			"model", out.Model,
		)
		return
	}
	out.AuditLogID = id
}

func describeError(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("provider timeout after %s", timeout)
	}
	return err.Error()
}
