// Package audit 提供供应商调用审计日志记录
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/repository"
	"theme-gen-ai-api/internal/domain/service"
)

// summaryLimit 摘要最大字符数
const summaryLimit = 500

type Recorder struct {
	repo repository.AuditLogRepository
}

func NewRecorder(repo repository.AuditLogRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record 写入一条审计记录并返回记录 ID
func (r *Recorder) Record(ctx context.Context, in service.AuditInput) (string, error) {
	if r == nil || r.repo == nil {
		return "", nil
	}
	if in.InputTokens < 0 || in.OutputTokens < 0 {
		return "", fmt.Errorf("invalid token usage")
	}

	status := entity.AuditStatusSuccess
	if !in.Success {
		status = entity.AuditStatusFailed
	}

	var metadata []byte
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = b
	}

	entry := &entity.AuditLogEntry{
		ID:              uuid.NewString(),
		ActorID:         strings.TrimSpace(in.ActorID),
		Kind:            entity.GenerationKind(in.Kind),
		Provider:        strings.TrimSpace(in.Provider),
		Model:           strings.TrimSpace(in.Model),
		PromptSummary:   Summarize(in.PromptSummary),
		ResponseSummary: Summarize(in.ResponseSummary),
		InputTokens:     in.InputTokens,
		OutputTokens:    in.OutputTokens,
		Cost:            in.Cost,
		Status:          status,
		ErrorMessage:    in.ErrorMsg,
		Metadata:        metadata,
		LatencyMs:       in.LatencyMs,
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Summarize 截断为摘要
func Summarize(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= summaryLimit {
		return s
	}
	return string([]rune(s)[:summaryLimit]) + "…"
}
