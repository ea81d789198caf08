package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/service"
)

type captureRepo struct {
	entries []*entity.AuditLogEntry
	err     error
}

func (r *captureRepo) Create(_ context.Context, e *entity.AuditLogEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func TestRecorder_RecordsFailureWithMetadata(t *testing.T) {
	repo := &captureRepo{}
	rec := NewRecorder(repo)

	id, err := rec.Record(context.Background(), service.AuditInput{
		ActorID:       " a1 ",
		Kind:          string(entity.GenerationKindText),
		Provider:      "openrouter",
		Model:         "m",
		PromptSummary: strings.Repeat("x", 800),
		Success:       false,
		ErrorMsg:      "timeout",
		Metadata:      map[string]any{"attempt": 2},
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	e := repo.entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "a1", e.ActorID)
	assert.Equal(t, entity.AuditStatusFailed, e.Status)
	assert.Equal(t, "timeout", e.ErrorMessage)
	assert.JSONEq(t, `{"attempt":2}`, string(e.Metadata))
	assert.Equal(t, summaryLimit+1, len([]rune(e.PromptSummary)))
}

func TestRecorder_Errors(t *testing.T) {
	_, err := NewRecorder(&captureRepo{}).Record(context.Background(), service.AuditInput{InputTokens: -1})
	assert.Error(t, err)

	_, err = NewRecorder(&captureRepo{err: errors.New("db down")}).Record(context.Background(), service.AuditInput{Success: true})
	assert.Error(t, err)

	var nilRec *Recorder
	id, err := nilRec.Record(context.Background(), service.AuditInput{})
	assert.NoError(t, err)
	assert.Empty(t, id)
}
