package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-gen-ai-api/internal/domain/entity"
)

func TestJobRepository_Lifecycle(t *testing.T) {
	repo := NewJobRepository(newTestClient(t))
	ctx := context.Background()

	job := entity.NewGenerationJob(uuid.NewString(), "a1", entity.JobTypeSingle, []byte(`{"theme":"birthday"}`))
	job.MaxAttempts = 3
	job.TimeoutSeconds = 120
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.JobStatusPending, got.Status)
	assert.JSONEq(t, `{"theme":"birthday"}`, string(got.InputParams))

	got.StartAttempt(time.Now())
	got.FailRetryable("provider timeout")
	require.NoError(t, repo.Update(ctx, got))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40))

	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailedRetryable, got.Status)
	assert.Equal(t, 1, got.AttemptsMade)
	assert.NotNil(t, got.FirstAttemptAt)
	assert.Equal(t, 40, got.Progress)

	missing, err := repo.GetByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContentTemplateRepository_Materialize(t *testing.T) {
	client := newTestClient(t)
	repo := NewContentTemplateRepository(client)

	id, err := repo.Materialize(context.Background(), "birthday", "funny", "short", "Happy birthday!")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var tpl entity.ContentTemplate
	require.NoError(t, client.DB().First(&tpl, "id = ?", id).Error)
	assert.Equal(t, "ai_bulk", tpl.Source)
}

func TestAuditLogRepository_Create(t *testing.T) {
	client := newTestClient(t)
	repo := NewAuditLogRepository(client)

	entry := &entity.AuditLogEntry{
		ID:       uuid.NewString(),
		ActorID:  "a1",
		Kind:     entity.GenerationKindText,
		Provider: "openrouter",
		Model:    "m",
		Status:   entity.AuditStatusFailed,
		Metadata: []byte(`{"attempt":1}`),
	}
	require.NoError(t, repo.Create(context.Background(), entry))

	var count int64
	require.NoError(t, client.DB().Model(&entity.AuditLogEntry{}).Where("actor_id = ?", "a1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTxManager_RollbackOnError(t *testing.T) {
	client := newTestClient(t)
	tx := NewTxManager(client)
	repo := NewQuotaRepository(client)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repo.Ensure(ctx, &entity.ActorQuota{ActorID: "a1", DailyLimit: 10, LastResetDate: "2026-10-19"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	q, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, q)
}
