package entity

import (
	"time"

	"gorm.io/datatypes"
)

// JobType 任务类型
type JobType string

const (
	JobTypeSingle       JobType = "single"
	JobTypeBulk         JobType = "bulk"
	JobTypeTemplateBulk JobType = "template_bulk"
)

// IsBulk 是否为批量类任务
func (t JobType) IsBulk() bool {
	return t == JobTypeBulk || t == JobTypeTemplateBulk
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusRunning         JobStatus = "running"
	JobStatusSucceeded       JobStatus = "succeeded"
	JobStatusFailedRetryable JobStatus = "failed_retryable"
	JobStatusFailedPermanent JobStatus = "failed_permanent"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailedPermanent
}

// GenerationJob 异步生成任务
type GenerationJob struct {
	ID               string         `json:"id" gorm:"type:uuid;primaryKey"`
	ActorID          string         `json:"actor_id,omitempty" gorm:"type:varchar(64);index"`
	ClientIP         string         `json:"-" gorm:"type:varchar(64)"`
	JobType          JobType        `json:"job_type" gorm:"type:varchar(32);not null"`
	Status           JobStatus      `json:"status" gorm:"type:varchar(32);not null;index"`
	AttemptsMade     int            `json:"attempts_made" gorm:"not null;default:0"`
	MaxAttempts      int            `json:"max_attempts" gorm:"not null"`
	TimeoutSeconds   int            `json:"timeout_seconds" gorm:"not null"`
	FailAfterSeconds int            `json:"fail_after_seconds" gorm:"not null;default:0"`
	Progress         int            `json:"progress" gorm:"not null;default:0"` // 任务进度 (0-100)
	InputParams      datatypes.JSON `json:"input_params" gorm:"type:jsonb"`
	ResultCacheKey   string         `json:"result_cache_key" gorm:"type:varchar(128)"`
	ErrorMessage     string         `json:"error_message,omitempty" gorm:"type:text"`
	FirstAttemptAt   *time.Time     `json:"first_attempt_at,omitempty"`
	AttemptStartedAt *time.Time     `json:"attempt_started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}

// NewGenerationJob 创建新任务
func NewGenerationJob(id, actorID string, jobType JobType, inputParams []byte) *GenerationJob {
	return &GenerationJob{
		ID:          id,
		ActorID:     actorID,
		JobType:     jobType,
		Status:      JobStatusPending,
		InputParams: datatypes.JSON(inputParams),
		CreatedAt:   time.Now(),
	}
}

// StartAttempt 开始一次尝试
func (j *GenerationJob) StartAttempt(now time.Time) {
	j.Status = JobStatusRunning
	j.AttemptsMade++
	t := now
	j.AttemptStartedAt = &t
	if j.FirstAttemptAt == nil {
		j.FirstAttemptAt = &t
	}
}

// InFlight 当前尝试是否仍在超时窗口内运行
func (j *GenerationJob) InFlight(now time.Time) bool {
	if j.Status != JobStatusRunning || j.AttemptStartedAt == nil || j.TimeoutSeconds <= 0 {
		return false
	}
	return now.Before(j.AttemptStartedAt.Add(time.Duration(j.TimeoutSeconds) * time.Second))
}

// Succeed 任务成功
func (j *GenerationJob) Succeed(now time.Time) {
	j.Status = JobStatusSucceeded
	j.ErrorMessage = ""
	j.Progress = 100
	j.CompletedAt = &now
}

// FailRetryable 可重试失败
func (j *GenerationJob) FailRetryable(errMsg string) {
	j.Status = JobStatusFailedRetryable
	j.ErrorMessage = errMsg
}

// FailPermanent 永久失败
func (j *GenerationJob) FailPermanent(errMsg string, now time.Time) {
	j.Status = JobStatusFailedPermanent
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
}

// CanRetry 检查剩余尝试次数与总时长上限
func (j *GenerationJob) CanRetry(now time.Time) bool {
	if j.AttemptsMade >= j.MaxAttempts {
		return false
	}
	if j.FailAfterSeconds > 0 && j.FirstAttemptAt != nil {
		deadline := j.FirstAttemptAt.Add(time.Duration(j.FailAfterSeconds) * time.Second)
		if !now.Before(deadline) {
			return false
		}
	}
	return true
}

// UpdateProgress 更新任务进度
func (j *GenerationJob) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}
