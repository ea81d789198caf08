package entity

import "time"

// BulkItemResult 批量任务中单项结果
type BulkItemResult struct {
	Index    int              `json:"index"`
	Params   GenerationParams `json:"params"`
	Success  bool             `json:"success"`
	Content  string           `json:"content,omitempty"`
	Cost     float64          `json:"cost"`
	Error    string           `json:"error,omitempty"`
	RecordID string           `json:"record_id,omitempty"`
}

// BulkGroupStats 按主题分组统计
type BulkGroupStats struct {
	Requested int     `json:"requested"`
	Generated int     `json:"generated"`
	Failed    int     `json:"failed"`
	Cost      float64 `json:"cost"`
}

// BulkSummary 批量任务汇总
type BulkSummary struct {
	Requested         int                        `json:"requested"`
	Generated         int                        `json:"generated"`
	Failed            int                        `json:"failed"`
	Materialized      int                        `json:"materialized"`
	MaterializeFailed int                        `json:"materialize_failed"`
	TotalCost         float64                    `json:"total_cost"`
	Groups            map[string]*BulkGroupStats `json:"groups"`
	Items             []BulkItemResult           `json:"items"`
	Status            JobStatus                  `json:"status"`
	Error             string                     `json:"error,omitempty"`
}

// NewBulkSummary 创建空汇总
func NewBulkSummary(requested int) *BulkSummary {
	return &BulkSummary{
		Requested: requested,
		Groups:    make(map[string]*BulkGroupStats),
		Items:     make([]BulkItemResult, 0, requested),
		Status:    JobStatusRunning,
	}
}

// Add 累计单项结果
func (s *BulkSummary) Add(item BulkItemResult) {
	s.Items = append(s.Items, item)
	group := s.Groups[item.Params.Theme]
	if group == nil {
		group = &BulkGroupStats{}
		s.Groups[item.Params.Theme] = group
	}
	group.Requested++
	if item.Success {
		s.Generated++
		s.TotalCost += item.Cost
		group.Generated++
		group.Cost += item.Cost
		return
	}
	s.Failed++
	group.Failed++
}

// JobResult 异步任务结果缓存信封
type JobResult struct {
	JobID      string             `json:"job_id"`
	JobType    JobType            `json:"job_type"`
	Status     JobStatus          `json:"status"`
	Permanent  bool               `json:"permanent"`
	Outcome    *GenerationOutcome `json:"outcome,omitempty"`
	Summary    *BulkSummary       `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	ErrorCode  string             `json:"error_code,omitempty"`
	Attempts   int                `json:"attempts"`
	Progress   int                `json:"progress"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}
