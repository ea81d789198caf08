package job

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"theme-gen-ai-api/internal/application/provider"
	"theme-gen-ai-api/internal/domain/entity"
)

// SingleInput 单项任务参数，落库于 generation_jobs.input_params
type SingleInput struct {
	Kind     entity.GenerationKind   `json:"kind"`
	Params   entity.GenerationParams `json:"params"`
	Provider string                  `json:"provider,omitempty"`
	Model    string                  `json:"model,omitempty"`
}

// BulkOptions 批量任务选项
type BulkOptions struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	// Materialize 为空时使用全局配置
	Materialize *bool `json:"materialize,omitempty"`
	// ItemDelayMs 为 0 时使用全局配置
	ItemDelayMs int `json:"item_delay_ms,omitempty"`
}

// BulkInput 批量任务参数
type BulkInput struct {
	Items   []entity.GenerationParams `json:"items"`
	Options BulkOptions               `json:"options"`
}

// TemplateBulkInput 按主题随机组合风格与长度的批量任务参数
type TemplateBulkInput struct {
	Theme   string      `json:"theme"`
	Count   int         `json:"count"`
	Context string      `json:"context,omitempty"`
	Seed    uint64      `json:"seed"`
	Options BulkOptions `json:"options"`
}

// Expand 按种子展开为参数列表，同一种子总是得到相同的组合
func (in TemplateBulkInput) Expand() []entity.GenerationParams {
	rng := rand.New(rand.NewPCG(in.Seed, in.Seed^0x9e3779b97f4a7c15))
	items := make([]entity.GenerationParams, 0, in.Count)
	for i := 0; i < in.Count; i++ {
		items = append(items, entity.GenerationParams{
			Theme:   in.Theme,
			Style:   provider.Styles[rng.IntN(len(provider.Styles))],
			Length:  provider.LengthNames[rng.IntN(len(provider.LengthNames))],
			Context: in.Context,
		})
	}
	return items
}

// seedFor 由任务 ID 派生默认种子
func seedFor(jobID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(jobID))
	return h.Sum64()
}

func decodeInput(job *entity.GenerationJob, v any) error {
	if len(job.InputParams) == 0 {
		return fmt.Errorf("job %s has no input params", job.ID)
	}
	if err := json.Unmarshal(job.InputParams, v); err != nil {
		return fmt.Errorf("failed to decode input params of job %s: %w", job.ID, err)
	}
	return nil
}

// bulkItems 解析批量任务的参数列表与选项
func bulkItems(job *entity.GenerationJob) ([]entity.GenerationParams, BulkOptions, error) {
	switch job.JobType {
	case entity.JobTypeBulk:
		var in BulkInput
		if err := decodeInput(job, &in); err != nil {
			return nil, BulkOptions{}, err
		}
		return in.Items, in.Options, nil
	case entity.JobTypeTemplateBulk:
		var in TemplateBulkInput
		if err := decodeInput(job, &in); err != nil {
			return nil, BulkOptions{}, err
		}
		return in.Expand(), in.Options, nil
	default:
		return nil, BulkOptions{}, fmt.Errorf("job %s is not a bulk job", job.ID)
	}
}
