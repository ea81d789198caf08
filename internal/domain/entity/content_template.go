package entity

import "time"

// ContentTemplate 批量生成落地的模板记录
type ContentTemplate struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Theme     string    `json:"theme" gorm:"type:varchar(64);not null;index"`
	Style     string    `json:"style" gorm:"type:varchar(32);not null"`
	Length    string    `json:"length" gorm:"type:varchar(16);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Source    string    `json:"source" gorm:"type:varchar(32);not null;default:'ai_bulk'"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ContentTemplate) TableName() string {
	return "content_templates"
}
