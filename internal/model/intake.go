package model

import (
	"time"

	"gorm.io/datatypes"
)

// IntakeStatus 引导问卷状态枚举
type IntakeStatus string

const (
	IntakeStatusInProgress IntakeStatus = "in_progress" // 填写中
	IntakeStatusCompleted  IntakeStatus = "completed"   // 已完成注册
	IntakeStatusAbandoned  IntakeStatus = "abandoned"   // 用户跳过
)

// IntakeDraft 引导问卷草稿，每次保存整体覆盖
type IntakeDraft struct {
	BaseModel
	IntakeID    int64             `gorm:"uniqueIndex;not null" json:"intake_id"`
	Step        int               `gorm:"not null;default:0" json:"step"`
	Furthest    int               `gorm:"column:furthest_step;not null;default:0" json:"furthest_step"`
	Status      IntakeStatus      `gorm:"type:varchar(16);not null;default:'in_progress';index:idx_intake_drafts_status" json:"status"`
	Data        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"data"`
	SavedAt     time.Time         `gorm:"not null" json:"saved_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (IntakeDraft) TableName() string {
	return "intake_drafts"
}
