package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"WholeWellness/internal/model"
)

// draftUpsertColumns 冲突时整体覆盖的列，状态只由 MarkStatus 修改
var draftUpsertColumns = []string{"step", "furthest_step", "data", "saved_at", "updated_at"}

var profileUpsertColumns = []string{
	"coaching_type", "motivation", "coach_preferences",
	"age_range", "gender", "occupation", "relationship_status", "living_arrangement",
	"goals", "focus_areas", "crisis_flag", "prior_support",
	"session_frequency", "preferred_times", "preferred_days", "timezone", "session_channel",
	"terms_accepted", "privacy_accepted", "updated_at",
}

func upsertDraftClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "intake_id"}},
		DoUpdates: clause.AssignmentColumns(draftUpsertColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: `"intake_drafts"."saved_at" <= "excluded"."saved_at"`},
		}},
	}
}

func upsertProfileClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "intake_id"}},
		DoUpdates: clause.AssignmentColumns(profileUpsertColumns),
	}
}

// IntakeRepository intake_drafts 与 client_profiles 的读写
type IntakeRepository struct {
	db *gorm.DB
}

func NewIntakeRepository(db *gorm.DB) *IntakeRepository {
	return &IntakeRepository{db: db}
}

// SaveDraft 按 intake_id 幂等覆盖草稿；较旧的快照不会覆盖较新的
func (r *IntakeRepository) SaveDraft(ctx context.Context, d *model.IntakeDraft) error {
	if d.Status == "" {
		d.Status = model.IntakeStatusInProgress
	}
	err := r.db.WithContext(ctx).Clauses(upsertDraftClause()).Create(d).Error
	if err != nil {
		return fmt.Errorf("save intake draft %d: %w", d.IntakeID, err)
	}
	return nil
}

// LoadDraft 读主库，避免刚保存的草稿在副本上还不可见
func (r *IntakeRepository) LoadDraft(ctx context.Context, intakeID int64) (*model.IntakeDraft, error) {
	var d model.IntakeDraft
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("intake_id = ?", intakeID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkStatus 更新草稿状态，completed 时记录完成时间
func (r *IntakeRepository) MarkStatus(ctx context.Context, intakeID int64, status model.IntakeStatus, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	if status == model.IntakeStatusCompleted {
		updates["completed_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&model.IntakeDraft{}).
		Where("intake_id = ?", intakeID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("mark intake %d %s: %w", intakeID, status, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveProfile 按 intake_id 幂等写入客户画像，重复消费同一完成消息结果不变
func (r *IntakeRepository) SaveProfile(ctx context.Context, p *model.ClientProfile) error {
	err := r.db.WithContext(ctx).Clauses(upsertProfileClause()).Create(p).Error
	if err != nil {
		return fmt.Errorf("save client profile %d: %w", p.IntakeID, err)
	}
	return nil
}

// GetProfile 画像读取可以走只读副本
func (r *IntakeRepository) GetProfile(ctx context.Context, intakeID int64) (*model.ClientProfile, error) {
	var p model.ClientProfile
	if err := r.db.WithContext(ctx).Where("intake_id = ?", intakeID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
