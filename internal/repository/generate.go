package repository

import (
	"fmt"
	"os"

	"gorm.io/gen"
	"gorm.io/gorm"

	"WholeWellness/internal/model"
	"WholeWellness/storage/database"
)

// ========== IntakeDraft 相关查询接口 ==========

// IntakeDraftQuerier 草稿查询接口
type IntakeDraftQuerier interface {
	// GetByIntakeID 根据 intake ID 查询草稿
	//
	// SELECT * FROM @@table WHERE intake_id = @intakeID LIMIT 1
	GetByIntakeID(intakeID int64) (*gen.T, error)

	// ListStale 查询长时间未保存的进行中草稿（用于清理或召回）
	//
	// SELECT * FROM @@table
	// WHERE status = 'in_progress'
	//   AND saved_at < NOW() - (@idleHours || ' hours')::interval
	// ORDER BY saved_at ASC
	// LIMIT @limit
	ListStale(idleHours int, limit int) ([]*gen.T, error)

	// CountByStatus 统计各状态的草稿数量
	//
	// SELECT status, COUNT(*) as count
	// FROM @@table
	// GROUP BY status
	CountByStatus() ([]gen.M, error)

	// CountByStep 统计进行中草稿停留的步骤分布（漏斗）
	//
	// SELECT step, COUNT(*) as count
	// FROM @@table
	// WHERE status = 'in_progress'
	// GROUP BY step
	// ORDER BY step
	CountByStep() ([]gen.M, error)
}

// ========== ClientProfile 相关查询接口 ==========

// ClientProfileQuerier 客户画像查询接口
type ClientProfileQuerier interface {
	// GetByIntakeID 根据 intake ID 查询画像
	//
	// SELECT * FROM @@table WHERE intake_id = @intakeID LIMIT 1
	GetByIntakeID(intakeID int64) (*gen.T, error)

	// ListForMatching 按辅导类型和形式查询待匹配的画像
	//
	// SELECT * FROM @@table
	// WHERE coaching_type = @coachingType
	//   {{if channel != ""}}
	//   AND session_channel = @channel
	//   {{end}}
	//   {{if cursorID > 0}}
	//   AND id < @cursorID
	//   {{end}}
	// ORDER BY id DESC
	// LIMIT @limit
	ListForMatching(coachingType, channel string, cursorID int64, limit int) ([]*gen.T, error)

	// ListCrisisFlagged 查询标记了危机的画像，供人工优先跟进
	//
	// SELECT * FROM @@table
	// WHERE crisis_flag = true
	// ORDER BY created_at DESC
	// LIMIT @limit
	ListCrisisFlagged(limit int) ([]*gen.T, error)
}

// newGenerator 生成器配置，输出到 internal/repository/query
func newGenerator(db *gorm.DB) *gen.Generator {
	g := gen.NewGenerator(gen.Config{
		OutPath:           "./internal/repository/query",
		ModelPkgPath:      "WholeWellness/internal/model",
		Mode:              gen.WithDefaultQuery | gen.WithQueryInterface | gen.WithoutContext,
		FieldNullable:     true,
		FieldCoverable:    false,
		FieldSignable:     false,
		FieldWithIndexTag: false,
		FieldWithTypeTag:  true,
	})
	g.UseDB(db)

	// 注册现有的 model，GORM Gen 会使用这些 model 而不是生成新的
	g.ApplyBasic(
		&model.IntakeDraft{},
		&model.ClientProfile{},
	)
	g.ApplyInterface(func(IntakeDraftQuerier) {}, &model.IntakeDraft{})
	g.ApplyInterface(func(ClientProfileQuerier) {}, &model.ClientProfile{})
	return g
}

func Generate() error {
	if err := database.Init(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	db := database.DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	newGenerator(db).Execute()
	return nil
}

func RunGenerate() {
	if err := Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate code: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Code generation completed successfully!")
}
