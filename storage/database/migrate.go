package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"WholeWellness/internal/model"
	"WholeWellness/pkg/logger"
)

// Migrate 创建 intake 相关表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.IntakeDraft{},
		&model.ClientProfile{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
