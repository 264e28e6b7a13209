package middleware

import (
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"WholeWellness/config"
	"WholeWellness/pkg/logger"
)

// Init 基于全局 MeterProvider 初始化 HTTP 指标，需在 otel 初始化之后调用
func Init() error {
	if err := InitMetrics(otel.Meter(config.Cfg.ServiceName + ".http")); err != nil {
		logger.Logger.Error("Failed to initialize HTTP metrics", zap.Error(err))
		return err
	}

	logger.Logger.Info("All middlewares initialized successfully",
		zap.Bool("rate_limit_enabled", config.Cfg.RateLimitEnabled),
		zap.Strings("cors_origins", config.Cfg.AllowedOrigins()),
	)
	return nil
}
