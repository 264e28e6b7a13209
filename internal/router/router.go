package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"WholeWellness/config"
	"WholeWellness/internal/handler"
	"WholeWellness/internal/middleware"
)

// Register 注册全局中间件与 v1 路由，extra 追加在全局中间件之后（如 hertz tracing）
func Register(h *server.Hertz, extra ...app.HandlerFunc) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.RequestIDMiddleware())
	h.Use(middleware.CORSMiddleware(config.Cfg.AllowedOrigins()))
	h.Use(extra...)
	h.Use(middleware.OpenTelemetryMiddleware())

	v1 := h.Group("/v1")

	intakes := v1.Group("/intakes")
	{
		intakes.POST("", middleware.RateLimitMiddleware(middleware.IntakeStartRateLimitConfig()), handler.StartIntake)
		// 静态路由优先于 :intake_id
		intakes.GET("/steps", handler.ListSteps)
		intakes.GET("/:intake_id", handler.GetIntake)
		intakes.GET("/:intake_id/profile", handler.GetIntakeProfile)

		write := intakes.Group("/:intake_id", middleware.RateLimitMiddleware(middleware.IntakeWriteRateLimitConfig()))
		write.PATCH("/data", handler.UpdateIntakeData)
		write.POST("/toggle", handler.ToggleIntakeField)
		write.POST("/save", handler.SaveIntake)
		write.POST("/next", handler.NextStep)
		write.POST("/previous", handler.PreviousStep)
		write.POST("/goto", handler.GoToStep)
		write.POST("/skip", handler.SkipIntake)
	}
}
