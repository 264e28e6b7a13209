package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"WholeWellness/internal/model"
	"WholeWellness/pkg/logger"
	"WholeWellness/storage/mq"
)

// publishMessage 测试中替换为内存实现
var publishMessage = mq.PublishMessage

// PublishIntakeCompleted 发布引导完成消息
func PublishIntakeCompleted(ctx context.Context, msg model.IntakeCompletedMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("intake_completed_%s", uuid.NewString())
	}
	if msg.CompletedAt == "" {
		msg.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	err := publishMessage(ctx,
		mq.ExchangeIntakeEvents,
		mq.RoutingKeyIntakeCompleted,
		msg.MessageID,
		msg,
	)
	if err != nil {
		logger.Ctx(ctx).Error("Failed to publish intake completed message",
			zap.Int64("intake_id", msg.IntakeID),
			zap.Error(err),
		)
		return err
	}

	logger.Ctx(ctx).Info("Published intake completed message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("intake_id", msg.IntakeID),
	)
	return nil
}
