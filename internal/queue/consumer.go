package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"WholeWellness/config"
	"WholeWellness/internal/cache"
	"WholeWellness/internal/model"
	"WholeWellness/pkg/errors"
	"WholeWellness/pkg/logger"
	"WholeWellness/storage/mq"
)

// ProfileBuilder 根据已完成的草稿生成客户画像
type ProfileBuilder interface {
	BuildProfile(ctx context.Context, intakeID int64) error
}

var profileBuilder ProfileBuilder

// SetProfileBuilder 设置画像服务（在 worker 启动时调用）
func SetProfileBuilder(b ProfileBuilder) {
	profileBuilder = b
}

// StartIntakeCompletedConsumer 启动引导完成消费者，阻塞到 ctx 取消
func StartIntakeCompletedConsumer(ctx context.Context) error {
	if profileBuilder == nil {
		return fmt.Errorf("profile builder not set")
	}

	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueIntakeCompleted,
		ConsumerTag:   "intake_completed_consumer",
		PrefetchCount: config.Cfg.IntakeCompletedPrefetch,
		Handler:       handleIntakeCompleted,
	})
}

func handleIntakeCompleted(ctx context.Context, body []byte) error {
	var msg model.IntakeCompletedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal intake completed message: %w", err)
	}

	// 【幂等性检查】使用 SETNX 原子性地检查并标记消息正在处理
	processing, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
	if err != nil {
		// 标记失败时继续处理，画像写入本身按 intake_id 幂等
		logger.Ctx(ctx).Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !processing {
		logger.Ctx(ctx).Info("Message already processed or being processed, skipping",
			zap.String("message_id", msg.MessageID),
			zap.Int64("intake_id", msg.IntakeID),
		)
		return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
	}

	if err := profileBuilder.BuildProfile(ctx, msg.IntakeID); err != nil {
		var skip *errors.SkipMessageError
		if stderrors.As(err, &skip) {
			_ = cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour)
			return err
		}
		if unmarkErr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
			logger.Ctx(ctx).Warn("Failed to unmark message",
				zap.String("message_id", msg.MessageID),
				zap.Error(unmarkErr),
			)
		}
		return fmt.Errorf("failed to build client profile for intake %d: %w", msg.IntakeID, err)
	}

	if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
		logger.Ctx(ctx).Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}

	logger.Ctx(ctx).Info("Client profile built",
		zap.String("message_id", msg.MessageID),
		zap.Int64("intake_id", msg.IntakeID),
	)
	return nil
}
