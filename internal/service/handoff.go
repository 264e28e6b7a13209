package service

import (
	"context"
	"fmt"
	"time"

	"WholeWellness/internal/draft"
	"WholeWellness/internal/model"
)

// handoff 最后一步保存成功后调用一次：标记草稿完成并发布完成消息。
// 请求结束不应打断交接，因此不继承 ctx 的取消。
func (s *IntakeService) handoff(ctx context.Context, snap draft.Snapshot) error {
	ctx = context.WithoutCancel(ctx)
	at := s.now().UTC()

	if err := s.repo.MarkStatus(ctx, snap.IntakeID, model.IntakeStatusCompleted, at); err != nil {
		return fmt.Errorf("mark intake %d completed: %w", snap.IntakeID, err)
	}
	s.forgetCachedDraft(ctx, snap.IntakeID)

	if s.publish == nil {
		return nil
	}
	return s.publish(ctx, model.IntakeCompletedMessage{
		IntakeID:    snap.IntakeID,
		Step:        snap.Step,
		CompletedAt: at.Format(time.RFC3339),
	})
}
