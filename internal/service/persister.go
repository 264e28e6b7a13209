package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"WholeWellness/internal/cache"
	"WholeWellness/internal/draft"
	"WholeWellness/internal/model"
	"WholeWellness/pkg/logger"
)

// retryPolicy 草稿保存的重试策略
type retryPolicy struct {
	maxTries uint
	initial  time.Duration
	maxWait  time.Duration
}

func (p retryPolicy) options() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if p.initial > 0 {
		b.InitialInterval = p.initial
	}
	b.MaxInterval = 2 * time.Second

	tries := p.maxTries
	if tries == 0 {
		tries = 1
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(p.maxWait),
	}
}

// draftPersister 实现 draft.Persister：熔断 -> 重试 -> 数据库 upsert -> 写缓存。
// 控制器只看到最终的成功或失败。
type draftPersister struct {
	svc *IntakeService
}

func (p *draftPersister) Persist(ctx context.Context, snap draft.Snapshot) error {
	s := p.svc
	row := &model.IntakeDraft{
		IntakeID: snap.IntakeID,
		Step:     snap.Step,
		Furthest: snap.Furthest,
		Data:     datatypes.JSONMap(snap.Data),
		SavedAt:  snap.SavedAt,
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.breaker.Call(ctx, func() error {
			return s.repo.SaveDraft(ctx, row)
		})
		if errors.Is(err, cache.ErrBreakerOpen) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, s.retry.options()...)
	if err != nil {
		logger.Ctx(ctx).Warn("Failed to persist intake draft",
			zap.Int64("intake_id", snap.IntakeID),
			zap.Int("step", snap.Step),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return err
	}

	switch {
	case s.skipped(snap.IntakeID):
		// 首次保存与 Skip 并发时，Skip 的状态更新可能早于这行草稿落库
		if err := s.repo.MarkStatus(ctx, snap.IntakeID, model.IntakeStatusAbandoned, s.now()); err != nil {
			logger.Ctx(ctx).Warn("Failed to mark intake abandoned after save",
				zap.Int64("intake_id", snap.IntakeID),
				zap.Error(err),
			)
		}
	case !s.closed(snap.IntakeID):
		s.cacheDraft(ctx, &cache.CachedDraft{
			IntakeID: snap.IntakeID,
			Step:     snap.Step,
			Furthest: snap.Furthest,
			Data:     snap.Data,
			SavedAt:  snap.SavedAt,
		})
	}
	return nil
}

// cacheDraft 写穿缓存，失败只记录日志
func (s *IntakeService) cacheDraft(ctx context.Context, d *cache.CachedDraft) {
	d.Status = string(model.IntakeStatusInProgress)
	if err := cache.SetDraft(ctx, d); err != nil {
		logger.Ctx(ctx).Warn("Failed to cache intake draft",
			zap.Int64("intake_id", d.IntakeID),
			zap.Error(err),
		)
	}
}

func (s *IntakeService) forgetCachedDraft(ctx context.Context, intakeID int64) {
	if err := cache.DeleteDraft(ctx, intakeID); err != nil {
		logger.Ctx(ctx).Warn("Failed to delete cached intake draft",
			zap.Int64("intake_id", intakeID),
			zap.Error(err),
		)
	}
}

// closed 会话已完成或已跳过时不再写入进行中的缓存
func (s *IntakeService) closed(intakeID int64) bool {
	s.mu.Lock()
	sess, ok := s.sessions[intakeID]
	s.mu.Unlock()
	return ok && (sess.ctrl.Completed() || sess.ctrl.Skipped())
}

func (s *IntakeService) skipped(intakeID int64) bool {
	s.mu.Lock()
	sess, ok := s.sessions[intakeID]
	s.mu.Unlock()
	return ok && sess.ctrl.Skipped()
}
