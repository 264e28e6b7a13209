package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"WholeWellness/config"
	"WholeWellness/internal/cache"
	"WholeWellness/internal/draft"
	"WholeWellness/internal/intake"
	"WholeWellness/internal/model"
	"WholeWellness/internal/model/dto"
	"WholeWellness/internal/queue"
	"WholeWellness/internal/repository"
	"WholeWellness/internal/wizard"
	pkgerrors "WholeWellness/pkg/errors"
	"WholeWellness/pkg/logger"
	"WholeWellness/pkg/metrics"
	"WholeWellness/pkg/snowflake"
	"WholeWellness/storage/database"
)

// intakeRepository 草稿与画像的持久化，由 repository.IntakeRepository 实现
type intakeRepository interface {
	SaveDraft(ctx context.Context, d *model.IntakeDraft) error
	LoadDraft(ctx context.Context, intakeID int64) (*model.IntakeDraft, error)
	MarkStatus(ctx context.Context, intakeID int64, status model.IntakeStatus, at time.Time) error
	SaveProfile(ctx context.Context, p *model.ClientProfile) error
	GetProfile(ctx context.Context, intakeID int64) (*model.ClientProfile, error)
}

// session 一个内存中的引导会话
type session struct {
	ctrl     *wizard.Controller
	lastSeen time.Time
}

// IntakeService 管理所有进行中的引导会话，每个 intake 对应一个 wizard.Controller
type IntakeService struct {
	repo     intakeRepository
	publish  func(ctx context.Context, msg model.IntakeCompletedMessage) error
	newID    func() (int64, error)
	now      func() time.Time
	breaker  *cache.CircuitBreaker
	metrics  *metrics.WizardMetrics
	registry *wizard.Registry
	sessions map[int64]*session
	group    singleflight.Group
	retry    retryPolicy
	idleTTL  time.Duration
	mu       sync.Mutex
}

var (
	intakeService *IntakeService
	intakeOnce    sync.Once
)

// Intake 返回全局会话管理器，需在 storage.Init 之后调用
func Intake() *IntakeService {
	intakeOnce.Do(func() {
		cfg := config.Cfg
		intakeService = newIntakeService(intakeDeps{
			repo:    repository.NewIntakeRepository(database.DB()),
			publish: queue.PublishIntakeCompleted,
			newID:   snowflake.NextID,
			breaker: cache.DraftStoreBreaker,
			metrics: metrics.GetMetrics(),
			idleTTL: cfg.IntakeIdleTTL,
			retry: retryPolicy{
				maxTries: cfg.IntakePersistMaxTries,
				initial:  cfg.IntakePersistBackoff,
				maxWait:  cfg.IntakePersistMaxWait,
			},
		})
	})
	return intakeService
}

type intakeDeps struct {
	repo    intakeRepository
	publish func(ctx context.Context, msg model.IntakeCompletedMessage) error
	newID   func() (int64, error)
	now     func() time.Time
	breaker *cache.CircuitBreaker
	metrics *metrics.WizardMetrics
	retry   retryPolicy
	idleTTL time.Duration
}

func newIntakeService(d intakeDeps) *IntakeService {
	if d.now == nil {
		d.now = time.Now
	}
	if d.breaker == nil {
		d.breaker = cache.NewCircuitBreaker("intake_draft_store", 5, 30*time.Second)
	}
	return &IntakeService{
		repo:     d.repo,
		publish:  d.publish,
		newID:    d.newID,
		now:      d.now,
		breaker:  d.breaker,
		metrics:  d.metrics,
		registry: intake.Registry(),
		sessions: make(map[int64]*session),
		retry:    d.retry,
		idleTTL:  d.idleTTL,
	}
}

// Start 创建新的引导会话，草稿为空，停在第一步
func (s *IntakeService) Start(ctx context.Context) (*dto.IntakeState, error) {
	id, err := s.newID()
	if err != nil {
		logger.Ctx(ctx).Error("Failed to generate intake ID", zap.Error(err))
		return nil, pkgerrors.InternalError
	}

	ctrl := s.newController(id, nil, 0)
	s.mu.Lock()
	s.sessions[id] = &session{ctrl: ctrl, lastSeen: s.now()}
	s.mu.Unlock()
	s.metrics.AddActiveSession(ctx, 1)

	// 先落一份空草稿，之后的恢复才能找到这个 intake
	if err := ctrl.SaveProgress(ctx); err != nil {
		logger.Ctx(ctx).Warn("Failed to persist new intake",
			zap.Int64("intake_id", id),
			zap.Error(err),
		)
	}

	logger.Ctx(ctx).Info("Intake started", zap.Int64("intake_id", id))
	return s.stateOf(id, ctrl, ""), nil
}

// Get 返回会话状态和当前步骤的字段
func (s *IntakeService) Get(ctx context.Context, intakeID int64) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	return s.stateOf(intakeID, ctrl, ""), nil
}

// Update 合并当前步骤的字段，不做持久化
func (s *IntakeService) Update(ctx context.Context, intakeID int64, partial map[string]interface{}) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	data, err := intake.Schema.Coerce(partial)
	if err != nil {
		return nil, mapIntakeError(err)
	}
	if err := ctrl.UpdateData(data); err != nil {
		return nil, mapIntakeError(err)
	}
	return s.stateOf(intakeID, ctrl, ""), nil
}

// Toggle 切换集合字段中的一个取值
func (s *IntakeService) Toggle(ctx context.Context, intakeID int64, field, value string) (*dto.ToggleIntakeFieldData, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	if kind, ok := intake.Schema[field]; !ok {
		return nil, pkgerrors.OnboardingFieldNotOwned.WithMessage("Unknown field: %s", field)
	} else if kind != draft.KindSet {
		return nil, pkgerrors.OnboardingFieldInvalid.WithMessage("Field %s is not a set", field)
	}

	values, err := ctrl.Toggle(field, value)
	if err != nil {
		return nil, mapIntakeError(err)
	}
	return &dto.ToggleIntakeFieldData{Field: field, Values: values}, nil
}

// Save 保存进度，不改变步骤
func (s *IntakeService) Save(ctx context.Context, intakeID int64) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if err := ctrl.SaveProgress(ctx); err != nil {
		return nil, mapIntakeError(err)
	}
	return s.stateOf(intakeID, ctrl, ""), nil
}

// Next 校验、保存并前进；在最后一步即完成注册。结果通过 outcome 返回
func (s *IntakeService) Next(ctx context.Context, intakeID int64) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	out := ctrl.NextStep(ctx)
	return s.stateOf(intakeID, ctrl, out.String()), nil
}

// Previous 无条件后退一步
func (s *IntakeService) Previous(ctx context.Context, intakeID int64) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	out := ctrl.PreviousStep()
	return s.stateOf(intakeID, ctrl, out.String()), nil
}

// GoTo 跳到指定步骤，step 优先于 step_id
func (s *IntakeService) GoTo(ctx context.Context, intakeID int64, req dto.GoToStepRequest) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	target := -1
	switch {
	case req.Step != nil:
		target = *req.Step
	case req.StepID != "":
		idx, ok := s.registry.Index(req.StepID)
		if !ok {
			return nil, pkgerrors.OnboardingStepInvalid.WithMessage("Unknown step: %s", req.StepID)
		}
		target = idx
	default:
		return nil, pkgerrors.InvalidRequest.WithMessage("step or step_id is required")
	}

	out, err := ctrl.GoToStep(ctx, target)
	if err != nil {
		return nil, mapIntakeError(err)
	}
	return s.stateOf(intakeID, ctrl, out.String()), nil
}

// Skip 放弃引导，草稿标记为 abandoned
func (s *IntakeService) Skip(ctx context.Context, intakeID int64) (*dto.IntakeState, error) {
	ctrl, err := s.session(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if !ctrl.Skip() {
		return nil, pkgerrors.IntakeClosed
	}

	if err := s.repo.MarkStatus(ctx, intakeID, model.IntakeStatusAbandoned, s.now()); err != nil {
		logger.Ctx(ctx).Warn("Failed to mark intake abandoned",
			zap.Int64("intake_id", intakeID),
			zap.Error(err),
		)
	}
	s.forgetCachedDraft(ctx, intakeID)

	logger.Ctx(ctx).Info("Intake skipped", zap.Int64("intake_id", intakeID))
	return s.stateOf(intakeID, ctrl, ""), nil
}

// Steps 步骤列表
func (s *IntakeService) Steps() dto.StepListData {
	steps := s.registry.Steps()
	out := dto.StepListData{Steps: make([]dto.StepInfo, 0, len(steps)), Total: len(steps)}
	for i, d := range steps {
		out.Steps = append(out.Steps, stepInfo(i, d))
	}
	return out
}

// ActiveSessions 内存中的会话数
func (s *IntakeService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunCleanup 定期回收空闲会话，阻塞直到 ctx 取消
func (s *IntakeService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictIdle(ctx); n > 0 {
				logger.Logger.Info("Evicted idle intake sessions", zap.Int("count", n))
			}
		}
	}
}

// evictIdle 回收超过 idleTTL 未访问且没有保存进行中的会话
func (s *IntakeService) evictIdle(ctx context.Context) int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) && !sess.ctrl.IsLoading() {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.metrics.AddActiveSession(ctx, -int64(evicted))
	}
	return evicted
}

// session 返回内存会话，不存在时从缓存或数据库恢复，同一 intake 的并发恢复只执行一次
func (s *IntakeService) session(ctx context.Context, intakeID int64) (*wizard.Controller, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[intakeID]; ok {
		sess.lastSeen = s.now()
		s.mu.Unlock()
		return sess.ctrl, nil
	}
	s.mu.Unlock()

	// 共享的恢复结果不受第一个调用方取消的影响，保留 trace 等上下文值
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(strconv.FormatInt(intakeID, 10), func() (interface{}, error) {
		ctrl, err := s.hydrate(shared, intakeID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if sess, ok := s.sessions[intakeID]; ok {
			return sess.ctrl, nil
		}
		s.sessions[intakeID] = &session{ctrl: ctrl, lastSeen: s.now()}
		s.metrics.AddActiveSession(shared, 1)
		return ctrl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*wizard.Controller), nil
}

// hydrate 先读缓存，未命中再读数据库
func (s *IntakeService) hydrate(ctx context.Context, intakeID int64) (*wizard.Controller, error) {
	cached, found, err := cache.GetDraft(ctx, intakeID)
	switch {
	case errors.Is(err, cache.ErrEmptyValue):
		return nil, pkgerrors.IntakeNotFound
	case err != nil:
		logger.Ctx(ctx).Warn("Failed to read draft cache, falling back to database",
			zap.Int64("intake_id", intakeID),
			zap.Error(err),
		)
	case found:
		s.metrics.RecordHydration(ctx, "cache")
		return s.resume(intakeID, cached.Data, cached.Step, cached.Furthest, model.IntakeStatus(cached.Status)), nil
	}

	row, err := s.repo.LoadDraft(ctx, intakeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if cacheErr := cache.SetDraftMissing(ctx, intakeID); cacheErr != nil {
				logger.Ctx(ctx).Warn("Failed to cache missing intake", zap.Error(cacheErr))
			}
			return nil, pkgerrors.IntakeNotFound
		}
		logger.Ctx(ctx).Error("Failed to load intake draft",
			zap.Int64("intake_id", intakeID),
			zap.Error(err),
		)
		return nil, pkgerrors.InternalError
	}

	s.metrics.RecordHydration(ctx, "database")
	if row.Status == model.IntakeStatusInProgress {
		s.cacheDraft(ctx, &cache.CachedDraft{
			IntakeID: intakeID,
			Step:     row.Step,
			Furthest: row.Furthest,
			Data:     row.Data,
			SavedAt:  row.SavedAt,
		})
	}
	return s.resume(intakeID, row.Data, row.Step, row.Furthest, row.Status), nil
}

// resume 用保存的草稿重建控制器；无法识别的字段被丢弃
func (s *IntakeService) resume(intakeID int64, raw map[string]interface{}, step, furthest int, status model.IntakeStatus) *wizard.Controller {
	data, dropped := intake.Schema.Decode(raw)
	if len(dropped) > 0 {
		logger.Logger.Warn("Dropped unrecognised draft fields",
			zap.Int64("intake_id", intakeID),
			zap.Strings("fields", dropped),
		)
	}

	opts := []wizard.Option{wizard.WithFurthest(furthest)}
	if status == model.IntakeStatusCompleted {
		opts = append(opts, wizard.WithCompleted())
	}
	ctrl := s.newController(intakeID, data, step, opts...)
	if status == model.IntakeStatusAbandoned {
		ctrl.Skip()
	}
	return ctrl
}

func (s *IntakeService) newController(intakeID int64, data draft.Data, step int, extra ...wizard.Option) *wizard.Controller {
	store := draft.NewStore(intakeID, &draftPersister{svc: s}, data)
	opts := []wizard.Option{
		wizard.WithStartStep(step),
		wizard.WithHandoff(wizard.HandoffFunc(s.handoff)),
		wizard.WithLogger(logger.Logger.With(zap.Int64("intake_id", intakeID))),
	}
	if s.metrics != nil {
		opts = append(opts, wizard.WithMetrics(s.metrics))
	}
	return wizard.NewController(s.registry, store, append(opts, extra...)...)
}

func (s *IntakeService) stateOf(intakeID int64, ctrl *wizard.Controller, outcome string) *dto.IntakeState {
	st := ctrl.State()
	notices := st.Notices
	if notices == nil {
		notices = []string{}
	}

	out := &dto.IntakeState{
		IntakeID:    strconv.FormatInt(intakeID, 10),
		Step:        stepInfo(st.CurrentStep, s.registry.At(st.CurrentStep)),
		Data:        ctrl.Slice(),
		Outcome:     outcome,
		Notices:     notices,
		CurrentStep: st.CurrentStep,
		TotalSteps:  st.TotalSteps,
		Furthest:    st.Furthest,
		Progress:    st.Progress,
		IsLoading:   st.IsLoading,
		IsValid:     st.IsValid,
		Completed:   st.Completed,
		Skipped:     st.Skipped,
	}
	if st.SaveError != nil {
		out.SaveError = &dto.SaveErrorInfo{
			Code:    pkgerrors.OnboardingSaveFailed.Code,
			Message: pkgerrors.OnboardingSaveFailed.Message,
		}
	}
	return out
}

func stepInfo(index int, d wizard.Descriptor) dto.StepInfo {
	fields := d.Renderer.Fields()
	if fields == nil {
		fields = []string{}
	}
	return dto.StepInfo{ID: d.ID, Title: d.Title, Fields: fields, Index: index}
}

// mapIntakeError 将引擎错误转换为业务错误码
func mapIntakeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wizard.ErrSessionClosed):
		return pkgerrors.IntakeClosed
	case errors.Is(err, wizard.ErrFieldNotOwned), errors.Is(err, draft.ErrUnknownField):
		return pkgerrors.OnboardingFieldNotOwned.WithMessage("%s", err.Error())
	case errors.Is(err, draft.ErrWrongKind):
		return pkgerrors.OnboardingFieldInvalid.WithMessage("%s", err.Error())
	case errors.Is(err, wizard.ErrSaveInFlight):
		return pkgerrors.OnboardingSaveInFlight
	case errors.Is(err, wizard.ErrStepOutOfRange), errors.Is(err, wizard.ErrStepNotReached):
		return pkgerrors.OnboardingStepInvalid.WithMessage("%s", err.Error())
	default:
		return pkgerrors.OnboardingSaveFailed
	}
}
