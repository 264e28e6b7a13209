package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"WholeWellness/internal/draft"
)

var (
	ErrFieldNotOwned  = errors.New("wizard: field not owned by the active step")
	ErrSaveInFlight   = errors.New("wizard: a save is already in flight")
	ErrStepOutOfRange = errors.New("wizard: step index out of range")
	ErrStepNotReached = errors.New("wizard: step has not been reached yet")
	ErrSessionClosed  = errors.New("wizard: session already completed or skipped")
)

// Handoff 最后一步保存成功后接收完整草稿的下游协作方
type Handoff interface {
	Handoff(ctx context.Context, snap draft.Snapshot) error
}

type HandoffFunc func(ctx context.Context, snap draft.Snapshot) error

func (f HandoffFunc) Handoff(ctx context.Context, snap draft.Snapshot) error {
	return f(ctx, snap)
}

// Recorder 导航与保存的指标上报，pkg/metrics.WizardMetrics 实现了它
type Recorder interface {
	RecordTransition(ctx context.Context, action, outcome string)
	RecordSave(ctx context.Context, step int, duration time.Duration, err error)
	RecordHandoff(ctx context.Context, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(context.Context, string, string)      {}
func (nopRecorder) RecordSave(context.Context, int, time.Duration, error) {}
func (nopRecorder) RecordHandoff(context.Context, error)                  {}

// State 控制器状态快照
type State struct {
	SaveError   error
	Notices     []string
	CurrentStep int
	TotalSteps  int
	Furthest    int
	Progress    float64
	IsLoading   bool
	IsValid     bool
	Completed   bool
	Skipped     bool
}

type Option func(*Controller)

func WithHandoff(h Handoff) Option {
	return func(c *Controller) { c.handoff = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithStartStep 从已保存的步骤恢复，越界时被截断到合法范围
func WithStartStep(step int) Option {
	return func(c *Controller) { c.current = step }
}

// WithFurthest 恢复已到达过的最远步骤，不会小于起始步骤
func WithFurthest(step int) Option {
	return func(c *Controller) { c.furthest = step }
}

// WithCompleted 恢复一个已完成注册的会话，不会再次交接
func WithCompleted() Option {
	return func(c *Controller) {
		c.completed = true
		c.handedOff = true
	}
}

// Controller 一个引导会话的状态机。
// 状态由 mu 保护，持久化调用期间不持锁，isLoading 保证同一时刻最多一次保存。
type Controller struct {
	handoff Handoff
	rec     Recorder
	saveErr error
	reg     *Registry
	store   *draft.Store
	log     *zap.Logger

	mu        sync.Mutex
	current   int
	furthest  int
	rev       uint64
	valid     bool
	loading   bool
	completed bool
	skipped   bool
	handedOff bool
}

func NewController(reg *Registry, store *draft.Store, opts ...Option) *Controller {
	c := &Controller{
		reg:   reg,
		store: store,
		log:   zap.NewNop(),
		rec:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.current = clamp(c.current, 0, reg.Len()-1)
	c.furthest = clamp(c.furthest, c.current, reg.Len()-1)
	c.mountLocked()
	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OnValidChange 实现 Gate
func (c *Controller) OnValidChange(valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = valid
}

// gateFunc 让 mount 在已持锁时直接写入
type gateFunc func(bool)

func (f gateFunc) OnValidChange(v bool) { f(v) }

func (c *Controller) mountLocked() {
	mount(c.reg.At(c.current).Renderer, c.store, gateFunc(func(v bool) { c.valid = v }))
}

// firstInvalidLocked 返回 [from, to) 中第一个无效步骤，全部有效时返回 -1
func (c *Controller) firstInvalidLocked(from, to int) int {
	for i := from; i < to; i++ {
		r := c.reg.At(i).Renderer
		if !r.Valid(c.store.Slice(r.Fields())) {
			return i
		}
	}
	return -1
}

func (c *Controller) closedLocked() bool {
	return c.completed || c.skipped
}

func (c *Controller) CurrentStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) TotalSteps() int {
	return c.reg.Len()
}

func (c *Controller) Progress() float64 {
	return Progress(c.CurrentStep(), c.reg.Len())
}

func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

func (c *Controller) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

func (c *Controller) Skipped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// SaveError 最近一次保存的错误，成功后清空
func (c *Controller) SaveError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveErr
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		CurrentStep: c.current,
		TotalSteps:  c.reg.Len(),
		Furthest:    c.furthest,
		Progress:    Progress(c.current, c.reg.Len()),
		IsLoading:   c.loading,
		IsValid:     c.valid,
		Completed:   c.completed,
		Skipped:     c.skipped,
		SaveError:   c.saveErr,
	}
	r := c.reg.At(c.current).Renderer
	if n, ok := r.(Noticer); ok {
		s.Notices = n.Notice(c.store.Slice(r.Fields()))
	}
	return s
}

// Slice 当前步骤拥有字段的取值
func (c *Controller) Slice() draft.Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Slice(c.reg.At(c.current).Renderer.Fields())
}

// Draft 完整草稿副本
func (c *Controller) Draft() draft.Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Data()
}

// UpdateData 同步合并到内存草稿，不做持久化。
// 任一字段不属于当前步骤时整体拒绝。
func (c *Controller) UpdateData(partial draft.Data) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closedLocked() {
		return ErrSessionClosed
	}
	for field := range partial {
		if owner, ok := c.reg.Owner(field); !ok || owner != c.current {
			return fmt.Errorf("%w: %s", ErrFieldNotOwned, field)
		}
	}

	c.store.Merge(partial)
	c.rev++
	c.mountLocked()
	return nil
}

// Toggle 在锁内完成集合字段的读改写
func (c *Controller) Toggle(field, value string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closedLocked() {
		return nil, ErrSessionClosed
	}
	if owner, ok := c.reg.Owner(field); !ok || owner != c.current {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotOwned, field)
	}

	next := draft.Toggle(c.store.Slice([]string{field}).Strings(field), value)
	c.store.Merge(draft.Data{field: next})
	c.rev++
	c.mountLocked()
	return next, nil
}

// beginSave 在锁内拍快照并置 loading，target 是保存成功后会话所在的步骤
func (c *Controller) beginSave(target int) (draft.Snapshot, error) {
	if c.closedLocked() {
		return draft.Snapshot{}, ErrSessionClosed
	}
	if c.loading {
		return draft.Snapshot{}, ErrSaveInFlight
	}
	c.loading = true
	return c.store.Snapshot(target, c.furthest), nil
}

// commit 不持锁执行持久化，结束后清除 loading 并记录错误
func (c *Controller) commit(ctx context.Context, snap draft.Snapshot) error {
	start := time.Now()
	err := c.store.Commit(ctx, snap)
	c.rec.RecordSave(ctx, snap.Step, time.Since(start), err)

	c.mu.Lock()
	c.loading = false
	c.saveErr = err
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("Failed to save intake progress",
			zap.Int("step", snap.Step),
			zap.Error(err),
		)
	}
	return err
}

// SaveProgress 持久化完整草稿，同一时刻最多一次
func (c *Controller) SaveProgress(ctx context.Context) error {
	c.mu.Lock()
	snap, err := c.beginSave(c.current)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.commit(ctx, snap)
}

// NextStep 当前步骤有效且没有保存在进行时，先持久化再前进一步。
// 保存失败不前进，错误通过 SaveError 获取。最后一步保存成功即完成注册，并只交接一次。
// 保存期间用户后退或把当前步骤改为无效时返回 OutcomeStale，索引不变。
func (c *Controller) NextStep(ctx context.Context) Outcome {
	out := c.next(ctx)
	c.rec.RecordTransition(ctx, "next", out.String())
	return out
}

func (c *Controller) next(ctx context.Context) Outcome {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return OutcomeCompleted
	}
	if blocked, out := c.guardForwardLocked(); blocked {
		c.mu.Unlock()
		return out
	}
	from, rev := c.current, c.rev
	last := from == c.reg.Len()-1
	snap, _ := c.beginSave(min(from+1, c.reg.Len()-1))
	c.mu.Unlock()

	if err := c.commit(ctx, snap); err != nil {
		return OutcomeSaveFailed
	}

	c.mu.Lock()
	// 保存期间被 Skip 则放弃前进
	if c.skipped {
		c.mu.Unlock()
		return OutcomeNoop
	}
	// 最后一步交接的是已保存的快照，保存期间的任何修改都要求重新提交
	if c.current != from || c.firstInvalidLocked(from, from+1) >= 0 || (last && c.rev != rev) {
		c.mu.Unlock()
		return OutcomeStale
	}
	if last {
		c.completed = true
		first := !c.handedOff
		c.handedOff = true
		c.mu.Unlock()
		if first {
			c.handOff(ctx, snap)
		}
		return OutcomeCompleted
	}
	c.moveLocked(from + 1)
	c.mu.Unlock()
	return OutcomeAdvanced
}

// guardForwardLocked 前进的前置条件：未关闭、无保存进行、当前步骤有效
func (c *Controller) guardForwardLocked() (bool, Outcome) {
	switch {
	case c.skipped:
		return true, OutcomeNoop
	case c.loading:
		return true, OutcomeBusy
	case !c.valid:
		return true, OutcomeInvalid
	}
	return false, OutcomeNoop
}

func (c *Controller) moveLocked(to int) {
	c.current = clamp(to, 0, c.reg.Len()-1)
	if c.current > c.furthest {
		c.furthest = c.current
	}
	c.mountLocked()
}

func (c *Controller) handOff(ctx context.Context, snap draft.Snapshot) {
	if c.handoff == nil {
		return
	}

	err := c.handoff.Handoff(ctx, snap)
	c.rec.RecordHandoff(ctx, err)
	if err != nil {
		c.log.Error("Intake hand-off failed after final save",
			zap.Int64("intake_id", snap.IntakeID),
			zap.Error(err),
		)
	}
}

// PreviousStep 无条件后退一步，不校验、不持久化，允许在保存进行中调用
func (c *Controller) PreviousStep() Outcome {
	c.mu.Lock()
	out := OutcomeNoop
	if !c.closedLocked() && c.current > 0 {
		c.moveLocked(c.current - 1)
		out = OutcomeMoved
	}
	c.mu.Unlock()

	c.rec.RecordTransition(context.Background(), "previous", out.String())
	return out
}

// GoToStep 向后跳转等同 PreviousStep；向前只能到达过的最远步骤，并遵循 NextStep 的校验和持久化。
// 向前跳转时途经的每个步骤都必须有效
func (c *Controller) GoToStep(ctx context.Context, target int) (Outcome, error) {
	if target < 0 || target >= c.reg.Len() {
		return OutcomeNoop, fmt.Errorf("%w: %d", ErrStepOutOfRange, target)
	}

	out, err := c.goTo(ctx, target)
	c.rec.RecordTransition(ctx, "goto", out.String())
	return out, err
}

func (c *Controller) goTo(ctx context.Context, target int) (Outcome, error) {
	c.mu.Lock()
	if c.closedLocked() {
		c.mu.Unlock()
		return OutcomeNoop, ErrSessionClosed
	}

	from := c.current
	switch {
	case target == from:
		c.mu.Unlock()
		return OutcomeNoop, nil
	case target < from:
		c.moveLocked(target)
		c.mu.Unlock()
		return OutcomeMoved, nil
	case target > c.furthest:
		c.mu.Unlock()
		return OutcomeNoop, fmt.Errorf("%w: %d", ErrStepNotReached, target)
	}

	if blocked, out := c.guardForwardLocked(); blocked {
		c.mu.Unlock()
		return out, nil
	}
	// 跳过的中间步骤同样必须有效
	if c.firstInvalidLocked(from, target) >= 0 {
		c.mu.Unlock()
		return OutcomeInvalid, nil
	}
	snap, _ := c.beginSave(target)
	c.mu.Unlock()

	if err := c.commit(ctx, snap); err != nil {
		return OutcomeSaveFailed, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.skipped {
		return OutcomeNoop, nil
	}
	if c.current != from || c.firstInvalidLocked(from, target) >= 0 {
		return OutcomeStale, nil
	}
	c.moveLocked(target)
	return OutcomeMoved, nil
}

// Skip 放弃引导的侧向出口，没有任何前置条件，也不是状态机中的转移
func (c *Controller) Skip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closedLocked() {
		return false
	}
	c.skipped = true
	return true
}
