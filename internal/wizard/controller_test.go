package wizard

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"WholeWellness/internal/draft"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingPersister 记录每次持久化的快照，可按需失败
type recordingPersister struct {
	mu    sync.Mutex
	snaps []draft.Snapshot
	err   error
}

func (p *recordingPersister) Persist(_ context.Context, snap draft.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return p.err
}

func (p *recordingPersister) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func (p *recordingPersister) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// blockingPersister 在 release 关闭前阻塞，用于观察保存进行中的状态
type blockingPersister struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingPersister() *blockingPersister {
	return &blockingPersister{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (p *blockingPersister) Persist(ctx context.Context, _ draft.Snapshot) error {
	p.started <- struct{}{}
	<-p.release
	return p.err
}

// testRegistry: 0 always valid, 1 requires name, 2 requires tags, 3 always valid
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Descriptor{ID: "intro", Renderer: Step{}},
		Descriptor{ID: "name", Renderer: Step{
			Owned:     []string{"name"},
			ValidFunc: func(d draft.Data) bool { return d.String("name") != "" },
		}},
		Descriptor{ID: "tags", Renderer: Step{
			Owned:     []string{"tags", "urgent"},
			ValidFunc: func(d draft.Data) bool { return len(d.Strings("tags")) > 0 },
			NoticeFunc: func(d draft.Data) []string {
				if d.Bool("urgent") {
					return []string{"urgent_help"}
				}
				return nil
			},
		}},
		Descriptor{ID: "done", Renderer: Step{}},
	)
	require.NoError(t, err)
	return r
}

func newTestController(t *testing.T, p draft.Persister, opts ...Option) *Controller {
	t.Helper()
	return NewController(testRegistry(t), draft.NewStore(1, p, nil), opts...)
}

func TestNewRegistryRejectsContractViolations(t *testing.T) {
	_, err := NewRegistry()
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	_, err = NewRegistry(Descriptor{ID: "a", Renderer: Step{}}, Descriptor{ID: "a", Renderer: Step{}})
	assert.ErrorIs(t, err, ErrDuplicateStep)

	_, err = NewRegistry(
		Descriptor{ID: "a", Renderer: Step{Owned: []string{"x"}}},
		Descriptor{ID: "b", Renderer: Step{Owned: []string{"x"}}},
	)
	assert.ErrorIs(t, err, ErrFieldOwnedTwice)

	_, err = NewRegistry(Descriptor{ID: "a"})
	assert.ErrorIs(t, err, ErrNilRenderer)

	assert.Panics(t, func() { MustRegistry() })
}

func TestRegistryLookups(t *testing.T) {
	r := testRegistry(t)

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, "tags", r.At(2).ID)

	i, ok := r.Index("name")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	owner, ok := r.Owner("urgent")
	assert.True(t, ok)
	assert.Equal(t, 2, owner)

	_, ok = r.Owner("unknown")
	assert.False(t, ok)
	assert.Len(t, r.Steps(), 4)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0, 8))
	assert.Equal(t, 100.0, Progress(7, 8))
	assert.Equal(t, 100.0, Progress(0, 1))
	assert.InDelta(t, 100.0/7*3, Progress(3, 8), 1e-9)
	assert.Equal(t, 0.0, Progress(-1, 8))
	assert.Equal(t, 100.0, Progress(9, 8))

	prev := -1.0
	for i := 0; i < 8; i++ {
		p := Progress(i, 8)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestNextStepInvalidNeverPersists(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p, WithStartStep(1))

	assert.False(t, c.IsValid())
	assert.Equal(t, OutcomeInvalid, c.NextStep(context.Background()))
	assert.Equal(t, 1, c.CurrentStep())
	assert.Zero(t, p.calls())
}

func TestNextStepPersistsWholeDraftThenAdvances(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p)
	ctx := context.Background()

	require.Equal(t, OutcomeAdvanced, c.NextStep(ctx))
	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))
	require.Equal(t, OutcomeAdvanced, c.NextStep(ctx))
	require.NoError(t, c.UpdateData(draft.Data{"tags": []string{"sleep"}}))
	require.Equal(t, OutcomeAdvanced, c.NextStep(ctx))

	assert.Equal(t, 3, c.CurrentStep())
	require.Equal(t, 3, p.calls())

	want := draft.Data{"name": "Ada", "tags": []string{"sleep"}}
	if diff := cmp.Diff(want, p.snaps[2].Data); diff != "" {
		t.Fatalf("persisted snapshot mismatch (-want +got):\n%s", diff)
	}
	// 快照记录保存成功后所在的步骤，恢复时直接落在这里
	assert.Equal(t, 3, p.snaps[2].Step)
	assert.Equal(t, 3, p.snaps[2].Furthest)
}

func TestNextStepFailureLeavesIndexThenRetrySucceeds(t *testing.T) {
	boom := errors.New("storage unavailable")
	p := &recordingPersister{err: boom}
	c := newTestController(t, p, WithStartStep(1))
	ctx := context.Background()
	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))

	assert.Equal(t, OutcomeSaveFailed, c.NextStep(ctx))
	assert.Equal(t, 1, c.CurrentStep())
	assert.ErrorIs(t, c.SaveError(), boom)
	assert.False(t, c.IsLoading())
	assert.Equal(t, draft.Data{"name": "Ada"}, c.Draft())

	p.setErr(nil)
	assert.Equal(t, OutcomeAdvanced, c.NextStep(ctx))
	assert.Equal(t, 2, c.CurrentStep())
	assert.NoError(t, c.SaveError())
	assert.Equal(t, 2, p.calls())
	assert.Equal(t, p.snaps[0].Data, p.snaps[1].Data)
}

func TestIndexStaysInBounds(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0:
			c.PreviousStep()
		case 1, 2:
			step := c.CurrentStep()
			if step == 1 {
				_ = c.UpdateData(draft.Data{"name": "x"})
			}
			if step == 2 {
				_ = c.UpdateData(draft.Data{"tags": []string{"a"}})
			}
			if step < c.TotalSteps()-1 {
				c.NextStep(ctx)
			}
		case 3:
			_, _ = c.GoToStep(ctx, rng.Intn(c.TotalSteps()))
		}
		cur := c.CurrentStep()
		require.GreaterOrEqual(t, cur, 0)
		require.Less(t, cur, c.TotalSteps())
	}
}

func TestPreviousStepFromZeroStaysAtZero(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p)

	assert.Equal(t, OutcomeNoop, c.PreviousStep())
	assert.Equal(t, 0, c.CurrentStep())
	assert.Zero(t, p.calls())
}

func TestPreviousStepIsEffectFree(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p, WithStartStep(2))

	assert.Equal(t, OutcomeMoved, c.PreviousStep())
	assert.Equal(t, 1, c.CurrentStep())
	assert.Zero(t, p.calls())
	// 回到需要填写的步骤时重新计算有效性
	assert.False(t, c.IsValid())
}

func TestUpdateDataRejectsForeignFields(t *testing.T) {
	c := newTestController(t, &recordingPersister{}, WithStartStep(1))

	err := c.UpdateData(draft.Data{"name": "Ada", "tags": []string{"x"}})
	assert.ErrorIs(t, err, ErrFieldNotOwned)
	assert.Empty(t, c.Draft(), "nothing may be applied on a contract violation")

	assert.ErrorIs(t, c.UpdateData(draft.Data{"nope": "x"}), ErrFieldNotOwned)
}

func TestValidityRederivedOnEveryUpdate(t *testing.T) {
	c := newTestController(t, &recordingPersister{}, WithStartStep(1))

	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))
	assert.True(t, c.IsValid())
	require.NoError(t, c.UpdateData(draft.Data{"name": ""}))
	assert.False(t, c.IsValid())
}

func TestOnValidChangeGate(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p)
	var gate Gate = c

	gate.OnValidChange(false)
	assert.Equal(t, OutcomeInvalid, c.NextStep(context.Background()))
	assert.Zero(t, p.calls())

	gate.OnValidChange(true)
	assert.Equal(t, OutcomeAdvanced, c.NextStep(context.Background()))
}

func TestToggleIsAtomicAndIdempotentTwice(t *testing.T) {
	c := newTestController(t, &recordingPersister{}, WithStartStep(2))

	got, err := c.Toggle("tags", "sleep")
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep"}, got)
	assert.True(t, c.IsValid())

	got, err = c.Toggle("tags", "sleep")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, c.IsValid())

	_, err = c.Toggle("name", "x")
	assert.ErrorIs(t, err, ErrFieldNotOwned)
}

func TestNoticesDoNotGate(t *testing.T) {
	c := newTestController(t, &recordingPersister{}, WithStartStep(2))
	require.NoError(t, c.UpdateData(draft.Data{"urgent": true, "tags": []string{"stress"}}))

	st := c.State()
	assert.Equal(t, []string{"urgent_help"}, st.Notices)
	assert.True(t, st.IsValid)
	assert.Equal(t, OutcomeAdvanced, c.NextStep(context.Background()))
}

func TestSingleSaveInFlight(t *testing.T) {
	p := newBlockingPersister()
	c := newTestController(t, p, WithStartStep(1))
	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- c.NextStep(ctx) }()
	<-p.started

	assert.True(t, c.IsLoading())
	assert.Equal(t, OutcomeBusy, c.NextStep(ctx))
	assert.ErrorIs(t, c.SaveProgress(ctx), ErrSaveInFlight)

	// 保存进行中允许后退，且不等待保存
	assert.Equal(t, OutcomeMoved, c.PreviousStep())
	assert.Equal(t, 0, c.CurrentStep())

	close(p.release)
	// 保存已落库，但用户已经离开发起的步骤，不再前进
	assert.Equal(t, OutcomeStale, <-done)
	assert.False(t, c.IsLoading())
	assert.Equal(t, 0, c.CurrentStep())
	assert.Equal(t, 1, c.State().Furthest)
}

func TestNextStepStaleWhenStepInvalidatedDuringSave(t *testing.T) {
	p := newBlockingPersister()
	c := newTestController(t, p, WithStartStep(1))
	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- c.NextStep(ctx) }()
	<-p.started

	require.NoError(t, c.UpdateData(draft.Data{"name": ""}))
	close(p.release)

	assert.Equal(t, OutcomeStale, <-done)
	assert.Equal(t, 1, c.CurrentStep())
	assert.False(t, c.IsValid())
	assert.Equal(t, OutcomeInvalid, c.NextStep(ctx))
}

func TestNextStepDoesNotSkipStepInvalidatedAfterGoingBack(t *testing.T) {
	p := newBlockingPersister()
	store := draft.NewStore(1, p, draft.Data{"name": "Ada", "tags": []string{"sleep"}})
	handed := 0
	c := NewController(testRegistry(t), store,
		WithStartStep(2),
		WithHandoff(HandoffFunc(func(context.Context, draft.Snapshot) error {
			handed++
			return nil
		})),
	)
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- c.NextStep(ctx) }()
	<-p.started

	require.Equal(t, OutcomeMoved, c.PreviousStep())
	require.NoError(t, c.UpdateData(draft.Data{"name": ""}))
	close(p.release)

	assert.Equal(t, OutcomeStale, <-done)
	assert.Equal(t, 1, c.CurrentStep())
	assert.False(t, c.Completed())

	// 无效步骤不能被向前跳转绕过
	out, err := c.GoToStep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, out)
	assert.Equal(t, 1, c.CurrentStep())
	assert.Zero(t, handed)
}

func TestFinalStepStaleDoesNotComplete(t *testing.T) {
	p := newBlockingPersister()
	handed := 0
	c := newTestController(t, p,
		WithStartStep(3),
		WithHandoff(HandoffFunc(func(context.Context, draft.Snapshot) error {
			handed++
			return nil
		})),
	)
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- c.NextStep(ctx) }()
	<-p.started

	require.Equal(t, OutcomeMoved, c.PreviousStep())
	close(p.release)

	assert.Equal(t, OutcomeStale, <-done)
	assert.False(t, c.Completed())
	assert.Equal(t, 2, c.CurrentStep())
	assert.Zero(t, handed)
}

func TestFinalStepEditedDuringSaveMustResubmit(t *testing.T) {
	reg, err := NewRegistry(
		Descriptor{ID: "intro", Renderer: Step{}},
		Descriptor{ID: "consent", Renderer: Step{
			Owned:     []string{"agree", "note"},
			ValidFunc: func(d draft.Data) bool { return d.Bool("agree") },
		}},
	)
	require.NoError(t, err)

	p := newBlockingPersister()
	var handed []draft.Snapshot
	c := NewController(reg, draft.NewStore(1, p, draft.Data{"agree": true}),
		WithStartStep(1),
		WithHandoff(HandoffFunc(func(_ context.Context, snap draft.Snapshot) error {
			handed = append(handed, snap)
			return nil
		})),
	)
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() { done <- c.NextStep(ctx) }()
	<-p.started

	require.NoError(t, c.UpdateData(draft.Data{"note": "evenings only"}))
	close(p.release)
	assert.Equal(t, OutcomeStale, <-done)
	assert.False(t, c.Completed())
	assert.Empty(t, handed)

	// 再次提交时交接的快照包含保存期间的修改
	go func() { done <- c.NextStep(ctx) }()
	<-p.started
	assert.Equal(t, OutcomeCompleted, <-done)
	require.Len(t, handed, 1)
	assert.Equal(t, "evenings only", handed[0].Data.String("note"))
}

func TestSaveProgressIsIdempotent(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p, WithStartStep(1))
	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))
	ctx := context.Background()

	require.NoError(t, c.SaveProgress(ctx))
	require.NoError(t, c.SaveProgress(ctx))

	require.Equal(t, 2, p.calls())
	assert.Equal(t, p.snaps[0].Data, p.snaps[1].Data)
	assert.Equal(t, 1, c.CurrentStep())
}

func TestFinalStepHandsOffExactlyOnce(t *testing.T) {
	p := &recordingPersister{}
	var handed []draft.Snapshot
	c := newTestController(t, p,
		WithStartStep(3),
		WithHandoff(HandoffFunc(func(_ context.Context, snap draft.Snapshot) error {
			handed = append(handed, snap)
			return nil
		})),
	)
	ctx := context.Background()

	assert.Equal(t, OutcomeCompleted, c.NextStep(ctx))
	assert.True(t, c.Completed())
	assert.Equal(t, 3, c.CurrentStep())
	assert.Equal(t, 100.0, c.Progress())

	assert.Equal(t, OutcomeCompleted, c.NextStep(ctx))
	assert.Len(t, handed, 1)
	assert.Equal(t, 1, p.calls(), "completed sessions are not persisted again")

	assert.ErrorIs(t, c.UpdateData(draft.Data{}), ErrSessionClosed)
	assert.ErrorIs(t, c.SaveProgress(ctx), ErrSessionClosed)
	assert.Equal(t, OutcomeNoop, c.PreviousStep())
}

func TestFinalStepFailedSaveDoesNotHandOff(t *testing.T) {
	p := &recordingPersister{err: errors.New("down")}
	handed := 0
	c := newTestController(t, p,
		WithStartStep(3),
		WithHandoff(HandoffFunc(func(context.Context, draft.Snapshot) error {
			handed++
			return nil
		})),
	)

	assert.Equal(t, OutcomeSaveFailed, c.NextStep(context.Background()))
	assert.False(t, c.Completed())
	assert.Zero(t, handed)
}

func TestHandoffErrorStillCompletes(t *testing.T) {
	c := newTestController(t, &recordingPersister{},
		WithStartStep(3),
		WithHandoff(HandoffFunc(func(context.Context, draft.Snapshot) error {
			return errors.New("broker down")
		})),
	)

	assert.Equal(t, OutcomeCompleted, c.NextStep(context.Background()))
	assert.True(t, c.Completed())
}

func TestGoToStep(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p)
	ctx := context.Background()

	_, err := c.GoToStep(ctx, 4)
	assert.ErrorIs(t, err, ErrStepOutOfRange)
	_, err = c.GoToStep(ctx, -1)
	assert.ErrorIs(t, err, ErrStepOutOfRange)

	_, err = c.GoToStep(ctx, 2)
	assert.ErrorIs(t, err, ErrStepNotReached)

	require.Equal(t, OutcomeAdvanced, c.NextStep(ctx))
	require.NoError(t, c.UpdateData(draft.Data{"name": "Ada"}))
	require.Equal(t, OutcomeAdvanced, c.NextStep(ctx))
	calls := p.calls()

	out, err := c.GoToStep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMoved, out)
	assert.Equal(t, calls, p.calls(), "backward jumps never persist")

	out, err = c.GoToStep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)

	out, err = c.GoToStep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMoved, out)
	assert.Equal(t, 2, c.CurrentStep())
	assert.Equal(t, calls+1, p.calls())

	assert.Equal(t, 2, p.snaps[len(p.snaps)-1].Step)

	// 当前步骤无效时不能向前跳
	_, err = c.GoToStep(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.UpdateData(draft.Data{"name": ""}))
	out, err = c.GoToStep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, out)
	assert.Equal(t, 1, c.CurrentStep())
}

func TestSkipIsUnconditional(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p, WithStartStep(1))

	assert.True(t, c.Skip())
	assert.True(t, c.Skipped())
	assert.False(t, c.Skip())
	assert.Zero(t, p.calls())
	assert.Equal(t, OutcomeNoop, c.NextStep(context.Background()))
	assert.ErrorIs(t, c.UpdateData(draft.Data{"name": "x"}), ErrSessionClosed)
}

func TestSkipDuringPendingSaveWins(t *testing.T) {
	p := newBlockingPersister()
	c := newTestController(t, p)

	done := make(chan Outcome, 1)
	go func() { done <- c.NextStep(context.Background()) }()
	<-p.started

	assert.True(t, c.Skip())
	close(p.release)
	assert.Equal(t, OutcomeNoop, <-done)
	assert.Equal(t, 0, c.CurrentStep())
}

func TestHydrationResumesAndRemounts(t *testing.T) {
	reg := testRegistry(t)
	store := draft.NewStore(9, &recordingPersister{}, draft.Data{"name": "Ada"})

	c := NewController(reg, store, WithStartStep(1))
	assert.Equal(t, 1, c.CurrentStep())
	assert.True(t, c.IsValid())

	c = NewController(reg, store, WithStartStep(99))
	assert.Equal(t, 3, c.CurrentStep())

	c = NewController(reg, store, WithStartStep(-3))
	assert.Equal(t, 0, c.CurrentStep())

	c = NewController(reg, store, WithStartStep(1), WithFurthest(2))
	assert.Equal(t, 2, c.State().Furthest)
	c = NewController(reg, store, WithStartStep(2), WithFurthest(0))
	assert.Equal(t, 2, c.State().Furthest, "furthest never trails the current step")
	c = NewController(reg, store, WithFurthest(42))
	assert.Equal(t, 3, c.State().Furthest)
}

func TestGoToForwardChecksEveryStepOnTheWay(t *testing.T) {
	p := &recordingPersister{}
	c := newTestController(t, p, WithFurthest(3))
	ctx := context.Background()

	out, err := c.GoToStep(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, out)
	assert.Equal(t, 0, c.CurrentStep())
	assert.Zero(t, p.calls())

	out, err = c.GoToStep(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMoved, out)
	require.Equal(t, 1, p.calls())
	assert.Equal(t, 1, p.snaps[0].Step)
	assert.Equal(t, 3, p.snaps[0].Furthest)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "save_failed", OutcomeSaveFailed.String())
	assert.Equal(t, "stale", OutcomeStale.String())
	assert.Equal(t, "unknown", Outcome(42).String())
	assert.True(t, OutcomeAdvanced.Moved())
	assert.False(t, OutcomeBusy.Moved())
}

func TestResumedCompletedSessionNeverHandsOffAgain(t *testing.T) {
	p := &recordingPersister{}
	handed := 0
	c := newTestController(t, p,
		WithStartStep(3),
		WithCompleted(),
		WithHandoff(HandoffFunc(func(context.Context, draft.Snapshot) error {
			handed++
			return nil
		})),
	)

	assert.Equal(t, OutcomeCompleted, c.NextStep(context.Background()))
	assert.Zero(t, handed)
	assert.Zero(t, p.calls())
	assert.True(t, c.State().Completed)
}
