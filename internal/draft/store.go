package draft

import (
	"context"
	"errors"
	"time"
)

var ErrNoPersister = errors.New("draft: no persister configured")

// Snapshot 一次持久化携带的完整草稿，而不是增量
type Snapshot struct {
	SavedAt  time.Time `json:"saved_at"`
	Data     Data      `json:"data"`
	IntakeID int64     `json:"intake_id"`
	Step     int       `json:"step"`
	Furthest int       `json:"furthest"`
}

// Persister 由外部实现（数据库、缓存等），只需返回成功或失败，重试策略由实现自行决定
type Persister interface {
	Persist(ctx context.Context, snap Snapshot) error
}

// PersistFunc 适配普通函数
type PersistFunc func(ctx context.Context, snap Snapshot) error

func (f PersistFunc) Persist(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// Store 持有单个会话的草稿。
// Store 本身不加锁，由 wizard.Controller 串行化访问。
type Store struct {
	persister Persister
	data      Data
	now       func() time.Time
	intakeID  int64
}

// NewStore 创建草稿，initial 非空时视为从已保存草稿恢复
func NewStore(intakeID int64, persister Persister, initial Data) *Store {
	data := Data{}
	if initial != nil {
		data = initial.Clone()
	}
	return &Store{
		intakeID:  intakeID,
		persister: persister,
		data:      data,
		now:       time.Now,
	}
}

func (s *Store) IntakeID() int64 {
	return s.intakeID
}

// Merge 浅合并：逐键覆盖，集合整体替换而不是并集
func (s *Store) Merge(partial Data) {
	for k, v := range partial {
		s.data[k] = cloneValue(v)
	}
}

// Slice 只返回给定字段，供步骤读取自己的数据
func (s *Store) Slice(fields []string) Data {
	out := make(Data, len(fields))
	for _, f := range fields {
		if v, ok := s.data[f]; ok {
			out[f] = cloneValue(v)
		}
	}
	return out
}

// Data 返回完整草稿副本
func (s *Store) Data() Data {
	return s.data.Clone()
}

// Snapshot 拷贝当前完整草稿。step 是恢复时落在的步骤，furthest 不小于 step
func (s *Store) Snapshot(step, furthest int) Snapshot {
	return Snapshot{
		IntakeID: s.intakeID,
		Step:     step,
		Furthest: max(step, furthest),
		Data:     s.data.Clone(),
		SavedAt:  s.now().UTC(),
	}
}

// Commit 把快照交给 Persister，不修改内存草稿
func (s *Store) Commit(ctx context.Context, snap Snapshot) error {
	if s.persister == nil {
		return ErrNoPersister
	}
	return s.persister.Persist(ctx, snap)
}
