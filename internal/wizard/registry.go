package wizard

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyRegistry   = errors.New("wizard: registry has no steps")
	ErrDuplicateStep   = errors.New("wizard: duplicate step id")
	ErrFieldOwnedTwice = errors.New("wizard: field owned by more than one step")
	ErrNilRenderer     = errors.New("wizard: step has no renderer")
)

// Descriptor 描述一个步骤，本身没有行为
type Descriptor struct {
	Renderer Renderer
	ID       string
	Title    string
}

// Registry 有序且不可变的步骤列表，同时记录每个字段归属的步骤
type Registry struct {
	index  map[string]int
	owners map[string]int
	steps  []Descriptor
}

// NewRegistry 构造注册表。空列表、重复 ID、字段被多个步骤拥有都视为编程错误。
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{
		steps:  append([]Descriptor(nil), descs...),
		index:  make(map[string]int, len(descs)),
		owners: make(map[string]int),
	}
	for i, d := range descs {
		if d.Renderer == nil {
			return nil, fmt.Errorf("%w: %s", ErrNilRenderer, d.ID)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, d.ID)
		}
		r.index[d.ID] = i

		for _, f := range d.Renderer.Fields() {
			if prev, owned := r.owners[f]; owned {
				return nil, fmt.Errorf("%w: %s (steps %s and %s)", ErrFieldOwnedTwice, f, r.steps[prev].ID, d.ID)
			}
			r.owners[f] = i
		}
	}
	return r, nil
}

// MustRegistry 用于包级变量初始化
func MustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Len() int {
	return len(r.steps)
}

func (r *Registry) At(i int) Descriptor {
	return r.steps[i]
}

// Index 按 ID 查找步骤位置
func (r *Registry) Index(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Owner 返回拥有该字段的步骤位置
func (r *Registry) Owner(field string) (int, bool) {
	i, ok := r.owners[field]
	return i, ok
}

// Steps 返回描述符副本
func (r *Registry) Steps() []Descriptor {
	return append([]Descriptor(nil), r.steps...)
}

// Progress 展示用百分比：current/(total-1)*100，只有一步时为 100
func Progress(current, total int) float64 {
	if total <= 1 {
		return 100
	}
	p := float64(current) / float64(total-1) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
