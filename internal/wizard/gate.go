package wizard

import "WholeWellness/internal/draft"

// Renderer 步骤与引擎之间的窄接口：声明拥有的字段，并根据字段值给出是否有效
type Renderer interface {
	Fields() []string
	Valid(slice draft.Data) bool
}

// Noticer 可选接口，返回不影响导航的提示（例如危机求助资源）
type Noticer interface {
	Notice(slice draft.Data) []string
}

// Gate 接收步骤上报的有效性
type Gate interface {
	OnValidChange(valid bool)
}

// Step 用函数快速构造 Renderer
type Step struct {
	ValidFunc  func(slice draft.Data) bool
	NoticeFunc func(slice draft.Data) []string
	Owned      []string
}

func (s Step) Fields() []string {
	return s.Owned
}

func (s Step) Valid(slice draft.Data) bool {
	if s.ValidFunc == nil {
		return true
	}
	return s.ValidFunc(slice)
}

func (s Step) Notice(slice draft.Data) []string {
	if s.NoticeFunc == nil {
		return nil
	}
	return s.NoticeFunc(slice)
}

// mount 按当前字段值重新计算有效性并上报给 gate
func mount(r Renderer, store *draft.Store, gate Gate) {
	gate.OnValidChange(r.Valid(store.Slice(r.Fields())))
}
