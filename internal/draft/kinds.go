package draft

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownField = errors.New("draft: unknown field")
	ErrWrongKind    = errors.New("draft: value has the wrong kind")
)

// Kind 字段取值类型
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Coerce 把 JSON 解码得到的值转换为 kind 对应的 Go 类型。
// []any 会被转成 []string 并去重，nil 集合转为空集合。
func (k Kind) Coerce(v any) (any, error) {
	switch k {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindSet:
		switch s := v.(type) {
		case nil:
			return []string{}, nil
		case []string:
			return NormalizeSet(s), nil
		case []any:
			out := make([]string, 0, len(s))
			for _, item := range s {
				str, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: want %s, got element %T", ErrWrongKind, k, item)
				}
				out = append(out, str)
			}
			return NormalizeSet(out), nil
		}
	}
	return nil, fmt.Errorf("%w: want %s, got %T", ErrWrongKind, k, v)
}

// Schema 字段名到类型的映射
type Schema map[string]Kind

// Coerce 校验并转换 partial 中的每个字段，任一失败则整体失败
func (s Schema) Coerce(partial map[string]any) (Data, error) {
	out := make(Data, len(partial))
	for field, v := range partial {
		kind, ok := s[field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		cv, err := kind.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		out[field] = cv
	}
	return out, nil
}

// Decode 宽松转换已保存的草稿：未知字段或类型不符的字段被丢弃并返回其名称
func (s Schema) Decode(raw map[string]any) (Data, []string) {
	out := make(Data, len(raw))
	var dropped []string
	for field, v := range raw {
		kind, ok := s[field]
		if !ok {
			dropped = append(dropped, field)
			continue
		}
		cv, err := kind.Coerce(v)
		if err != nil {
			dropped = append(dropped, field)
			continue
		}
		out[field] = cv
	}
	sort.Strings(dropped)
	return out, dropped
}
