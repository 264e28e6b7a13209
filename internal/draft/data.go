// Package draft 保存一次引导问卷会话中逐步累积的扁平草稿。
package draft

// Data 字段名到取值的扁平映射，取值只允许 string / bool / []string（集合）。
type Data map[string]any

// Clone 深拷贝切片，防止调用方通过共享底层数组修改草稿
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if s, ok := v.([]string); ok {
		return append([]string(nil), s...)
	}
	return v
}

// String 读取字符串字段，缺失或类型不符时返回空串
func (d Data) String(field string) string {
	s, _ := d[field].(string)
	return s
}

func (d Data) Bool(field string) bool {
	b, _ := d[field].(bool)
	return b
}

// Strings 返回集合字段的副本
func (d Data) Strings(field string) []string {
	s, _ := d[field].([]string)
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Has 字段是否已被写入
func (d Data) Has(field string) bool {
	_, ok := d[field]
	return ok
}
