package draft

import "sort"

// Toggle 切换集合成员：存在则移除，不存在则追加。对同一值连续切换两次恢复原集合。
func Toggle(set []string, value string) []string {
	out := make([]string, 0, len(set)+1)
	removed := false
	for _, v := range set {
		if v == value {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		out = append(out, value)
	}
	return out
}

// NormalizeSet 去重并保持首次出现的顺序
func NormalizeSet(set []string) []string {
	if set == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(set))
	out := make([]string, 0, len(set))
	for _, v := range set {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SetEqual 按集合语义比较，忽略顺序和重复
func SetEqual(a, b []string) bool {
	a, b = sortedUnique(a), sortedUnique(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedUnique(s []string) []string {
	out := NormalizeSet(s)
	sort.Strings(out)
	return out
}
