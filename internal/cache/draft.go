package cache

import (
	"context"
	"strconv"
	"time"

	"WholeWellness/config"
)

// CachedDraft 草稿缓存的值，Data 反序列化后集合字段为 []interface{}
type CachedDraft struct {
	SavedAt  time.Time              `json:"saved_at"`
	Data     map[string]interface{} `json:"data"`
	Status   string                 `json:"status"`
	IntakeID int64                  `json:"intake_id"`
	Step     int                    `json:"step"`
	Furthest int                    `json:"furthest"`
}

// DraftProtectedCache 草稿写穿缓存，恢复会话时优先读取
var DraftProtectedCache = NewProtectedCache("intake:draft", config.Cfg.IntakeDraftCacheTTL)

func draftKey(intakeID int64) string {
	return strconv.FormatInt(intakeID, 10)
}

// SetDraft 写入草稿缓存
func SetDraft(ctx context.Context, d *CachedDraft) error {
	return DraftProtectedCache.Set(ctx, draftKey(d.IntakeID), d)
}

// SetDraftMissing 记录不存在的 intake，短时间内不再回源
func SetDraftMissing(ctx context.Context, intakeID int64) error {
	return DraftProtectedCache.Set(ctx, draftKey(intakeID), nil)
}

// GetDraft 读取草稿缓存；found 为 false 表示未命中，空值命中返回 ErrEmptyValue
func GetDraft(ctx context.Context, intakeID int64) (*CachedDraft, bool, error) {
	var d CachedDraft
	found, err := DraftProtectedCache.Get(ctx, draftKey(intakeID), &d)
	if err != nil || !found {
		return nil, found, err
	}
	return &d, true, nil
}

// DeleteDraft 删除草稿缓存
func DeleteDraft(ctx context.Context, intakeID int64) error {
	return DraftProtectedCache.Delete(ctx, draftKey(intakeID))
}
