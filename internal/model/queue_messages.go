package model

// IntakeCompletedMessage 引导完成消息，worker 据此生成客户画像
type IntakeCompletedMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	CompletedAt string `json:"completed_at"`
	IntakeID    int64  `json:"intake_id"`
	Step        int    `json:"step"`
}
