package wizard

// Outcome 一次导航请求的结果
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeAdvanced
	OutcomeMoved
	OutcomeCompleted
	OutcomeInvalid
	OutcomeBusy
	OutcomeSaveFailed
	// OutcomeStale 保存成功，但保存期间会话已后退或数据已变为无效，未前进
	OutcomeStale
)

var outcomeNames = map[Outcome]string{
	OutcomeNoop:       "noop",
	OutcomeAdvanced:   "advanced",
	OutcomeMoved:      "moved",
	OutcomeCompleted:  "completed",
	OutcomeInvalid:    "invalid",
	OutcomeBusy:       "busy",
	OutcomeSaveFailed: "save_failed",
	OutcomeStale:      "stale",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Moved 索引是否发生了变化
func (o Outcome) Moved() bool {
	return o == OutcomeAdvanced || o == OutcomeMoved
}
