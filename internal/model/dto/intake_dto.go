package dto

import "time"

// ========== Intake 相关 DTO ==========

// IntakeState 引导会话状态，附带当前步骤拥有字段的取值
type IntakeState struct {
	Step        StepInfo               `json:"step"`
	Data        map[string]interface{} `json:"data"`
	SaveError   *SaveErrorInfo         `json:"save_error,omitempty"`
	IntakeID    string                 `json:"intake_id"`
	Outcome     string                 `json:"outcome,omitempty"`
	Notices     []string               `json:"notices"`
	CurrentStep int                    `json:"current_step"`
	TotalSteps  int                    `json:"total_steps"`
	Furthest    int                    `json:"furthest_step"`
	Progress    float64                `json:"progress"`
	IsLoading   bool                   `json:"is_loading"`
	IsValid     bool                   `json:"is_valid"`
	Completed   bool                   `json:"completed"`
	Skipped     bool                   `json:"skipped"`
}

// StepInfo 步骤描述
type StepInfo struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
	Index  int      `json:"index"`
}

// SaveErrorInfo 最近一次保存失败的信息
type SaveErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UpdateIntakeDataRequest 更新当前步骤字段
type UpdateIntakeDataRequest struct {
	Data map[string]interface{} `json:"data"`
}

// ToggleIntakeFieldRequest 切换集合字段中的某个取值
type ToggleIntakeFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ToggleIntakeFieldData 切换后的集合
type ToggleIntakeFieldData struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// GoToStepRequest 跳转请求，step 与 step_id 二选一
type GoToStepRequest struct {
	Step   *int   `json:"step"`
	StepID string `json:"step_id"`
}

// StepListData 步骤列表
type StepListData struct {
	Steps []StepInfo `json:"steps"`
	Total int        `json:"total"`
}

// ClientProfileData 客户画像
type ClientProfileData struct {
	CreatedAt        time.Time `json:"created_at"`
	IntakeID         string    `json:"intake_id"`
	CoachingType     string    `json:"coaching_type"`
	SessionFrequency string    `json:"session_frequency"`
	SessionChannel   string    `json:"session_channel"`
	Timezone         string    `json:"timezone"`
	FocusAreas       []string  `json:"focus_areas"`
	PreferredDays    []string  `json:"preferred_days"`
	PreferredTimes   []string  `json:"preferred_times"`
	CrisisFlag       bool      `json:"crisis_flag"`
}
