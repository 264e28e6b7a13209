package model

import "gorm.io/datatypes"

// ClientProfile 完成引导后聚合出的客户画像，供教练匹配使用
type ClientProfile struct {
	BaseModel
	IntakeID int64 `gorm:"uniqueIndex;not null" json:"intake_id"`

	CoachingType     string                      `gorm:"type:varchar(32);not null;index:idx_client_profiles_coaching_type" json:"coaching_type"`
	Motivation       string                      `gorm:"type:text;not null;default:''" json:"motivation"`
	CoachPreferences datatypes.JSONSlice[string] `gorm:"type:jsonb;default:'[]'" json:"coach_preferences"`

	AgeRange           string `gorm:"type:varchar(32);not null;default:''" json:"age_range"`
	Gender             string `gorm:"type:varchar(32);not null;default:''" json:"gender"`
	Occupation         string `gorm:"type:varchar(128);not null;default:''" json:"occupation"`
	RelationshipStatus string `gorm:"type:varchar(32);not null;default:''" json:"relationship_status"`
	LivingArrangement  string `gorm:"type:varchar(64);not null;default:''" json:"living_arrangement"`

	Goals        string                      `gorm:"type:text;not null;default:''" json:"goals"`
	FocusAreas   datatypes.JSONSlice[string] `gorm:"type:jsonb;default:'[]'" json:"focus_areas"`
	CrisisFlag   bool                        `gorm:"not null;default:false;index:idx_client_profiles_crisis" json:"crisis_flag"`
	PriorSupport string                      `gorm:"type:text;not null;default:''" json:"prior_support"`

	SessionFrequency string                      `gorm:"type:varchar(16);not null;default:''" json:"session_frequency"`
	PreferredTimes   datatypes.JSONSlice[string] `gorm:"type:jsonb;default:'[]'" json:"preferred_times"`
	PreferredDays    datatypes.JSONSlice[string] `gorm:"type:jsonb;default:'[]'" json:"preferred_days"`
	Timezone         string                      `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	SessionChannel   string                      `gorm:"type:varchar(16);not null;default:''" json:"session_channel"`

	TermsAccepted   bool `gorm:"not null;default:false" json:"terms_accepted"`
	PrivacyAccepted bool `gorm:"not null;default:false" json:"privacy_accepted"`
}

// TableName 指定表名
func (ClientProfile) TableName() string {
	return "client_profiles"
}
