// Package intake 定义客户引导问卷的八个步骤及其字段规则。
package intake

import "WholeWellness/internal/draft"

// 草稿字段名
const (
	FieldCoachingType     = "coaching_type"
	FieldMotivation       = "motivation"
	FieldCoachPreferences = "coach_preferences"

	FieldAgeRange           = "age_range"
	FieldGender             = "gender"
	FieldOccupation         = "occupation"
	FieldRelationshipStatus = "relationship_status"
	FieldLivingArrangement  = "living_arrangement"

	FieldGoals        = "goals"
	FieldFocusAreas   = "focus_areas"
	FieldCrisisFlag   = "crisis_flag"
	FieldPriorSupport = "prior_support"

	FieldSessionFrequency = "session_frequency"
	FieldPreferredTimes   = "preferred_times"
	FieldPreferredDays    = "preferred_days"
	FieldTimezone         = "timezone"

	FieldSessionChannel = "session_channel"

	FieldTermsAccepted   = "terms_accepted"
	FieldPrivacyAccepted = "privacy_accepted"
)

// Schema 所有字段的取值类型，用于解码 HTTP 请求体
var Schema = draft.Schema{
	FieldCoachingType:     draft.KindString,
	FieldMotivation:       draft.KindString,
	FieldCoachPreferences: draft.KindSet,

	FieldAgeRange:           draft.KindString,
	FieldGender:             draft.KindString,
	FieldOccupation:         draft.KindString,
	FieldRelationshipStatus: draft.KindString,
	FieldLivingArrangement:  draft.KindString,

	FieldGoals:        draft.KindString,
	FieldFocusAreas:   draft.KindSet,
	FieldCrisisFlag:   draft.KindBool,
	FieldPriorSupport: draft.KindString,

	FieldSessionFrequency: draft.KindString,
	FieldPreferredTimes:   draft.KindSet,
	FieldPreferredDays:    draft.KindSet,
	FieldTimezone:         draft.KindString,

	FieldSessionChannel: draft.KindString,

	FieldTermsAccepted:   draft.KindBool,
	FieldPrivacyAccepted: draft.KindBool,
}

// 枚举取值
var (
	CoachingTypes      = []string{"individual", "couples", "family", "group", "career", "wellness"}
	SessionFrequencies = []string{"weekly", "biweekly", "monthly"}
	SessionChannels    = []string{"video", "phone", "chat"}
)

const (
	MinMotivationLength = 20
	MinGoalsLength      = 10

	// NoticeCrisisResources 危机标记只触发求助资源展示，不阻止前进
	NoticeCrisisResources = "crisis_resources"
)
