package intake

import "WholeWellness/internal/wizard"

// 步骤 ID
const (
	StepWelcome        = "welcome"
	StepCoachingNeed   = "coaching_need"
	StepAboutYou       = "about_you"
	StepGoals          = "goals"
	StepScheduling     = "scheduling"
	StepSessionChannel = "session_channel"
	StepConsent        = "consent"
	StepReview         = "review"
)

var registry = wizard.MustRegistry(
	wizard.Descriptor{ID: StepWelcome, Title: "Welcome", Renderer: welcomeStep},
	wizard.Descriptor{ID: StepCoachingNeed, Title: "What brings you here", Renderer: coachingNeedStep},
	wizard.Descriptor{ID: StepAboutYou, Title: "About you", Renderer: aboutYouStep},
	wizard.Descriptor{ID: StepGoals, Title: "Your goals", Renderer: goalsStep},
	wizard.Descriptor{ID: StepScheduling, Title: "Scheduling", Renderer: schedulingStep},
	wizard.Descriptor{ID: StepSessionChannel, Title: "Session format", Renderer: sessionChannelStep},
	wizard.Descriptor{ID: StepConsent, Title: "Consent", Renderer: consentStep},
	// 最后一步的 NextStep 即完成注册
	wizard.Descriptor{ID: StepReview, Title: "Review & complete registration", Renderer: reviewStep},
)

// Registry 客户引导的八步注册表，进程内共享且不可变
func Registry() *wizard.Registry {
	return registry
}
