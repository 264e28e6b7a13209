package intake

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	// 容器镜像里可能没有系统时区库
	_ "time/tzdata"

	"WholeWellness/internal/draft"
	"WholeWellness/internal/wizard"
)

func textAtLeast(d draft.Data, field string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(d.String(field))) >= n
}

func present(d draft.Data, field string) bool {
	return strings.TrimSpace(d.String(field)) != ""
}

func oneOf(d draft.Data, field string, allowed []string) bool {
	return slices.Contains(allowed, d.String(field))
}

func validTimezone(tz string) bool {
	if strings.TrimSpace(tz) == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

var welcomeStep = wizard.Step{}

var coachingNeedStep = wizard.Step{
	Owned: []string{FieldCoachingType, FieldMotivation, FieldCoachPreferences},
	ValidFunc: func(d draft.Data) bool {
		return oneOf(d, FieldCoachingType, CoachingTypes) &&
			textAtLeast(d, FieldMotivation, MinMotivationLength)
	},
}

var aboutYouStep = wizard.Step{
	Owned: []string{FieldAgeRange, FieldGender, FieldOccupation, FieldRelationshipStatus, FieldLivingArrangement},
	ValidFunc: func(d draft.Data) bool {
		return present(d, FieldAgeRange) && present(d, FieldGender)
	},
}

var goalsStep = wizard.Step{
	Owned: []string{FieldGoals, FieldFocusAreas, FieldCrisisFlag, FieldPriorSupport},
	ValidFunc: func(d draft.Data) bool {
		return textAtLeast(d, FieldGoals, MinGoalsLength) && len(d.Strings(FieldFocusAreas)) > 0
	},
	NoticeFunc: func(d draft.Data) []string {
		if d.Bool(FieldCrisisFlag) {
			return []string{NoticeCrisisResources}
		}
		return nil
	},
}

var schedulingStep = wizard.Step{
	Owned: []string{FieldSessionFrequency, FieldPreferredTimes, FieldPreferredDays, FieldTimezone},
	ValidFunc: func(d draft.Data) bool {
		return oneOf(d, FieldSessionFrequency, SessionFrequencies) &&
			len(d.Strings(FieldPreferredTimes)) > 0 &&
			len(d.Strings(FieldPreferredDays)) > 0 &&
			validTimezone(d.String(FieldTimezone))
	},
}

var sessionChannelStep = wizard.Step{
	Owned: []string{FieldSessionChannel},
	ValidFunc: func(d draft.Data) bool {
		return oneOf(d, FieldSessionChannel, SessionChannels)
	},
}

var consentStep = wizard.Step{
	Owned: []string{FieldTermsAccepted, FieldPrivacyAccepted},
	ValidFunc: func(d draft.Data) bool {
		return d.Bool(FieldTermsAccepted) && d.Bool(FieldPrivacyAccepted)
	},
}

var reviewStep = wizard.Step{}
