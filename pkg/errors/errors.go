package errors

import "fmt"

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// WithMessage 复制一份 Definition 并替换信息，错误码保持不变。
func (d Definition) WithMessage(format string, args ...interface{}) Definition {
	return Definition{Code: d.Code, Message: fmt.Sprintf(format, args...)}
}

// Is 让 errors.Is 按错误码比较，便于 WithMessage 之后仍能匹配。
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError   = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 引导问卷会话错误。
var (
	InvalidIntakeID = Definition{Code: "INVALID_INTAKE_ID", Message: "Invalid intake ID format"}
	IntakeNotFound  = Definition{Code: "INTAKE_NOT_FOUND", Message: "Intake not found"}
	IntakeClosed    = Definition{Code: "INTAKE_CLOSED", Message: "Intake already completed or abandoned"}
	ProfileNotFound = Definition{Code: "PROFILE_NOT_FOUND", Message: "Client profile not ready"}
)

// 引导流程错误。
var (
	OnboardingStepInvalid   = Definition{Code: "ONBOARDING_STEP_INVALID", Message: "Onboarding step invalid"}
	OnboardingFieldNotOwned = Definition{Code: "ONBOARDING_FIELD_NOT_OWNED", Message: "Field is not owned by the active step"}
	OnboardingFieldInvalid  = Definition{Code: "ONBOARDING_FIELD_INVALID", Message: "Field value has the wrong type"}
	OnboardingSaveInFlight  = Definition{Code: "ONBOARDING_SAVE_IN_FLIGHT", Message: "A save is already in progress"}
	OnboardingSaveFailed    = Definition{Code: "ONBOARDING_SAVE_FAILED", Message: "Failed to save progress"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:          InvalidRequest,
	TooManyRequests.Code:         TooManyRequests,
	InternalError.Code:           InternalError,
	InvalidIntakeID.Code:         InvalidIntakeID,
	IntakeNotFound.Code:          IntakeNotFound,
	IntakeClosed.Code:            IntakeClosed,
	OnboardingStepInvalid.Code:   OnboardingStepInvalid,
	OnboardingFieldNotOwned.Code: OnboardingFieldNotOwned,
	OnboardingFieldInvalid.Code:  OnboardingFieldInvalid,
	OnboardingSaveInFlight.Code:  OnboardingSaveInFlight,
	OnboardingSaveFailed.Code:    OnboardingSaveFailed,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// SkipMessageError 表示消息已被处理过，消费者应当直接 ack 而不是重新入队。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}
