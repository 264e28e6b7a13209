package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"WholeWellness/internal/model/dto"
	"WholeWellness/internal/service"
	"WholeWellness/pkg/errors"
	"WholeWellness/pkg/response"
	"WholeWellness/pkg/snowflake"
)

// IntakeAPI 引导问卷服务在 HTTP 层可见的操作
type IntakeAPI interface {
	Start(ctx context.Context) (*dto.IntakeState, error)
	Get(ctx context.Context, intakeID int64) (*dto.IntakeState, error)
	Update(ctx context.Context, intakeID int64, partial map[string]interface{}) (*dto.IntakeState, error)
	Toggle(ctx context.Context, intakeID int64, field, value string) (*dto.ToggleIntakeFieldData, error)
	Save(ctx context.Context, intakeID int64) (*dto.IntakeState, error)
	Next(ctx context.Context, intakeID int64) (*dto.IntakeState, error)
	Previous(ctx context.Context, intakeID int64) (*dto.IntakeState, error)
	GoTo(ctx context.Context, intakeID int64, req dto.GoToStepRequest) (*dto.IntakeState, error)
	Skip(ctx context.Context, intakeID int64) (*dto.IntakeState, error)
	Steps() dto.StepListData
}

// ProfileAPI 客户画像查询
type ProfileAPI interface {
	GetProfile(ctx context.Context, intakeID int64) (*dto.ClientProfileData, error)
}

// 测试中替换
var (
	intakeService  = func() IntakeAPI { return service.Intake() }
	profileService = func() ProfileAPI { return service.Profile() }
)

func parseIntakeID(c *app.RequestContext) (int64, error) {
	id, err := snowflake.ParseString(c.Param("intake_id"))
	if err != nil {
		return 0, errors.InvalidIntakeID
	}
	return id, nil
}

// intakeAction 解析 intake_id 后执行无请求体的操作
func intakeAction(op func(svc IntakeAPI, ctx context.Context, intakeID int64) (*dto.IntakeState, error)) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		intakeID, err := parseIntakeID(c)
		if err != nil {
			response.Error(ctx, c, err)
			return
		}

		result, err := op(intakeService(), ctx, intakeID)
		if err != nil {
			response.Error(ctx, c, err)
			return
		}

		response.Success(ctx, c, result)
	}
}

// StartIntake 开启新的引导问卷
// POST /v1/intakes
func StartIntake(ctx context.Context, c *app.RequestContext) {
	result, err := intakeService().Start(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, result)
}

// GetIntake 查询会话状态及当前步骤的字段
// GET /v1/intakes/:intake_id
var GetIntake = intakeAction(IntakeAPI.Get)

// UpdateIntakeData 合并当前步骤的字段
// PATCH /v1/intakes/:intake_id/data
func UpdateIntakeData(ctx context.Context, c *app.RequestContext) {
	intakeID, err := parseIntakeID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	var req dto.UpdateIntakeDataRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if len(req.Data) == 0 {
		response.Error(ctx, c, errors.InvalidRequest.WithMessage("data must not be empty"))
		return
	}

	result, err := intakeService().Update(ctx, intakeID, req.Data)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// ToggleIntakeField 切换多选字段中的一个取值
// POST /v1/intakes/:intake_id/toggle
func ToggleIntakeField(ctx context.Context, c *app.RequestContext) {
	intakeID, err := parseIntakeID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	var req dto.ToggleIntakeFieldRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Field == "" || req.Value == "" {
		response.Error(ctx, c, errors.InvalidRequest.WithMessage("field and value are required"))
		return
	}

	result, err := intakeService().Toggle(ctx, intakeID, req.Field, req.Value)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// SaveIntake 显式保存进度
// POST /v1/intakes/:intake_id/save
var SaveIntake = intakeAction(IntakeAPI.Save)

// NextStep 校验并前进，保存失败时 outcome 为 save_failed
// POST /v1/intakes/:intake_id/next
var NextStep = intakeAction(IntakeAPI.Next)

// PreviousStep 后退一步
// POST /v1/intakes/:intake_id/previous
var PreviousStep = intakeAction(IntakeAPI.Previous)

// GoToStep 跳转到已到达过的步骤
// POST /v1/intakes/:intake_id/goto
func GoToStep(ctx context.Context, c *app.RequestContext) {
	intakeID, err := parseIntakeID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	var req dto.GoToStepRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Step == nil && req.StepID == "" {
		response.Error(ctx, c, errors.InvalidRequest.WithMessage("step or step_id is required"))
		return
	}

	result, err := intakeService().GoTo(ctx, intakeID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// SkipIntake 跳过引导
// POST /v1/intakes/:intake_id/skip
var SkipIntake = intakeAction(IntakeAPI.Skip)

// ListSteps 列出全部步骤
// GET /v1/intakes/steps
func ListSteps(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, intakeService().Steps())
}

// GetIntakeProfile 查询完成后生成的客户画像
// GET /v1/intakes/:intake_id/profile
func GetIntakeProfile(ctx context.Context, c *app.RequestContext) {
	intakeID, err := parseIntakeID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := profileService().GetProfile(ctx, intakeID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}
