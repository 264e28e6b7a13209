package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WholeWellness/internal/model/dto"
	"WholeWellness/pkg/errors"
)

const knownID int64 = 1893456789012345678

type fakeIntakes struct {
	updated map[string]interface{}
	goTo    dto.GoToStepRequest
	calls   []string
}

func (f *fakeIntakes) state(id int64, outcome string) *dto.IntakeState {
	return &dto.IntakeState{IntakeID: strconv.FormatInt(id, 10), Outcome: outcome, TotalSteps: 8}
}

func (f *fakeIntakes) lookup(id int64, op string) (*dto.IntakeState, error) {
	f.calls = append(f.calls, op)
	if id != knownID {
		return nil, errors.IntakeNotFound
	}
	return f.state(id, ""), nil
}

func (f *fakeIntakes) Start(context.Context) (*dto.IntakeState, error) {
	f.calls = append(f.calls, "start")
	return f.state(knownID, ""), nil
}

func (f *fakeIntakes) Get(_ context.Context, id int64) (*dto.IntakeState, error) {
	return f.lookup(id, "get")
}

func (f *fakeIntakes) Update(_ context.Context, id int64, partial map[string]interface{}) (*dto.IntakeState, error) {
	f.updated = partial
	if _, ok := partial["motivation"]; ok {
		return nil, errors.OnboardingFieldNotOwned.WithMessage("field %q is not owned by step %q", "motivation", "basics")
	}
	return f.lookup(id, "update")
}

func (f *fakeIntakes) Toggle(_ context.Context, id int64, field, value string) (*dto.ToggleIntakeFieldData, error) {
	f.calls = append(f.calls, "toggle")
	return &dto.ToggleIntakeFieldData{Field: field, Values: []string{value}}, nil
}

func (f *fakeIntakes) Save(_ context.Context, id int64) (*dto.IntakeState, error) {
	return f.lookup(id, "save")
}

func (f *fakeIntakes) Next(_ context.Context, id int64) (*dto.IntakeState, error) {
	f.calls = append(f.calls, "next")
	return f.state(id, "save_failed"), nil
}

func (f *fakeIntakes) Previous(_ context.Context, id int64) (*dto.IntakeState, error) {
	return f.lookup(id, "previous")
}

func (f *fakeIntakes) GoTo(_ context.Context, id int64, req dto.GoToStepRequest) (*dto.IntakeState, error) {
	f.goTo = req
	return f.lookup(id, "goto")
}

func (f *fakeIntakes) Skip(_ context.Context, id int64) (*dto.IntakeState, error) {
	f.calls = append(f.calls, "skip")
	return nil, errors.IntakeClosed
}

func (f *fakeIntakes) Steps() dto.StepListData {
	return dto.StepListData{Steps: []dto.StepInfo{{ID: "welcome"}}, Total: 1}
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfile(_ context.Context, id int64) (*dto.ClientProfileData, error) {
	if id != knownID {
		return nil, errors.ProfileNotFound
	}
	return &dto.ClientProfileData{IntakeID: strconv.FormatInt(id, 10), CoachingType: "life"}, nil
}

func newTestServer(t *testing.T) (*server.Hertz, *fakeIntakes) {
	t.Helper()
	fake := &fakeIntakes{}

	prevIntake, prevProfile := intakeService, profileService
	intakeService = func() IntakeAPI { return fake }
	profileService = func() ProfileAPI { return fakeProfiles{} }
	t.Cleanup(func() {
		intakeService, profileService = prevIntake, prevProfile
	})

	h := server.New()
	v1 := h.Group("/v1/intakes")
	v1.POST("", StartIntake)
	v1.GET("/steps", ListSteps)
	v1.GET("/:intake_id", GetIntake)
	v1.GET("/:intake_id/profile", GetIntakeProfile)
	v1.PATCH("/:intake_id/data", UpdateIntakeData)
	v1.POST("/:intake_id/toggle", ToggleIntakeField)
	v1.POST("/:intake_id/save", SaveIntake)
	v1.POST("/:intake_id/next", NextStep)
	v1.POST("/:intake_id/previous", PreviousStep)
	v1.POST("/:intake_id/goto", GoToStep)
	v1.POST("/:intake_id/skip", SkipIntake)
	return h, fake
}

func perform(h *server.Hertz, method, url, body string) (int, map[string]interface{}) {
	reqBody := &ut.Body{Body: bytes.NewBufferString(body), Len: len(body)}
	w := ut.PerformRequest(h.Engine, method, url, reqBody, ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()

	var decoded map[string]interface{}
	_ = json.Unmarshal(resp.Body(), &decoded)
	return resp.StatusCode(), decoded
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func intakeURL(id int64, suffix string) string {
	return "/v1/intakes/" + strconv.FormatInt(id, 10) + suffix
}

func TestStartIntakeReturnsCreated(t *testing.T) {
	h, fake := newTestServer(t)

	status, body := perform(h, http.MethodPost, "/v1/intakes", "")
	assert.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, strconv.FormatInt(knownID, 10), data["intake_id"])
	assert.Equal(t, []string{"start"}, fake.calls)
}

func TestGetIntake(t *testing.T) {
	h, _ := newTestServer(t)

	status, _ := perform(h, http.MethodGet, intakeURL(knownID, ""), "")
	assert.Equal(t, http.StatusOK, status)

	status, body := perform(h, http.MethodGet, intakeURL(42, ""), "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errors.IntakeNotFound.Code, errorCode(body))

	status, body = perform(h, http.MethodGet, "/v1/intakes/not-a-number", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.InvalidIntakeID.Code, errorCode(body))
}

func TestListStepsIsNotShadowedByIntakeID(t *testing.T) {
	h, fake := newTestServer(t)

	status, body := perform(h, http.MethodGet, "/v1/intakes/steps", "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])
	assert.Empty(t, fake.calls)
}

func TestUpdateIntakeData(t *testing.T) {
	h, fake := newTestServer(t)

	status, _ := perform(h, http.MethodPatch, intakeURL(knownID, "/data"), `{"data":{"first_name":"Ada"}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"first_name": "Ada"}, fake.updated)

	status, body := perform(h, http.MethodPatch, intakeURL(knownID, "/data"), `{"data":{"motivation":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.OnboardingFieldNotOwned.Code, errorCode(body))

	status, body = perform(h, http.MethodPatch, intakeURL(knownID, "/data"), `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.InvalidRequest.Code, errorCode(body))

	status, body = perform(h, http.MethodPatch, intakeURL(knownID, "/data"), `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.InvalidRequest.Code, errorCode(body))
}

func TestToggleIntakeField(t *testing.T) {
	h, _ := newTestServer(t)

	status, body := perform(h, http.MethodPost, intakeURL(knownID, "/toggle"), `{"field":"focus_areas","value":"sleep"}`)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "focus_areas", data["field"])
	assert.Equal(t, []interface{}{"sleep"}, data["values"])

	status, _ = perform(h, http.MethodPost, intakeURL(knownID, "/toggle"), `{"field":"focus_areas"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNextStepReportsOutcomeWithOK(t *testing.T) {
	h, _ := newTestServer(t)

	status, body := perform(h, http.MethodPost, intakeURL(knownID, "/next"), "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "save_failed", data["outcome"])
}

func TestGoToStep(t *testing.T) {
	h, fake := newTestServer(t)

	status, _ := perform(h, http.MethodPost, intakeURL(knownID, "/goto"), `{"step_id":"goals"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "goals", fake.goTo.StepID)
	assert.Nil(t, fake.goTo.Step)

	status, _ = perform(h, http.MethodPost, intakeURL(knownID, "/goto"), `{"step":2}`)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, fake.goTo.Step)
	assert.Equal(t, 2, *fake.goTo.Step)

	status, body := perform(h, http.MethodPost, intakeURL(knownID, "/goto"), `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.InvalidRequest.Code, errorCode(body))
}

func TestSkipClosedIntakeConflicts(t *testing.T) {
	h, _ := newTestServer(t)

	status, body := perform(h, http.MethodPost, intakeURL(knownID, "/skip"), "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errors.IntakeClosed.Code, errorCode(body))
}

func TestSaveAndPrevious(t *testing.T) {
	h, fake := newTestServer(t)

	status, _ := perform(h, http.MethodPost, intakeURL(knownID, "/save"), "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = perform(h, http.MethodPost, intakeURL(knownID, "/previous"), "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"save", "previous"}, fake.calls)
}

func TestGetIntakeProfile(t *testing.T) {
	h, _ := newTestServer(t)

	status, body := perform(h, http.MethodGet, intakeURL(knownID, "/profile"), "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "life", data["coaching_type"])

	status, body = perform(h, http.MethodGet, intakeURL(7, "/profile"), "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errors.ProfileNotFound.Code, errorCode(body))
}
