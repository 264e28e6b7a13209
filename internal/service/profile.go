package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"WholeWellness/internal/draft"
	"WholeWellness/internal/intake"
	"WholeWellness/internal/model"
	"WholeWellness/internal/model/dto"
	"WholeWellness/internal/repository"
	pkgerrors "WholeWellness/pkg/errors"
	"WholeWellness/pkg/logger"
	"WholeWellness/storage/database"
)

// ProfileService 把已完成的草稿聚合为客户画像
type ProfileService struct {
	repo intakeRepository
}

var (
	profileService *ProfileService
	profileOnce    sync.Once
)

func Profile() *ProfileService {
	profileOnce.Do(func() {
		profileService = &ProfileService{repo: repository.NewIntakeRepository(database.DB())}
	})
	return profileService
}

// BuildProfile 实现 queue.ProfileBuilder，按 intake_id 幂等写入
func (s *ProfileService) BuildProfile(ctx context.Context, intakeID int64) error {
	row, err := s.repo.LoadDraft(ctx, intakeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("intake %d not found", intakeID)}
		}
		return err
	}
	if row.Status == model.IntakeStatusAbandoned {
		return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("intake %d was abandoned", intakeID)}
	}

	data, dropped := intake.Schema.Decode(row.Data)
	if len(dropped) > 0 {
		logger.Ctx(ctx).Warn("Dropped unrecognised draft fields while building profile",
			zap.Int64("intake_id", intakeID),
			zap.Strings("fields", dropped),
		)
	}
	return s.repo.SaveProfile(ctx, buildClientProfile(intakeID, data))
}

// GetProfile 查询画像，worker 尚未处理时返回 ProfileNotFound
func (s *ProfileService) GetProfile(ctx context.Context, intakeID int64) (*dto.ClientProfileData, error) {
	p, err := s.repo.GetProfile(ctx, intakeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ProfileNotFound
		}
		logger.Ctx(ctx).Error("Failed to load client profile",
			zap.Int64("intake_id", intakeID),
			zap.Error(err),
		)
		return nil, pkgerrors.InternalError
	}

	return &dto.ClientProfileData{
		IntakeID:         strconv.FormatInt(p.IntakeID, 10),
		CreatedAt:        p.CreatedAt,
		CoachingType:     p.CoachingType,
		SessionFrequency: p.SessionFrequency,
		SessionChannel:   p.SessionChannel,
		Timezone:         p.Timezone,
		FocusAreas:       nonNil(p.FocusAreas),
		PreferredDays:    nonNil(p.PreferredDays),
		PreferredTimes:   nonNil(p.PreferredTimes),
		CrisisFlag:       p.CrisisFlag,
	}, nil
}

func buildClientProfile(intakeID int64, d draft.Data) *model.ClientProfile {
	tz := d.String(intake.FieldTimezone)
	if tz == "" {
		tz = "UTC"
	}
	return &model.ClientProfile{
		IntakeID: intakeID,

		CoachingType:     d.String(intake.FieldCoachingType),
		Motivation:       d.String(intake.FieldMotivation),
		CoachPreferences: jsonSet(d, intake.FieldCoachPreferences),

		AgeRange:           d.String(intake.FieldAgeRange),
		Gender:             d.String(intake.FieldGender),
		Occupation:         d.String(intake.FieldOccupation),
		RelationshipStatus: d.String(intake.FieldRelationshipStatus),
		LivingArrangement:  d.String(intake.FieldLivingArrangement),

		Goals:        d.String(intake.FieldGoals),
		FocusAreas:   jsonSet(d, intake.FieldFocusAreas),
		CrisisFlag:   d.Bool(intake.FieldCrisisFlag),
		PriorSupport: d.String(intake.FieldPriorSupport),

		SessionFrequency: d.String(intake.FieldSessionFrequency),
		PreferredTimes:   jsonSet(d, intake.FieldPreferredTimes),
		PreferredDays:    jsonSet(d, intake.FieldPreferredDays),
		Timezone:         tz,
		SessionChannel:   d.String(intake.FieldSessionChannel),

		TermsAccepted:   d.Bool(intake.FieldTermsAccepted),
		PrivacyAccepted: d.Bool(intake.FieldPrivacyAccepted),
	}
}

func jsonSet(d draft.Data, field string) datatypes.JSONSlice[string] {
	values := d.Strings(field)
	if values == nil {
		values = []string{}
	}
	return datatypes.NewJSONSlice(values)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
