package services

import (
	"context"
	"fmt"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/pkg/utils"
	"twintalk/pkg/validation"

	"go.uber.org/zap"
)

// MeetingService is the HTTP-facing side of the meeting registry.
type MeetingService struct {
	meetings    ports.MeetingRegistry
	metrics     ports.MetricsRecorder
	logger      *zap.SugaredLogger
	defaultName string
}

func NewMeetingService(
	meetings ports.MeetingRegistry,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	defaultName string,
) *MeetingService {
	return &MeetingService{
		meetings:    meetings,
		metrics:     metrics,
		logger:      logger,
		defaultName: defaultName,
	}
}

func (s *MeetingService) CreateMeeting(ctx context.Context, title, creatorName string) (*domain.MeetingInfo, error) {
	title = utils.SanitizeString(title)
	if err := validation.ValidateMeetingTitle(title); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	creatorName = utils.DisplayNameOr(creatorName, s.defaultName, 64)

	code, err := s.meetings.CreateMeeting(ctx, title, creatorName)
	if err != nil {
		s.logger.Errorw("failed to create meeting", "error", err)
		return nil, err
	}
	s.metrics.MeetingCreated()

	info, err := s.meetings.ValidateMeeting(ctx, code)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("meeting created",
		"meeting_code", code,
		"title", info.Title,
		"creator", creatorName,
	)
	return info, nil
}

func (s *MeetingService) ValidateMeeting(ctx context.Context, code domain.MeetingCode) (*domain.MeetingInfo, error) {
	code = domain.NormalizeMeetingCode(string(code))
	if err := validation.ValidateMeetingCode(string(code)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return s.meetings.ValidateMeeting(ctx, code)
}
