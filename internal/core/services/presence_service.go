package services

import (
	"context"
	"errors"
	"time"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"

	"go.uber.org/zap"
)

type PresenceConfig struct {
	IdleThreshold time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// PresenceService ties connection lifetime to meeting membership. Every exit
// path, explicit leave or transport loss, goes through leaveMeeting so peers
// see one peer-left per departure.
type PresenceService struct {
	conns      ports.ConnectionRegistry
	meetings   ports.MeetingRegistry
	recordings ports.RecordingService
	metrics    ports.MetricsRecorder
	out        *fanout
	logger     *zap.SugaredLogger
	cfg        PresenceConfig
}

func NewPresenceService(
	conns ports.ConnectionRegistry,
	meetings ports.MeetingRegistry,
	recordings ports.RecordingService,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	cfg PresenceConfig,
) *PresenceService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PresenceService{
		conns:      conns,
		meetings:   meetings,
		recordings: recordings,
		metrics:    metrics,
		out:        &fanout{conns: conns, notifier: notifier, logger: logger},
		logger:     logger,
		cfg:        cfg,
	}
}

func (s *PresenceService) Connect(ctx context.Context, id domain.ConnectionID, attrs domain.DisplayAttrs) {
	s.conns.Register(ctx, id, attrs)
	s.metrics.ConnectionOpened()
	s.logger.Debugw("connection registered", "connection_id", id, "user_id", attrs.UserID)
}

// Disconnect removes the connection and its membership. Only the first call
// for a connection has any effect.
func (s *PresenceService) Disconnect(ctx context.Context, id domain.ConnectionID) bool {
	conn, ok := s.conns.Remove(ctx, id)
	if !ok {
		return false
	}
	s.metrics.ConnectionClosed()

	if conn.InMeeting() {
		if _, err := s.LeaveMeeting(ctx, conn.MeetingCode, id); err != nil {
			s.logger.Warnw("failed to leave meeting on disconnect",
				"connection_id", id,
				"meeting_code", conn.MeetingCode,
				"error", err,
			)
		}
	}

	s.logger.Infow("connection closed",
		"connection_id", id,
		"meeting_code", conn.MeetingCode,
		"duration", s.cfg.Now().Sub(conn.ConnectedAt).String(),
	)
	return true
}

// Leave takes the connection out of its current meeting and keeps it registered.
func (s *PresenceService) Leave(ctx context.Context, id domain.ConnectionID) (*domain.LeaveResult, error) {
	code, ok := s.conns.ClearRoom(ctx, id)
	if !ok {
		return nil, domain.ErrNotMember
	}
	return s.LeaveMeeting(ctx, code, id)
}

// LeaveMeeting removes id from the meeting and tells whoever remains. When the
// meeting empties, its recording is finalized.
func (s *PresenceService) LeaveMeeting(ctx context.Context, code domain.MeetingCode, id domain.ConnectionID) (*domain.LeaveResult, error) {
	res, err := s.meetings.Leave(ctx, code, id)
	if err != nil {
		if errors.Is(err, domain.ErrMeetingNotFound) {
			return &domain.LeaveResult{}, nil
		}
		return nil, err
	}
	if !res.Removed {
		return res, nil
	}

	s.out.broadcast(ctx, res.Remaining, id, domain.PeerLeftEvent{
		PeerID: id,
		Name:   res.Member.DisplayName,
	})
	s.out.publishParticipants(ctx, code, res.Remaining)

	if res.NewHost != "" {
		s.logger.Infow("host reassigned", "meeting_code", code, "host", res.NewHost)
	}

	if res.MeetingRemoved {
		s.metrics.MeetingRemoved("empty")
		s.stopRecording(ctx, code)
		s.logger.Infow("meeting removed", "meeting_code", code, "reason", "empty")
	}

	s.logger.Debugw("connection left meeting",
		"connection_id", id,
		"meeting_code", code,
		"remaining", len(res.Remaining),
	)
	return res, nil
}

// Run sweeps idle meetings until ctx is done.
func (s *PresenceService) Run(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 || s.cfg.IdleThreshold <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep removes meetings created before the idle threshold that have no
// members and returns how many were removed.
func (s *PresenceService) Sweep(ctx context.Context) int {
	removed := s.meetings.SweepIdle(ctx, s.cfg.Now().Add(-s.cfg.IdleThreshold))
	for _, code := range removed {
		s.metrics.MeetingRemoved("idle")
		s.stopRecording(ctx, code)
	}
	if len(removed) > 0 {
		s.metrics.IdleMeetingsSwept(len(removed))
		s.logger.Infow("idle meetings swept", "count", len(removed))
	}
	return len(removed)
}

func (s *PresenceService) stopRecording(ctx context.Context, code domain.MeetingCode) {
	session, err := s.recordings.StopRoom(ctx, code)
	if err != nil {
		if !errors.Is(err, domain.ErrRecordingNotFound) {
			s.logger.Warnw("failed to stop recording", "meeting_code", code, "error", err)
		}
		return
	}
	s.logger.Infow("recording stopped with meeting",
		"recording_id", session.ID,
		"meeting_code", code,
		"size", session.Size,
	)
}
