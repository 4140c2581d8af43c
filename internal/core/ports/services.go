package ports

import (
	"context"

	"twintalk/internal/core/domain"
)

// Notifier delivers one event to one connection. Delivery is at-most-once.
type Notifier interface {
	Send(ctx context.Context, to domain.ConnectionID, event domain.OutboundEvent) error
}

type MessageDispatcher interface {
	Dispatch(ctx context.Context, from domain.ConnectionID, msg domain.InboundMessage) error
	Reject(ctx context.Context, from domain.ConnectionID, event domain.EventName, err error)
}

type PresenceService interface {
	Connect(ctx context.Context, id domain.ConnectionID, attrs domain.DisplayAttrs)
	// Disconnect is safe to call more than once; only the first call has effects.
	Disconnect(ctx context.Context, id domain.ConnectionID) bool
	Leave(ctx context.Context, id domain.ConnectionID) (*domain.LeaveResult, error)
	LeaveMeeting(ctx context.Context, code domain.MeetingCode, id domain.ConnectionID) (*domain.LeaveResult, error)
}

type MeetingService interface {
	CreateMeeting(ctx context.Context, title, creatorName string) (*domain.MeetingInfo, error)
	ValidateMeeting(ctx context.Context, code domain.MeetingCode) (*domain.MeetingInfo, error)
}

type RecordingService interface {
	Start(ctx context.Context, code domain.MeetingCode, owner domain.ConnectionID, id domain.RecordingID) (*domain.RecordingSession, error)
	AppendChunk(ctx context.Context, id domain.RecordingID, data []byte, isLast bool) (*domain.RecordingSession, error)
	Finalize(ctx context.Context, id domain.RecordingID) (*domain.RecordingSession, error)
	Stop(ctx context.Context, id domain.RecordingID) (*domain.RecordingSession, error)
	StopRoom(ctx context.Context, code domain.MeetingCode) (*domain.RecordingSession, error)
	Get(ctx context.Context, id domain.RecordingID) (*domain.RecordingSession, error)
	Artifact(ctx context.Context, id domain.RecordingID) ([]byte, *domain.RecordingSession, error)
}

type MetricsRecorder interface {
	ConnectionOpened()
	ConnectionClosed()
	MeetingCreated()
	MeetingRemoved(reason string)
	MessageHandled(event domain.EventName, outcome string)
	RelayUnreachable()
	RecordingStarted()
	RecordingFinalized(sizeBytes int64, durationSeconds float64)
	ChunkReceived(sizeBytes int)
	IdleMeetingsSwept(n int)
}
