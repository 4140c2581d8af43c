package ports

import (
	"context"
	"time"

	"twintalk/internal/core/domain"
)

// ConnectionRegistry is the source of truth for who is reachable right now.
// Values returned are copies; callers never hold a live record.
type ConnectionRegistry interface {
	Register(ctx context.Context, id domain.ConnectionID, attrs domain.DisplayAttrs)
	SetRoom(ctx context.Context, id domain.ConnectionID, code domain.MeetingCode, attrs domain.DisplayAttrs) error
	SetAvatar(ctx context.Context, id domain.ConnectionID, avatar domain.AvatarState) (domain.Connection, error)
	ClearRoom(ctx context.Context, id domain.ConnectionID) (domain.MeetingCode, bool)
	ClearRoomIf(ctx context.Context, id domain.ConnectionID, code domain.MeetingCode) bool
	Get(ctx context.Context, id domain.ConnectionID) (domain.Connection, error)
	Remove(ctx context.Context, id domain.ConnectionID) (domain.Connection, bool)
	Count(ctx context.Context) int
}

// MeetingRegistry owns meeting lifecycle and membership. Mutations are
// serialized per meeting; meetings never lock each other.
type MeetingRegistry interface {
	CreateMeeting(ctx context.Context, title, creatorName string) (domain.MeetingCode, error)
	ValidateMeeting(ctx context.Context, code domain.MeetingCode) (*domain.MeetingInfo, error)
	Join(ctx context.Context, code domain.MeetingCode, member domain.Member) (*domain.JoinResult, error)
	Leave(ctx context.Context, code domain.MeetingCode, id domain.ConnectionID) (*domain.LeaveResult, error)
	Members(ctx context.Context, code domain.MeetingCode) ([]domain.Participant, error)
	Exists(ctx context.Context, code domain.MeetingCode) bool
	// BeginEnd marks the meeting as ending and returns the members to notify.
	// Only the host may end a meeting.
	BeginEnd(ctx context.Context, code domain.MeetingCode, requester domain.ConnectionID) ([]domain.Participant, error)
	// Drain removes a meeting and returns whoever was still a member.
	Drain(ctx context.Context, code domain.MeetingCode) ([]domain.Member, error)
	SweepIdle(ctx context.Context, createdBefore time.Time) []domain.MeetingCode
	Count(ctx context.Context) int
}
