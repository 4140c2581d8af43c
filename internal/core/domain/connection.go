package domain

import "time"

type ConnectionID string
type UserID string

// Connection is a live transport session. Only the connection registry owns it;
// meetings refer to it by ID.
type Connection struct {
	ID          ConnectionID
	UserID      UserID
	DisplayName string
	MeetingCode MeetingCode
	Avatar      AvatarState
	ConnectedAt time.Time
}

type AvatarState struct {
	Enabled bool
	URL     string
}

// DisplayAttrs are the attributes a connection presents inside a meeting.
type DisplayAttrs struct {
	UserID      UserID
	DisplayName string
	Avatar      AvatarState
}

func (c *Connection) InMeeting() bool {
	return c.MeetingCode != ""
}
