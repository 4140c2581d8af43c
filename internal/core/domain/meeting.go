package domain

import (
	"strings"
	"time"
)

type MeetingCode string

// NormalizeMeetingCode trims and upper-cases a code typed by hand.
func NormalizeMeetingCode(code string) MeetingCode {
	return MeetingCode(strings.ToUpper(strings.TrimSpace(code)))
}

// Matches reports whether other names the same meeting, ignoring case.
// An empty other matches any meeting.
func (c MeetingCode) Matches(other MeetingCode) bool {
	return other == "" || NormalizeMeetingCode(string(other)) == c
}

type JoinPolicy string

const (
	// JoinPolicyStrict rejects joins for codes that were never created.
	JoinPolicyStrict JoinPolicy = "strict"
	// JoinPolicyPermissive creates the meeting on first join.
	JoinPolicyPermissive JoinPolicy = "permissive"
)

type Meeting struct {
	Code        MeetingCode
	Title       string
	CreatorName string
	CreatedAt   time.Time
	HostID      ConnectionID
	Members     []Member // join order
}

type Member struct {
	ConnectionID ConnectionID
	DisplayName  string
	JoinedAt     time.Time
}

type Participant struct {
	ID     ConnectionID
	Name   string
	IsHost bool
}

type MeetingInfo struct {
	Code             MeetingCode `json:"code"`
	Title            string      `json:"title"`
	CreatorName      string      `json:"creatorName"`
	ParticipantCount int         `json:"participantCount"`
	CreatedAt        time.Time   `json:"createdAt"`
}

type JoinResult struct {
	// Others are the members present before this join, in join order.
	Others   []Participant
	IsHost   bool
	Rejoined bool
	Created  bool
}

type LeaveResult struct {
	Removed        bool
	Member         Member
	Remaining      []Participant
	MeetingRemoved bool
	// NewHost is set when the departing member was host and someone was promoted.
	NewHost ConnectionID
}

// Participants projects the member list with host flags.
func (m *Meeting) Participants() []Participant {
	out := make([]Participant, 0, len(m.Members))
	for _, member := range m.Members {
		out = append(out, Participant{
			ID:     member.ConnectionID,
			Name:   member.DisplayName,
			IsHost: member.ConnectionID == m.HostID,
		})
	}
	return out
}

func (m *Meeting) IndexOf(id ConnectionID) int {
	for i, member := range m.Members {
		if member.ConnectionID == id {
			return i
		}
	}
	return -1
}

func (m *Meeting) Info() *MeetingInfo {
	return &MeetingInfo{
		Code:             m.Code,
		Title:            m.Title,
		CreatorName:      m.CreatorName,
		ParticipantCount: len(m.Members),
		CreatedAt:        m.CreatedAt,
	}
}
