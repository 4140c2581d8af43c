package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"twintalk/internal/core/domain"
	"twintalk/pkg/utils"

	"github.com/samber/lo"
)

type MeetingRegistryConfig struct {
	JoinPolicy   domain.JoinPolicy
	CodeLength   int
	CodeAttempts int
	DefaultTitle string
	// GenerateCode overrides random code generation.
	GenerateCode func() (string, error)
	Now          func() time.Time
}

// meetingEntry serializes all mutations of one meeting. Once removed is set
// it never flips back; a removed entry is only waiting to be dropped from the map.
type meetingEntry struct {
	mu      sync.Mutex
	meeting *domain.Meeting
	removed bool
	closing bool
}

// MeetingRegistry keeps meetings in memory for the process lifetime. The map
// lock and the per-meeting locks are never held together.
type MeetingRegistry struct {
	meetings map[domain.MeetingCode]*meetingEntry
	mu       sync.RWMutex
	cfg      MeetingRegistryConfig
}

func NewMeetingRegistry(cfg MeetingRegistryConfig) *MeetingRegistry {
	if cfg.JoinPolicy == "" {
		cfg.JoinPolicy = domain.JoinPolicyStrict
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = utils.MeetingCodeLength
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 10
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = "Meeting"
	}
	if cfg.GenerateCode == nil {
		length := cfg.CodeLength
		cfg.GenerateCode = func() (string, error) { return utils.GenerateMeetingCode(length) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &MeetingRegistry{
		meetings: make(map[domain.MeetingCode]*meetingEntry),
		cfg:      cfg,
	}
}

func (r *MeetingRegistry) Policy() domain.JoinPolicy {
	return r.cfg.JoinPolicy
}

func (r *MeetingRegistry) CreateMeeting(ctx context.Context, title, creatorName string) (domain.MeetingCode, error) {
	if title == "" {
		title = r.cfg.DefaultTitle
	}

	for attempt := 0; attempt < r.cfg.CodeAttempts; attempt++ {
		raw, err := r.cfg.GenerateCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate meeting code: %w", err)
		}
		code := domain.MeetingCode(raw)

		r.mu.Lock()
		if _, exists := r.meetings[code]; !exists {
			r.meetings[code] = &meetingEntry{meeting: r.newMeeting(code, title, creatorName)}
			r.mu.Unlock()
			return code, nil
		}
		r.mu.Unlock()
	}

	return "", fmt.Errorf("%w after %d attempts", domain.ErrCodeExhausted, r.cfg.CodeAttempts)
}

func (r *MeetingRegistry) ValidateMeeting(ctx context.Context, code domain.MeetingCode) (*domain.MeetingInfo, error) {
	e := r.lookup(code)
	if e == nil {
		return nil, domain.ErrMeetingNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.closing {
		return nil, domain.ErrMeetingNotFound
	}
	return e.meeting.Info(), nil
}

// Join adds member to the meeting. The first member of an empty meeting
// becomes host. Joining again with the same connection only refreshes the
// display name.
func (r *MeetingRegistry) Join(ctx context.Context, code domain.MeetingCode, member domain.Member) (*domain.JoinResult, error) {
	for {
		created := false
		e := r.lookup(code)
		if e == nil {
			if r.cfg.JoinPolicy != domain.JoinPolicyPermissive {
				return nil, domain.ErrMeetingNotFound
			}
			e, created = r.getOrCreate(code, member.DisplayName)
		}

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			if r.cfg.JoinPolicy != domain.JoinPolicyPermissive {
				return nil, domain.ErrMeetingNotFound
			}
			r.deleteIf(code, e)
			continue
		}
		if e.closing {
			e.mu.Unlock()
			return nil, domain.ErrMeetingClosing
		}

		m := e.meeting
		result := &domain.JoinResult{Created: created}
		result.Others = lo.Filter(m.Participants(), func(p domain.Participant, _ int) bool {
			return p.ID != member.ConnectionID
		})

		if idx := m.IndexOf(member.ConnectionID); idx >= 0 {
			m.Members[idx].DisplayName = member.DisplayName
			result.Rejoined = true
		} else {
			if len(m.Members) == 0 {
				m.HostID = member.ConnectionID
			}
			if member.JoinedAt.IsZero() {
				member.JoinedAt = r.cfg.Now()
			}
			m.Members = append(m.Members, member)
		}
		result.IsHost = m.HostID == member.ConnectionID
		e.mu.Unlock()

		return result, nil
	}
}

// Leave removes id from the meeting. Leaving a meeting one is not part of is
// a no-op. The last leave deletes the meeting; a departing host hands over to
// the earliest remaining member.
func (r *MeetingRegistry) Leave(ctx context.Context, code domain.MeetingCode, id domain.ConnectionID) (*domain.LeaveResult, error) {
	e := r.lookup(code)
	if e == nil {
		return nil, domain.ErrMeetingNotFound
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, domain.ErrMeetingNotFound
	}

	m := e.meeting
	idx := m.IndexOf(id)
	if idx < 0 {
		remaining := m.Participants()
		e.mu.Unlock()
		return &domain.LeaveResult{Remaining: remaining}, nil
	}

	result := &domain.LeaveResult{Removed: true, Member: m.Members[idx]}
	m.Members = lo.Reject(m.Members, func(member domain.Member, _ int) bool {
		return member.ConnectionID == id
	})

	if m.HostID == id {
		m.HostID = ""
		if len(m.Members) > 0 {
			m.HostID = m.Members[0].ConnectionID
			result.NewHost = m.HostID
		}
	}
	if len(m.Members) == 0 {
		e.removed = true
		result.MeetingRemoved = true
	}
	result.Remaining = m.Participants()
	e.mu.Unlock()

	if result.MeetingRemoved {
		r.deleteIf(code, e)
	}
	return result, nil
}

func (r *MeetingRegistry) Members(ctx context.Context, code domain.MeetingCode) ([]domain.Participant, error) {
	e := r.lookup(code)
	if e == nil {
		return nil, domain.ErrMeetingNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, domain.ErrMeetingNotFound
	}
	return e.meeting.Participants(), nil
}

func (r *MeetingRegistry) Exists(ctx context.Context, code domain.MeetingCode) bool {
	e := r.lookup(code)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.removed && !e.closing
}

func (r *MeetingRegistry) BeginEnd(ctx context.Context, code domain.MeetingCode, requester domain.ConnectionID) ([]domain.Participant, error) {
	e := r.lookup(code)
	if e == nil {
		return nil, domain.ErrMeetingNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, domain.ErrMeetingNotFound
	}
	if e.closing {
		return nil, domain.ErrMeetingClosing
	}
	if e.meeting.HostID != requester {
		if e.meeting.IndexOf(requester) < 0 {
			return nil, domain.ErrNotMember
		}
		return nil, domain.ErrNotHost
	}

	e.closing = true
	return e.meeting.Participants(), nil
}

func (r *MeetingRegistry) Drain(ctx context.Context, code domain.MeetingCode) ([]domain.Member, error) {
	e := r.lookup(code)
	if e == nil {
		return nil, domain.ErrMeetingNotFound
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, domain.ErrMeetingNotFound
	}
	members := append([]domain.Member(nil), e.meeting.Members...)
	e.meeting.Members = nil
	e.removed = true
	e.mu.Unlock()

	r.deleteIf(code, e)
	return members, nil
}

// SweepIdle removes meetings that have no members and were created before
// createdBefore.
func (r *MeetingRegistry) SweepIdle(ctx context.Context, createdBefore time.Time) []domain.MeetingCode {
	r.mu.RLock()
	candidates := make(map[domain.MeetingCode]*meetingEntry, len(r.meetings))
	for code, e := range r.meetings {
		candidates[code] = e
	}
	r.mu.RUnlock()

	var swept []domain.MeetingCode
	for code, e := range candidates {
		e.mu.Lock()
		idle := !e.removed && len(e.meeting.Members) == 0 && e.meeting.CreatedAt.Before(createdBefore)
		if idle {
			e.removed = true
		}
		e.mu.Unlock()

		if idle {
			r.deleteIf(code, e)
			swept = append(swept, code)
		}
	}
	return swept
}

func (r *MeetingRegistry) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meetings)
}

func (r *MeetingRegistry) lookup(code domain.MeetingCode) *meetingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meetings[code]
}

func (r *MeetingRegistry) getOrCreate(code domain.MeetingCode, creatorName string) (*meetingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.meetings[code]; exists {
		return e, false
	}
	e := &meetingEntry{meeting: r.newMeeting(code, r.cfg.DefaultTitle, creatorName)}
	r.meetings[code] = e
	return e, true
}

func (r *MeetingRegistry) deleteIf(code domain.MeetingCode, e *meetingEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.meetings[code] == e {
		delete(r.meetings, code)
	}
}

func (r *MeetingRegistry) newMeeting(code domain.MeetingCode, title, creatorName string) *domain.Meeting {
	return &domain.Meeting{
		Code:        code,
		Title:       title,
		CreatorName: creatorName,
		CreatedAt:   r.cfg.Now(),
	}
}
